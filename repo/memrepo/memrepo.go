// Package memrepo provides an in-process repo.Repository. It backs tests and
// the offline mode of the CLI.
package memrepo

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/devassist/repo"
)

// WriteHook runs inside WriteFile after the request is accepted for
// processing but before the version token is checked. Tests use it to
// simulate a concurrent writer.
type WriteHook func(r *Repository, req repo.WriteRequest)

// Options configures a Repository.
type Options struct {
	Branch string
	// BeforeWrite, if set, is called without the lock held.
	BeforeWrite WriteHook
	// Now overrides the commit clock.
	Now func() time.Time
}

type file struct {
	content []byte
	sha     string
}

// Repository is a branch-local file tree with a linear commit log. Directories
// exist implicitly when a file lives below them.
type Repository struct {
	branch      string
	beforeWrite WriteHook
	now         func() time.Time

	mu       sync.RWMutex
	files    map[string]file
	commits  []repo.Commit // newest first
	history  map[string][]int
	branches map[string]string
	prs      []repo.PullRequestInput
}

var _ repo.Repository = (*Repository)(nil)

// New creates a repository seeded with files (path -> content). The seed is
// recorded as one initial commit.
func New(seed map[string]string, optFns ...func(o *Options)) *Repository {
	opts := Options{Branch: "main", Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}

	r := &Repository{
		branch:      opts.Branch,
		beforeWrite: opts.BeforeWrite,
		now:         opts.Now,
		files:       make(map[string]file, len(seed)),
		history:     make(map[string][]int),
		branches:    make(map[string]string),
	}

	paths := make([]string, 0, len(seed))
	for p, content := range seed {
		p = repo.CleanPath(p)
		r.files[p] = file{content: []byte(content), sha: blobSHA([]byte(content))}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	r.commitLocked("Initial commit", paths...)
	r.branches[r.branch] = r.commits[0].SHA
	return r
}

func blobSHA(content []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// commitLocked prepends a commit touching paths. Callers hold mu.
func (r *Repository) commitLocked(message string, paths ...string) repo.Commit {
	c := repo.Commit{
		SHA:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		Message: message,
		Author:  "devassist",
		Date:    r.now(),
	}
	r.commits = append([]repo.Commit{c}, r.commits...)
	// shift existing indexes
	for p, idx := range r.history {
		for i := range idx {
			idx[i]++
		}
		r.history[p] = idx
	}
	for _, p := range paths {
		r.history[p] = append([]int{0}, r.history[p]...)
	}
	r.branches[r.branch] = c.SHA
	return c
}

func (r *Repository) isDirLocked(p string) bool {
	if p == "" {
		return true
	}
	prefix := p + "/"
	for fp := range r.files {
		if strings.HasPrefix(fp, prefix) {
			return true
		}
	}
	return false
}

func notFound(op, p string) error {
	return &repo.APIError{Operation: op, StatusCode: 404, Body: fmt.Sprintf(`{"message":"Not Found","path":%q}`, p)}
}

// List implements repo.Repository.
func (r *Repository) List(ctx context.Context, p string) ([]repo.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = repo.CleanPath(p)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.files[p]; ok {
		return nil, repo.ErrNotADirectory
	}
	if !r.isDirLocked(p) {
		return nil, notFound("get contents", p)
	}

	seen := make(map[string]repo.Entry)
	for fp, f := range r.files {
		rest := fp
		if p != "" {
			if !strings.HasPrefix(fp, p+"/") {
				continue
			}
			rest = strings.TrimPrefix(fp, p+"/")
		}
		name, _, nested := strings.Cut(rest, "/")
		if _, ok := seen[name]; ok {
			continue
		}
		e := repo.Entry{Name: name, Path: path.Join(p, name), Type: repo.EntryFile, SHA: f.sha, Size: int64(len(f.content))}
		if nested {
			e = repo.Entry{Name: name, Path: path.Join(p, name), Type: repo.EntryDir}
		}
		seen[name] = e
	}

	entries := make([]repo.Entry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// ReadFile implements repo.Repository.
func (r *Repository) ReadFile(ctx context.Context, p string) (*repo.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = repo.CleanPath(p)

	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.files[p]
	if !ok {
		if r.isDirLocked(p) {
			return nil, repo.ErrNotAFile
		}
		return nil, notFound("get contents", p)
	}
	return &repo.File{Path: p, SHA: f.sha, Content: append([]byte(nil), f.content...)}, nil
}

// Stat implements repo.Repository.
func (r *Repository) Stat(ctx context.Context, p string) (repo.FileState, error) {
	if err := ctx.Err(); err != nil {
		return repo.FileState{}, err
	}
	p = repo.CleanPath(p)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.files[p]; ok {
		return repo.FileState{Exists: true, SHA: f.sha, Type: repo.EntryFile}, nil
	}
	if p != "" && r.isDirLocked(p) {
		return repo.FileState{Exists: true, Type: repo.EntryDir}, nil
	}
	return repo.FileState{Exists: false}, nil
}

// WriteFile implements repo.Repository with the same version-token rules as
// the contents API: an update must carry the current SHA and a create must
// carry none.
func (r *Repository) WriteFile(ctx context.Context, req repo.WriteRequest) (*repo.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req.Path = repo.CleanPath(req.Path)
	if req.Path == "" {
		return nil, &repo.APIError{Operation: "put contents", StatusCode: 422, Body: `{"message":"path is required"}`}
	}

	if r.beforeWrite != nil {
		r.beforeWrite(r, req)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.files[req.Path]
	switch {
	case exists && req.SHA == "":
		return nil, &repo.APIError{Operation: "put contents", StatusCode: 422,
			Body: fmt.Sprintf(`{"message":"Invalid request. \"sha\" wasn't supplied.","path":%q}`, req.Path)}
	case exists && req.SHA != current.sha:
		return nil, &repo.APIError{Operation: "put contents", StatusCode: 409,
			Body: fmt.Sprintf(`{"message":"%s does not match %s"}`, req.Path, req.SHA)}
	case !exists && req.SHA != "":
		return nil, &repo.APIError{Operation: "put contents", StatusCode: 409,
			Body: fmt.Sprintf(`{"message":"%s does not exist, sha %s is stale"}`, req.Path, req.SHA)}
	case !exists && r.isDirLocked(req.Path):
		return nil, &repo.APIError{Operation: "put contents", StatusCode: 422,
			Body: fmt.Sprintf(`{"message":"%s is a directory"}`, req.Path)}
	}

	f := file{content: append([]byte(nil), req.Content...), sha: blobSHA(req.Content)}
	r.files[req.Path] = f
	c := r.commitLocked(req.Message, req.Path)

	return &repo.WriteResult{Created: !exists, CommitSHA: c.SHA, FileSHA: f.sha}, nil
}

// SearchCode implements repo.Repository with a case-insensitive substring
// match over file contents and paths.
func (r *Repository) SearchCode(ctx context.Context, q repo.SearchQuery) (*repo.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	needle := strings.ToLower(q.Query)
	dir := repo.CleanPath(q.Path)
	ext := strings.TrimPrefix(q.Extension, ".")

	r.mu.RLock()
	defer r.mu.RUnlock()

	var hits []repo.SearchHit
	for fp, f := range r.files {
		if dir != "" && fp != dir && !strings.HasPrefix(fp, dir+"/") {
			continue
		}
		if ext != "" && strings.TrimPrefix(path.Ext(fp), ".") != ext {
			continue
		}
		if strings.Contains(strings.ToLower(string(f.content)), needle) || strings.Contains(strings.ToLower(fp), needle) {
			hits = append(hits, repo.SearchHit{Name: path.Base(fp), Path: fp})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Path < hits[j].Path })

	res := &repo.SearchResult{TotalCount: len(hits)}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	res.Items = hits
	return res, nil
}

// ListCommits implements repo.Repository.
func (r *Repository) ListCommits(ctx context.Context, q repo.CommitQuery) ([]repo.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []repo.Commit
	if p := repo.CleanPath(q.Path); p != "" {
		for _, idx := range r.history[p] {
			out = append(out, r.commits[idx])
		}
	} else {
		out = append(out, r.commits...)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateBranch implements repo.Repository.
func (r *Repository) CreateBranch(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.branches[name]; ok {
		return &repo.APIError{Operation: "create ref", StatusCode: 422, Body: `{"message":"Reference already exists"}`}
	}
	r.branches[name] = r.branches[r.branch]
	return nil
}

// CreatePullRequest implements repo.Repository.
func (r *Repository) CreatePullRequest(ctx context.Context, in repo.PullRequestInput) (*repo.PullRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.branches[in.Head]; !ok {
		return nil, &repo.APIError{Operation: "create pull request", StatusCode: 422,
			Body: fmt.Sprintf(`{"message":"Validation Failed","head":%q}`, in.Head)}
	}
	r.prs = append(r.prs, in)
	n := len(r.prs)
	return &repo.PullRequest{Number: n, URL: fmt.Sprintf("https://example.invalid/pull/%d", n)}, nil
}

// TriggerDeploy implements repo.Repository.
func (r *Repository) TriggerDeploy(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.commitLocked(message).SHA, nil
}

// Branches returns the branch names in sorted order.
func (r *Repository) Branches() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.branches))
	for n := range r.branches {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// PullRequests returns the opened pull requests in order.
func (r *Repository) PullRequests() []repo.PullRequestInput {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]repo.PullRequestInput(nil), r.prs...)
}

// Content returns a file's content and whether it exists.
func (r *Repository) Content(p string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.files[repo.CleanPath(p)]
	return string(f.content), ok
}

// Put writes a file outside the token protocol, as another client would.
func (r *Repository) Put(p, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p = repo.CleanPath(p)
	r.files[p] = file{content: []byte(content), sha: blobSHA([]byte(content))}
	r.commitLocked("external change to "+p, p)
}

// HeadSHA returns the current commit of the configured branch.
func (r *Repository) HeadSHA() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.branches[r.branch]
}
