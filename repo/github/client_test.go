package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/devassist/repo"
)

// fakeGitHub serves the subset of the REST API the client uses.
type fakeGitHub struct {
	mu      sync.Mutex
	files   map[string]string // path -> content
	shas    map[string]string
	puts    []gjson.Result
	posts   map[string]gjson.Result
	patches []gjson.Result
	lastURL string
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		files: map[string]string{"src/a.ts": "export const a = 1\n", "src/b.ts": "b", "README.md": "# hi"},
		shas:  map[string]string{"src/a.ts": "sha-a", "src/b.ts": "sha-b", "README.md": "sha-r"},
		posts: map[string]gjson.Result{},
	}
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastURL = r.URL.String()
	if r.Header.Get("Authorization") != "Bearer tok" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	const prefix = "/repos/octo/demo"
	path := strings.TrimPrefix(r.URL.Path, prefix)

	switch {
	case strings.HasPrefix(path, "/contents"):
		p := strings.Trim(strings.TrimPrefix(path, "/contents"), "/")
		switch r.Method {
		case http.MethodGet:
			f.serveContents(w, p)
		case http.MethodPut:
			req := gjson.ParseBytes(body)
			f.puts = append(f.puts, req)
			current, exists := f.shas[p]
			sent := req.Get("sha").String()
			if exists && sent != current {
				w.WriteHeader(http.StatusConflict)
				fmt.Fprintf(w, `{"message":"%s does not match %s"}`, p, sent)
				return
			}
			if !exists && sent != "" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			content, _ := base64.StdEncoding.DecodeString(req.Get("content").String())
			f.files[p] = string(content)
			f.shas[p] = "sha-new"
			if exists {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusCreated)
			}
			fmt.Fprint(w, `{"content":{"sha":"sha-new"},"commit":{"sha":"c-new"}}`)
		}
	case r.URL.Path == "/search/code":
		fmt.Fprint(w, `{"total_count":42,"items":[{"name":"a.ts","path":"src/a.ts"},{"name":"b.ts","path":"src/b.ts"}]}`)
	case path == "/commits":
		fmt.Fprint(w, `[{"sha":"1","commit":{"message":"feat: one\n\nbody","author":{"name":"p","date":"2024-05-01T10:00:00Z"}}},
			{"sha":"2","commit":{"message":"fix: two","author":{"name":"p","date":"2024-04-30T10:00:00Z"}}}]`)
	case path == "/git/ref/heads/main":
		fmt.Fprint(w, `{"object":{"sha":"head-sha"}}`)
	case path == "/git/commits/head-sha":
		fmt.Fprint(w, `{"sha":"head-sha","tree":{"sha":"tree-sha"}}`)
	case r.Method == http.MethodPost:
		f.posts[path] = gjson.ParseBytes(body)
		w.WriteHeader(http.StatusCreated)
		switch path {
		case "/pulls":
			fmt.Fprint(w, `{"number":7,"html_url":"https://github.com/octo/demo/pull/7"}`)
		case "/git/commits":
			fmt.Fprint(w, `{"sha":"empty-sha"}`)
		default:
			fmt.Fprint(w, `{}`)
		}
	case r.Method == http.MethodPatch && path == "/git/refs/heads/main":
		f.patches = append(f.patches, gjson.ParseBytes(body))
		fmt.Fprint(w, `{}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	}
}

func (f *fakeGitHub) serveContents(w http.ResponseWriter, p string) {
	if content, ok := f.files[p]; ok {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":     "file",
			"path":     p,
			"sha":      f.shas[p],
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
		})
		return
	}
	var entries []map[string]any
	seen := map[string]bool{}
	for fp := range f.files {
		rest := fp
		if p != "" {
			if !strings.HasPrefix(fp, p+"/") {
				continue
			}
			rest = strings.TrimPrefix(fp, p+"/")
		}
		name, _, isDir := strings.Cut(rest, "/")
		if seen[name] {
			continue
		}
		seen[name] = true
		typ := "file"
		if isDir {
			typ = "dir"
		}
		entries = append(entries, map[string]any{"name": name, "path": strings.TrimPrefix(p+"/"+name, "/"), "type": typ})
	}
	if len(entries) == 0 {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
		return
	}
	_ = json.NewEncoder(w).Encode(entries)
}

func newTestClient(t *testing.T) (*Client, *fakeGitHub) {
	t.Helper()
	fake := newFakeGitHub()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := NewClient(StaticToken("tok"), func(o *Options) {
		o.Owner = "octo"
		o.Repo = "demo"
		o.BaseURL = srv.URL
		o.HTTPClient = srv.Client()
	})
	require.NoError(t, err)
	return c, fake
}

func TestClient_ListAndRead(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	entries, err := c.List(ctx, "src")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	root, err := c.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, root, 2) // src, README.md

	_, err = c.List(ctx, "README.md")
	assert.ErrorIs(t, err, repo.ErrNotADirectory)

	f, err := c.ReadFile(ctx, "src/a.ts")
	require.NoError(t, err)
	assert.Equal(t, "export const a = 1\n", string(f.Content))
	assert.Equal(t, "sha-a", f.SHA)

	_, err = c.ReadFile(ctx, "src")
	assert.ErrorIs(t, err, repo.ErrNotAFile)

	_, err = c.ReadFile(ctx, "missing.ts")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	var apiErr *repo.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestClient_StatTriState(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	st, err := c.Stat(ctx, "src/a.ts")
	require.NoError(t, err)
	assert.Equal(t, repo.FileState{Exists: true, SHA: "sha-a", Type: repo.EntryFile}, st)

	st, err = c.Stat(ctx, "new/file.ts")
	require.NoError(t, err)
	assert.False(t, st.Exists)

	bad, err := NewClient(StaticToken("wrong"), func(o *Options) {
		o.Owner, o.Repo, o.BaseURL = "octo", "demo", c.baseURL
	})
	require.NoError(t, err)
	_, err = bad.Stat(ctx, "src/a.ts")
	assert.Error(t, err, "auth failures are errors, not absence")
}

func TestClient_WriteFile(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	res, err := c.WriteFile(ctx, repo.WriteRequest{Path: "docs/new.md", Content: []byte("hello"), Message: "add doc"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "c-new", res.CommitSHA)
	assert.False(t, fake.puts[0].Get("sha").Exists(), "create must not send a version token")
	assert.Equal(t, "main", fake.puts[0].Get("branch").String())

	res, err = c.WriteFile(ctx, repo.WriteRequest{Path: "src/a.ts", Content: []byte("x"), Message: "update", SHA: "sha-a"})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "sha-a", fake.puts[1].Get("sha").String())

	_, err = c.WriteFile(ctx, repo.WriteRequest{Path: "src/b.ts", Content: []byte("x"), Message: "stale", SHA: "old"})
	assert.ErrorIs(t, err, repo.ErrConflict)
}

func TestClient_SearchAndCommits(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	res, err := c.SearchCode(ctx, repo.SearchQuery{Query: "useState", Path: "apps/ethos", Extension: "tsx"})
	require.NoError(t, err)
	assert.Equal(t, 42, res.TotalCount)
	assert.Len(t, res.Items, 2)
	assert.Contains(t, fake.lastURL, "per_page=20")
	assert.Contains(t, fake.lastURL, "repo%3Aocto%2Fdemo")
	assert.Contains(t, fake.lastURL, "extension%3Atsx")

	commits, err := c.ListCommits(ctx, repo.CommitQuery{Path: "src/a.ts", Limit: 5})
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "feat: one", commits[0].Subject(60))
	assert.Equal(t, 2024, commits[0].Date.Year())
	assert.Contains(t, fake.lastURL, "per_page=5")
	assert.Contains(t, fake.lastURL, "path=src%2Fa.ts")
}

func TestClient_BranchPRDeploy(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.CreateBranch(ctx, "feature/x"))
	ref := fake.posts["/git/refs"]
	assert.Equal(t, "refs/heads/feature/x", ref.Get("ref").String())
	assert.Equal(t, "head-sha", ref.Get("sha").String())

	pr, err := c.CreatePullRequest(ctx, repo.PullRequestInput{Title: "T", Head: "feature/x"})
	require.NoError(t, err)
	assert.Equal(t, 7, pr.Number)
	assert.Equal(t, "main", fake.posts["/pulls"].Get("base").String())

	sha, err := c.TriggerDeploy(ctx, "Trigger deploy")
	require.NoError(t, err)
	assert.Equal(t, "empty-sha", sha)
	commit := fake.posts["/git/commits"]
	assert.Equal(t, "tree-sha", commit.Get("tree").String())
	assert.Equal(t, "head-sha", commit.Get("parents.0").String())
	require.Len(t, fake.patches, 1)
	assert.Equal(t, "empty-sha", fake.patches[0].Get("sha").String())
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil)
	assert.Error(t, err)
	_, err = NewClient(StaticToken("x"))
	assert.Error(t, err)

	_, err = StaticToken("").Token(context.Background())
	assert.Error(t, err)
	assert.False(t, errors.Is(err, repo.ErrNotFound))
}
