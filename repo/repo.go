// Package repo defines the remote repository abstraction the assistant's
// tools operate on: a single repository and branch reached over the network.
package repo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNotFound reports a missing path, ref or resource.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a write whose version token no longer matches the
	// remote head (or a create over an existing path).
	ErrConflict = errors.New("conflict: file changed since it was read")
	// ErrNotADirectory is returned by List for a path naming a file.
	ErrNotADirectory = errors.New("not a directory")
	// ErrNotAFile is returned by ReadFile for a path naming a directory.
	ErrNotAFile = errors.New("not a file")
)

// EntryType classifies a directory entry.
type EntryType string

// Entry types reported by the contents API.
const (
	EntryFile      EntryType = "file"
	EntryDir       EntryType = "dir"
	EntrySymlink   EntryType = "symlink"
	EntrySubmodule EntryType = "submodule"
)

// Entry is one item of a directory listing.
type Entry struct {
	Name string    `json:"name"`
	Path string    `json:"path"`
	Type EntryType `json:"type"`
	SHA  string    `json:"sha,omitempty"`
	Size int64     `json:"size,omitempty"`
}

// FileState is the result of a version-token lookup. Exists=false means the
// path is known to be absent; lookup failures are reported as errors instead.
type FileState struct {
	Exists bool
	SHA    string // version token, set when Exists
	Type   EntryType
}

// File is a decoded file and its version token.
type File struct {
	Path    string
	SHA     string
	Content []byte
}

// WriteRequest creates or updates one file. SHA must be empty to create and
// must carry the current version token to update.
type WriteRequest struct {
	Path    string
	Content []byte
	Message string
	SHA     string
}

// WriteResult describes a committed write.
type WriteResult struct {
	Created   bool
	CommitSHA string
	FileSHA   string
}

// SearchQuery filters a code search.
type SearchQuery struct {
	Query     string
	Path      string
	Extension string
	Limit     int
}

// SearchHit is one matching file.
type SearchHit struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// SearchResult is the outcome of a code search. TotalCount may exceed len(Items).
type SearchResult struct {
	TotalCount int
	Items      []SearchHit
}

// CommitQuery filters the commit log of the configured branch.
type CommitQuery struct {
	Path  string
	Limit int
}

// Commit is one history entry.
type Commit struct {
	SHA     string
	Message string
	Author  string
	Date    time.Time
}

// Subject returns the first line of the message truncated to max runes.
func (c Commit) Subject(max int) string {
	line, _, _ := strings.Cut(c.Message, "\n")
	if max > 0 {
		if r := []rune(line); len(r) > max {
			return string(r[:max])
		}
	}
	return line
}

// PullRequestInput opens a pull request against the configured branch.
type PullRequestInput struct {
	Title string
	Body  string
	Head  string
}

// PullRequest is a created pull request.
type PullRequest struct {
	Number int
	URL    string
}

// Repository is a remote repository bound to one owner/name/branch. All
// methods are safe for concurrent use.
type Repository interface {
	// List returns the entries of a directory ("" is the root).
	List(ctx context.Context, path string) ([]Entry, error)
	// ReadFile returns the decoded file content.
	ReadFile(ctx context.Context, path string) (*File, error)
	// Stat performs the version-token lookup for an optimistic write.
	Stat(ctx context.Context, path string) (FileState, error)
	// WriteFile commits one file; a stale SHA yields ErrConflict.
	WriteFile(ctx context.Context, req WriteRequest) (*WriteResult, error)
	// SearchCode searches file contents.
	SearchCode(ctx context.Context, q SearchQuery) (*SearchResult, error)
	// ListCommits returns recent commits, newest first.
	ListCommits(ctx context.Context, q CommitQuery) ([]Commit, error)
	// CreateBranch creates name from the configured branch head.
	CreateBranch(ctx context.Context, name string) error
	// CreatePullRequest opens a pull request into the configured branch.
	CreatePullRequest(ctx context.Context, in PullRequestInput) (*PullRequest, error)
	// TriggerDeploy pushes an empty commit onto the configured branch and
	// returns its SHA.
	TriggerDeploy(ctx context.Context, message string) (string, error)
}

// APIError is a non-success response of the remote API.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("GitHub API error: %d - %s", e.StatusCode, e.Body)
}

// Is maps HTTP statuses onto the package sentinels. GitHub reports a stale
// or missing version token as 409, or as 422 mentioning "sha".
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict ||
			(e.StatusCode == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(e.Body), "sha"))
	default:
		return false
	}
}

// CleanPath normalizes a tool supplied path: "." and "/" mean the root and
// surrounding slashes are dropped.
func CleanPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "." || p == "/" {
		return ""
	}
	return strings.Trim(p, "/")
}
