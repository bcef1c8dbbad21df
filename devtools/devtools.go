// Package devtools exposes a repo.Repository to the model as the nine
// repository tools: browsing, reading, optimistic writes, search, history,
// branches, pull requests and deploy triggers.
package devtools

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/devassist/core"
	"github.com/hupe1980/devassist/repo"
	"github.com/hupe1980/devassist/tool"
)

// Tool names.
const (
	ListFiles         = "list_files"
	ReadFile          = "read_file"
	WriteFile         = "write_file"
	SearchCode        = "search_code"
	GetRecentCommits  = "get_recent_commits"
	GetFileHistory    = "get_file_history"
	CreateBranch      = "create_branch"
	CreatePullRequest = "create_pull_request"
	TriggerDeploy     = "trigger_deploy"
)

// Defaults mirrored from the hosted assistant.
const (
	DefaultCommitCount   = 10
	HistoryCount         = 10
	SearchLimit          = 20
	CommitSubjectMax     = 60
	HistorySubjectMax    = 50
	DefaultDeployMessage = "Trigger deploy"
)

const successMark = "✅"

// IsMutating reports whether the named tool changes the remote repository.
func IsMutating(name string) bool {
	switch name {
	case WriteFile, CreateBranch, CreatePullRequest, TriggerDeploy:
		return true
	default:
		return false
	}
}

// Mutation returns a one-line summary of a successful side-effecting result.
// It is the classifier the assistant uses to report partial side effects.
func Mutation(resp core.FunctionResponse) (string, bool) {
	if !IsMutating(resp.Name) || resp.IsError || !strings.HasPrefix(resp.Response, successMark) {
		return "", false
	}
	line, _, _ := strings.Cut(resp.Response, "\n")
	return strings.TrimSpace(strings.TrimPrefix(line, successMark)), true
}

// Options configures the toolset.
type Options struct {
	// Location used to render commit dates.
	Location *time.Location
	// DateLayout is the time layout for commit dates.
	DateLayout string
}

// Toolset binds the tools to one repository.
type Toolset struct {
	repo repo.Repository
	opts Options
}

// New creates a toolset over r.
func New(r repo.Repository, optFns ...func(o *Options)) *Toolset {
	opts := Options{
		Location:   time.UTC,
		DateLayout: "1/2/2006",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Toolset{repo: r, opts: opts}
}

// NewRegistry builds a tool registry holding the nine repository tools.
func NewRegistry(r repo.Repository, optFns ...func(o *Options)) (*tool.Registry, error) {
	return tool.NewRegistry(New(r, optFns...).Tools()...)
}

type listFilesArgs struct {
	Path string `json:"path" description:"Path relative to repo root. Use empty string or '.' for root."`
}

type readFileArgs struct {
	Path string `json:"path" description:"Path to the file relative to repo root"`
}

type writeFileArgs struct {
	Path    string `json:"path" description:"Path to the file relative to repo root"`
	Content string `json:"content" description:"The content to write to the file"`
	Message string `json:"message" description:"Commit message describing the change"`
}

type searchCodeArgs struct {
	Query     string `json:"query" description:"Search query (code pattern to find)"`
	Path      string `json:"path,omitempty" description:"Optional path filter (e.g., 'guildry/apps/ethos' to search only in that app)"`
	Extension string `json:"extension,omitempty" description:"Optional file extension filter (e.g., 'jsx', 'ts')"`
}

type recentCommitsArgs struct {
	Path  string  `json:"path,omitempty" description:"Optional path to filter commits by"`
	Count float64 `json:"count,omitempty" description:"Number of commits to fetch (default 10)"`
}

type fileHistoryArgs struct {
	Path string `json:"path" description:"Path to the file"`
}

type createBranchArgs struct {
	Name string `json:"name" description:"Name for the new branch"`
}

type createPullRequestArgs struct {
	Title string `json:"title" description:"PR title"`
	Body  string `json:"body,omitempty" description:"PR description"`
	Head  string `json:"head" description:"Branch name to merge from"`
}

type triggerDeployArgs struct {
	Message string `json:"message,omitempty" description:"Deploy commit message"`
}

// Tools returns the tools in their declaration order.
func (ts *Toolset) Tools() []tool.Tool {
	return []tool.Tool{
		tool.NewTypedFunctionTool(ListFiles,
			"List files and directories at a given path in the GitHub repository.",
			ts.listFiles),
		tool.NewTypedFunctionTool(ReadFile,
			"Read the contents of a file from the GitHub repository.",
			ts.readFile),
		tool.NewTypedFunctionTool(WriteFile,
			"Create or update a file in the GitHub repository. This creates a commit.",
			ts.writeFile),
		tool.NewTypedFunctionTool(SearchCode,
			"Search for code patterns across the repository using GitHub code search.",
			ts.searchCode),
		tool.NewTypedFunctionTool(GetRecentCommits,
			"Get recent commits to see what has changed.",
			ts.recentCommits),
		tool.NewTypedFunctionTool(GetFileHistory,
			"Get the commit history for a specific file.",
			ts.fileHistory),
		tool.NewTypedFunctionTool(CreateBranch,
			"Create a new branch from the current main branch.",
			ts.createBranch),
		tool.NewTypedFunctionTool(CreatePullRequest,
			"Create a pull request from a branch to main.",
			ts.createPullRequest),
		tool.NewTypedFunctionTool(TriggerDeploy,
			"Trigger a Vercel deployment by creating an empty commit (useful after multiple file changes).",
			ts.triggerDeploy),
	}
}

func (ts *Toolset) listFiles(tc *core.ToolContext, args listFilesArgs) (string, error) {
	path := repo.CleanPath(args.Path)

	entries, err := ts.repo.List(tc.Context(), path)
	if err != nil {
		if errors.Is(err, repo.ErrNotADirectory) {
			return fmt.Sprintf("%s is a file, not a directory", path), nil
		}
		return "Error listing files: " + err.Error(), nil
	}

	lines := make([]string, len(entries))
	for i, e := range entries {
		icon := "📄"
		if e.Type == repo.EntryDir {
			icon = "📁"
		}
		lines[i] = icon + " " + e.Name
	}
	return strings.Join(lines, "\n"), nil
}

func (ts *Toolset) readFile(tc *core.ToolContext, args readFileArgs) (string, error) {
	path := args.Path

	f, err := ts.repo.ReadFile(tc.Context(), path)
	if err != nil {
		if errors.Is(err, repo.ErrNotAFile) {
			return fmt.Sprintf("%s is not a file", path), nil
		}
		return "Error reading file: " + err.Error(), nil
	}
	return string(f.Content), nil
}

// writeFile performs the optimistic write: the version token is looked up
// right before the write, sent only for an existing file, and a mismatch is
// reported rather than retried.
func (ts *Toolset) writeFile(tc *core.ToolContext, args writeFileArgs) (string, error) {
	path := repo.CleanPath(args.Path)
	message := args.Message
	if message == "" {
		message = "Update " + path
	}

	state, err := ts.repo.Stat(tc.Context(), path)
	if err != nil {
		return "Error writing file: " + err.Error(), nil
	}
	if state.Exists && state.Type == repo.EntryDir {
		return fmt.Sprintf("Error writing file: %s is a directory", path), nil
	}

	req := repo.WriteRequest{
		Path:    path,
		Content: []byte(args.Content),
		Message: message,
	}
	if state.Exists {
		req.SHA = state.SHA
	}

	res, err := ts.repo.WriteFile(tc.Context(), req)
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			tc.LogWarn("write_file.conflict", "path", path)
			return fmt.Sprintf("Error writing file: %v: %v. Read the file again before retrying.", repo.ErrConflict, err), nil
		}
		return "Error writing file: " + err.Error(), nil
	}

	verb := "updated"
	if res.Created {
		verb = "created"
	}
	return fmt.Sprintf("%s Successfully %s %s\nCommit: \"%s\"", successMark, verb, path, message), nil
}

func (ts *Toolset) searchCode(tc *core.ToolContext, args searchCodeArgs) (string, error) {
	res, err := ts.repo.SearchCode(tc.Context(), repo.SearchQuery{
		Query:     args.Query,
		Path:      args.Path,
		Extension: args.Extension,
		Limit:     SearchLimit,
	})
	if err != nil {
		return fmt.Sprintf("Search error (may be rate limited): %s. Try reading specific files instead.", err.Error()), nil
	}
	if res.TotalCount == 0 {
		return "No matches found", nil
	}

	lines := make([]string, len(res.Items))
	for i, hit := range res.Items {
		lines[i] = "📄 " + hit.Path
	}
	return strings.Join(lines, "\n") + fmt.Sprintf("\n\n(%d total matches)", res.TotalCount), nil
}

func (ts *Toolset) recentCommits(tc *core.ToolContext, args recentCommitsArgs) (string, error) {
	count := int(args.Count)
	if count <= 0 {
		count = DefaultCommitCount
	}

	commits, err := ts.repo.ListCommits(tc.Context(), repo.CommitQuery{
		Path:  args.Path,
		Limit: count,
	})
	if err != nil {
		return "Error fetching commits: " + err.Error(), nil
	}
	return ts.formatCommits(commits, CommitSubjectMax), nil
}

func (ts *Toolset) fileHistory(tc *core.ToolContext, args fileHistoryArgs) (string, error) {
	commits, err := ts.repo.ListCommits(tc.Context(), repo.CommitQuery{
		Path:  args.Path,
		Limit: HistoryCount,
	})
	if err != nil {
		return "Error fetching history: " + err.Error(), nil
	}
	return ts.formatCommits(commits, HistorySubjectMax), nil
}

func (ts *Toolset) formatCommits(commits []repo.Commit, subjectMax int) string {
	lines := make([]string, len(commits))
	for i, c := range commits {
		lines[i] = fmt.Sprintf("• %s: %s", c.Date.In(ts.opts.Location).Format(ts.opts.DateLayout), c.Subject(subjectMax))
	}
	return strings.Join(lines, "\n")
}

func (ts *Toolset) createBranch(tc *core.ToolContext, args createBranchArgs) (string, error) {
	name := args.Name
	if err := ts.repo.CreateBranch(tc.Context(), name); err != nil {
		return "Error creating branch: " + err.Error(), nil
	}
	return fmt.Sprintf("%s Created branch: %s", successMark, name), nil
}

func (ts *Toolset) createPullRequest(tc *core.ToolContext, args createPullRequestArgs) (string, error) {
	pr, err := ts.repo.CreatePullRequest(tc.Context(), repo.PullRequestInput{
		Title: args.Title,
		Body:  args.Body,
		Head:  args.Head,
	})
	if err != nil {
		return "Error creating PR: " + err.Error(), nil
	}
	return fmt.Sprintf("%s Created PR #%d: %s", successMark, pr.Number, pr.URL), nil
}

func (ts *Toolset) triggerDeploy(tc *core.ToolContext, args triggerDeployArgs) (string, error) {
	message := args.Message
	if message == "" {
		message = DefaultDeployMessage
	}
	if _, err := ts.repo.TriggerDeploy(tc.Context(), message); err != nil {
		return "Error triggering deploy: " + err.Error(), nil
	}
	return successMark + " Deploy triggered. Vercel will pick up the change shortly.", nil
}
