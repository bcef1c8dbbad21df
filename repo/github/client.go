// Package github implements repo.Repository on the GitHub REST API.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/devassist/logging"
	"github.com/hupe1980/devassist/repo"
)

// DefaultBaseURL is the public GitHub API endpoint.
const DefaultBaseURL = "https://api.github.com"

// Options configures the client.
type Options struct {
	Owner      string
	Repo       string
	Branch     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     logging.Logger
}

func defaultOptions() Options {
	return Options{
		Branch:     "main",
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logging.NoOpLogger{},
	}
}

// Client is a repo.Repository backed by the GitHub REST API. It holds no
// per-request state and is safe for concurrent use.
type Client struct {
	tokens     TokenSource
	owner      string
	repo       string
	branch     string
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
}

var _ repo.Repository = (*Client)(nil)

// NewClient creates a client for one owner/repo/branch.
func NewClient(tokens TokenSource, optFns ...func(o *Options)) (*Client, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if tokens == nil {
		return nil, fmt.Errorf("github: token source is required")
	}
	if opts.Owner == "" || opts.Repo == "" {
		return nil, fmt.Errorf("github: owner and repo are required")
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Client{
		tokens:     tokens,
		owner:      opts.Owner,
		repo:       opts.Repo,
		branch:     opts.Branch,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
	}, nil
}

// FullName returns owner/repo.
func (c *Client) FullName() string { return c.owner + "/" + c.repo }

// Branch returns the configured branch.
func (c *Client) Branch() string { return c.branch }

func (c *Client) repoPath(format string, args ...any) string {
	return fmt.Sprintf("/repos/%s/%s", c.owner, c.repo) + fmt.Sprintf(format, args...)
}

// escapePath escapes each path segment but keeps the separators.
func escapePath(p string) string {
	segs := strings.Split(repo.CleanPath(p), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func (c *Client) doAPI(ctx context.Context, method, path string, body any, accept string) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if accept == "" {
		accept = "application/vnd.github+json"
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

// call performs one request and returns the body of a 2xx response. Any
// other status becomes a *repo.APIError.
func (c *Client) call(ctx context.Context, op, method, path string, body any) ([]byte, int, error) {
	start := time.Now()
	resp, err := c.doAPI(ctx, method, path, body, "")
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%s HTTP %d and read body failed: %w", op, resp.StatusCode, err)
	}

	c.logger.Debug("github.api.call", "operation", op, "method", method, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, &repo.APIError{Operation: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return raw, resp.StatusCode, nil
}

func (c *Client) getContents(ctx context.Context, path string) (gjson.Result, error) {
	raw, _, err := c.call(ctx, "get contents", http.MethodGet,
		c.repoPath("/contents/%s?ref=%s", escapePath(path), url.QueryEscape(c.branch)), nil)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("get contents: invalid JSON response")
	}
	return gjson.ParseBytes(raw), nil
}

// List implements repo.Repository.
func (c *Client) List(ctx context.Context, path string) ([]repo.Entry, error) {
	res, err := c.getContents(ctx, path)
	if err != nil {
		return nil, err
	}
	if !res.IsArray() {
		return nil, repo.ErrNotADirectory
	}

	var entries []repo.Entry
	res.ForEach(func(_, item gjson.Result) bool {
		entries = append(entries, repo.Entry{
			Name: item.Get("name").String(),
			Path: item.Get("path").String(),
			Type: repo.EntryType(item.Get("type").String()),
			SHA:  item.Get("sha").String(),
			Size: item.Get("size").Int(),
		})
		return true
	})
	return entries, nil
}

// ReadFile implements repo.Repository.
func (c *Client) ReadFile(ctx context.Context, path string) (*repo.File, error) {
	res, err := c.getContents(ctx, path)
	if err != nil {
		return nil, err
	}
	if res.IsArray() || res.Get("type").String() != string(repo.EntryFile) {
		return nil, repo.ErrNotAFile
	}

	f := &repo.File{Path: res.Get("path").String(), SHA: res.Get("sha").String()}

	switch enc := res.Get("encoding").String(); enc {
	case "base64":
		content, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(res.Get("content").String(), "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("decode content: %w", err)
		}
		f.Content = content
	default:
		// files above 1 MB come without inline content
		content, err := c.readRaw(ctx, path)
		if err != nil {
			return nil, err
		}
		f.Content = content
	}
	return f, nil
}

func (c *Client) readRaw(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.doAPI(ctx, http.MethodGet,
		c.repoPath("/contents/%s?ref=%s", escapePath(path), url.QueryEscape(c.branch)), nil, "application/vnd.github.raw+json")
	if err != nil {
		return nil, fmt.Errorf("get raw contents: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &repo.APIError{Operation: "get raw contents", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

// Stat implements repo.Repository. A 404 is the authoritative "absent"
// answer; every other failure is returned as an error.
func (c *Client) Stat(ctx context.Context, path string) (repo.FileState, error) {
	res, err := c.getContents(ctx, path)
	if err != nil {
		if isNotFound(err) {
			return repo.FileState{Exists: false}, nil
		}
		return repo.FileState{}, err
	}
	if res.IsArray() {
		return repo.FileState{Exists: true, Type: repo.EntryDir}, nil
	}
	return repo.FileState{
		Exists: true,
		SHA:    res.Get("sha").String(),
		Type:   repo.EntryType(res.Get("type").String()),
	}, nil
}

type putContentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

// WriteFile implements repo.Repository.
func (c *Client) WriteFile(ctx context.Context, req repo.WriteRequest) (*repo.WriteResult, error) {
	body := putContentsRequest{
		Message: req.Message,
		Content: base64.StdEncoding.EncodeToString(req.Content),
		Branch:  c.branch,
		SHA:     req.SHA,
	}

	raw, status, err := c.call(ctx, "put contents", http.MethodPut, c.repoPath("/contents/%s", escapePath(req.Path)), body)
	if err != nil {
		return nil, err
	}

	return &repo.WriteResult{
		Created:   status == http.StatusCreated,
		CommitSHA: gjson.GetBytes(raw, "commit.sha").String(),
		FileSHA:   gjson.GetBytes(raw, "content.sha").String(),
	}, nil
}

// SearchCode implements repo.Repository.
func (c *Client) SearchCode(ctx context.Context, q repo.SearchQuery) (*repo.SearchResult, error) {
	query := fmt.Sprintf("%s repo:%s", q.Query, c.FullName())
	if q.Path != "" {
		query += " path:" + q.Path
	}
	if q.Extension != "" {
		query += " extension:" + q.Extension
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	raw, _, err := c.call(ctx, "search code", http.MethodGet,
		fmt.Sprintf("/search/code?q=%s&per_page=%d", url.QueryEscape(query), limit), nil)
	if err != nil {
		return nil, err
	}

	res := &repo.SearchResult{TotalCount: int(gjson.GetBytes(raw, "total_count").Int())}
	gjson.GetBytes(raw, "items").ForEach(func(_, item gjson.Result) bool {
		res.Items = append(res.Items, repo.SearchHit{
			Name: item.Get("name").String(),
			Path: item.Get("path").String(),
		})
		return true
	})
	return res, nil
}

// ListCommits implements repo.Repository.
func (c *Client) ListCommits(ctx context.Context, q repo.CommitQuery) ([]repo.Commit, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	v := url.Values{}
	v.Set("sha", c.branch)
	v.Set("per_page", strconv.Itoa(limit))
	if p := repo.CleanPath(q.Path); p != "" {
		v.Set("path", p)
	}

	raw, _, err := c.call(ctx, "list commits", http.MethodGet, c.repoPath("/commits?%s", v.Encode()), nil)
	if err != nil {
		return nil, err
	}

	var commits []repo.Commit
	gjson.ParseBytes(raw).ForEach(func(_, item gjson.Result) bool {
		commits = append(commits, repo.Commit{
			SHA:     item.Get("sha").String(),
			Message: item.Get("commit.message").String(),
			Author:  item.Get("commit.author.name").String(),
			Date:    item.Get("commit.author.date").Time(),
		})
		return true
	})
	return commits, nil
}

func (c *Client) headSHA(ctx context.Context) (string, error) {
	raw, _, err := c.call(ctx, "get ref", http.MethodGet, c.repoPath("/git/ref/heads/%s", escapePath(c.branch)), nil)
	if err != nil {
		return "", err
	}
	sha := gjson.GetBytes(raw, "object.sha").String()
	if sha == "" {
		return "", fmt.Errorf("get ref: missing object sha")
	}
	return sha, nil
}

// CreateBranch implements repo.Repository.
func (c *Client) CreateBranch(ctx context.Context, name string) error {
	sha, err := c.headSHA(ctx)
	if err != nil {
		return err
	}
	_, _, err = c.call(ctx, "create ref", http.MethodPost, c.repoPath("/git/refs"), map[string]string{
		"ref": "refs/heads/" + name,
		"sha": sha,
	})
	return err
}

// CreatePullRequest implements repo.Repository.
func (c *Client) CreatePullRequest(ctx context.Context, in repo.PullRequestInput) (*repo.PullRequest, error) {
	raw, _, err := c.call(ctx, "create pull request", http.MethodPost, c.repoPath("/pulls"), map[string]string{
		"title": in.Title,
		"body":  in.Body,
		"head":  in.Head,
		"base":  c.branch,
	})
	if err != nil {
		return nil, err
	}
	return &repo.PullRequest{
		Number: int(gjson.GetBytes(raw, "number").Int()),
		URL:    gjson.GetBytes(raw, "html_url").String(),
	}, nil
}

// TriggerDeploy implements repo.Repository: it creates an empty commit
// reusing the head tree and fast-forwards the branch to it.
func (c *Client) TriggerDeploy(ctx context.Context, message string) (string, error) {
	head, err := c.headSHA(ctx)
	if err != nil {
		return "", err
	}

	raw, _, err := c.call(ctx, "get commit", http.MethodGet, c.repoPath("/git/commits/%s", head), nil)
	if err != nil {
		return "", err
	}
	tree := gjson.GetBytes(raw, "tree.sha").String()

	raw, _, err = c.call(ctx, "create commit", http.MethodPost, c.repoPath("/git/commits"), map[string]any{
		"message": message,
		"tree":    tree,
		"parents": []string{head},
	})
	if err != nil {
		return "", err
	}
	newSHA := gjson.GetBytes(raw, "sha").String()

	if _, _, err := c.call(ctx, "update ref", http.MethodPatch, c.repoPath("/git/refs/heads/%s", escapePath(c.branch)), map[string]string{
		"sha": newSHA,
	}); err != nil {
		return "", err
	}
	return newSHA, nil
}

func isNotFound(err error) bool { return errors.Is(err, repo.ErrNotFound) }
