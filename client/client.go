// Package client is a Go client for the devassist HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/devassist/core"
	"github.com/hupe1980/devassist/proposal"
	"github.com/hupe1980/devassist/stream"
)

// Options configures a Client.
type Options struct {
	// Token is sent as a bearer token when set.
	Token      string
	HTTPClient *http.Client
	// Timeout bounds non-streaming requests. Streams are bounded by the
	// caller's context only.
	Timeout time.Duration
}

// Client talks to a devassist server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	timeout    time.Duration
}

// New creates a client for the server at baseURL.
func New(baseURL string, optFns ...func(o *Options)) *Client {
	opts := Options{
		HTTPClient: http.DefaultClient,
		Timeout:    5 * time.Minute,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      opts.Token,
		httpClient: opts.HTTPClient,
		timeout:    opts.Timeout,
	}
}

// HTTPError is a non-2xx answer. Message holds the server's "error" field
// or, failing that, the raw body.
type HTTPError struct {
	StatusCode int
	Message    string
	ToolsUsed  []string
	Mutations  []string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// ChatResult is a completed chat turn.
type ChatResult struct {
	Response  string   `json:"response"`
	ToolsUsed []string `json:"toolsUsed"`
}

// FileEntry is one item of a file tree listing.
type FileEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, result any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return readHTTPError(resp)
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func readHTTPError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	e := &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	if gjson.ValidBytes(raw) {
		res := gjson.ParseBytes(raw)
		if msg := res.Get("error"); msg.Exists() {
			e.Message = msg.String()
		}
		for _, v := range res.Get("toolsUsed").Array() {
			e.ToolsUsed = append(e.ToolsUsed, v.String())
		}
		for _, v := range res.Get("mutations").Array() {
			e.Mutations = append(e.Mutations, v.String())
		}
	}
	return e
}

type chatRequest struct {
	Messages []core.Message `json:"messages"`
}

// Chat runs one non-streaming turn.
func (c *Client) Chat(ctx context.Context, messages []core.Message) (*ChatResult, error) {
	var res ChatResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/chat", chatRequest{Messages: messages}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Stream runs one streaming turn, calling fn for every event in order. The
// result is assembled from the terminal record; an error record is returned
// as *stream.RemoteError and a stream that ends early as stream.ErrIncomplete.
func (c *Client) Stream(ctx context.Context, messages []core.Message, fn func(core.Event) error) (*ChatResult, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/chat/stream", chatRequest{Messages: messages})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", stream.ContentType)
	req.Header.Set("Cache-Control", "no-cache")

	// no client timeout for streams
	sseClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := sseClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, readHTTPError(resp)
	}

	acc := stream.NewAccumulator()
	err = stream.DecodeStream(resp.Body, func(ev core.Event) error {
		acc.Add(ev)
		if fn != nil {
			return fn(ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	text, tools, err := acc.Result()
	if err != nil {
		return nil, err
	}
	return &ChatResult{Response: text, ToolsUsed: tools}, nil
}

// Files lists a repository directory, directories first.
func (c *Client) Files(ctx context.Context, path string) ([]FileEntry, error) {
	var res struct {
		Files []FileEntry `json:"files"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/files", map[string]string{"path": path}, &res); err != nil {
		return nil, err
	}
	return res.Files, nil
}

// CreateProposal generates a proposal for idea and returns its id.
func (c *Client) CreateProposal(ctx context.Context, idea string) (string, *proposal.Proposal, error) {
	var res struct {
		ID       string            `json:"id"`
		Proposal proposal.Proposal `json:"proposal"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/proposals", map[string]string{"idea": idea}, &res); err != nil {
		return "", nil, err
	}
	return res.ID, &res.Proposal, nil
}

// Proposal fetches a stored proposal.
func (c *Client) Proposal(ctx context.Context, id string) (*proposal.Stored, error) {
	var res proposal.Stored
	if err := c.doJSON(ctx, http.MethodGet, "/api/proposals/"+url.PathEscape(id), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Healthy reports whether the server answers its health check.
func (c *Client) Healthy(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/healthz", nil, nil)
}
