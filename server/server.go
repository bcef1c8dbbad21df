// Package server exposes the assistant, the repository file tree and the
// proposal generator over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/devassist/agent"
	"github.com/hupe1980/devassist/core"
	"github.com/hupe1980/devassist/logging"
	"github.com/hupe1980/devassist/proposal"
	"github.com/hupe1980/devassist/repo"
	"github.com/hupe1980/devassist/stream"
)

// DefaultMaxBodyBytes limits request bodies when Options.MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 1 << 20

// Runner runs one conversation. *agent.Assistant implements it.
type Runner interface {
	Run(ctx context.Context, conv core.Conversation, sink core.Sink) (*agent.Result, error)
}

// Proposals generates and looks up proposals. *proposal.Generator
// implements it.
type Proposals interface {
	Generate(ctx context.Context, idea string) (*proposal.Stored, error)
	Get(ctx context.Context, id string) (*proposal.Stored, error)
}

// Options configures a Server.
type Options struct {
	Addr string
	// AuthToken is the bearer secret for the /api/chat and /api/files
	// routes. Empty disables the check.
	AuthToken    string
	MaxBodyBytes int64
	// ConfigErr, when set, is reported as a 500 by every API route. The
	// dependencies may be nil in that case.
	ConfigErr error
	Logger    logging.Logger
}

// Server is the HTTP front end.
type Server struct {
	runner    Runner
	repo      repo.Repository
	proposals Proposals
	opts      Options
	handler   http.Handler
	srv       *http.Server
}

// New creates a server. proposals may be nil, which disables the proposal
// routes.
func New(runner Runner, r repo.Repository, proposals Proposals, optFns ...func(o *Options)) *Server {
	opts := Options{
		Addr:         ":8080",
		MaxBodyBytes: DefaultMaxBodyBytes,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	s := &Server{
		runner:    runner,
		repo:      r,
		proposals: proposals,
		opts:      opts,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("POST /api/chat", s.requireAuth(http.HandlerFunc(s.handleChat)))
	mux.Handle("POST /api/chat/stream", s.requireAuth(http.HandlerFunc(s.handleChatStream)))
	mux.Handle("POST /api/files", s.requireAuth(http.HandlerFunc(s.handleFiles)))
	if proposals != nil || opts.ConfigErr != nil {
		mux.HandleFunc("POST /api/proposals", s.handleCreateProposal)
		mux.HandleFunc("GET /api/proposals/{$}", s.handleGetProposal)
		mux.HandleFunc("GET /api/proposals/{id}", s.handleGetProposal)
	}

	s.handler = withRequestID(withLogging(opts.Logger, mux))
	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.opts.Logger.Info("server.start", "addr", s.srv.Addr)
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.srv.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AuthToken != "" {
			got := r.Header.Get("Authorization")
			want := "Bearer " + s.opts.AuthToken
			if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				writeErr(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// configured writes the configuration error, if any, and reports whether
// the request may proceed.
func (s *Server) configured(w http.ResponseWriter) bool {
	if s.opts.ConfigErr != nil {
		writeErr(w, http.StatusInternalServerError, s.opts.ConfigErr.Error())
		return false
	}
	return true
}

type chatBody struct {
	Messages []core.Message `json:"messages"`
}

func (s *Server) decodeConversation(w http.ResponseWriter, r *http.Request) (core.Conversation, bool) {
	var body chatBody
	if err := s.decodeJSONBody(w, r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return nil, false
	}
	conv, err := core.DecodeConversation(body.Messages)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return conv, true
}

type chatResponse struct {
	Response  string   `json:"response"`
	ToolsUsed []string `json:"toolsUsed"`
}

type chatError struct {
	Error     string   `json:"error"`
	ToolsUsed []string `json:"toolsUsed,omitempty"`
	Mutations []string `json:"mutations,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.configured(w) {
		return
	}
	conv, ok := s.decodeConversation(w, r)
	if !ok {
		return
	}

	res, err := s.runner.Run(r.Context(), conv, nil)
	if err != nil {
		s.writeRunError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: res.Text, ToolsUsed: res.ToolsUsed})
}

func (s *Server) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	body := chatError{Error: err.Error()}
	var runErr *agent.RunError
	if errors.As(err, &runErr) {
		body.ToolsUsed = runErr.ToolsUsed
		body.Mutations = runErr.Mutations
	}
	s.opts.Logger.Error("server.chat.error",
		"request_id", core.RequestIDFromContext(r.Context()),
		"error", err.Error(),
		"max_iterations", errors.Is(err, agent.ErrMaxIterations),
		"mutations", len(body.Mutations),
	)
	writeJSON(w, http.StatusInternalServerError, body)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if !s.configured(w) {
		return
	}
	conv, ok := s.decodeConversation(w, r)
	if !ok {
		return
	}

	h := w.Header()
	h.Set("Content-Type", stream.ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// the terminal done or error record is written by the run itself
	if _, err := s.runner.Run(r.Context(), conv, stream.NewEncoder(w)); err != nil {
		s.opts.Logger.Warn("server.stream.error",
			"request_id", core.RequestIDFromContext(r.Context()),
			"error", err.Error(),
		)
	}
}

type filesBody struct {
	Path string `json:"path"`
}

type fileEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path"`
}

type filesResponse struct {
	Files []fileEntry `json:"files"`
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if !s.configured(w) {
		return
	}
	var body filesBody
	if err := s.decodeJSONBody(w, r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	entries, err := s.repo.List(r.Context(), body.Path)
	if err != nil {
		var apiErr *repo.APIError
		switch {
		case errors.Is(err, repo.ErrNotADirectory):
			writeJSON(w, http.StatusOK, filesResponse{Files: []fileEntry{}})
		case errors.As(err, &apiErr):
			writeErr(w, apiErr.StatusCode, fmt.Sprintf("GitHub API error: %d", apiErr.StatusCode))
		default:
			writeErr(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, filesResponse{Files: fileTree(entries)})
}

// fileTree maps entries onto the file tree shape: directories first, then
// by name.
func fileTree(entries []repo.Entry) []fileEntry {
	files := make([]fileEntry, 0, len(entries))
	for _, e := range entries {
		typ := "file"
		if e.Type == repo.EntryDir {
			typ = "dir"
		}
		files = append(files, fileEntry{Name: e.Name, Type: typ, Path: e.Path})
	}
	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if a.Type != b.Type {
			return a.Type == "dir"
		}
		la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if la != lb {
			return la < lb
		}
		return a.Name < b.Name
	})
	return files
}

type proposalBody struct {
	Idea string `json:"idea"`
}

type proposalResponse struct {
	ID       string            `json:"id"`
	Proposal proposal.Proposal `json:"proposal"`
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	if !s.configured(w) {
		return
	}
	var body proposalBody
	if err := s.decodeJSONBody(w, r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	stored, err := s.proposals.Generate(r.Context(), body.Idea)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, proposalResponse{ID: stored.ID, Proposal: stored.Proposal})
	case errors.Is(err, proposal.ErrIdeaTooShort):
		writeErr(w, http.StatusBadRequest, "Please provide a more detailed app idea")
	case errors.Is(err, proposal.ErrNoJSON):
		writeErr(w, http.StatusInternalServerError, "Failed to parse AI response")
	case errors.Is(err, proposal.ErrNoText):
		writeErr(w, http.StatusInternalServerError, "No text response from AI")
	default:
		s.opts.Logger.Error("server.proposal.error", "error", err.Error())
		writeErr(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	if !s.configured(w) {
		return
	}
	id := r.PathValue("id")
	if id == "" {
		writeErr(w, http.StatusBadRequest, "Proposal ID required")
		return
	}

	stored, err := s.proposals.Get(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, stored)
	case errors.Is(err, proposal.ErrNotFound):
		writeErr(w, http.StatusNotFound, "Proposal not found")
	default:
		writeErr(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
