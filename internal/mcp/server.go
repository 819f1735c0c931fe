// ABOUTME: Streamable HTTP transport: chi routes for /mcp, health, root metadata, and docs.
// ABOUTME: Sessions are created only by initialize; unknown session ids are rejected with 400.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/instantly-mcp/internal/credential"
	"github.com/2389/instantly-mcp/internal/session"
	"github.com/2389/instantly-mcp/internal/tools"
)

// Header names used by the Streamable HTTP transport.
const (
	HeaderSessionID       = "Mcp-Session-Id"
	HeaderProtocolVersion = "Mcp-Protocol-Version"
)

// DefaultKeepAlive is the SSE keep-alive comment interval.
const DefaultKeepAlive = 25 * time.Second

// Config holds configuration for the HTTP server.
type Config struct {
	Protocol *Protocol
	Sessions *session.Manager
	Catalog  *tools.Catalog

	// Source carries process-level credential inputs (flag, env, base URL).
	Source credential.Source

	// Metrics is served at MetricsPath (default /metrics) when non-nil.
	Metrics     http.Handler
	MetricsPath string

	Logger    *slog.Logger
	Version   string
	KeepAlive time.Duration
}

// Server implements the MCP Streamable HTTP transport.
type Server struct {
	protocol  *Protocol
	sessions  *session.Manager
	catalog   *tools.Catalog
	source    credential.Source
	logger    *slog.Logger
	version   string
	keepAlive time.Duration
	docsHTML  []byte
	router    *chi.Mux
}

// NewServer creates the HTTP server and its routes.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Protocol == nil {
		return nil, errors.New("protocol is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session manager is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}

	docs, err := cfg.Catalog.RenderHTML("Instantly MCP tools")
	if err != nil {
		return nil, err
	}

	s := &Server{
		protocol:  cfg.Protocol,
		sessions:  cfg.Sessions,
		catalog:   cfg.Catalog,
		source:    cfg.Source,
		logger:    logger.With("component", "http"),
		version:   cfg.Version,
		keepAlive: keepAlive,
		docsHTML:  docs,
		router:    chi.NewRouter(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.logRequests)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/", s.handleRoot)
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/docs", s.handleDocs)
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.router.Method(http.MethodGet, path, cfg.Metrics)
	}

	for _, pattern := range []string{"/mcp", "/mcp/{credential}"} {
		r := s.router.With(s.resolveCredential)
		r.Post(pattern, s.handlePost)
		r.Get(pattern, s.handleStream)
		r.Delete(pattern, s.handleDelete)
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// resolveCredential attaches the request's credential, if any, to the context.
func (s *Server) resolveCredential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		src := s.source.WithRequest(r, chi.URLParam(r, "credential"))
		if cred, err := credential.Resolve(src); err == nil {
			r = r.WithContext(credential.WithCredential(r.Context(), cred))
		}
		next.ServeHTTP(w, r)
	})
}

// logRequests logs each request after it completes. The path is logged
// without the credential segment.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", redactPath(r.URL.Path),
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func redactPath(p string) string {
	if strings.HasPrefix(p, "/mcp/") && len(p) > len("/mcp/") {
		return "/mcp/{credential}"
	}
	return p
}

// handlePost processes JSON-RPC messages sent via HTTP POST.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendJSONRPC(w, http.StatusBadRequest, errorResponse(nil, JSONRPCParseError, "failed to read request body"))
		return
	}
	if len(body) > MaxRequestBodySize {
		s.sendJSONRPC(w, http.StatusRequestEntityTooLarge, errorResponse(nil, JSONRPCInvalidRequest, "request body too large"))
		return
	}

	req, rejected := parseRequest(body)
	if rejected != nil {
		s.sendJSONRPC(w, http.StatusBadRequest, rejected)
		return
	}

	if req.Method == "initialize" {
		s.handleInitialize(w, r, req)
		return
	}

	// Per the transport, a missing version header means 2025-03-26.
	if v := r.Header.Get(HeaderProtocolVersion); v != "" && !supportedProtocolVersions[v] {
		s.sendJSONRPC(w, http.StatusBadRequest,
			errorResponse(req.ID, JSONRPCInvalidRequest, "unsupported MCP-Protocol-Version: "+v))
		return
	}

	sess, resp := s.lookupSession(r, req.ID)
	if resp != nil {
		s.sendJSONRPC(w, http.StatusBadRequest, resp)
		return
	}

	if req.IsNotification() {
		s.protocol.Handle(r.Context(), sess, req)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	var out *JSONRPCResponse
	err = sess.Run(r.Context(), func() {
		out = s.protocol.Handle(r.Context(), sess, req)
	})
	switch {
	case errors.Is(err, session.ErrClosed):
		s.sendJSONRPC(w, http.StatusBadRequest, errorResponse(req.ID, JSONRPCInvalidRequest,
			"session closed; send initialize to start a new session"))
		return
	case err != nil:
		// The client went away while waiting for its turn.
		s.logger.Debug("request abandoned", "session_id", sess.ID, "method", req.Method, "error", err)
		return
	}

	w.Header().Set(HeaderSessionID, sess.ID)
	s.sendJSONRPC(w, http.StatusOK, out)
}

// handleInitialize creates a session bound to the request's credential.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request, req JSONRPCRequest) {
	if req.IsNotification() {
		s.sendJSONRPC(w, http.StatusBadRequest, errorResponse(nil, JSONRPCInvalidRequest, "initialize must be a request"))
		return
	}

	// Re-initializing a live session would leave it orphaned until the
	// reaper finds it. A stale id is ignored so clients can recover.
	if id := r.Header.Get(HeaderSessionID); id != "" {
		if _, live := s.sessions.Get(id); live {
			s.sendJSONRPC(w, http.StatusBadRequest, errorResponse(req.ID, JSONRPCInvalidRequest,
				"session already initialized; send DELETE to end it before initializing again"))
			return
		}
	}

	cred, ok := credential.FromContext(r.Context())
	if !ok {
		s.sendJSONRPC(w, http.StatusBadRequest, errorResponse(req.ID, JSONRPCInvalidRequest,
			"missing API key: pass it in the path (/mcp/{key}), the X-API-Key header, or Authorization: Bearer {key}"))
		return
	}

	params := parseInitialize(req.Params)
	version := NegotiateVersion(params.ProtocolVersion)

	sess, err := s.sessions.Create(cred, version)
	if errors.Is(err, session.ErrTooManySessions) {
		s.sendJSONRPC(w, http.StatusServiceUnavailable, errorResponse(req.ID, JSONRPCInternalError,
			"too many active sessions; retry later"))
		return
	}
	if err != nil {
		s.logger.Error("creating session", "error", err)
		s.sendJSONRPC(w, http.StatusInternalServerError, errorResponse(req.ID, JSONRPCInternalError, "failed to create session"))
		return
	}

	s.logger.Info("MCP session initialized",
		"session_id", sess.ID,
		"protocol_version", version,
		"client", params.ClientInfo.Name,
	)

	w.Header().Set(HeaderSessionID, sess.ID)
	s.sendJSONRPC(w, http.StatusOK, resultResponse(req.ID, s.protocol.InitializeResult(version)))
}

// lookupSession finds the active session named by the request header.
func (s *Server) lookupSession(r *http.Request, id json.RawMessage) (*session.Session, *JSONRPCResponse) {
	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		return nil, errorResponse(id, JSONRPCInvalidRequest, "missing Mcp-Session-Id header; send initialize first")
	}
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, errorResponse(id, JSONRPCInvalidRequest, "unknown or expired session; send initialize to start a new session")
	}
	return sess, nil
}

// handleStream opens a server-to-client SSE stream for an active session.
// It carries keep-alive comments until the session closes or the client leaves.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, resp := s.lookupSession(r, nil)
	if resp != nil {
		s.sendJSONRPC(w, http.StatusBadRequest, resp)
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(HeaderSessionID, sess.ID)
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Warn("SSE stream not supported", "error", err)
		return
	}

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sess.Touch()
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-sess.Done():
			return
		case <-r.Context().Done():
			return
		}
	}
}

// handleDelete terminates a session. A request that carries a credential
// must carry the one the session was created with.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess, resp := s.lookupSession(r, nil)
	if resp != nil {
		s.sendJSONRPC(w, http.StatusBadRequest, resp)
		return
	}

	if cred, ok := credential.FromContext(r.Context()); ok && !cred.Equal(sess.Credential) {
		s.sendJSONRPC(w, http.StatusForbidden, errorResponse(nil, JSONRPCInvalidRequest, "credential does not own this session"))
		return
	}

	s.sessions.Close(sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	versions := make([]string, 0, len(supportedProtocolVersions))
	for v := range supportedProtocolVersions {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	writeJSON(w, http.StatusOK, map[string]any{
		"name":             s.protocol.info.Name,
		"version":          s.version,
		"protocolVersions": versions,
		"transports":       []string{"streamable-http", "stdio"},
		"endpoints": map[string]string{
			"mcp":    "/mcp or /mcp/{apiKey}",
			"health": "/health",
			"docs":   "/docs",
		},
		"authentication": []string{"path segment", credential.HeaderAPIKey + " header", "Authorization: Bearer"},
		"tools":          s.catalog.Names(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"activeSessionCount": s.sessions.Count(),
	})
}

func (s *Server) handleDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(s.docsHTML)
}

// sendJSONRPC writes a JSON-RPC response with the given HTTP status.
func (s *Server) sendJSONRPC(w http.ResponseWriter, status int, resp *JSONRPCResponse) {
	if resp.Error != nil {
		s.logger.Debug("JSON-RPC error", "status", status, "code", resp.Error.Code, "message", resp.Error.Message)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Shutdown closes every session so open SSE streams end.
func (s *Server) Shutdown(_ context.Context) error {
	s.sessions.Shutdown()
	return nil
}
