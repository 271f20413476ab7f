package mcp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/2023lic14/momentmcp/internal/blueprint"
	"github.com/2023lic14/momentmcp/internal/config"
	"github.com/2023lic14/momentmcp/internal/elevenlabs"
	"github.com/2023lic14/momentmcp/internal/moments"
)

const (
	serverName       = "momentmcp"
	serverVersion    = "0.3.0"
	sessionHeader    = "Mcp-Session-Id"
	maxRequestBytes  = 8 << 20
	shutdownDeadline = 5 * time.Second
)

// Server owns the transport bindings and the session map. Each stateful
// conversation gets its own executor; stateless mode shares one, built
// exactly once.
type Server struct {
	cfg       *config.Config
	validator *blueprint.Validator
	synth     *elevenlabs.Client
	pipeline  *moments.Client

	sessions *sessionRegistry
	limiter  *ipRateLimiter

	statelessOnce sync.Once
	statelessExec *executor

	shutdownOnce sync.Once
	closed       chan struct{}
}

func NewServer(cfg *config.Config, validator *blueprint.Validator, synth *elevenlabs.Client, pipeline *moments.Client) *Server {
	return &Server{
		cfg:       cfg,
		validator: validator,
		synth:     synth,
		pipeline:  pipeline,
		sessions:  newSessionRegistry(cfg.MaxSessions),
		limiter:   newIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		closed:    make(chan struct{}),
	}
}

func (s *Server) newExecutor() *executor {
	return newExecutor(s.cfg, s.validator, s.synth, s.pipeline)
}

// sharedExecutor lazily constructs the stateless executor. sync.Once
// deduplicates racing first requests: concurrent callers wait for the one
// in-flight construction instead of starting another.
func (s *Server) sharedExecutor() *executor {
	s.statelessOnce.Do(func() {
		s.statelessExec = s.newExecutor()
	})
	return s.statelessExec
}

// SessionCount reports the number of live stateful sessions.
func (s *Server) SessionCount() int {
	return s.sessions.count()
}

// Handler returns the HTTP handler: health endpoint, the MCP endpoint, and
// (when enabled) the legacy SSE endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc(s.cfg.MCPPath, s.handleMCP)
	if s.cfg.EnableLegacySSE {
		mux.HandleFunc(s.ssePath(), s.handleSSEOpen)
		mux.HandleFunc(s.sseMessagePath(), s.handleSSEMessage)
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	mode := "stateful"
	if s.cfg.StatelessHTTP {
		mode = "stateless"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"transport": config.TransportHTTP,
		"mode":      mode,
		"path":      s.cfg.MCPPath,
	})
}

// authorize enforces the bearer gate before any session or tool logic.
// With no token configured the gate is a no-op; it never degrades into
// "any token accepted".
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	token := s.cfg.AuthToken
	if token == "" {
		return true
	}
	presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if presented == r.Header.Get("Authorization") || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
		writeResponse(w, http.StatusUnauthorized, newError(nil, codeInvalidRequest, "unauthorized", &rpcErrorData{Code: "UNAUTHORIZED"}), false)
		return false
	}
	return true
}

// admit runs the pre-dispatch gates in order: origin allowlist, per-IP
// rate limit, then bearer auth.
func (s *Server) admit(w http.ResponseWriter, r *http.Request) bool {
	if !originAllowed(s.cfg.AllowedOrigins, r.Header.Get("Origin")) {
		writeResponse(w, http.StatusForbidden, newError(nil, codeInvalidRequest, "origin not allowed", &rpcErrorData{Code: "FORBIDDEN_ORIGIN"}), false)
		return false
	}
	if !s.limiter.allow(realIP(r)) {
		writeResponse(w, http.StatusTooManyRequests, newError(nil, codeInvalidRequest, "rate limit exceeded", &rpcErrorData{Code: "RATE_LIMITED", Retryable: true}), false)
		return false
	}
	return s.authorize(w, r)
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.handleMCPPost(w, r)
	case http.MethodDelete:
		s.handleMCPDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMCPPost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeResponse(w, http.StatusBadRequest, newError(nil, codeParseError, "failed to read request body", nil), s.eventStream())
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(w, http.StatusBadRequest, newError(nil, codeParseError, "parse error", nil), s.eventStream())
		return
	}

	if s.cfg.StatelessHTTP {
		s.respond(w, r, s.sharedExecutor(), req)
		return
	}

	sessionID := strings.TrimSpace(r.Header.Get(sessionHeader))

	if req.Method == "initialize" {
		if sessionID != "" {
			writeResponse(w, http.StatusBadRequest, newError(req.ID, codeNoValidSession, "initialize must not carry a session id", &rpcErrorData{Code: "NO_VALID_SESSION"}), s.eventStream())
			return
		}
		sess, err := s.sessions.create(kindStreamable, s.newExecutor(), nil)
		if err != nil {
			writeResponse(w, http.StatusServiceUnavailable, newError(req.ID, codeNoValidSession, err.Error(), &rpcErrorData{Code: "SESSION_LIMIT", Retryable: true}), s.eventStream())
			return
		}
		w.Header().Set(sessionHeader, sess.id)
		writeResponse(w, http.StatusOK, newResult(req.ID, s.initializeResult()), s.eventStream())
		return
	}

	sess, lookupErr := s.sessions.lookup(sessionID, kindStreamable)
	if lookupErr != nil {
		writeResponse(w, http.StatusNotFound, newError(req.ID, codeNoValidSession, "no valid session", &rpcErrorData{Code: "NO_VALID_SESSION"}), s.eventStream())
		return
	}
	w.Header().Set(sessionHeader, sess.id)
	s.respond(w, r, sess.exec, req)
}

func (s *Server) handleMCPDelete(w http.ResponseWriter, r *http.Request) {
	if s.cfg.StatelessHTTP {
		http.Error(w, "stateless mode has no sessions", http.StatusMethodNotAllowed)
		return
	}
	sessionID := strings.TrimSpace(r.Header.Get(sessionHeader))
	sess := s.sessions.remove(sessionID)
	if sess == nil {
		writeResponse(w, http.StatusNotFound, newError(nil, codeNoValidSession, "no valid session", &rpcErrorData{Code: "NO_VALID_SESSION"}), false)
		return
	}
	sess.close()
	w.WriteHeader(http.StatusNoContent)
}

// respond runs one request against an executor and writes the reply.
// Notifications produce 202 with no body.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, exec *executor, req rpcRequest) {
	resp := s.dispatch(r.Context(), exec, req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeResponse(w, http.StatusOK, *resp, s.eventStream())
}

// dispatch routes one JSON-RPC request. A nil return means notification:
// nothing to send.
func (s *Server) dispatch(ctx context.Context, exec *executor, req rpcRequest) *rpcResponse {
	if strings.HasPrefix(req.Method, "notifications/") {
		return nil
	}

	switch req.Method {
	case "initialize":
		resp := newResult(req.ID, s.initializeResult())
		return &resp
	case "ping":
		resp := newResult(req.ID, map[string]any{})
		return &resp
	case "tools/list":
		resp := newResult(req.ID, map[string]any{"tools": exec.listTools()})
		return &resp
	case "tools/call":
		result, rpcErr := exec.processToolsCall(ctx, req.Params)
		if rpcErr != nil {
			resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
			return &resp
		}
		resp := newResult(req.ID, result)
		return &resp
	default:
		resp := newError(req.ID, codeMethodNotFound, "method not found: "+req.Method, nil)
		return &resp
	}
}

func (s *Server) initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": config.ProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": serverVersion,
		},
	}
}

// eventStream reports whether HTTP responses should be framed as SSE
// rather than plain JSON bodies.
func (s *Server) eventStream() bool {
	return !s.cfg.HTTPJSONResponse
}

// Serve blocks handling HTTP on the listener until ctx is canceled, then
// shuts down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler: s.Handler(),
		// WriteTimeout stays unset: song generation and SSE streams
		// legitimately hold a response open for minutes.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.limiter.cleanup(10 * time.Minute)
			case <-s.closed:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()

	select {
	case <-ctx.Done():
		s.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-errCh:
		s.Shutdown()
		return err
	}
}

// Shutdown tears down every conversation exactly once. A second signal
// while teardown is in progress is a no-op; outstanding upstream calls are
// left to finish and their results discarded.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.closed)
		drained := s.sessions.drain()
		for _, sess := range drained {
			sess.close()
		}
		if len(drained) > 0 {
			log.Printf("mcp: closed %d session(s) on shutdown", len(drained))
		}
	})
}
