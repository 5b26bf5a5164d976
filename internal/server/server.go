package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/conductor/internal/auth"
	"github.com/ashita-ai/conductor/internal/model"
	"github.com/ashita-ai/conductor/internal/ratelimit"
	"github.com/ashita-ai/conductor/internal/service/tasks"
)

// Server is the Conductor HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): DB, Limiter, MCPServer, OpenAPISpec.
type ServerConfig struct {
	// Required dependencies.
	Service *tasks.Service
	JWTMgr  *auth.JWTManager
	Logger  *slog.Logger

	// Optional dependencies (nil = disabled).
	DB        Pinger
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// Credentials and delegation.
	InternalSecret string
	TelegramSecret string
	Origin         string

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	OpenAPISpec []byte // Embedded OpenAPI YAML.
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Service:             cfg.Service,
		DB:                  cfg.DB,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		Origin:              cfg.Origin,
		InternalSecret:      cfg.InternalSecret,
		TelegramSecret:      cfg.TelegramSecret,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	// Plan execution and delegation fan out to agents, so they are limited
	// per caller. Reads are not.
	limited := ratelimit.Middleware(cfg.Limiter, callerKey, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusTooManyRequests, model.ErrCodeRateLimited, "too many requests")
	}, cfg.Logger)

	user := func(fn http.HandlerFunc) http.Handler { return requireUser(fn) }

	mux := http.NewServeMux()

	// Tasks.
	mux.Handle("POST /v1/tasks", limited(user(h.HandleRunTask)))
	mux.Handle("GET /v1/tasks", user(h.HandleListTasks))
	mux.Handle("GET /v1/tasks/{task_id}", user(h.HandleGetTask))
	mux.Handle("POST /v1/tasks/{task_id}/callback", user(h.HandleTaskCallback))
	mux.Handle("GET /v1/tasks/{task_id}/calls", user(h.HandleListTaskCalls))

	// Direct delegation (user token or internal secret).
	mux.Handle("POST /v1/delegate", limited(http.HandlerFunc(h.HandleDelegate)))

	// Utilities and preferences.
	mux.Handle("POST /v1/tone", user(h.HandleDetectTone))
	mux.Handle("GET /v1/preferences", user(h.HandleGetPreferences))
	mux.Handle("PUT /v1/preferences", user(h.HandleUpdatePreferences))

	// Webhooks (shared-secret auth in the handlers).
	mux.HandleFunc("POST /webhooks/telegram", h.HandleTelegramWebhook)
	mux.HandleFunc("POST /webhooks/voice/status", h.HandleCallStatus)

	// MCP StreamableHTTP transport (user token required).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", requireUser(mcpHTTP))
	}

	// OpenAPI spec and health (no auth).
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, cfg.InternalSecret, cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// callerKey keys rate limits on the authenticated user. Internal callers
// share one bucket.
func callerKey(r *http.Request) string {
	if claims := ClaimsFromContext(r.Context()); claims != nil {
		return "user:" + claims.UserID()
	}
	if isInternalCaller(r.Context()) {
		return "internal"
	}
	return ""
}

// Handlers returns the underlying Handlers.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, then waits for background
// webhook writes to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	err := s.httpServer.Shutdown(ctx)
	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("http server: background work still running at shutdown deadline")
	}
	return err
}
