package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/vodworks/clipper/internal/ratelimit"
	"github.com/vodworks/clipper/internal/session"
)

// Server is the Clipper HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): MCPServer, OpenAPISpec.
type ServerConfig struct {
	// Required dependencies.
	Manager *session.Manager
	Logger  *slog.Logger

	// Optional dependencies (nil = disabled).
	MCPServer   *mcpserver.MCPServer
	RateLimiter ratelimit.Limiter

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	CORSAllowedOrigins  []string

	// Optional embedded assets.
	OpenAPISpec []byte // Embedded OpenAPI YAML.
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Manager:             cfg.Manager,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	mux := http.NewServeMux()

	// Session lifecycle.
	mux.HandleFunc("POST /v1/sessions", h.HandleCreateSession)
	mux.HandleFunc("GET /v1/sessions", h.HandleListSessions)
	mux.HandleFunc("GET /v1/sessions/{session_id}", h.HandleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{session_id}", h.HandleDeleteSession)

	// Processing control.
	mux.HandleFunc("POST /v1/sessions/{session_id}/process", h.HandleStartProcessing)
	mux.HandleFunc("POST /v1/sessions/{session_id}/cancel", h.HandleCancelProcessing)

	// Workspace artifacts.
	mux.HandleFunc("GET /v1/sessions/{session_id}/files", h.HandleListFiles)
	mux.HandleFunc("GET /v1/sessions/{session_id}/files/{filename...}", h.HandleGetFile)
	mux.HandleFunc("GET /v1/sessions/{session_id}/archive", h.HandleArchive)

	// Counts surface, polled by clients as a keepalive.
	mux.HandleFunc("GET /v1/counts", h.HandleCounts)

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// OpenAPI spec.
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)

	// Health.
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → CORS → rate limit → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	if cfg.RateLimiter != nil {
		handler = ratelimit.Middleware(cfg.RateLimiter, ratelimit.IPKeyFunc)(handler)
	}
	handler = corsMiddleware(cfg.CORSAllowedOrigins, handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
