// Package api exposes the run lifecycle engine over HTTP. Authentication is
// bearer-token; errors are RFC 7807 problem details carrying the engine's
// typed codes.
package api

import (
	"log/slog"
	"net/http"

	"github.com/Meridian-Labs/poolrun/pkg/auth"
	"github.com/Meridian-Labs/poolrun/pkg/engine"
	"github.com/Meridian-Labs/poolrun/pkg/ratelimit"
)

// Server holds the API dependencies.
type Server struct {
	engine       *engine.Engine
	logger       *slog.Logger
	limiter      ratelimit.Store
	policy       ratelimit.Policy
	templatesDir string
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithTemplates enables run creation from named YAML templates in dir.
func WithTemplates(dir string) ServerOption {
	return func(s *Server) { s.templatesDir = dir }
}

// WithRateLimit enables per-caller throttling on mutating endpoints.
func WithRateLimit(store ratelimit.Store, policy ratelimit.Policy) ServerOption {
	return func(s *Server) {
		s.limiter = store
		s.policy = policy
	}
}

// NewServer creates the API server over an engine.
func NewServer(eng *engine.Engine, opts ...ServerOption) *Server {
	s := &Server{
		engine: eng,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the full middleware-wrapped HTTP handler.
func (s *Server) Handler(validator *auth.Validator) http.Handler {
	var h http.Handler = s.routes()
	h = s.rateLimitMiddleware(h)
	h = auth.Middleware(validator)(h)
	h = s.loggingMiddleware(h)
	h = auth.RequestIDMiddleware(h)
	return h
}

// routes maps the HTTP surface onto engine operations.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /platform/initialize", s.handleInitializePlatform)
	mux.HandleFunc("GET /platform", s.handleGetPlatform)
	mux.HandleFunc("POST /platform/pause", s.handlePausePlatform)
	mux.HandleFunc("POST /platform/unpause", s.handleUnpausePlatform)

	mux.HandleFunc("POST /runs", s.handleCreateRun)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /templates", s.handleListTemplates)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("POST /runs/{id}/vault", s.handleCreateRunVault)
	mux.HandleFunc("POST /runs/{id}/deposits", s.handleDeposit)
	mux.HandleFunc("POST /runs/{id}/start", s.handleStartRun)
	mux.HandleFunc("POST /runs/{id}/settle", s.handleSettleRun)
	mux.HandleFunc("POST /runs/{id}/withdrawals", s.handleWithdraw)
	mux.HandleFunc("POST /runs/{id}/votes", s.handleUpdateVoteStats)
	mux.HandleFunc("POST /runs/{id}/emergency-withdrawal", s.handleEmergencyWithdraw)
	mux.HandleFunc("GET /runs/{id}/participations", s.handleListParticipations)
	mux.HandleFunc("GET /runs/{id}/participations/{participant}", s.handleGetParticipation)
	mux.HandleFunc("GET /runs/{id}/dust", s.handleDust)

	return mux
}
