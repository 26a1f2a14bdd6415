package api

import (
	"net/http"
	"time"

	"github.com/Meridian-Labs/poolrun/pkg/api/problem"
	"github.com/Meridian-Labs/poolrun/pkg/auth"
)

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware emits one structured line per request.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", auth.RequestIDFrom(r.Context()),
		)
	})
}

// rateLimitMiddleware throttles mutating requests per authenticated caller.
// Reads are free; unauthenticated requests fall through to the auth layer.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		actor := auth.CallerID(r.Context())
		if actor == "" {
			next.ServeHTTP(w, r)
			return
		}
		ok, err := s.limiter.Allow(r.Context(), actor, s.policy, 1)
		if err != nil {
			// Limiter backend down: let the request through rather than
			// turning a Redis outage into a full API outage.
			s.logger.Warn("rate limiter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			problem.WriteTooManyRequests(w, 1)
			return
		}
		next.ServeHTTP(w, r)
	})
}
