package gateway

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/opensec-dev/bastion/internal/auth"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyAgent
)

// RequestIDFrom returns the request id stamped by the middleware, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// AgentFrom returns the authenticated agent identity, or "" when the
// gateway runs without auth.
func AgentFrom(ctx context.Context) string {
	agent, _ := ctx.Value(ctxKeyAgent).(string)
	return agent
}

// requestID stamps every request with a uuid, echoed in the X-Request-ID
// response header. An incoming X-Request-ID is trusted so callers can
// correlate across hops.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the status code for access logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// accessLog emits one structured line per request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		log.Info().
			Str("request_id", RequestIDFrom(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// deadline bounds each request by the configured gateway timeout.
func (s *Server) deadline(next http.Handler) http.Handler {
	timeout := s.cfg.RequestTimeout.Std()
	if timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate enforces bearer-token auth. The token's subject becomes the
// request's identity; whatever agent_id the body claims is overridden by
// it, so a caller can never act as someone else's identity.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			WriteError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.pipeline.Tokens.Validate(token)
		if err != nil {
			WriteError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyAgent, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimit applies the per-identity token bucket. The limiter protects
// capacity, not safety, so a limiter backend failure fails open with a
// warning rather than taking the gateway down with it.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := AgentFrom(r.Context())
		if identity == "" {
			identity = clientIP(r)
		}
		allowed, err := s.pipeline.Limiter.Allow(r.Context(), identity)
		if err != nil {
			log.Warn().Err(err).Str("identity", identity).Msg("rate limiter unavailable, failing open")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
