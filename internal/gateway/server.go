// Package gateway is the HTTP front of the interception pipeline: every
// agent request enters here, is scored and authorized by the decision
// engine, and leaves as an executed result or a 403 with the verdict
// attached. The server owns transport concerns only; nothing in this
// package can change what the pipeline decides.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/opensec-dev/bastion/internal/auth"
	"github.com/opensec-dev/bastion/internal/config"
	"github.com/opensec-dev/bastion/internal/decision"
	"github.com/opensec-dev/bastion/internal/dispatch"
	"github.com/opensec-dev/bastion/internal/policy"
	"github.com/opensec-dev/bastion/internal/ratelimit"
	"github.com/opensec-dev/bastion/internal/router"
)

// Pipeline bundles the wired components the server fronts. Build assembles
// it from config; tests assemble it by hand.
type Pipeline struct {
	Engine      *decision.Engine
	Dispatcher  *dispatch.Dispatcher
	Completions *router.Router
	Policy      *policy.Engine
	Limiter     ratelimit.Limiter
	Tokens      *auth.TokenManager

	closers []func() error
}

// Close releases the pipeline's resources, flushing the audit sink last.
func (p *Pipeline) Close() error {
	var firstErr error
	for _, c := range p.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Server is the gateway's HTTP surface.
type Server struct {
	cfg      *config.Config
	pipeline *Pipeline
	forward  *http.Client
}

// NewServer fronts the pipeline with the HTTP surface.
func NewServer(cfg *config.Config, p *Pipeline) *Server {
	return &Server{
		cfg:      cfg,
		pipeline: p,
		forward:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Routes builds the full handler tree. Health stays outside auth and rate
// limiting so probes keep working when a caller is locked out.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.accessLog)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(pr chi.Router) {
		if s.pipeline.Tokens != nil {
			pr.Use(s.authenticate)
		}
		if s.pipeline.Limiter != nil {
			pr.Use(s.rateLimit)
		}
		pr.Use(s.deadline)

		pr.Route("/api", func(api chi.Router) {
			api.Post("/submit", s.handleSubmit)
			api.Post("/validate", s.handleValidate)
			api.Post("/validate-sql", s.handleValidateSQL)
			api.Post("/agent-message", s.handleAgentMessage)
		})
		pr.Post("/v1/chat/completions", s.handleChatCompletions)
	})

	return r
}

// ListenAndServe runs the gateway until ctx is cancelled, then drains
// in-flight requests before returning.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", s.cfg.Listen).
			Str("config", s.cfg.Fingerprint()).
			Strs("providers", s.pipeline.Completions.Chain()).
			Msg("gateway listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
