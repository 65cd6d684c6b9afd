package gateway

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/opensec-dev/bastion/internal/audit"
	"github.com/opensec-dev/bastion/internal/auth"
	"github.com/opensec-dev/bastion/internal/config"
	"github.com/opensec-dev/bastion/internal/decision"
	"github.com/opensec-dev/bastion/internal/dispatch"
	"github.com/opensec-dev/bastion/internal/policy"
	"github.com/opensec-dev/bastion/internal/ratelimit"
	"github.com/opensec-dev/bastion/internal/router"
	"github.com/opensec-dev/bastion/internal/sandbox"
	"github.com/opensec-dev/bastion/internal/scorer"
)

// Build assembles the full pipeline from a validated config snapshot.
// Everything that can fail, fails here at startup; after Build returns,
// the pipeline serves requests without reconfiguring itself.
func Build(cfg *config.Config) (*Pipeline, error) {
	p := &Pipeline{}

	pol, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	p.Policy = policy.NewEngine(pol)

	sink, err := buildSink(cfg, p)
	if err != nil {
		return nil, err
	}

	p.Completions = buildCompletions(cfg)

	registry, err := buildRegistry(cfg, p.Completions)
	if err != nil {
		return nil, err
	}

	method, _ := scorer.ParseMethod(cfg.Scoring.Method)
	aggregator := scorer.NewAggregator(method, cfg.Scoring.Weights)
	p.Engine = decision.NewEngine(registry, aggregator, p.Policy, sink)

	dispatcher, err := buildDispatcher(cfg, sink)
	if err != nil {
		return nil, err
	}
	p.Dispatcher = dispatcher

	if err := buildLimiter(cfg, p); err != nil {
		return nil, err
	}

	if cfg.Auth.Mode == "bearer" {
		tokens, err := auth.NewTokenManager(cfg.Auth.Secret)
		if err != nil {
			return nil, fmt.Errorf("failed to set up auth: %w", err)
		}
		p.Tokens = tokens
	}

	return p, nil
}

// buildSink stands up the configured audit backends behind the async
// fan-out. The sink's Close lands in the pipeline's closer list so serve
// shutdown flushes the trail.
func buildSink(cfg *config.Config, p *Pipeline) (audit.Sink, error) {
	var backends []audit.Backend

	if cfg.Audit.Path != "" {
		jsonl, err := audit.NewJSONL(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		backends = append(backends, jsonl)
	}

	if cfg.Audit.SQLitePath != "" {
		store, err := audit.OpenSQLite(cfg.Audit.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit store: %w", err)
		}
		backends = append(backends, store)
	}

	if len(backends) == 0 {
		return audit.Discard{}, nil
	}

	async := audit.NewAsync(cfg.Audit.Buffer, backends...)
	p.closers = append(p.closers, async.Close)
	return async, nil
}

func buildCompletions(cfg *config.Config) *router.Router {
	endpoints := make([]router.Endpoint, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		transient, _ := pc.TransientClasses() // validated at config load
		endpoints = append(endpoints, router.Endpoint{
			Provider: router.NewHTTPProvider(router.HTTPProviderConfig{
				Name:         pc.Name,
				BaseURL:      pc.BaseURL,
				APIKey:       pc.APIKey(),
				DefaultModel: pc.Model,
				Aliases:      pc.Aliases,
			}),
			Priority:  pc.Priority,
			Transient: transient,
		})
	}
	return router.New(endpoints, cfg.ProviderTimeout.Std())
}

func buildRegistry(cfg *config.Config, completions *router.Router) (*scorer.Registry, error) {
	registry := scorer.NewRegistry(cfg.Scoring.Timeout.Std(), cfg.Scoring.TimeoutOverrides())

	builtins := map[string]scorer.Scorer{
		"heuristic": scorer.NewHeuristicScorer(),
		"unicode":   scorer.NewUnicodeScorer(),
		"shell":     scorer.NewShellScorer(),
		"sql":       scorer.NewSQLScorer(),
		"secrets":   scorer.NewSecretsScorer(),
	}
	for name, s := range builtins {
		if cfg.Scoring.EngineEnabled(name) {
			registry.Register(s)
		}
	}

	if cfg.Scoring.Judge.Enabled {
		registry.Register(scorer.NewModelScorer(completions, cfg.Scoring.Judge.Model))
	}
	for _, rc := range cfg.Scoring.Remote {
		registry.Register(scorer.NewRemoteScorer(rc.Name, rc.Endpoint, rc.APIKey()))
	}

	if registry.Len() == 0 {
		return nil, fmt.Errorf("no scoring engines enabled; the gateway would fail closed on every request")
	}
	return registry, nil
}

func buildDispatcher(cfg *config.Config, sink audit.Sink) (*dispatch.Dispatcher, error) {
	firewall := dispatch.NewParamFirewall()
	for capability, path := range cfg.ParamSchemas {
		schema, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read param schema for %s: %w", capability, err)
		}
		if err := firewall.SetSchema(policy.Capability(capability), string(schema)); err != nil {
			return nil, err
		}
	}

	dispatcher := dispatch.NewDispatcher(firewall, sink)
	if cfg.Sandbox.URL != "" {
		executor := dispatch.NewSandboxExecutor(sandbox.NewClient(cfg.Sandbox.URL))
		dispatcher.Register(policy.CapabilityExecuteCode, executor)
		dispatcher.Register(policy.CapabilityInvokeTool, executor)
	}
	return dispatcher, nil
}

func buildLimiter(cfg *config.Config, p *Pipeline) error {
	if cfg.RateLimit.RPS <= 0 {
		return nil
	}

	if cfg.RateLimit.RedisAddr != "" {
		store := ratelimit.NewRedis(
			cfg.RateLimit.RedisAddr,
			cfg.RateLimit.RedisPassword(),
			cfg.RateLimit.RedisDB,
			cfg.RateLimit.RPS,
			cfg.RateLimit.Burst,
		)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("failed to reach redis rate limiter at %s: %w", cfg.RateLimit.RedisAddr, err)
		}
		p.closers = append(p.closers, store.Close)
		p.Limiter = store
		return nil
	}

	p.Limiter = ratelimit.NewMemory(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	return nil
}
