package router

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Endpoint couples a provider with its routing policy.
type Endpoint struct {
	Provider Provider

	// Priority orders the chain; lower tries first. Equal priorities are
	// ordered by provider name so the chain is stable across restarts.
	Priority int

	// Transient lists the error classes that hand the call to the next
	// provider. Nil means DefaultTransientClasses.
	Transient map[ErrorClass]bool
}

// Router walks a provider chain in priority order until one answers.
type Router struct {
	chain          []Endpoint
	attemptTimeout time.Duration
}

// New builds a router over endpoints. attemptTimeout bounds each provider
// call; zero or negative disables the per-attempt bound and leaves only the
// caller's context.
func New(endpoints []Endpoint, attemptTimeout time.Duration) *Router {
	chain := make([]Endpoint, len(endpoints))
	copy(chain, endpoints)
	sort.SliceStable(chain, func(i, j int) bool {
		if chain[i].Priority != chain[j].Priority {
			return chain[i].Priority < chain[j].Priority
		}
		return chain[i].Provider.Name() < chain[j].Provider.Name()
	})
	return &Router{chain: chain, attemptTimeout: attemptTimeout}
}

// Chain reports provider names in try order.
func (r *Router) Chain() []string {
	names := make([]string, len(r.chain))
	for i, ep := range r.chain {
		names[i] = ep.Provider.Name()
	}
	return names
}

// Complete routes one completion through the chain. The returned RoutedCall
// always carries the full attempt trace, including on failure, so callers
// can audit exactly which upstreams were touched.
//
// A transient failure moves on to the next provider. A non-transient
// failure aborts at once: replaying a request the first upstream called
// malformed or unauthorized against every other upstream helps nobody.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, RoutedCall, error) {
	var call RoutedCall
	if len(r.chain) == 0 {
		return nil, call, ErrNoProviders
	}

	for _, ep := range r.chain {
		actx := ctx
		cancel := func() {}
		if r.attemptTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, r.attemptTimeout)
		}

		start := time.Now()
		resp, err := ep.Provider.Invoke(actx, req)
		cancel()
		latency := time.Since(start).Milliseconds()

		if err == nil {
			call.Attempts = append(call.Attempts, Attempt{
				Provider:  ep.Provider.Name(),
				OK:        true,
				LatencyMS: latency,
			})
			call.ChosenProvider = ep.Provider.Name()
			return resp, call, nil
		}

		class := ClassOf(err)
		call.Attempts = append(call.Attempts, Attempt{
			Provider:   ep.Provider.Name(),
			OK:         false,
			ErrorClass: class,
			LatencyMS:  latency,
		})

		transient := ep.Transient
		if transient == nil {
			transient = DefaultTransientClasses()
		}
		if !transient[class] {
			return nil, call, fmt.Errorf("provider %s: %w", ep.Provider.Name(), err)
		}

		// The caller's deadline outranks the chain: once it is gone,
		// trying further providers just burns their quota.
		if ctx.Err() != nil {
			return nil, call, ctx.Err()
		}
	}

	return nil, call, &ExhaustedError{Attempts: call.Attempts}
}
