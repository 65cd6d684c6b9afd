package scorer

import (
	"context"
	"time"
)

// Registry runs every registered engine against an input concurrently and
// collects whatever finished in time. An engine that errors, panics, or
// outlives its deadline contributes an engine_error result; the pipeline
// never waits past the request's own deadline for a straggler.
type Registry struct {
	scorers   []Scorer
	timeout   time.Duration
	overrides map[string]time.Duration
}

// NewRegistry creates a registry with a default per-engine timeout.
// Per-engine overrides take precedence over the default.
func NewRegistry(timeout time.Duration, overrides map[string]time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Registry{timeout: timeout, overrides: overrides}
}

// Register appends an engine to the fan-out set.
func (r *Registry) Register(s Scorer) {
	r.scorers = append(r.scorers, s)
}

// Names returns the registered engine names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.scorers))
	for i, s := range r.scorers {
		names[i] = s.Name()
	}
	return names
}

// Len returns the number of registered engines.
func (r *Registry) Len() int { return len(r.scorers) }

// ScoreAll fans the input out to all engines and returns one result per
// engine. Collection stops at ctx's deadline: engines that have not
// answered by then are recorded as engine_error with the time spent so far.
// Results arrive in no particular order; the aggregator sorts them.
func (r *Registry) ScoreAll(ctx context.Context, in Input) []ScoreResult {
	n := len(r.scorers)
	if n == 0 {
		return nil
	}

	type indexed struct {
		i   int
		res ScoreResult
	}
	// Buffered so late finishers never block after collection gives up.
	ch := make(chan indexed, n)
	start := time.Now()

	for i, s := range r.scorers {
		go func(i int, s Scorer) {
			res := r.scoreOne(ctx, s, in)
			ch <- indexed{i: i, res: res}
		}(i, s)
	}

	results := make([]ScoreResult, n)
	received := make([]bool, n)
	collected := 0
	for collected < n {
		select {
		case item := <-ch:
			results[item.i] = item.res
			received[item.i] = true
			collected++
		case <-ctx.Done():
			elapsed := time.Since(start).Milliseconds()
			for i, s := range r.scorers {
				if !received[i] {
					results[i] = errorResult(s.Name(), elapsed)
				}
			}
			return results
		}
	}
	return results
}

// scoreOne runs a single engine under its own deadline and normalizes the
// outcome: the engine name is always the adapter's own, the score is
// clamped into [0,1], and every failure mode collapses to engine_error.
func (r *Registry) scoreOne(ctx context.Context, s Scorer, in Input) (out ScoreResult) {
	timeout := r.timeout
	if o, ok := r.overrides[s.Name()]; ok && o > 0 {
		timeout = o
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		// The adapter contract forbids engines from taking down the
		// pipeline; a panicking engine degrades to engine_error.
		if recover() != nil {
			out = errorResult(s.Name(), time.Since(start).Milliseconds())
		}
	}()

	res, err := s.Score(sctx, in)
	elapsed := time.Since(start).Milliseconds()
	if err != nil || sctx.Err() != nil {
		return errorResult(s.Name(), elapsed)
	}

	res.Engine = s.Name()
	res.LatencyMS = elapsed
	if res.Score < 0 {
		res.Score = 0
	}
	if res.Score > 1 {
		res.Score = 1
	}
	if res.Category == "" {
		res.Category = CategoryBenign
	}
	return res
}

func errorResult(engine string, latencyMS int64) ScoreResult {
	return ScoreResult{
		Engine:    engine,
		Score:     0,
		Category:  CategoryEngineError,
		LatencyMS: latencyMS,
	}
}
