package scorer

import (
	"errors"
	"sort"
)

// ErrAllScorersUnavailable is returned when no engine produced a usable
// score. Callers must treat it as a forced BLOCK, never as ALLOW.
var ErrAllScorersUnavailable = errors.New("all scoring engines unavailable")

// Aggregator folds a set of ScoreResults into one CompositeScore.
//
// Determinism contract: for a fixed result set, Aggregate always returns a
// bit-identical composite regardless of input order. Results are sorted by
// engine name before combination, and the weighted sum accumulates in that
// sorted order, so float rounding is reproducible too.
type Aggregator struct {
	method  Method
	weights map[string]float64
}

// NewAggregator creates an aggregator for the given method. Weights apply
// only to weighted_mean; an engine without a configured weight counts as 1.0,
// so an empty weight table degrades to the plain arithmetic mean.
func NewAggregator(method Method, weights map[string]float64) *Aggregator {
	if method == "" {
		method = MethodMax
	}
	return &Aggregator{method: method, weights: weights}
}

// Method returns the configured combination method.
func (a *Aggregator) Method() Method { return a.method }

// SortResults returns a copy ordered by engine name, with score and
// category as tie-breaks so the order is total even if two results share
// an engine name. Aggregation and fail-closed verdict assembly use the
// same order, so equal result sets always serialize identically.
func SortResults(results []ScoreResult) []ScoreResult {
	sorted := make([]ScoreResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Engine != sorted[j].Engine {
			return sorted[i].Engine < sorted[j].Engine
		}
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score < sorted[j].Score
		}
		return sorted[i].Category < sorted[j].Category
	})
	return sorted
}

// Aggregate combines the results. Engines that reported engine_error are
// excluded from the numeric combination but kept in the composite's engine
// list for audit. If no result carries a usable score (all errored, or the
// set is empty), Aggregate fails with ErrAllScorersUnavailable.
func (a *Aggregator) Aggregate(results []ScoreResult) (CompositeScore, error) {
	sorted := SortResults(results)

	valid := 0
	for _, r := range sorted {
		if r.Category != CategoryEngineError {
			valid++
		}
	}
	if valid == 0 {
		return CompositeScore{}, ErrAllScorersUnavailable
	}

	composite := CompositeScore{
		Method:  a.method,
		Engines: sorted,
	}

	switch a.method {
	case MethodWeightedMean:
		composite.Value = a.weightedMean(sorted)
	default:
		composite.Value = maxScore(sorted)
	}

	return composite, nil
}

func maxScore(sorted []ScoreResult) float64 {
	var best float64
	for _, r := range sorted {
		if r.Category == CategoryEngineError {
			continue
		}
		if r.Score > best {
			best = r.Score
		}
	}
	return best
}

// weightedMean renormalizes over the engines that produced a score, so a
// partially errored set still yields a weighted average of what remains.
func (a *Aggregator) weightedMean(sorted []ScoreResult) float64 {
	var sum, totalWeight float64
	for _, r := range sorted {
		if r.Category == CategoryEngineError {
			continue
		}
		w := 1.0
		if cw, ok := a.weights[r.Engine]; ok && cw > 0 {
			w = cw
		}
		sum += w * r.Score
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return sum / totalWeight
}
