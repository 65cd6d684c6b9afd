// Package scorer provides the risk-scoring layer of the gateway: a uniform
// adapter interface over heterogeneous detection engines, a concurrent
// fan-out registry, and the deterministic aggregator that folds engine
// outputs into one composite score.
//
// Architecture:
//
//	Scorer (interface)
//	  ├── HeuristicScorer — built-in pattern rules, zero dependencies
//	  ├── UnicodeScorer   — unicode smuggling detection
//	  ├── ShellScorer     — shell AST analysis for execute_code requests
//	  ├── SQLScorer       — statement-shape analysis for execute_sql requests
//	  ├── SecretScorer    — inline credential / PII detection
//	  ├── ModelScorer     — LLM-backed classification via the provider router
//	  └── RemoteScorer    — generic HTTP adapter for an external engine
//
//	Registry   — concurrent fan-out with per-engine timeouts
//	Aggregator — max / weighted_mean combination, fail-closed on no signal
package scorer

import "context"

// Category classifies what kind of risk an engine detected.
type Category string

const (
	CategoryInjection         Category = "injection"
	CategorySecretLeak        Category = "secret_leak"
	CategoryUnsafeInstruction Category = "unsafe_instruction"
	CategoryBenign            Category = "benign"

	// CategoryEngineError marks a result from an engine that failed or timed
	// out. Errored results are excluded from numeric aggregation but kept in
	// the composite for audit.
	CategoryEngineError Category = "engine_error"
)

// Input is the material handed to every scoring engine for one request.
// The capability lets engines skip inputs outside their domain (the shell
// scorer only inspects execute_code prompts, the SQL scorer only
// execute_sql queries).
type Input struct {
	Prompt     string
	Capability string

	// Enrichments extracted by the normalizer before fan-out.
	Domains []string
	Paths   []string
}

// ScoreResult is one engine's verdict on one input. Produced exactly once
// per engine per request; never mutated afterwards.
type ScoreResult struct {
	Engine    string   `json:"engine"`
	Score     float64  `json:"score"`
	Category  Category `json:"category"`
	LatencyMS int64    `json:"latency_ms"`
}

// Scorer is the interface every risk engine adapter implements. Score must
// not panic; returning an error is the sanctioned failure path and is
// translated by the registry into a CategoryEngineError result.
type Scorer interface {
	// Name returns the engine identifier (e.g. "heuristic", "shell").
	Name() string

	// Score rates the input's risk in [0,1]. The context carries the
	// per-engine deadline; implementations doing I/O must honor it.
	Score(ctx context.Context, in Input) (ScoreResult, error)
}

// Method selects how multiple engine scores combine into one value.
type Method string

const (
	// MethodMax takes the maximum valid score: any single engine flagging
	// high risk dominates. This is the default.
	MethodMax Method = "max"

	// MethodWeightedMean combines valid scores by per-engine weight,
	// renormalized over the engines that actually produced a score.
	MethodWeightedMean Method = "weighted_mean"
)

// ParseMethod validates a configured method string.
func ParseMethod(s string) (Method, bool) {
	switch Method(s) {
	case MethodMax, MethodWeightedMean:
		return Method(s), true
	case "":
		return MethodMax, true
	}
	return "", false
}

// CompositeScore is the deterministic combination of a set of ScoreResults.
// Engines holds every consulted engine, errored ones included, sorted by
// engine name so equal inputs always produce byte-equal composites.
type CompositeScore struct {
	Value   float64       `json:"value"`
	Method  Method        `json:"method"`
	Engines []ScoreResult `json:"engines"`
}
