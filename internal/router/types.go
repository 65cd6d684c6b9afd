// Package router fans completion calls out across upstream model providers
// with priority-ordered failover. Transient failures move the call to the
// next provider in the chain; anything else aborts immediately so a broken
// request is never replayed against every upstream.
package router

import "context"

// ErrorClass partitions provider failures for failover decisions.
type ErrorClass string

const (
	ClassRateLimited       ErrorClass = "rate_limited"
	ClassQuotaExhausted    ErrorClass = "quota_exhausted"
	ClassConnectionFailure ErrorClass = "connection_failure"
	ClassTimeout           ErrorClass = "timeout"
	ClassServerError       ErrorClass = "server_error"
	ClassInvalidRequest    ErrorClass = "invalid_request"
	ClassAuthFailure       ErrorClass = "auth_failure"
	ClassUnknown           ErrorClass = "unknown"
)

// DefaultTransientClasses is the failover set used when an endpoint does
// not configure its own: failures that say "this upstream, right now"
// rather than "this request".
func DefaultTransientClasses() map[ErrorClass]bool {
	return map[ErrorClass]bool{
		ClassRateLimited:       true,
		ClassQuotaExhausted:    true,
		ClassConnectionFailure: true,
		ClassTimeout:           true,
		ClassServerError:       true,
	}
}

// Message is one turn of a chat completion conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a provider-neutral chat completion call. Model names
// the gateway-facing alias; each provider resolves it to its own upstream
// model identifier.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// CompletionResponse is the assistant's reply plus which provider and
// upstream model produced it.
type CompletionResponse struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Content  string `json:"content"`
}

// Provider is one upstream capable of serving completions.
type Provider interface {
	Name() string
	Invoke(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Attempt records one provider call within a routed completion.
type Attempt struct {
	Provider   string     `json:"provider"`
	OK         bool       `json:"ok"`
	ErrorClass ErrorClass `json:"error_class,omitempty"`
	LatencyMS  int64      `json:"latency_ms"`
}

// RoutedCall is the routing trace for a single completion: every attempt
// in order, and the provider that ultimately answered. ChosenProvider is
// empty when no provider succeeded.
type RoutedCall struct {
	ChosenProvider string    `json:"chosen_provider,omitempty"`
	Attempts       []Attempt `json:"attempts"`
}
