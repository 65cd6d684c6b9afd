// Package audit records what the gateway decided and why. Every request
// leaves a trail of events keyed by its request id, one per pipeline
// stage, written through fire-and-forget sinks that never block or fail
// the request path.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/opensec-dev/bastion/internal/scorer"
)

// Type names a pipeline stage or execution outcome.
type Type string

const (
	TypeRequestReceived    Type = "request_received"
	TypeScoringStarted     Type = "scoring_started"
	TypeScoringCompleted   Type = "scoring_completed"
	TypePolicyChecked      Type = "policy_checked"
	TypeDecisionRendered   Type = "decision_rendered"
	TypeExecutionCompleted Type = "execution_completed"
	// TypeExecutionSimulated marks output produced by the simulation
	// fallback, never by a real sandbox.
	TypeExecutionSimulated Type = "execution_simulated"
	TypeExecutionFailed    Type = "execution_failed"
)

// Event is one audit record. Fields that do not apply to an event type
// stay empty and are omitted from the serialized form.
type Event struct {
	ID         string `json:"id"`
	RequestID  string `json:"request_id,omitempty"`
	Timestamp  string `json:"timestamp"`
	Type       Type   `json:"type"`
	Agent      string `json:"agent,omitempty"`
	Capability string `json:"capability,omitempty"`
	Decision   string `json:"decision,omitempty"`
	ReasonCode string `json:"reason_code,omitempty"`

	// Score is a pointer so a genuine 0.0 composite survives
	// serialization instead of vanishing under omitempty.
	Score   *float64             `json:"score,omitempty"`
	Engines []scorer.ScoreResult `json:"engines,omitempty"`
	Prompt  string               `json:"prompt,omitempty"`
	Detail  string               `json:"detail,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// NewEvent stamps a fresh event with its identity and UTC time.
func NewEvent(typ Type, requestID string) Event {
	return Event{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Type:      typ,
	}
}

// Sink is what the pipeline writes to. Record must not block and must
// not surface errors into the request path.
type Sink interface {
	Record(event Event)
}

// Backend is one destination an async sink fans out to.
type Backend interface {
	Write(event Event) error
	Close() error
}

// Discard drops every event. Used when auditing is disabled.
type Discard struct{}

func (Discard) Record(Event) {}
