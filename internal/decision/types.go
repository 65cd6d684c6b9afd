// Package decision runs the interception pipeline: every agent request is
// scored, checked against identity policy, and answered with an auditable
// ALLOW or BLOCK verdict. The pipeline is deterministic — the same request
// under the same configuration always renders the same verdict, down to
// the decision hash.
package decision

import (
	"time"

	"github.com/google/uuid"

	"github.com/opensec-dev/bastion/internal/policy"
	"github.com/opensec-dev/bastion/internal/scorer"
)

// Request is one agent action awaiting a verdict. Built once at the
// gateway edge and never mutated afterwards.
type Request struct {
	ID         string            `json:"id"`
	Agent      string            `json:"agent"`
	Prompt     string            `json:"prompt"`
	Capability policy.Capability `json:"capability"`
	Params     map[string]any    `json:"params,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

// NewRequest stamps a fresh request with its identity and arrival time.
func NewRequest(agent, prompt string, capability policy.Capability, params map[string]any) Request {
	return Request{
		ID:         uuid.NewString(),
		Agent:      agent,
		Prompt:     prompt,
		Capability: capability,
		Params:     params,
		ReceivedAt: time.Now().UTC(),
	}
}

// Verdict is the pipeline's final word on one request.
//
// On a fail-closed verdict the composite carries value 0 with every engine
// entry marked engine_error; the reason code, not the value, is the
// meaning there.
type Verdict struct {
	Decision   policy.Decision       `json:"decision"`
	ReasonCode policy.ReasonCode     `json:"reason_code"`
	Composite  scorer.CompositeScore `json:"composite"`

	// PolicyTrigger names what the policy check tripped on: the denied
	// capability or "max_risk_tolerance". Empty when allowed or when
	// policy never ran.
	PolicyTrigger string `json:"policy_trigger,omitempty"`

	// DecisionHash is sha256 over the canonical form of the verdict's
	// decision-relevant fields. Two verdicts agree on substance iff they
	// agree on hash.
	DecisionHash string `json:"decision_hash"`
}

// Allowed reports whether the verdict permits execution.
func (v Verdict) Allowed() bool {
	return v.Decision == policy.DecisionAllow
}
