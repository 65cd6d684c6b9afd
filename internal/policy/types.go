package policy

// Decision is the gateway's final word on a request.
type Decision string

const (
	DecisionAllow Decision = "ALLOW"
	DecisionBlock Decision = "BLOCK"
)

// ReasonCode explains a decision in machine-readable form. The codes are
// stable API: audit pipelines and clients key off them.
type ReasonCode string

const (
	// ReasonAllowed marks a request that cleared every gate.
	ReasonAllowed ReasonCode = "allowed"
	// ReasonCapabilityDenied marks a request for a capability outside the
	// identity's allowed set. Risk plays no part in it.
	ReasonCapabilityDenied ReasonCode = "capability_denied"
	// ReasonRiskThresholdExceeded marks a composite risk above the
	// identity's tolerance.
	ReasonRiskThresholdExceeded ReasonCode = "risk_threshold_exceeded"
	// ReasonFailClosed marks the forced BLOCK taken when no scoring
	// engine produced a usable score.
	ReasonFailClosed ReasonCode = "fail_closed_no_scorers"
)

// Capability names a class of action an agent can request.
type Capability string

const (
	CapabilityInvokeTool  Capability = "invoke_tool"
	CapabilityInvokeModel Capability = "invoke_model"
	CapabilityReadSecret  Capability = "read_secret"
	CapabilityExecuteCode Capability = "execute_code"
	CapabilityExecuteSQL  Capability = "execute_sql"
	CapabilitySendMessage Capability = "send_message"
)

// Policy is the identity table plus defaults, loaded from policy.yaml.
type Policy struct {
	Version    string     `yaml:"version"`
	Defaults   Defaults   `yaml:"defaults"`
	Identities []Identity `yaml:"identities"`
}

// Defaults apply to unknown agents and fill gaps in identity entries.
type Defaults struct {
	MaxRiskTolerance    *float64     `yaml:"max_risk_tolerance,omitempty"`
	AllowedCapabilities []Capability `yaml:"allowed_capabilities,omitempty"`
}

// Identity is one agent's standing policy. Omitted fields inherit from
// Defaults, so a minimal entry only names the agent.
type Identity struct {
	ID                  string       `yaml:"id"`
	Role                string       `yaml:"role,omitempty"`
	MaxRiskTolerance    *float64     `yaml:"max_risk_tolerance,omitempty"`
	AllowedCapabilities []Capability `yaml:"allowed_capabilities,omitempty"`
}

// ResolvedIdentity is an identity with defaults folded in, ready for
// authorization checks.
type ResolvedIdentity struct {
	ID               string
	Role             string
	MaxRiskTolerance float64
	Capabilities     map[Capability]bool

	// Known is false when the agent had no identity entry and inherited
	// everything from Defaults.
	Known bool
}

// Authorization is the outcome of checking one request against policy.
type Authorization struct {
	Allowed bool
	Reason  ReasonCode

	// Trigger names what tripped: the denied capability, or
	// "max_risk_tolerance" for a threshold breach. Empty when allowed.
	Trigger string

	// Tolerance echoes the identity's threshold for audit output.
	Tolerance float64
}
