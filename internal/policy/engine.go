package policy

// Engine answers authorization questions against a loaded policy. It is
// immutable after construction; swapping policy means building a new
// engine.
type Engine struct {
	policy *Policy
	byID   map[string]ResolvedIdentity
	// fallback serves agents with no identity entry.
	fallback ResolvedIdentity
}

// NewEngine resolves every identity against the policy defaults so lookups
// at request time are a single map read.
func NewEngine(p *Policy) *Engine {
	e := &Engine{
		policy: p,
		byID:   make(map[string]ResolvedIdentity, len(p.Identities)),
	}
	for _, id := range p.Identities {
		e.byID[id.ID] = resolve(id, p.Defaults)
	}
	e.fallback = resolve(Identity{Role: "unregistered"}, p.Defaults)
	return e
}

func resolve(id Identity, d Defaults) ResolvedIdentity {
	r := ResolvedIdentity{
		ID:               id.ID,
		Role:             id.Role,
		MaxRiskTolerance: DefaultRiskTolerance,
		Capabilities:     make(map[Capability]bool),
		Known:            id.ID != "",
	}
	switch {
	case id.MaxRiskTolerance != nil:
		r.MaxRiskTolerance = *id.MaxRiskTolerance
	case d.MaxRiskTolerance != nil:
		r.MaxRiskTolerance = *d.MaxRiskTolerance
	}
	caps := id.AllowedCapabilities
	if caps == nil {
		caps = d.AllowedCapabilities
	}
	for _, c := range caps {
		r.Capabilities[c] = true
	}
	return r
}

// Lookup returns the resolved identity for an agent. Unknown agents get
// the defaults-derived fallback with their own ID stamped on, so audit
// events still name the caller.
func (e *Engine) Lookup(agentID string) ResolvedIdentity {
	if r, ok := e.byID[agentID]; ok {
		return r
	}
	r := e.fallback
	r.ID = agentID
	return r
}

// Authorize checks one request against the agent's identity.
//
// The capability gate runs first and alone: a capability outside the
// identity's set is denied no matter how low the risk, even at 0.0. Only
// requests that clear it are measured against the risk tolerance, where
// the boundary is inclusive: a composite exactly equal to the tolerance
// passes, the first value above it fails.
func (e *Engine) Authorize(agentID string, capability Capability, risk float64) Authorization {
	id := e.Lookup(agentID)

	if !id.Capabilities[capability] {
		return Authorization{
			Allowed:   false,
			Reason:    ReasonCapabilityDenied,
			Trigger:   string(capability),
			Tolerance: id.MaxRiskTolerance,
		}
	}

	if risk > id.MaxRiskTolerance {
		return Authorization{
			Allowed:   false,
			Reason:    ReasonRiskThresholdExceeded,
			Trigger:   "max_risk_tolerance",
			Tolerance: id.MaxRiskTolerance,
		}
	}

	return Authorization{
		Allowed:   true,
		Reason:    ReasonAllowed,
		Tolerance: id.MaxRiskTolerance,
	}
}

// Identities lists the policy's identity IDs for status output.
func (e *Engine) Identities() []string {
	ids := make([]string, 0, len(e.policy.Identities))
	for _, id := range e.policy.Identities {
		ids = append(ids, id.ID)
	}
	return ids
}
