package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultRiskTolerance is the threshold for identities and defaults
// sections that do not set one.
const DefaultRiskTolerance = 0.5

// Load reads policy.yaml from path. A missing file yields the built-in
// default policy rather than an error, so a fresh install is immediately
// usable.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, err
	}

	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, err
	}
	if err := validate(&policy); err != nil {
		return nil, err
	}

	if policy.Defaults.MaxRiskTolerance == nil {
		tolerance := DefaultRiskTolerance
		policy.Defaults.MaxRiskTolerance = &tolerance
	}
	if policy.Defaults.AllowedCapabilities == nil {
		policy.Defaults.AllowedCapabilities = []Capability{CapabilityInvokeTool, CapabilityInvokeModel}
	}

	return &policy, nil
}

func validate(p *Policy) error {
	seen := make(map[string]bool, len(p.Identities))
	for i, id := range p.Identities {
		if id.ID == "" {
			return fmt.Errorf("identities[%d]: missing id", i)
		}
		if seen[id.ID] {
			return fmt.Errorf("identities[%d]: duplicate id %q", i, id.ID)
		}
		seen[id.ID] = true
		if id.MaxRiskTolerance != nil && (*id.MaxRiskTolerance < 0 || *id.MaxRiskTolerance > 1) {
			return fmt.Errorf("identity %q: max_risk_tolerance %v outside [0, 1]", id.ID, *id.MaxRiskTolerance)
		}
	}
	if d := p.Defaults.MaxRiskTolerance; d != nil && (*d < 0 || *d > 1) {
		return fmt.Errorf("defaults: max_risk_tolerance %v outside [0, 1]", *d)
	}
	return nil
}

// DefaultPolicy is what a gateway runs with before anyone writes a
// policy.yaml: conservative defaults and one illustrative identity.
func DefaultPolicy() *Policy {
	tolerance := DefaultRiskTolerance
	devTolerance := 0.7
	return &Policy{
		Version: "0.1",
		Defaults: Defaults{
			MaxRiskTolerance:    &tolerance,
			AllowedCapabilities: []Capability{CapabilityInvokeTool, CapabilityInvokeModel},
		},
		Identities: []Identity{
			{
				ID:               "dev-agent",
				Role:             "developer",
				MaxRiskTolerance: &devTolerance,
				AllowedCapabilities: []Capability{
					CapabilityInvokeTool,
					CapabilityInvokeModel,
					CapabilityExecuteCode,
				},
			},
		},
	}
}
