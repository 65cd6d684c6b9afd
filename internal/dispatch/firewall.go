package dispatch

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/opensec-dev/bastion/internal/policy"
)

// ParamFirewall validates tool parameters against per-capability JSON
// Schemas before anything executes. Schemas are compiled once when
// configuration loads; a capability without one passes parameters through
// untouched.
type ParamFirewall struct {
	schemas map[policy.Capability]*jsonschema.Schema
}

func NewParamFirewall() *ParamFirewall {
	return &ParamFirewall{schemas: make(map[policy.Capability]*jsonschema.Schema)}
}

// SetSchema compiles and installs the schema document for one capability.
// An empty document removes the schema.
func (f *ParamFirewall) SetSchema(capability policy.Capability, schema string) error {
	if schema == "" {
		delete(f.schemas, capability)
		return nil
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://bastion.schemas.local/params/%s.schema.json", capability)
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		return fmt.Errorf("param schema for %s: %w", capability, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("param schema for %s: %w", capability, err)
	}
	f.schemas[capability] = compiled
	return nil
}

// Validate checks one request's parameters. Absent parameters validate as
// an empty object: schemas with required fields reject them, permissive
// schemas let them through.
func (f *ParamFirewall) Validate(capability policy.Capability, params map[string]any) error {
	schema, ok := f.schemas[capability]
	if !ok {
		return nil
	}

	var v any = map[string]any{}
	if params != nil {
		v = params
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("parameters rejected for %s: %w", capability, err)
	}
	return nil
}
