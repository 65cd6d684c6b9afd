package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigYAML is the commented starter file `bastion setup` writes.
// Every value shown matches Default(), so the freshly written file changes
// nothing until the operator edits it.
const DefaultConfigYAML = `# Bastion gateway configuration.
# Loaded once at startup; edits require a restart.
#
# Secrets never belong in this file. The bearer-token secret comes from
# BASTION_AUTH_SECRET and provider API keys from the env var each entry
# names in api_key_env.

listen: ":8787"
request_timeout: "2m"

scoring:
  # max: any single engine flagging high risk dominates.
  # weighted_mean: per-engine weights, renormalized over live engines.
  method: "max"
  timeout: "2s"
  # weights:                       # weighted_mean only; unlisted engines count as 1.0
  #   heuristic: 2.0
  #   unicode: 1.0
  # engine_timeouts:
  #   shell: "500ms"
  # enabled: [heuristic, unicode, shell, sql, secrets]
  judge:
    enabled: false                 # LLM-backed scoring via the provider chain
    # model: "gpt-4o-mini"
  # remote:                        # external HTTP scoring engines
  #   - name: "external-filter"
  #     endpoint: "https://scoring.example.com/v1/score"
  #     api_key_env: "EXTERNAL_FILTER_API_KEY"

providers:
  - name: "openai"
    base_url: "https://api.openai.com/v1"
    priority: 1
    model: "gpt-4o-mini"
    api_key_env: "OPENAI_API_KEY"
  # - name: "local"                # failover target; lower priority tries later
  #   base_url: "http://localhost:11434/v1"
  #   priority: 2
  #   model: "llama3.1"
  #   transient: [timeout, connection_failure, server_error]
provider_timeout: "30s"

# policy_path: ""                  # defaults to ~/.bastion/policy.yaml

audit:
  # path: ""                       # defaults to ~/.bastion/audit.jsonl
  # sqlite_path: ""                # optional queryable mirror, e.g. ~/.bastion/audit.db
  buffer: 256

rate_limit:
  rps: 10
  burst: 20
  # redis_addr: "localhost:6379"   # shared buckets across gateway replicas

auth:
  mode: "none"                     # "bearer" requires BASTION_AUTH_SECRET
  token_ttl: "24h"

sandbox:
  # url: "http://localhost:9090"   # empty: approved executions are simulated

# agents:                          # agent-message forwarding directory
#   support-agent: "http://localhost:9001/inbox"

# param_schemas:                   # JSON Schema gate on tool parameters
#   invoke_tool: "~/.bastion/schemas/invoke_tool.schema.json"
`

// DefaultPolicyYAML is the commented starter policy `bastion setup`
// writes. It mirrors the built-in default table the gateway uses when no
// policy file exists.
const DefaultPolicyYAML = `# Bastion identity policy.
#
# Every request is authorized against the caller's identity: first the
# capability gate, then the risk-tolerance threshold (a composite score
# equal to the tolerance still passes; above it blocks). Unknown agents
# get the defaults below.

version: "0.1"

defaults:
  max_risk_tolerance: 0.5
  allowed_capabilities:
    - invoke_tool
    - invoke_model

identities:
  - id: dev-agent
    role: developer
    max_risk_tolerance: 0.7
    allowed_capabilities:
      - invoke_tool
      - invoke_model
      - execute_code
  # - id: ci-agent
  #   role: automation
  #   max_risk_tolerance: 0.3      # omit to inherit the default
  #   allowed_capabilities:        # omit to inherit the defaults
  #     - invoke_tool
  #     - execute_sql
`

// WriteDefaults writes the starter config and policy into dir, refusing to
// clobber files that already exist unless force is set. Returns the paths
// written.
func WriteDefaults(dir string, force bool) ([]string, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	files := []struct {
		name    string
		content string
	}{
		{DefaultConfigFile, DefaultConfigYAML},
		{DefaultPolicyFile, DefaultPolicyYAML},
	}

	var written []string
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if !force {
			if _, err := os.Stat(path); err == nil {
				continue
			}
		}
		if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
