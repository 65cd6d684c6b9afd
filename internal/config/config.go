// Package config loads the gateway's startup configuration: one YAML file,
// read once into an immutable snapshot. Nothing re-reads the file after
// startup; changing configuration means restarting the process.
//
// Secrets never live in the file. The auth secret and provider API keys
// come from the environment on every load, so a committed config.yaml
// stays safe to share.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opensec-dev/bastion/internal/router"
	"github.com/opensec-dev/bastion/internal/scorer"
)

const (
	DefaultConfigDir  = ".bastion"
	DefaultConfigFile = "config.yaml"
	DefaultPolicyFile = "policy.yaml"
	DefaultLogFile    = "audit.jsonl"

	// EnvAuthSecret is the only source for the bearer-token signing secret.
	EnvAuthSecret = "BASTION_AUTH_SECRET"
	// EnvRedisPassword supplies the redis password when the shared rate
	// limiter is enabled.
	EnvRedisPassword = "BASTION_REDIS_PASSWORD"
)

const (
	DefaultListen         = ":8787"
	DefaultRequestTimeout = 2 * time.Minute
	DefaultScoreTimeout   = 2 * time.Second
	DefaultAuditBuffer    = 256
	DefaultRateRPS        = 10
	DefaultRateBurst      = 20
)

// localEngines are the scorer names the `scoring.enabled` list may select.
// The model judge and remote engines are switched by their own sections.
var localEngines = []string{"heuristic", "unicode", "shell", "sql", "secrets"}

// Duration reads YAML durations in Go notation ("2s", "1m30s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full gateway snapshot. Zero values mean "use the default";
// Load fills them before anything reads the struct.
type Config struct {
	Listen         string   `yaml:"listen"`
	RequestTimeout Duration `yaml:"request_timeout"`

	Scoring         ScoringConfig    `yaml:"scoring"`
	Providers       []ProviderConfig `yaml:"providers"`
	ProviderTimeout Duration         `yaml:"provider_timeout"`

	PolicyPath string            `yaml:"policy_path"`
	Audit      AuditConfig       `yaml:"audit"`
	RateLimit  RateLimitConfig   `yaml:"rate_limit"`
	Auth       AuthConfig        `yaml:"auth"`
	Sandbox    SandboxConfig     `yaml:"sandbox"`
	Agents     map[string]string `yaml:"agents"`

	// ParamSchemas maps a capability to a JSON Schema file that validates
	// its tool parameters before dispatch. Compiled once at startup.
	ParamSchemas map[string]string `yaml:"param_schemas,omitempty"`

	// ConfigDir is ~/.bastion, created on load. Path is the file actually
	// read, empty when the gateway started on built-in defaults.
	ConfigDir string `yaml:"-"`
	Path      string `yaml:"-"`
}

// ScoringConfig shapes the detection fan-out and aggregation.
type ScoringConfig struct {
	// Method is "max" or "weighted_mean".
	Method  string             `yaml:"method"`
	Weights map[string]float64 `yaml:"weights,omitempty"`

	// Timeout bounds every engine; EngineTimeouts overrides per engine.
	Timeout        Duration            `yaml:"timeout"`
	EngineTimeouts map[string]Duration `yaml:"engine_timeouts,omitempty"`

	// Enabled selects the built-in engines to run. Empty means all of them.
	Enabled []string             `yaml:"enabled,omitempty"`
	Judge   JudgeConfig          `yaml:"judge"`
	Remote  []RemoteScorerConfig `yaml:"remote,omitempty"`
}

// TimeoutOverrides converts the per-engine table for the scorer registry.
func (s ScoringConfig) TimeoutOverrides() map[string]time.Duration {
	if len(s.EngineTimeouts) == 0 {
		return nil
	}
	out := make(map[string]time.Duration, len(s.EngineTimeouts))
	for name, d := range s.EngineTimeouts {
		out[name] = d.Std()
	}
	return out
}

// EngineEnabled reports whether a built-in engine should register.
func (s ScoringConfig) EngineEnabled(name string) bool {
	if len(s.Enabled) == 0 {
		return true
	}
	for _, n := range s.Enabled {
		if n == name {
			return true
		}
	}
	return false
}

// JudgeConfig switches the LLM-backed engine ("model") on. It scores
// through the provider chain using the given model alias.
type JudgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model,omitempty"`
}

// RemoteScorerConfig registers one external HTTP scoring engine.
type RemoteScorerConfig struct {
	Name      string `yaml:"name"`
	Endpoint  string `yaml:"endpoint"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
}

// APIKey reads the engine's key from the environment. Empty when unset.
func (r RemoteScorerConfig) APIKey() string {
	if r.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(r.APIKeyEnv)
}

// ProviderConfig is one upstream in the completion chain.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`

	// Priority orders the chain; lower tries first.
	Priority int `yaml:"priority"`

	// Model is this upstream's default model; Aliases maps gateway-facing
	// names to upstream ones.
	Aliases   map[string]string `yaml:"aliases,omitempty"`
	Model     string            `yaml:"model,omitempty"`
	APIKeyEnv string            `yaml:"api_key_env,omitempty"`

	// Transient overrides the failover set with router error-class names.
	Transient []string `yaml:"transient,omitempty"`
}

// APIKey reads the provider's key from the environment. Empty when unset.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// TransientClasses resolves the configured class names, or nil to use the
// router's default failover set.
func (p ProviderConfig) TransientClasses() (map[router.ErrorClass]bool, error) {
	if len(p.Transient) == 0 {
		return nil, nil
	}
	known := map[string]router.ErrorClass{
		string(router.ClassRateLimited):       router.ClassRateLimited,
		string(router.ClassQuotaExhausted):    router.ClassQuotaExhausted,
		string(router.ClassConnectionFailure): router.ClassConnectionFailure,
		string(router.ClassTimeout):           router.ClassTimeout,
		string(router.ClassServerError):       router.ClassServerError,
		string(router.ClassInvalidRequest):    router.ClassInvalidRequest,
		string(router.ClassAuthFailure):       router.ClassAuthFailure,
	}
	out := make(map[router.ErrorClass]bool, len(p.Transient))
	for _, name := range p.Transient {
		class, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("provider %s: unknown transient error class %q", p.Name, name)
		}
		out[class] = true
	}
	return out, nil
}

// AuditConfig selects the audit backends. Path is the JSONL trail;
// SQLitePath mirrors events into a queryable store when set.
type AuditConfig struct {
	Path       string `yaml:"path,omitempty"`
	SQLitePath string `yaml:"sqlite_path,omitempty"`
	Buffer     int    `yaml:"buffer,omitempty"`
}

// RateLimitConfig shapes per-identity request limiting. RPS 0 disables it.
// RedisAddr switches from in-process buckets to shared redis buckets.
type RateLimitConfig struct {
	RPS       float64 `yaml:"rps"`
	Burst     int     `yaml:"burst"`
	RedisAddr string  `yaml:"redis_addr,omitempty"`
	RedisDB   int     `yaml:"redis_db,omitempty"`
}

// RedisPassword reads the redis password from the environment.
func (r RateLimitConfig) RedisPassword() string {
	return os.Getenv(EnvRedisPassword)
}

// AuthConfig selects caller authentication. Mode "none" trusts the body's
// agent_id; mode "bearer" requires a signed token whose subject becomes
// the identity. The secret comes only from BASTION_AUTH_SECRET.
type AuthConfig struct {
	Mode     string   `yaml:"mode"`
	TokenTTL Duration `yaml:"token_ttl,omitempty"`
	Secret   string   `yaml:"-"`
}

// SandboxConfig points at the execution sandbox. Empty URL means every
// approved execution is simulated instead of run.
type SandboxConfig struct {
	URL string `yaml:"url,omitempty"`
}

// Default returns the built-in configuration: local engines only, max
// aggregation, one OpenAI-compatible upstream keyed from the environment,
// auth off, in-process rate limiting.
func Default() *Config {
	return &Config{
		Listen:         DefaultListen,
		RequestTimeout: Duration(DefaultRequestTimeout),
		Scoring: ScoringConfig{
			Method:  string(scorer.MethodMax),
			Timeout: Duration(DefaultScoreTimeout),
		},
		Providers: []ProviderConfig{
			{
				Name:      "openai",
				BaseURL:   "https://api.openai.com/v1",
				Priority:  1,
				Model:     "gpt-4o-mini",
				APIKeyEnv: "OPENAI_API_KEY",
			},
		},
		ProviderTimeout: Duration(30 * time.Second),
		Audit: AuditConfig{
			Buffer: DefaultAuditBuffer,
		},
		RateLimit: RateLimitConfig{
			RPS:   DefaultRateRPS,
			Burst: DefaultRateBurst,
		},
		Auth: AuthConfig{
			Mode:     "none",
			TokenTTL: Duration(24 * time.Hour),
		},
	}
}

// Load reads the file at path, or ~/.bastion/config.yaml when path is
// empty. A missing default file is not an error: first runs start on
// Default(). An explicitly named file must exist.
func Load(path string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(home, DefaultConfigDir)
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.ConfigDir = dir

	explicit := path != ""
	resolved := path
	if !explicit {
		resolved = filepath.Join(dir, DefaultConfigFile)
	}

	data, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", resolved, err)
		}
		cfg.Path = resolved
	case os.IsNotExist(err) && !explicit:
		// First run, nothing written yet. The defaults carry the gateway.
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", resolved, err)
	}

	cfg.applyEnv()
	cfg.fillPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv pulls secrets from the environment. File values never win here:
// secrets have no yaml tag at all.
func (c *Config) applyEnv() {
	c.Auth.Secret = os.Getenv(EnvAuthSecret)
}

// fillPaths resolves empty file locations under the config dir.
func (c *Config) fillPaths() {
	if c.PolicyPath == "" {
		c.PolicyPath = filepath.Join(c.ConfigDir, DefaultPolicyFile)
	}
	if c.Audit.Path == "" {
		c.Audit.Path = filepath.Join(c.ConfigDir, DefaultLogFile)
	}
	if c.Audit.Buffer <= 0 {
		c.Audit.Buffer = DefaultAuditBuffer
	}
}

// Validate rejects snapshots the gateway cannot run on. It is called once
// at load; after that the config is trusted everywhere.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.RequestTimeout.Std() < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	if _, ok := scorer.ParseMethod(c.Scoring.Method); !ok {
		return fmt.Errorf("unknown scoring method %q (known: %s, %s)", c.Scoring.Method, scorer.MethodMax, scorer.MethodWeightedMean)
	}
	for engine, w := range c.Scoring.Weights {
		if w < 0 {
			return fmt.Errorf("scoring weight for %s must not be negative, got %g", engine, w)
		}
	}
	if c.Scoring.Timeout.Std() <= 0 {
		return fmt.Errorf("scoring timeout must be positive")
	}
	for _, name := range c.Scoring.Enabled {
		if !knownLocalEngine(name) {
			return fmt.Errorf("unknown scoring engine %q (known: %v)", name, localEngines)
		}
	}
	if c.Scoring.Judge.Enabled && len(c.Providers) == 0 {
		return fmt.Errorf("judge engine requires at least one provider")
	}
	for i, rs := range c.Scoring.Remote {
		if rs.Name == "" || rs.Endpoint == "" {
			return fmt.Errorf("remote scorer %d: name and endpoint are required", i)
		}
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider %d: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name: %s", p.Name)
		}
		seen[p.Name] = true
		if p.BaseURL == "" {
			return fmt.Errorf("provider %s: base_url is required", p.Name)
		}
		if _, err := p.TransientClasses(); err != nil {
			return err
		}
	}

	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit rps and burst must not be negative")
	}

	switch c.Auth.Mode {
	case "", "none":
		c.Auth.Mode = "none"
	case "bearer":
		if c.Auth.Secret == "" {
			return fmt.Errorf("auth mode bearer requires %s to be set", EnvAuthSecret)
		}
	default:
		return fmt.Errorf("unknown auth mode %q (known: none, bearer)", c.Auth.Mode)
	}
	return nil
}

// Fingerprint is a short stable digest of the snapshot, surfaced on
// /healthz so operators can tell at a glance which config a node runs.
// Secrets carry no yaml tag and never enter the digest.
func (c *Config) Fingerprint() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "unknown"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:12]
}

func knownLocalEngine(name string) bool {
	for _, n := range localEngines {
		if n == name {
			return true
		}
	}
	return false
}

func ensureDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0700)
	}
	return nil
}
