package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opensec-dev/bastion/internal/policy"
	"github.com/opensec-dev/bastion/internal/router"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvAuthSecret, "")
	return home
}

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	home := isolateHome(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Path != "" {
		t.Errorf("expected empty path for defaults, got %s", cfg.Path)
	}
	if cfg.Listen != DefaultListen {
		t.Errorf("expected listen %s, got %s", DefaultListen, cfg.Listen)
	}
	if cfg.Scoring.Method != "max" {
		t.Errorf("expected method max, got %s", cfg.Scoring.Method)
	}
	if cfg.Auth.Mode != "none" {
		t.Errorf("expected auth mode none, got %s", cfg.Auth.Mode)
	}

	wantDir := filepath.Join(home, DefaultConfigDir)
	if cfg.ConfigDir != wantDir {
		t.Errorf("expected config dir %s, got %s", wantDir, cfg.ConfigDir)
	}
	if cfg.PolicyPath != filepath.Join(wantDir, DefaultPolicyFile) {
		t.Errorf("expected default policy path, got %s", cfg.PolicyPath)
	}
	if cfg.Audit.Path != filepath.Join(wantDir, DefaultLogFile) {
		t.Errorf("expected default audit path, got %s", cfg.Audit.Path)
	}

	info, err := os.Stat(wantDir)
	if err != nil {
		t.Fatalf("expected config dir to be created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("expected config dir mode 0700, got %o", perm)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	isolateHome(t)
	path := writeConfigFile(t, `
listen: ":9999"
request_timeout: "30s"
scoring:
  method: weighted_mean
  timeout: "750ms"
  weights:
    heuristic: 2.0
  engine_timeouts:
    shell: "500ms"
  enabled: [heuristic, shell]
providers:
  - name: primary
    base_url: "https://api.example.com/v1"
    priority: 1
    model: big-model
    api_key_env: PRIMARY_KEY
  - name: fallback
    base_url: "http://localhost:11434/v1"
    priority: 2
    transient: [timeout, connection_failure]
rate_limit:
  rps: 5
  burst: 5
agents:
  support-agent: "http://localhost:9001/inbox"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Path != path {
		t.Errorf("expected path %s, got %s", path, cfg.Path)
	}
	if cfg.Listen != ":9999" {
		t.Errorf("expected listen :9999, got %s", cfg.Listen)
	}
	if cfg.RequestTimeout.Std() != 30*time.Second {
		t.Errorf("expected request timeout 30s, got %v", cfg.RequestTimeout.Std())
	}
	if cfg.Scoring.Method != "weighted_mean" {
		t.Errorf("expected method weighted_mean, got %s", cfg.Scoring.Method)
	}
	if cfg.Scoring.Timeout.Std() != 750*time.Millisecond {
		t.Errorf("expected scoring timeout 750ms, got %v", cfg.Scoring.Timeout.Std())
	}
	if got := cfg.Scoring.TimeoutOverrides()["shell"]; got != 500*time.Millisecond {
		t.Errorf("expected shell timeout 500ms, got %v", got)
	}
	if len(cfg.Providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(cfg.Providers))
	}
	if cfg.Providers[1].Name != "fallback" || cfg.Providers[1].Priority != 2 {
		t.Errorf("unexpected second provider: %+v", cfg.Providers[1])
	}
	if cfg.RateLimit.RPS != 5 || cfg.RateLimit.Burst != 5 {
		t.Errorf("expected rate limit 5/5, got %g/%d", cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	if cfg.Agents["support-agent"] != "http://localhost:9001/inbox" {
		t.Errorf("expected agent directory entry, got %v", cfg.Agents)
	}

	// Fields absent from the file keep their defaults.
	if cfg.Audit.Buffer != DefaultAuditBuffer {
		t.Errorf("expected default audit buffer %d, got %d", DefaultAuditBuffer, cfg.Audit.Buffer)
	}
	if cfg.ProviderTimeout.Std() != 30*time.Second {
		t.Errorf("expected default provider timeout, got %v", cfg.ProviderTimeout.Std())
	}
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	isolateHome(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for explicitly named missing file, got nil")
	}
}

func TestLoad_BearerModeRequiresEnvSecret(t *testing.T) {
	isolateHome(t)
	path := writeConfigFile(t, "auth:\n  mode: bearer\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error when BASTION_AUTH_SECRET is unset, got nil")
	} else if !strings.Contains(err.Error(), EnvAuthSecret) {
		t.Errorf("expected error to name %s, got %v", EnvAuthSecret, err)
	}

	t.Setenv(EnvAuthSecret, "test-signing-secret")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error with secret set: %v", err)
	}
	if cfg.Auth.Secret != "test-signing-secret" {
		t.Errorf("expected secret from environment, got %q", cfg.Auth.Secret)
	}
}

func TestLoad_RejectsInvalidSnapshots(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown method",
			content: "scoring:\n  method: median\n",
			wantErr: "unknown scoring method",
		},
		{
			name:    "negative weight",
			content: "scoring:\n  method: weighted_mean\n  weights:\n    heuristic: -1\n",
			wantErr: "must not be negative",
		},
		{
			name:    "unknown engine",
			content: "scoring:\n  enabled: [heuristic, psychic]\n",
			wantErr: "unknown scoring engine",
		},
		{
			name:    "unknown transient class",
			content: "providers:\n  - name: p\n    base_url: \"http://x\"\n    transient: [flaky]\n",
			wantErr: "unknown transient error class",
		},
		{
			name:    "duplicate provider",
			content: "providers:\n  - name: p\n    base_url: \"http://x\"\n  - name: p\n    base_url: \"http://y\"\n",
			wantErr: "duplicate provider name",
		},
		{
			name:    "provider without base url",
			content: "providers:\n  - name: p\n",
			wantErr: "base_url is required",
		},
		{
			name:    "unknown auth mode",
			content: "auth:\n  mode: mtls\n",
			wantErr: "unknown auth mode",
		},
		{
			name:    "malformed yaml",
			content: "listen: [unclosed\n",
			wantErr: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateHome(t)
			path := writeConfigFile(t, tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDuration_ParsesGoNotation(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: `d: "2s"`, want: 2 * time.Second},
		{in: `d: "1m30s"`, want: 90 * time.Second},
		{in: `d: "500ms"`, want: 500 * time.Millisecond},
		{in: `d: "banana"`, wantErr: true},
		{in: `d: 30`, wantErr: true}, // bare numbers have no unit
	}

	for _, tt := range tests {
		var out struct {
			D Duration `yaml:"d"`
		}
		err := yaml.Unmarshal([]byte(tt.in), &out)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error, got nil", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.in, err)
			continue
		}
		if out.D.Std() != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.in, tt.want, out.D.Std())
		}
	}
}

func TestProviderConfig_TransientClasses(t *testing.T) {
	p := ProviderConfig{Name: "p", Transient: []string{"timeout", "rate_limited"}}
	classes, err := p.TransientClasses()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !classes[router.ClassTimeout] || !classes[router.ClassRateLimited] {
		t.Errorf("expected timeout and rate_limited in set, got %v", classes)
	}
	if classes[router.ClassServerError] {
		t.Error("expected server_error to be absent from an explicit set")
	}

	empty := ProviderConfig{Name: "p"}
	classes, err = empty.TransientClasses()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if classes != nil {
		t.Errorf("expected nil set for unset transient list, got %v", classes)
	}
}

func TestScoringConfig_EngineEnabled(t *testing.T) {
	all := ScoringConfig{}
	for _, name := range []string{"heuristic", "unicode", "shell", "sql", "secrets"} {
		if !all.EngineEnabled(name) {
			t.Errorf("expected %s enabled when list is empty", name)
		}
	}

	some := ScoringConfig{Enabled: []string{"heuristic"}}
	if !some.EngineEnabled("heuristic") {
		t.Error("expected heuristic enabled")
	}
	if some.EngineEnabled("shell") {
		t.Error("expected shell disabled when not listed")
	}
}

func TestConfig_FingerprintStable(t *testing.T) {
	a := Default()
	b := Default()
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("expected identical configs to share a fingerprint")
	}
	if len(a.Fingerprint()) != 12 {
		t.Errorf("expected 12-char fingerprint, got %d", len(a.Fingerprint()))
	}

	b.Listen = ":9999"
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("expected fingerprint to change with the config")
	}

	// Secrets carry no yaml tag and must not influence the digest.
	c := Default()
	c.Auth.Secret = "super-secret"
	if a.Fingerprint() != c.Fingerprint() {
		t.Error("expected secret to be excluded from the fingerprint")
	}
}

func TestWriteDefaults_CreatesParsableFiles(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()

	written, err := WriteDefaults(dir, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("expected 2 files written, got %d", len(written))
	}

	cfg, err := Load(filepath.Join(dir, DefaultConfigFile))
	if err != nil {
		t.Fatalf("starter config does not load: %v", err)
	}
	if cfg.Listen != DefaultListen {
		t.Errorf("expected starter config to match defaults, got listen %s", cfg.Listen)
	}

	pol, err := policy.Load(filepath.Join(dir, DefaultPolicyFile))
	if err != nil {
		t.Fatalf("starter policy does not load: %v", err)
	}
	if len(pol.Identities) != 1 || pol.Identities[0].ID != "dev-agent" {
		t.Errorf("expected starter policy with dev-agent, got %+v", pol.Identities)
	}

	// A second run must not clobber existing files.
	written, err = WriteDefaults(dir, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(written) != 0 {
		t.Errorf("expected no files rewritten without force, got %v", written)
	}

	written, err = WriteDefaults(dir, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(written) != 2 {
		t.Errorf("expected force to rewrite both files, got %v", written)
	}
}
