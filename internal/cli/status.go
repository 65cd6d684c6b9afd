package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opensec-dev/bastion/internal/config"
	"github.com/opensec-dev/bastion/internal/policy"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show Bastion status — config, scoring, providers, policy, audit",
	Long: `Show the gateway's resolved configuration: which scoring engines are
active, the provider failover chain, the policy in force, and where the
audit trail goes. Everything is checked locally; nothing is dialed.

  bastion status`,
	RunE: statusCommand,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println("  Bastion Status")
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println()

	binPath, err := os.Executable()
	if err != nil {
		binPath = "unknown"
	}
	fmt.Printf("  Binary:    %s (%s)\n", binPath, Version)
	if cfg.Path != "" {
		fmt.Printf("  Config:    %s (fingerprint %s)\n", cfg.Path, cfg.Fingerprint())
	} else {
		fmt.Printf("  Config:    built-in defaults (fingerprint %s)\n", cfg.Fingerprint())
	}
	fmt.Printf("  Listen:    %s\n", cfg.Listen)
	fmt.Println()

	fmt.Println("─── Scoring ───────────────────────────────────────────")
	fmt.Printf("  Method:    %s\n", scoringMethodLabel(cfg))
	fmt.Printf("  Engines:   %s\n", strings.Join(activeEngines(cfg), ", "))
	fmt.Printf("  Timeout:   %s per engine\n", cfg.Scoring.Timeout.Std())
	fmt.Println()

	fmt.Println("─── Providers ─────────────────────────────────────────")
	printProviders(cfg)
	fmt.Println()

	fmt.Println("─── Policy ────────────────────────────────────────────")
	printPolicy(cfg)
	fmt.Println()

	fmt.Println("─── Audit Trail ───────────────────────────────────────")
	checkAuditTrail(cfg.Audit.Path)
	if cfg.Audit.SQLitePath != "" {
		fmt.Printf("  ✅ SQLite mirror: %s\n", cfg.Audit.SQLitePath)
	}
	fmt.Println()

	fmt.Println("─── Access ────────────────────────────────────────────")
	printAccess(cfg)
	fmt.Println()

	return nil
}

func scoringMethodLabel(cfg *config.Config) string {
	if cfg.Scoring.Method == "" {
		return "max"
	}
	return cfg.Scoring.Method
}

func activeEngines(cfg *config.Config) []string {
	var engines []string
	for _, name := range []string{"heuristic", "unicode", "shell", "sql", "secrets"} {
		if cfg.Scoring.EngineEnabled(name) {
			engines = append(engines, name)
		}
	}
	if cfg.Scoring.Judge.Enabled {
		engines = append(engines, "model (judge)")
	}
	for _, rc := range cfg.Scoring.Remote {
		engines = append(engines, rc.Name+" (remote)")
	}
	if len(engines) == 0 {
		engines = []string{"none — the gateway fails closed on every request"}
	}
	return engines
}

func printProviders(cfg *config.Config) {
	if len(cfg.Providers) == 0 {
		fmt.Println("  ⬚  No completion providers configured")
		return
	}

	providers := make([]config.ProviderConfig, len(cfg.Providers))
	copy(providers, cfg.Providers)
	sort.SliceStable(providers, func(i, j int) bool {
		return providers[i].Priority < providers[j].Priority
	})

	for _, pc := range providers {
		if pc.APIKey() != "" {
			fmt.Printf("  ✅ %s  %s (priority %d)\n", pc.Name, pc.BaseURL, pc.Priority)
		} else {
			fmt.Printf("  ⚠  %s  %s (priority %d, %s not set)\n", pc.Name, pc.BaseURL, pc.Priority, pc.APIKeyEnv)
		}
	}
}

func printPolicy(cfg *config.Config) {
	if _, err := os.Stat(cfg.PolicyPath); err == nil {
		fmt.Printf("  ✅ %s\n", cfg.PolicyPath)
	} else {
		fmt.Println("  ⬚  Using built-in defaults (no policy.yaml)")
	}

	pol, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		fmt.Printf("  ⚠  Policy failed to load: %v\n", err)
		return
	}
	fmt.Printf("  Identities: %d configured\n", len(pol.Identities))
	fmt.Printf("  Default tolerance: %g\n", *pol.Defaults.MaxRiskTolerance)
}

func checkAuditTrail(path string) {
	if path == "" {
		fmt.Println("  ⬚  JSONL trail disabled")
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("  ⬚  %s (not yet created — will start on first event)\n", path)
		return
	}

	sizeKB := info.Size() / 1024
	if sizeKB == 0 {
		fmt.Printf("  ✅ %s (<1 KB)\n", path)
	} else {
		fmt.Printf("  ✅ %s (%d KB)\n", path, sizeKB)
	}
}

func printAccess(cfg *config.Config) {
	switch cfg.Auth.Mode {
	case "bearer":
		fmt.Printf("  ✅ Auth: bearer tokens (ttl %s)\n", cfg.Auth.TokenTTL.Std())
	default:
		fmt.Println("  ⬚  Auth: none — agent_id is taken from the request body")
	}

	switch {
	case cfg.RateLimit.RPS <= 0:
		fmt.Println("  ⬚  Rate limit: disabled")
	case cfg.RateLimit.RedisAddr != "":
		fmt.Printf("  ✅ Rate limit: %g req/s, burst %d (redis %s)\n", cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.RedisAddr)
	default:
		fmt.Printf("  ✅ Rate limit: %g req/s, burst %d (in-memory)\n", cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	if cfg.Sandbox.URL != "" {
		fmt.Printf("  ✅ Sandbox: %s\n", cfg.Sandbox.URL)
	} else {
		fmt.Println("  ⬚  Sandbox: not configured — allowed executions are simulated")
	}
}
