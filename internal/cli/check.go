package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/opensec-dev/bastion/internal/config"
	"github.com/opensec-dev/bastion/internal/decision"
	"github.com/opensec-dev/bastion/internal/gateway"
	"github.com/opensec-dev/bastion/internal/policy"
)

var (
	checkAgent      string
	checkCapability string
	checkJSON       bool
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] -- <prompt>",
	Short: "Evaluate one request locally and print the verdict",
	Long: `Run one request through the full scoring and policy pipeline without
serving HTTP, and print the verdict. Exits 0 on ALLOW and 1 on BLOCK, so
the command slots into shell conditionals.

Example:
  bastion check --agent dev-agent --capability execute_code -- "whoami"
  bastion check --agent intern-agent -- "summarize the incident report"`,
	RunE: checkCommand,
}

func init() {
	checkCmd.Flags().StringVar(&checkAgent, "agent", "", "Agent identity to evaluate as (required)")
	checkCmd.Flags().StringVar(&checkCapability, "capability", string(policy.CapabilityInvokeModel), "Requested capability")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the verdict as JSON")
	_ = checkCmd.MarkFlagRequired("agent")
	rootCmd.AddCommand(checkCmd)
}

func checkCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no prompt provided. Usage: bastion check --agent <id> -- <prompt>")
	}
	prompt := strings.Join(args, " ")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pipeline, err := gateway.Build(cfg)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	req := decision.NewRequest(checkAgent, prompt, policy.Capability(checkCapability), nil)
	verdict, evalErr := pipeline.Engine.Evaluate(cmd.Context(), req)

	// Flush the audit trail before printing or exiting.
	if err := pipeline.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to flush audit trail: %v\n", err)
	}
	if evalErr != nil {
		return fmt.Errorf("evaluation failed: %w", evalErr)
	}

	if checkJSON || !term.IsTerminal(int(os.Stdout.Fd())) {
		out := struct {
			RequestID string           `json:"request_id"`
			Verdict   decision.Verdict `json:"verdict"`
		}{RequestID: req.ID, Verdict: verdict}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		printVerdict(req, verdict)
	}

	if !verdict.Allowed() {
		os.Exit(1)
	}
	return nil
}

func printVerdict(req decision.Request, v decision.Verdict) {
	fmt.Println("═══════════════════════════════════════════════════════")
	if v.Allowed() {
		fmt.Printf("  ✅ ALLOW  (%s)\n", v.ReasonCode)
	} else {
		fmt.Printf("  ❌ BLOCK  (%s)\n", v.ReasonCode)
	}
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Printf("  Agent:      %s\n", req.Agent)
	fmt.Printf("  Capability: %s\n", req.Capability)
	fmt.Printf("  Composite:  %.2f (%s)\n", v.Composite.Value, v.Composite.Method)
	if v.PolicyTrigger != "" {
		fmt.Printf("  Trigger:    %s\n", v.PolicyTrigger)
	}
	if len(v.Composite.Engines) > 0 {
		fmt.Println("  Engines:")
		for _, e := range v.Composite.Engines {
			fmt.Printf("    %-10s %.2f  %-18s %dms\n", e.Engine, e.Score, e.Category, e.LatencyMS)
		}
	}
	fmt.Printf("  Hash:       %s\n", v.DecisionHash)
}
