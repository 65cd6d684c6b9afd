package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensec-dev/bastion/internal/audit"
	"github.com/opensec-dev/bastion/internal/config"
)

var (
	logDecision string
	logAgent    string
	logLast     int
	logAll      bool
	logSummary  bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the audit trail",
	Long: `View the Bastion audit trail with filtering and summary options.
By default only final verdicts are shown; --all includes every pipeline
stage event.

Examples:
  bastion log                        # Show all verdicts
  bastion log --last 20              # Show last 20 verdicts
  bastion log --decision BLOCK       # Show only blocked requests
  bastion log --agent dev-agent      # Show one agent's requests
  bastion log --summary              # Show trail summary stats`,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logDecision, "decision", "", "Filter by decision (ALLOW, BLOCK)")
	logCmd.Flags().StringVar(&logAgent, "agent", "", "Filter by agent identity")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N entries")
	logCmd.Flags().BoolVar(&logAll, "all", false, "Include every pipeline stage event, not just verdicts")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Audit.Path == "" {
		fmt.Println("The JSONL audit trail is disabled (audit.path is empty).")
		return nil
	}

	if logSummary {
		events, err := readTrail(cfg.Audit.Path, audit.Filter{})
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No audit events recorded yet.")
			return nil
		}
		printTrailSummary(audit.Summarize(events))
		return nil
	}

	filter := audit.Filter{
		Agent:    logAgent,
		Decision: strings.ToUpper(logDecision),
		Limit:    logLast,
	}
	if !logAll {
		filter.Type = audit.TypeDecisionRendered
	}

	events, err := readTrail(cfg.Audit.Path, filter)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No matching audit events found.")
		return nil
	}
	printTrailEvents(events)
	return nil
}

func readTrail(path string, f audit.Filter) ([]audit.Event, error) {
	events, err := audit.ReadFile(path, f)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read audit trail: %w", err)
	}
	return events, nil
}

func printTrailEvents(events []audit.Event) {
	for _, e := range events {
		fmt.Printf("%s %s  %-12s %s\n", eventIcon(e), formatTimestamp(e.Timestamp), e.Agent, headline(e))
		if e.Score != nil {
			fmt.Printf("     Score: %.2f\n", *e.Score)
		}
		if e.Error != "" {
			fmt.Printf("     Error: %s\n", e.Error)
		}
		if e.RequestID != "" {
			fmt.Printf("     Request: %s\n", e.RequestID)
		}
		fmt.Println()
	}
}

func printTrailSummary(s audit.Summary) {
	fmt.Println("═══════════════════════════════════════════")
	fmt.Println("  Bastion Audit Summary")
	fmt.Println("═══════════════════════════════════════════")
	fmt.Printf("  Total events:  %d\n", s.Total)
	fmt.Printf("  ALLOW:         %d\n", s.Allowed)
	fmt.Printf("  BLOCK:         %d\n", s.Blocked)

	if len(s.ByReason) > 0 {
		fmt.Println()
		fmt.Println("  By reason:")
		for _, reason := range sortedKeys(s.ByReason) {
			fmt.Printf("    %-26s %d\n", reason, s.ByReason[reason])
		}
	}
	if len(s.ByAgent) > 0 {
		fmt.Println()
		fmt.Println("  By agent:")
		for _, agent := range sortedKeys(s.ByAgent) {
			fmt.Printf("    %-26s %d\n", agent, s.ByAgent[agent])
		}
	}
	fmt.Println("═══════════════════════════════════════════")
	fmt.Println()
}

func headline(e audit.Event) string {
	if e.Type == audit.TypeDecisionRendered {
		return fmt.Sprintf("%-14s %s (%s)", e.Capability, e.Decision, e.ReasonCode)
	}
	return string(e.Type)
}

func eventIcon(e audit.Event) string {
	switch e.Decision {
	case "BLOCK":
		return "🛑"
	case "ALLOW":
		return "✅"
	default:
		return "•"
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
