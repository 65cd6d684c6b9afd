package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "bastion",
	Short: "Bastion - runtime security gateway for AI agents",
	Long: `Bastion is a runtime security gateway that sits between AI agents and
the capabilities they invoke (tools, models, code, SQL, messaging). Every
request is scored by an engine ensemble, checked against identity policy,
and answered with a deterministic ALLOW or BLOCK verdict before anything
executes.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML file (default: ~/.bastion/config.yaml)")
}

func Execute() error {
	return rootCmd.Execute()
}
