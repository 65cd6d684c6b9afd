package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opensec-dev/bastion/internal/config"
)

var setupForce bool

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write starter config and policy files",
	Long: `Write commented starter config.yaml and policy.yaml under the Bastion
config directory (~/.bastion). Existing files are left alone unless
--force is given.

  bastion setup
  bastion setup --force`,
	RunE: setupCommand,
}

func init() {
	setupCmd.Flags().BoolVar(&setupForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(setupCmd)
}

func setupCommand(cmd *cobra.Command, args []string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to resolve home directory: %w", err)
	}
	dir := filepath.Join(home, config.DefaultConfigDir)

	written, err := config.WriteDefaults(dir, setupForce)
	if err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}

	if len(written) == 0 {
		fmt.Println("Nothing to do — config files already exist. Use --force to overwrite.")
		return nil
	}

	for _, path := range written {
		fmt.Printf("  ✅ wrote %s\n", path)
	}
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Review %s and %s\n", filepath.Join(dir, config.DefaultConfigFile), filepath.Join(dir, config.DefaultPolicyFile))
	fmt.Println("  2. Export provider credentials (e.g. OPENAI_API_KEY) if you enable the judge or the completion proxy")
	fmt.Println("  3. Run: bastion serve")
	return nil
}
