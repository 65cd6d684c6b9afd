package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensec-dev/bastion/internal/auth"
	"github.com/opensec-dev/bastion/internal/config"
	"github.com/opensec-dev/bastion/internal/policy"
)

var (
	tokenAgent string
	tokenRole  string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for an agent identity",
	Long: `Mint a signed bearer token that an agent presents to the gateway.
Requires auth mode "bearer" and the BASTION_AUTH_SECRET environment
variable. The token's subject overrides any agent_id in request bodies.

Example:
  bastion token --agent dev-agent
  bastion token --agent ci-agent --role ci --ttl 1h`,
	RunE: tokenCommand,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenAgent, "agent", "", "Agent identity the token authenticates (required)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "", "Role claim to embed (default: the identity's policy role)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default: auth.token_ttl from config)")
	_ = tokenCmd.MarkFlagRequired("agent")
	rootCmd.AddCommand(tokenCmd)
}

func tokenCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Auth.Mode != "bearer" {
		return fmt.Errorf("auth mode is %q; set auth.mode to \"bearer\" and export %s before minting tokens", cfg.Auth.Mode, config.EnvAuthSecret)
	}

	manager, err := auth.NewTokenManager(cfg.Auth.Secret)
	if err != nil {
		return fmt.Errorf("failed to initialize token manager: %w", err)
	}

	role := tokenRole
	if role == "" {
		pol, err := policy.Load(cfg.PolicyPath)
		if err != nil {
			return fmt.Errorf("failed to load policy: %w", err)
		}
		role = policy.NewEngine(pol).Lookup(tokenAgent).Role
	}

	ttl := tokenTTL
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL.Std()
	}

	token, err := manager.Generate(tokenAgent, role, ttl)
	if err != nil {
		return fmt.Errorf("failed to mint token: %w", err)
	}

	fmt.Println(token)
	return nil
}
