package main

import (
	"VaultLedger/internal/auth"
	"VaultLedger/internal/config"
	"VaultLedger/internal/ledger"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "vaultctl",
		Short:        "Operator tooling for VaultLedger",
		SilenceUsage: true,
	}
	cmd.AddCommand(newTokenCmd())
	return cmd
}

// newTokenCmd mints a bearer token for an identity using the service's
// JWT settings. Useful for admin and privileged-caller bootstrapping.
func newTokenCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "token <identity>",
		Short: "Issue a signed bearer token for an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			ttl, _ := c.Flags().GetDuration("ttl")
			if ttl == 0 {
				ttl = cfg.JWTTTL
			}

			issuer := auth.NewIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, ttl)
			token, err := issuer.Issue(ledger.Identity(args[0]))
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(c.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "optional dotenv file")
	cmd.Flags().Duration("ttl", 0, "token lifetime (default $VAULT_JWT_TTL)")
	return cmd
}
