package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/receiptflow/internal/adapters/driven/auth"
	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/services"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ttl == 0 {
				ttl = cfg.Auth.TokenTTL
			}
			svc := services.NewAuthService(auth.NewAdapter(cfg.Auth.JWTSecret), nil)
			issued, err := svc.IssueToken(cmd.Context(), subject, domain.Role(role), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), issued.Token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", issued.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "operator name recorded in the token")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleViewer), "admin or viewer")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.token_ttl)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <key>",
		Short: "Print the bcrypt hash of an ingress key for ingress.api_key_hashes",
		Args:  cobra.ExactArgs(1),
		// hashing needs no configuration
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.NewAdapter("").HashAPIKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
