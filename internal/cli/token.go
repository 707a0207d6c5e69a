package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/squad-service/internal/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with AUTH_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, ok := auth.ParseRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q (want ADMIN or SERVICE)", role)
			}
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.AccessTokenTTL()
			}
			token, expires, err := auth.NewTokenManager(cfg.Auth.JWTSecret, ttl).GenerateToken(subject, r)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, token)
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Token subject (caller name)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleService), "ADMIN or SERVICE")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default: AUTH_ACCESS_TOKEN_TTL_MINUTES)")
	return cmd
}
