package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/squad-service/internal/observability"
	"github.com/spec-kit/squad-service/internal/persistence"
)

func newMigrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations to POSTGRES_DSN",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Postgres.DSN == "" {
				return fmt.Errorf("POSTGRES_DSN is required")
			}
			logger, err := observability.NewLogger(cfg.Logger)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			pgCfg := cfg.Postgres
			pgCfg.RunMigrations = false
			pg, err := persistence.NewPostgres(cmd.Context(), pgCfg, logger)
			if err != nil {
				return err
			}
			defer pg.Close()

			if dir == "" {
				dir = cfg.Postgres.MigrationsDir
			}
			if err := persistence.RunMigrations(cmd.Context(), pg.Pool, dir, logger); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Read migrations from this directory instead of the embedded set")
	return cmd
}
