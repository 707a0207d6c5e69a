// Package cli implements squadctl, the operator command line for the squad
// service.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/spec-kit/squad-service/internal/config"
)

// NewRootCmd builds the squadctl command tree.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "squadctl",
		Short:        "Inspect policies, resolve cohorts and administer the squad service",
		SilenceUsage: true,
	}

	cmd.AddCommand(newPolicyCmd())
	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newTokenCmd())

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version != "" {
		cmd.Version = version
	} else {
		cmd.Version = "dev"
	}
	return cmd
}

// loadConfig is swapped in tests.
var loadConfig = config.Load
