package seed

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-projects/apps/cli/cmd/platform"
	"github.com/zenGate-Global/palmyra-projects/platform/go/rbac"
)

// Command seeds the global permissions and the Super Admin role. It is idempotent.
func Command() *cobra.Command {
	var databaseURL string

	c := &cobra.Command{
		Use:   "seed",
		Short: "Seed global permissions and the Super Admin role",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := platform.Open(cmd.Context(), databaseURL)
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := deps.Registry.SeedGlobal(cmd.Context()); err != nil {
				return fmt.Errorf("seed global roles: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d permissions and role %q\n",
				len(rbac.ProjectPermissions())+len(rbac.GlobalPermissions()), rbac.RoleSuperAdmin)
			return nil
		},
	}
	platform.DatabaseURLFlag(c, &databaseURL)
	return c
}
