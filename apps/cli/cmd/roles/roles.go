package roles

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-projects/apps/cli/cmd/platform"
	"github.com/zenGate-Global/palmyra-projects/platform/go/rbac"
)

// Command groups project role helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Project role utilities",
	}

	cmd.AddCommand(syncCommand(), catalogCommand())
	return cmd
}

func syncCommand() *cobra.Command {
	var (
		databaseURL string
		projectID   string
	)

	c := &cobra.Command{
		Use:   "sync",
		Short: "Recreate the catalog roles of a project and reset their permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(strings.TrimSpace(projectID))
			if err != nil {
				return fmt.Errorf("invalid --project: %w", err)
			}

			deps, err := platform.Open(cmd.Context(), databaseURL)
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := deps.Registry.CreateRolesForProject(cmd.Context(), id); err != nil {
				return fmt.Errorf("sync roles: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synchronized roles %s for project %s\n",
				strings.Join(rbac.AssignableRoleNames(), ", "), id)
			return nil
		},
	}
	platform.DatabaseURLFlag(c, &databaseURL)
	c.Flags().StringVar(&projectID, "project", "", "project id")
	_ = c.MarkFlagRequired("project")
	return c
}

func catalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the role catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, def := range rbac.Catalog() {
				fmt.Fprintf(out, "%s: %s\n", def.Name, strings.Join(def.Permissions, ", "))
			}
			return nil
		},
	}
}
