package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-projects/apps/cli/cmd/platform"
	"github.com/zenGate-Global/palmyra-projects/platform/go/persistence"
)

// Command groups schema migration helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect database migrations",
	}

	cmd.AddCommand(upCommand(), downCommand(), statusCommand())
	return cmd
}

func upCommand() *cobra.Command {
	var databaseURL string

	c := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := platform.RequireDatabaseURL(databaseURL)
			if err != nil {
				return err
			}
			if err := persistence.Migrate(cmd.Context(), dsn); err != nil {
				return err
			}
			return printVersion(cmd, dsn)
		},
	}
	platform.DatabaseURLFlag(c, &databaseURL)
	return c
}

func downCommand() *cobra.Command {
	var (
		databaseURL string
		steps       int
	)

	c := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			dsn, err := platform.RequireDatabaseURL(databaseURL)
			if err != nil {
				return err
			}
			if err := persistence.Rollback(cmd.Context(), dsn, steps); err != nil {
				return err
			}
			return printVersion(cmd, dsn)
		},
	}
	platform.DatabaseURLFlag(c, &databaseURL)
	c.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return c
}

func statusCommand() *cobra.Command {
	var databaseURL string

	c := &cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := platform.RequireDatabaseURL(databaseURL)
			if err != nil {
				return err
			}
			return printVersion(cmd, dsn)
		},
	}
	platform.DatabaseURLFlag(c, &databaseURL)
	return c
}

func printVersion(cmd *cobra.Command, dsn string) error {
	version, err := persistence.MigrationVersion(cmd.Context(), dsn)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", version)
	return nil
}
