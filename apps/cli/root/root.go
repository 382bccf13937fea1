package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the projects admin CLI. Subcommands (migrate, seed, roles, etc.) are attached here.
var rootCmd = &cobra.Command{
	Use:           "palmyra-projects",
	Short:         "Palmyra projects admin CLI",
	Long:          "Administrative utilities for Palmyra projects (migrations, role seeding, super admins, dev tokens).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
