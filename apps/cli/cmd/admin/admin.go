package admin

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-projects/apps/cli/cmd/platform"
	usersservice "github.com/zenGate-Global/palmyra-projects/domains/users/be/service"
)

// Command groups platform administration helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Platform administrator utilities",
	}

	cmd.AddCommand(grantCommand())
	return cmd
}

func grantCommand() *cobra.Command {
	var (
		databaseURL string
		email       string
	)

	c := &cobra.Command{
		Use:   "grant",
		Short: "Grant the Super Admin role to an existing user",
		Long:  "Grant the Super Admin role to an existing user. The user must have signed in once and the global roles must be seeded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			email = strings.TrimSpace(email)
			if email == "" {
				return errors.New("--email is required")
			}

			deps, err := platform.Open(cmd.Context(), databaseURL)
			if err != nil {
				return err
			}
			defer deps.Close()

			account, err := deps.Users.GrantSuperAdmin(cmd.Context(), email)
			if err != nil {
				if errors.Is(err, usersservice.ErrNotFound) {
					return fmt.Errorf("no user with email %s; they must sign in first", email)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted Super Admin to %s (%s)\n", account.Email, account.ID)
			return nil
		},
	}
	platform.DatabaseURLFlag(c, &databaseURL)
	c.Flags().StringVar(&email, "email", "", "email of the user to promote")
	return c
}
