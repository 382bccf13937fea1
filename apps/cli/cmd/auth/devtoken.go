package auth

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-projects/platform/go/auth/devtoken"
)

// SecretEnv is the fallback for --secret; it matches the api server's hmac secret.
const SecretEnv = "AUTH_HMAC_SECRET"

// DevTokenCommand mints tokens for AUTH_PROVIDER=dev (unsigned) or hmac (--secret).
func DevTokenCommand() *cobra.Command {
	var params devtoken.Params

	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Generate a JWT for dev/local use",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := devtoken.Build(params, time.Now().UTC())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	// Required claims
	cmd.Flags().StringVar(&params.Subject, "subject", "", "sub claim")
	cmd.Flags().StringVar(&params.Email, "email", "", "email claim")

	// Optional claims
	cmd.Flags().StringVar(&params.Name, "name", "", "display name")
	cmd.Flags().BoolVar(&params.EmailVerified, "email-verified", true, "email_verified claim")
	cmd.Flags().DurationVar(&params.ExpiresIn, "expires-in", time.Hour, "token lifetime (e.g. 30m, 2h)")
	cmd.Flags().StringVar(&params.Audience, "audience", "", "aud claim")
	cmd.Flags().StringVar(&params.Issuer, "issuer", "", "override iss")
	cmd.Flags().StringVar(&params.Secret, "secret", os.Getenv(SecretEnv), "HS256 secret; empty mints an unsigned token")

	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
