package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/zenGate-Global/palmyra-projects/platform/go/auth/devtoken"
)

func main() {
	subject := flag.String("subject", "", "sub claim")
	email := flag.String("email", "", "email claim")
	name := flag.String("name", "", "display name")
	emailVerified := flag.Bool("email-verified", true, "email_verified claim")
	expiresIn := flag.Duration("expires-in", time.Hour, "token lifetime (duration, e.g. 30m, 2h)")
	audience := flag.String("audience", "", "aud claim")
	issuer := flag.String("issuer", "", "override iss (defaults to palmyra-dev)")
	secret := flag.String("secret", os.Getenv("AUTH_HMAC_SECRET"), "HS256 secret; empty mints an unsigned token")

	flag.Parse()

	params := devtoken.Params{
		Subject:       strings.TrimSpace(*subject),
		Email:         strings.TrimSpace(*email),
		Name:          strings.TrimSpace(*name),
		EmailVerified: *emailVerified,
		ExpiresIn:     *expiresIn,
		Audience:      strings.TrimSpace(*audience),
		Issuer:        strings.TrimSpace(*issuer),
		Secret:        *secret,
	}

	token, err := devtoken.Build(params, time.Now().UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
