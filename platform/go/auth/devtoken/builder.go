package devtoken

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Params captures the claims of a development token. No environment
// variables are read so the builder stays deterministic for tooling.
type Params struct {
	Subject       string        // sub claim (required)
	Email         string        // email claim (required)
	Name          string        // display name (optional but recommended)
	EmailVerified bool          // email_verified claim
	ExpiresIn     time.Duration // relative expiry; default 1h if zero
	Issuer        string        // optional; defaults to "palmyra-dev"
	Audience      string        // optional aud claim
	Secret        string        // HS256 secret; empty mints an unsigned token
}

const defaultIssuer = "palmyra-dev"

// Build returns a JWT for p. With an empty Secret the token uses alg "none"
// and is accepted only by the dev verifier; otherwise it is HS256-signed and
// accepted by the hmac verifier.
func Build(p Params, now time.Time) (string, error) {
	if strings.TrimSpace(p.Subject) == "" {
		return "", errors.New("subject is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return "", errors.New("email is required")
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}

	expiresIn := p.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	issuer := p.Issuer
	if strings.TrimSpace(issuer) == "" {
		issuer = defaultIssuer
	}

	claims := jwt.MapClaims{
		"iss":            issuer,
		"sub":            p.Subject,
		"iat":            now.Unix(),
		"exp":            now.Add(expiresIn).Unix(),
		"email":          strings.ToLower(strings.TrimSpace(p.Email)),
		"email_verified": p.EmailVerified,
		"name":           p.Name,
	}
	if p.Audience != "" {
		claims["aud"] = p.Audience
	}

	if p.Secret == "" {
		return jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.Secret))
}
