package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/zenGate-Global/palmyra-projects/platform/go/problem"
)

type ctxKey string

const (
	ctxCredentials ctxKey = "PALMYRA_CREDENTIALS"
)

// Credentials are the identity claims carried by a verified bearer token.
type Credentials struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	PictureURL    *string
}

// CredentialsFromContext returns the credentials placed by JWT, if any.
func CredentialsFromContext(ctx context.Context) (*Credentials, bool) {
	v := ctx.Value(ctxCredentials)
	if v == nil {
		return nil, false
	}
	c, ok := v.(*Credentials)
	return c, ok && c != nil
}

// WithCredentials stores creds on ctx.
func WithCredentials(ctx context.Context, creds *Credentials) context.Context {
	return context.WithValue(ctx, ctxCredentials, creds)
}

// VerifyFunc validates the incoming JWT and returns its claims map.
type VerifyFunc func(ctx context.Context, token string) (map[string]interface{}, error)

// ExtractFunc converts a claims map into Credentials.
type ExtractFunc func(claims map[string]interface{}) (*Credentials, error)

// JWT verifies the bearer token when one is present and stores the resulting
// credentials on the request context. Requests without a token continue
// anonymously; a token that fails verification is rejected with 401.
func JWT(verify VerifyFunc, extract ExtractFunc) func(http.Handler) http.Handler {
	if verify == nil {
		panic("auth.JWT: verify func must not be nil")
	}
	if extract == nil {
		extract = DefaultCredentialExtractor
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, found := ExtractBearerToken(r)
			if token == "" || !found {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verify(r.Context(), token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
				problem.Write(w, r, http.StatusUnauthorized, "Unauthorized", "The bearer token is invalid or expired.", nil)
				return
			}

			creds, err := extract(claims)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="invalid claims"`)
				problem.Write(w, r, http.StatusUnauthorized, "Unauthorized", "The bearer token carries invalid claims.", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCredentials(r.Context(), creds)))
		})
	}
}

// DefaultCredentialExtractor converts standard claims into Credentials.
func DefaultCredentialExtractor(claims map[string]interface{}) (*Credentials, error) {
	if claims == nil {
		return nil, errors.New("missing claims")
	}

	subject := fallbackStringClaim(claims, []string{"sub", "uid", "user_id"})
	if subject == "" {
		return nil, errors.New("missing subject claim")
	}
	email := strings.ToLower(strings.TrimSpace(extractStringClaim(claims, "email")))
	if email == "" {
		return nil, errors.New("missing email claim")
	}

	return &Credentials{
		Subject:       subject,
		Email:         email,
		EmailVerified: extractBoolClaim(claims, "email_verified"),
		Name:          strings.TrimSpace(extractStringClaim(claims, "name")),
		PictureURL:    extractOptionalStringClaim(claims, "picture"),
	}, nil
}

func extractBoolClaim(claims map[string]interface{}, key string) bool {
	if v, ok := claims[key]; ok {
		if boolVal, valid := v.(bool); valid {
			return boolVal
		}
	}
	return false
}

func extractStringClaim(claims map[string]interface{}, key string) string {
	if v, ok := claims[key]; ok {
		if strVal, valid := v.(string); valid {
			return strVal
		}
	}
	return ""
}

func extractOptionalStringClaim(claims map[string]interface{}, key string) *string {
	if strVal := extractStringClaim(claims, key); strVal != "" {
		return &strVal
	}
	return nil
}

func fallbackStringClaim(claims map[string]interface{}, keys []string) string {
	for _, key := range keys {
		if v := extractStringClaim(claims, key); v != "" {
			return v
		}
	}
	return ""
}

// FirebaseTokenVerifier returns a VerifyFunc that validates tokens via Firebase Auth.
func FirebaseTokenVerifier(fbAuth *firebaseauth.Client) VerifyFunc {
	if fbAuth == nil {
		panic("auth.FirebaseTokenVerifier: client must not be nil")
	}
	return func(ctx context.Context, token string) (map[string]interface{}, error) {
		t, err := fbAuth.VerifyIDToken(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("verify firebase token: %w", err)
		}

		claims := make(map[string]interface{}, len(t.Claims)+1)
		for k, v := range t.Claims {
			claims[k] = v
		}
		claims["sub"] = t.UID
		return claims, nil
	}
}
