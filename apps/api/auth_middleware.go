package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/palmyra-projects/platform/go/auth"
	"github.com/zenGate-Global/palmyra-projects/platform/go/gcp"
)

const verifiedTokenTTL = time.Minute

// buildVerifier selects the bearer token verifier for AUTH_PROVIDER and caches
// successful verifications.
func buildVerifier(ctx context.Context, cfg config, logger *zap.Logger) (platformauth.VerifyFunc, error) {
	var verify platformauth.VerifyFunc
	switch cfg.AuthProvider {
	case "firebase":
		fbAuth, err := gcp.NewFirebaseAuth(ctx, gcp.FirebaseConfig{
			CredentialsFile: cfg.FirebaseCredentialsFile,
			ProjectID:       cfg.FirebaseProjectID,
		})
		if err != nil {
			return nil, err
		}
		verify = platformauth.FirebaseTokenVerifier(fbAuth)
	case "hmac":
		if cfg.AuthHMACSecret == "" {
			return nil, fmt.Errorf("AUTH_HMAC_SECRET is required when AUTH_PROVIDER=hmac")
		}
		verify = platformauth.HMACTokenVerifier([]byte(cfg.AuthHMACSecret))
	case "dev":
		logger.Warn("using dev auth verifier; do not use in production")
		verify = platformauth.UnsignedTokenVerifier()
	default:
		return nil, fmt.Errorf("unsupported auth provider %q (use firebase, hmac or dev)", cfg.AuthProvider)
	}

	return platformauth.CachedVerifier(verify, cfg.TokenCacheItems, verifiedTokenTTL), nil
}
