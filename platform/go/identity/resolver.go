package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/palmyra-projects/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-projects/platform/go/logging"
	"github.com/zenGate-Global/palmyra-projects/platform/go/problem"
)

// Account is the local user record a principal is built from.
type Account struct {
	ID               uuid.UUID
	Email            string
	Name             string
	CurrentProjectID *uuid.UUID
	EmailVerified    bool
}

// Directory persists local accounts keyed by token subject.
type Directory interface {
	Ensure(ctx context.Context, creds platformauth.Credentials) (Account, error)
	Get(ctx context.Context, id uuid.UUID) (Account, error)
	// MarkEmailVerified reports true only for the call that first stamps the account.
	MarkEmailVerified(ctx context.Context, id uuid.UUID) (bool, error)
}

// SuperAdminChecker answers the global super admin question.
type SuperAdminChecker interface {
	IsSuperAdminUser(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Onboarder runs once, right after an account's email is first seen verified.
type Onboarder interface {
	OnEmailVerified(ctx context.Context, p Principal) error
}

// Transactor runs fn in one unit of work; directory and onboarder calls made
// with the ctx handed to fn join it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Resolver turns verified credentials into a Principal.
type Resolver struct {
	directory Directory
	admins    SuperAdminChecker
	onboarder Onboarder
	tx        Transactor
	logger    *zap.Logger
}

var errOnboarding = errors.New("onboarding failed")

// NewResolver builds a Resolver. onboarder may be nil; tx is required when it is not.
func NewResolver(directory Directory, admins SuperAdminChecker, onboarder Onboarder, tx Transactor, logger *zap.Logger) *Resolver {
	if directory == nil {
		panic("identity resolver requires directory")
	}
	if admins == nil {
		panic("identity resolver requires super admin checker")
	}
	if onboarder != nil && tx == nil {
		panic("identity resolver requires transactor when onboarding")
	}
	if logger == nil {
		panic("identity resolver requires logger")
	}
	return &Resolver{directory: directory, admins: admins, onboarder: onboarder, tx: tx, logger: logger}
}

// Resolve upserts the account for creds and loads its principal.
func (r *Resolver) Resolve(ctx context.Context, creds platformauth.Credentials) (Principal, error) {
	account, err := r.directory.Ensure(ctx, creds)
	if err != nil {
		return Principal{}, fmt.Errorf("ensure account: %w", err)
	}

	if creds.EmailVerified && !account.EmailVerified {
		account, err = r.verifyEmail(ctx, account)
		if err != nil {
			return Principal{}, err
		}
	}

	superAdmin, err := r.admins.IsSuperAdminUser(ctx, account.ID)
	if err != nil {
		return Principal{}, fmt.Errorf("check super admin: %w", err)
	}

	return toPrincipal(account, superAdmin), nil
}

// verifyEmail stamps the verification and, for the first stamp, onboards the
// account in the same transaction. A failed onboarding rolls the stamp back so
// the next request tries again; the account is then returned unverified.
func (r *Resolver) verifyEmail(ctx context.Context, account Account) (Account, error) {
	if r.onboarder == nil {
		if _, err := r.directory.MarkEmailVerified(ctx, account.ID); err != nil {
			return Account{}, fmt.Errorf("mark email verified: %w", err)
		}
		account.EmailVerified = true
		return account, nil
	}

	verified := account
	verified.EmailVerified = true
	onboarded := false

	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		first, err := r.directory.MarkEmailVerified(ctx, account.ID)
		if err != nil {
			return fmt.Errorf("mark email verified: %w", err)
		}
		if !first {
			return nil
		}
		if err := r.onboarder.OnEmailVerified(ctx, toPrincipal(verified, false)); err != nil {
			return fmt.Errorf("%w: %w", errOnboarding, err)
		}
		onboarded = true
		return nil
	})
	if errors.Is(err, errOnboarding) {
		r.logger.Error("onboarding after email verification failed, will retry on next request",
			zap.String("user_id", account.ID.String()), zap.Error(err))
		return account, nil
	}
	if err != nil {
		return Account{}, err
	}

	if !onboarded {
		return verified, nil
	}
	reloaded, err := r.directory.Get(ctx, account.ID)
	if err != nil {
		return Account{}, fmt.Errorf("reload account: %w", err)
	}
	return reloaded, nil
}

func toPrincipal(a Account, superAdmin bool) Principal {
	return Principal{
		ID:               a.ID,
		Email:            a.Email,
		Name:             a.Name,
		CurrentProjectID: a.CurrentProjectID,
		EmailVerified:    a.EmailVerified,
		SuperAdmin:       superAdmin,
	}
}

// Middleware resolves the principal for requests that carry credentials.
// Anonymous requests pass through untouched.
func Middleware(resolver *Resolver) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("identity middleware requires resolver")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := platformauth.CredentialsFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			logger := platformlogging.FromRequest(r, resolver.logger)

			principal, err := resolver.Resolve(r.Context(), *creds)
			if err != nil {
				logger.Error("resolve principal", zap.Error(err))
				problem.Write(w, r, http.StatusInternalServerError, "Internal server error", "could not resolve the current user", nil)
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			ctx = platformlogging.WithLogger(ctx, logger.With(zap.String("user_id", principal.ID.String())))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ErrUnauthenticated is returned by Require when no principal is present.
var ErrUnauthenticated = errors.New("authentication required")

// Require returns the principal on ctx or ErrUnauthenticated.
func Require(ctx context.Context) (Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	return p, nil
}
