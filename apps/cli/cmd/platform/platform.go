// Package platform opens the shared dependencies used by CLI commands.
package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	usersrepo "github.com/zenGate-Global/palmyra-projects/domains/users/be/repo"
	usersservice "github.com/zenGate-Global/palmyra-projects/domains/users/be/service"
	platformlogging "github.com/zenGate-Global/palmyra-projects/platform/go/logging"
	"github.com/zenGate-Global/palmyra-projects/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-projects/platform/go/rbac"
)

// DatabaseURLEnv is the fallback for the --database-url flag.
const DatabaseURLEnv = "DATABASE_URL"

// ErrDatabaseURLRequired is returned when neither the flag nor the env var is set.
var ErrDatabaseURLRequired = errors.New("database url is required (--database-url or " + DatabaseURLEnv + ")")

// DatabaseURLFlag registers --database-url on cmd.
func DatabaseURLFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVar(dst, "database-url", os.Getenv(DatabaseURLEnv), "Postgres connection string")
}

// RequireDatabaseURL trims dsn and rejects an empty value.
func RequireDatabaseURL(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", ErrDatabaseURLRequired
	}
	return dsn, nil
}

// Deps are the collaborators commands share.
type Deps struct {
	Logger   *zap.Logger
	Pool     *pgxpool.Pool
	Registry *rbac.Registry
	Engine   *rbac.Engine
	Users    usersservice.Service

	cache *rbac.RoleCache
}

// Open connects to dsn and builds Deps. Close must be called.
func Open(ctx context.Context, dsn string) (*Deps, error) {
	dsn, err := RequireDatabaseURL(dsn)
	if err != nil {
		return nil, err
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{Component: "cli", Level: "warn"})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:      dsn,
		MaxConns:        2,
		ApplicationName: "palmyra-projects-cli",
	})
	if err != nil {
		return nil, fmt.Errorf("init pool: %w", err)
	}

	roleStore, err := persistence.NewRoleStore(pool)
	if err != nil {
		persistence.ClosePool(pool)
		return nil, err
	}
	projectStore, err := persistence.NewProjectStore(pool)
	if err != nil {
		persistence.ClosePool(pool)
		return nil, err
	}
	userStore, err := persistence.NewUserStore(pool)
	if err != nil {
		persistence.ClosePool(pool)
		return nil, err
	}

	cache, err := rbac.NewRoleCache(1000)
	if err != nil {
		persistence.ClosePool(pool)
		return nil, err
	}

	registry := rbac.NewRegistry(roleStore, persistence.NewTxRunner(pool), cache, logger)
	engine := rbac.NewEngine(roleStore, registry, projectStore, nil)

	return &Deps{
		Logger:   logger,
		Pool:     pool,
		Registry: registry,
		Engine:   engine,
		Users:    usersservice.New(usersrepo.NewPostgresRepository(userStore), engine),
		cache:    cache,
	}, nil
}

// Close releases the pool and cache.
func (d *Deps) Close() {
	d.cache.Close()
	persistence.ClosePool(d.Pool)
	_ = d.Logger.Sync()
}
