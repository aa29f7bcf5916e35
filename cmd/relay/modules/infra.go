// Package modules assembles the relay process with fx.
package modules

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"

	dbembed "github.com/memohai/relay/db"
	"github.com/memohai/relay/internal/boot"
	"github.com/memohai/relay/internal/config"
	"github.com/memohai/relay/internal/db"
	"github.com/memohai/relay/internal/logger"
	"github.com/memohai/relay/internal/store"
)

// Store drivers accepted in [store].driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var InfraModule = fx.Module(
	"infra",
	fx.Provide(
		provideConfig,
		provideLogger,
		boot.ProvideRuntimeConfig,
		provideStore,
		provideSessionStore,
		provideRoutingStore,
	),
	fx.Invoke(seedWorkspaces),
)

// ---------------------------------------------------------------------------
// infrastructure providers
// ---------------------------------------------------------------------------

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

// provideStore opens the configured store. PostgreSQL is migrated to the
// latest schema first; SQLite creates its schema on open.
func provideStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch driver := strings.ToLower(strings.TrimSpace(rc.StoreDriver)); driver {
	case DriverSQLite:
		s, err = store.NewSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Info("using sqlite store", slog.String("path", cfg.Store.SQLitePath))
	case DriverPostgres, "":
		migrations, err := dbembed.Migrations()
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrate(log, cfg.Postgres, migrations, db.MigrateUp, nil); err != nil {
			return nil, err
		}
		pool, err := db.Open(context.Background(), cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		s = store.NewPostgres(pool)
		log.Info("using postgres store", slog.String("host", cfg.Postgres.Host), slog.String("database", cfg.Postgres.Database))
	default:
		return nil, fmt.Errorf("unknown store driver %q (use %s or %s)", driver, DriverPostgres, DriverSQLite)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return s.Close()
		},
	})
	return s, nil
}

func provideSessionStore(s store.Store) store.SessionStore { return s }

func provideRoutingStore(s store.Store) store.RoutingStore { return s }

func seedWorkspaces(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, routes store.RoutingStore) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return store.Seed(ctx, log, routes, cfg.Workspaces)
		},
	})
}
