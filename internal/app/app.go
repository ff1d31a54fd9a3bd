// Package app assembles the store and services described by a Config.
package app

import (
	"context"
	"fmt"
	"io"

	"stockhelper.org/internal/auth"
	"stockhelper.org/internal/config"
	"stockhelper.org/internal/migrate"
	"stockhelper.org/internal/obs"
	"stockhelper.org/internal/store/memory"
	"stockhelper.org/internal/store/sqlstore"
	"stockhelper.org/migrations"
)

// App holds the wired services. Close releases the database, if any.
type App struct {
	Store       auth.Store
	SQL         *sqlstore.Store // nil for the memory driver
	Permissions *auth.PermissionService
	Users       *auth.UserService
	Login       *auth.LoginService
}

// Ping reports store health. The memory store is always healthy.
func (a *App) Ping(ctx context.Context) error {
	if a.SQL == nil {
		return nil
	}
	return a.SQL.Ping(ctx)
}

func (a *App) Close() error {
	if a.SQL == nil {
		return nil
	}
	return a.SQL.Close()
}

var _ io.Closer = (*App)(nil)

// OpenStore opens the configured backend without building services.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (auth.Store, *sqlstore.Store, error) {
	if cfg.Driver == config.DriverMemory {
		return memory.New(), nil, nil
	}
	s, err := sqlstore.Open(ctx, cfg.Driver, cfg.DSN, sqlstore.PoolConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	return s, s, nil
}

// NewMigrator runs the embedded schema migrations against db.
func NewMigrator(db *sqlstore.Store) *migrate.Manager {
	return migrate.NewManager(db.DB(), migrations.FS, migrations.Dir)
}

// New opens the store, applies migrations when asked to, builds the services
// and seeds the built-in catalog when SeedCatalog is set.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, sqlStore, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if sqlStore != nil && cfg.Database.Migrate {
		applied, err := NewMigrator(sqlStore).Up(ctx)
		if err != nil {
			_ = sqlStore.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		obs.Logger().Info().Int("applied", len(applied)).Msg("schema up to date")
	}

	a, err := Build(store, sqlStore, cfg.Auth)
	if err != nil {
		if sqlStore != nil {
			_ = sqlStore.Close()
		}
		return nil, err
	}

	if cfg.Auth.SeedCatalog {
		written, err := a.Permissions.EnsureCatalog(ctx)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
		obs.Logger().Info().Int("written", written).Msg("built-in catalog ensured")
	}
	return a, nil
}

// Build wires the services over an already open store.
func Build(store auth.Store, sqlStore *sqlstore.Store, cfg config.AuthConfig) (*App, error) {
	a := &App{Store: store, SQL: sqlStore}
	opts := []auth.Option{
		auth.WithCacheTTL(cfg.CacheTTL),
		auth.WithIDAttempts(cfg.IDAttempts),
		auth.WithPasswordMode(cfg.PasswordMode),
		auth.WithLogger(obs.Logger().With().Str("component", "auth").Logger()),
	}
	var err error
	if a.Permissions, err = auth.NewPermissionService(store, opts...); err != nil {
		return nil, err
	}
	if a.Users, err = auth.NewUserService(store, a.Permissions, opts...); err != nil {
		return nil, err
	}
	if a.Login, err = auth.NewLoginService(a.Users, opts...); err != nil {
		return nil, err
	}
	return a, nil
}
