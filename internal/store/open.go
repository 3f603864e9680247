// Package store opens the configured ledger backend.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"shadowrealms/internal/config"
	"shadowrealms/internal/db"
	"shadowrealms/internal/ledger"
	"shadowrealms/internal/store/postgres"
	"shadowrealms/internal/store/sqlite"
)

// Open connects to the store named by cfg. SQLite is always migrated on open;
// Postgres only when migrate is set.
func Open(ctx context.Context, cfg config.StoreConfig, migrate bool, logger *slog.Logger) (ledger.Store, error) {
	switch cfg.Kind {
	case config.StoreSQLite:
		st, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		logger.Info("store opened", "kind", cfg.Kind, "path", cfg.SQLitePath)
		return st, nil
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if migrate {
			applied, err := db.MigratePostgres(ctx, pool)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migrations applied", "count", len(applied), "files", applied)
		}
		logger.Info("store opened", "kind", cfg.Kind)
		return postgres.New(pool), nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Kind)
}
