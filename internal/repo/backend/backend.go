// Package backend opens the repository selected by configuration.
package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/repo/memory"
	"github.com/hamed0406/sitewatch/internal/repo/postgres"
	"github.com/hamed0406/sitewatch/internal/repo/sqlite"
)

func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (repo.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		log.Info("store_memory")
		return memory.New(), nil
	case config.StoreSQLite:
		st, err := sqlite.New(ctx, cfg.DBPath)
		if err != nil {
			return nil, err
		}
		log.Info("store_sqlite", zap.String("path", cfg.DBPath))
		return st, nil
	case config.StorePostgres:
		st, err := postgres.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		log.Info("store_postgres")
		return st, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}
