// Package store provides persistent second-tier backings for the response
// cache.
package store

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/health-intel/internal/cache"
	"github.com/sells-group/health-intel/internal/config"
)

// Backing is a cache backing that can be migrated, pruned and closed.
type Backing interface {
	cache.Backing
	Migrate(ctx context.Context) error
	DeleteExpired(ctx context.Context) (int, error)
	Close() error
}

// Open returns the backing selected by cfg, migrated and pruned, or nil
// when no backing is configured.
func Open(ctx context.Context, cfg config.CacheConfig) (Backing, error) {
	var b Backing
	switch cfg.Backing {
	case "":
		return nil, nil
	case config.BackingSQLite:
		s, err := NewSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b = s
	case config.BackingPostgres:
		p, err := NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{
			MaxConns: int32(cfg.MaxConns),
			MinConns: int32(cfg.MinConns),
		})
		if err != nil {
			return nil, err
		}
		b = p
	default:
		return nil, eris.Errorf("store: unknown backing %q", cfg.Backing)
	}

	if err := b.Migrate(ctx); err != nil {
		b.Close() //nolint:errcheck
		return nil, err
	}
	n, err := b.DeleteExpired(ctx)
	if err != nil {
		zap.L().Warn("store: prune expired responses failed", zap.Error(err))
	} else if n > 0 {
		zap.L().Info("store: pruned expired responses", zap.Int("count", n))
	}
	return b, nil
}
