package dbpool

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsefeed/project/internal/platform/config"
)

func New(ctx context.Context, cfg config.DB) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	minConns, maxConns := cfg.MinConns, cfg.MaxConns
	if minConns < 0 {
		minConns = 2
	}
	if maxConns <= 0 {
		maxConns = 20
	}
	if minConns > maxConns {
		minConns = maxConns
	}

	poolCfg.MinConns = int32(minConns)
	poolCfg.MaxConns = int32(maxConns)
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	return pgxpool.NewWithConfig(ctx, poolCfg)
}
