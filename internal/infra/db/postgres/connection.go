package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"trulyinvoice/internal/config"
	"trulyinvoice/internal/infra/metrics"
)

// Connect returns a live *pgxpool.Pool for cfg.URL.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.ConnectConfig(cctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool connect: %w", err)
	}
	return pool, nil
}

// ReportPoolStats publishes pool gauges.
func ReportPoolStats(pool *pgxpool.Pool) {
	s := pool.Stat()
	metrics.SetDBPoolStats(s.TotalConns(), s.IdleConns(), s.AcquiredConns())
}
