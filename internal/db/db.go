package db

import (
	"context"
	"log"
	"time"

	"chatrelay/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens the relay's connection pool. Sizing comes from
// configuration; the defaults suit a single-node deployment serving a
// few hundred concurrent sessions.
func Connect(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pc, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	pc.MaxConns = int32(cfg.DBMaxConns)
	pc.MinConns = int32(cfg.DBMinConns)
	pc.MaxConnIdleTime = 5 * time.Minute
	pc.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Printf("[DB] ✅ Pool ready (connections: max %d, min %d)", pc.MaxConns, pc.MinConns)
	return pool, nil
}
