package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"tabula/internal/config"
)

// DSN builds a postgres:// URL with properly escaped credentials.
func DSN(cfg *config.Config) string {
	userInfo := url.UserPassword(cfg.DBUser, cfg.DBPassword)
	return fmt.Sprintf(
		"postgres://%s@%s:%s/%s?sslmode=disable&timezone=UTC",
		userInfo.String(),
		cfg.DBHost,
		cfg.DBPort,
		url.PathEscape(cfg.DBName),
	)
}

func Connect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	logger.Info("Connecting to database",
		zap.String("host", cfg.DBHost),
		zap.String("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	poolConfig, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string (check your .env file): %w", err)
	}

	poolConfig.MaxConns = cfg.DBMaxConns
	poolConfig.MinConns = min(5, cfg.DBMaxConns)
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute

	return Open(ctx, poolConfig)
}

// Open creates a pool from an already parsed config and pings it.
func Open(ctx context.Context, poolConfig *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
