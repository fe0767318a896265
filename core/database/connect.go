package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"stickerdex/core/logger"
)

const connectTimeout = 5 * time.Second

// Connect opens the Postgres pool and verifies connectivity before
// handing it out.
func Connect(cfg Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	target := []slog.Attr{
		slog.String("driver", "postgres"),
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
	}

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	took := logger.Took(start)
	if err != nil {
		logger.LogEvent(ctx, logger.DB, slog.LevelError, "db.connect",
			append(target, slog.Duration("duration", took), slog.String("err", err.Error()))...)
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		logger.LogEvent(ctx, logger.DB, slog.LevelError, "db.ping",
			append(target, slog.String("err", err.Error()))...)
		return nil, fmt.Errorf("db ping: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)

	logger.LogEvent(ctx, logger.DB, slog.LevelInfo, "db.connect",
		append(target,
			slog.Int("pool_open", cfg.MaxConnections),
			slog.Duration("duration", took),
		)...)
	return db, nil
}

// WaitForPostgres blocks until the database accepts connections or the
// timeout elapses. Migrations run before the pool opens, so they cannot
// rely on Connect's retry-free path.
func WaitForPostgres(dsn string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		db, err := sql.Open("postgres", dsn)
		if err == nil {
			err = db.Ping()
			_ = db.Close()
			if err == nil {
				return nil
			}
		}
		lastErr = err
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout reached waiting for database: %w", lastErr)
		}
		time.Sleep(2 * time.Second)
	}
}
