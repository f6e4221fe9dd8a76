package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"price-window-averager/internal/config"
)

// ErrNotFound indicates the requested record has never been written.
var ErrNotFound = errors.New("storage: record not found")

// RecordWriter persists a worker's samples and average.
type RecordWriter interface {
	WriteWorker(ctx context.Context, rec WorkerRecord) error
}

// GlobalWriter persists the aggregated result.
type GlobalWriter interface {
	WriteGlobal(ctx context.Context, rec GlobalRecord) error
}

// Store is the full persistence adapter used by cache and read modes.
type Store interface {
	RecordWriter
	GlobalWriter
	ReadWorker(ctx context.Context, workerID int) (WorkerRecord, error)
	ReadGlobal(ctx context.Context) (GlobalRecord, error)
	Close() error
}

// Open builds the store selected by persistence.backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch strings.ToLower(cfg.Persistence.Backend) {
	case "", config.BackendFile:
		return NewFileStore(cfg.Persistence.Dir)
	case config.BackendPostgres:
		pool, err := NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		store := NewPGStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.BackendSQLite:
		return NewSQLiteStore(ctx, cfg.SQLite.Path)
	case config.BackendRedis:
		return NewRedisStore(ctx, RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		})
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", cfg.Persistence.Backend)
	}
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}
