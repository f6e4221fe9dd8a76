package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS worker_records (
	worker_id  INTEGER PRIMARY KEY,
	run_id     TEXT NOT NULL DEFAULT '',
	prices     TEXT NOT NULL,
	average    REAL NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS global_record (
	id              INTEGER PRIMARY KEY CHECK (id = 1),
	run_id          TEXT NOT NULL DEFAULT '',
	client_averages TEXT NOT NULL,
	global_average  REAL NOT NULL,
	created_at      DATETIME NOT NULL
);`

// SQLiteStore keeps records in a local SQLite file. Price lists are stored as
// JSON text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) WriteWorker(ctx context.Context, rec WorkerRecord) error {
	prices, err := json.Marshal(nonNil(rec.Prices))
	if err != nil {
		return fmt.Errorf("marshal prices: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO worker_records (worker_id, run_id, prices, average, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(worker_id) DO UPDATE SET
		   run_id = excluded.run_id,
		   prices = excluded.prices,
		   average = excluded.average,
		   created_at = excluded.created_at`,
		rec.WorkerID, rec.RunID, string(prices), rec.Average, createdAt(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert worker record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) WriteGlobal(ctx context.Context, rec GlobalRecord) error {
	averages, err := json.Marshal(nonNil(rec.ClientAverages))
	if err != nil {
		return fmt.Errorf("marshal client averages: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO global_record (id, run_id, client_averages, global_average, created_at)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   run_id = excluded.run_id,
		   client_averages = excluded.client_averages,
		   global_average = excluded.global_average,
		   created_at = excluded.created_at`,
		rec.RunID, string(averages), rec.GlobalAverage, createdAt(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert global record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReadWorker(ctx context.Context, workerID int) (WorkerRecord, error) {
	var (
		rec    WorkerRecord
		prices string
		ts     time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT worker_id, run_id, prices, average, created_at FROM worker_records WHERE worker_id = ?`,
		workerID).Scan(&rec.WorkerID, &rec.RunID, &prices, &rec.Average, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return WorkerRecord{}, fmt.Errorf("worker %d: %w", workerID, ErrNotFound)
		}
		return WorkerRecord{}, fmt.Errorf("select worker record: %w", err)
	}
	if err := json.Unmarshal([]byte(prices), &rec.Prices); err != nil {
		return WorkerRecord{}, fmt.Errorf("decode prices: %w", err)
	}
	rec.CreatedAt = ts.UTC()
	return rec, nil
}

func (s *SQLiteStore) ReadGlobal(ctx context.Context) (GlobalRecord, error) {
	var (
		rec      GlobalRecord
		averages string
		ts       time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, client_averages, global_average, created_at FROM global_record WHERE id = 1`,
	).Scan(&rec.RunID, &averages, &rec.GlobalAverage, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return GlobalRecord{}, fmt.Errorf("global: %w", ErrNotFound)
		}
		return GlobalRecord{}, fmt.Errorf("select global record: %w", err)
	}
	if err := json.Unmarshal([]byte(averages), &rec.ClientAverages); err != nil {
		return GlobalRecord{}, fmt.Errorf("decode client averages: %w", err)
	}
	rec.CreatedAt = ts.UTC()
	return rec, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
