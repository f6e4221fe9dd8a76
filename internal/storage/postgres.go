package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createWorkerRecordsSQL = `CREATE TABLE IF NOT EXISTS worker_records (
        worker_id  INTEGER PRIMARY KEY,
        run_id     TEXT NOT NULL DEFAULT '',
        prices     DOUBLE PRECISION[] NOT NULL,
        average    DOUBLE PRECISION NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	createGlobalRecordSQL = `CREATE TABLE IF NOT EXISTS global_record (
        id              SMALLINT PRIMARY KEY CHECK (id = 1),
        run_id          TEXT NOT NULL DEFAULT '',
        client_averages DOUBLE PRECISION[] NOT NULL,
        global_average  DOUBLE PRECISION NOT NULL,
        created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	upsertWorkerRecordSQL = `INSERT INTO worker_records (
        worker_id,
        run_id,
        prices,
        average,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (worker_id) DO UPDATE
    SET
        run_id     = EXCLUDED.run_id,
        prices     = EXCLUDED.prices,
        average    = EXCLUDED.average,
        created_at = EXCLUDED.created_at;`

	selectWorkerRecordSQL = `SELECT
        worker_id,
        run_id,
        prices,
        average,
        created_at
    FROM worker_records
    WHERE worker_id = $1;`

	upsertGlobalRecordSQL = `INSERT INTO global_record (
        id,
        run_id,
        client_averages,
        global_average,
        created_at
    ) VALUES (
        1,$1,$2,$3,$4
    )
    ON CONFLICT (id) DO UPDATE
    SET
        run_id          = EXCLUDED.run_id,
        client_averages = EXCLUDED.client_averages,
        global_average  = EXCLUDED.global_average,
        created_at      = EXCLUDED.created_at;`

	selectGlobalRecordSQL = `SELECT
        run_id,
        client_averages,
        global_average,
        created_at
    FROM global_record
    WHERE id = 1;`
)

// PGStore keeps worker and global records in PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wires a pgx pool into a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PGStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *PGStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the record tables when missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range []string{createWorkerRecordsSQL, createGlobalRecordSQL} {
		if _, execErr := pool.Exec(ctx, stmt); execErr != nil {
			return fmt.Errorf("ensure schema: %w", execErr)
		}
	}
	return nil
}

// WriteWorker upserts the record of one worker.
func (s *PGStore) WriteWorker(ctx context.Context, rec WorkerRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertWorkerRecordSQL,
		rec.WorkerID,
		rec.RunID,
		nonNil(rec.Prices),
		rec.Average,
		createdAt(rec.CreatedAt),
	)
	if execErr != nil {
		return fmt.Errorf("upsert worker record: %w", execErr)
	}
	return nil
}

// WriteGlobal upserts the single global record.
func (s *PGStore) WriteGlobal(ctx context.Context, rec GlobalRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertGlobalRecordSQL,
		rec.RunID,
		nonNil(rec.ClientAverages),
		rec.GlobalAverage,
		createdAt(rec.CreatedAt),
	)
	if execErr != nil {
		return fmt.Errorf("upsert global record: %w", execErr)
	}
	return nil
}

// ReadWorker loads the record of one worker.
func (s *PGStore) ReadWorker(ctx context.Context, workerID int) (WorkerRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return WorkerRecord{}, err
	}

	var rec WorkerRecord
	scanErr := pool.QueryRow(ctx, selectWorkerRecordSQL, workerID).Scan(
		&rec.WorkerID,
		&rec.RunID,
		&rec.Prices,
		&rec.Average,
		&rec.CreatedAt,
	)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return WorkerRecord{}, fmt.Errorf("worker %d: %w", workerID, ErrNotFound)
		}
		return WorkerRecord{}, fmt.Errorf("select worker record: %w", scanErr)
	}
	return rec, nil
}

// ReadGlobal loads the global record.
func (s *PGStore) ReadGlobal(ctx context.Context) (GlobalRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return GlobalRecord{}, err
	}

	var rec GlobalRecord
	scanErr := pool.QueryRow(ctx, selectGlobalRecordSQL).Scan(
		&rec.RunID,
		&rec.ClientAverages,
		&rec.GlobalAverage,
		&rec.CreatedAt,
	)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return GlobalRecord{}, fmt.Errorf("global: %w", ErrNotFound)
		}
		return GlobalRecord{}, fmt.Errorf("select global record: %w", scanErr)
	}
	return rec, nil
}

func nonNil(values []float64) []float64 {
	if values == nil {
		return []float64{}
	}
	return values
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

var _ Store = (*PGStore)(nil)
