package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions parameterise the redis backend.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL expires records after the given duration; zero keeps them forever.
	TTL time.Duration
}

// RedisStore keeps records as JSON values under prefixed keys.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return newRedisStore(client, opts.KeyPrefix, opts.TTL), nil
}

func newRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = "windowavg"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) workerKey(workerID int) string {
	return fmt.Sprintf("%s:worker:%d", s.prefix, workerID)
}

func (s *RedisStore) globalKey() string {
	return s.prefix + ":global"
}

func (s *RedisStore) WriteWorker(ctx context.Context, rec WorkerRecord) error {
	rec.Prices = nonNil(rec.Prices)
	rec.CreatedAt = createdAt(rec.CreatedAt)
	if err := s.setJSON(ctx, s.workerKey(rec.WorkerID), rec); err != nil {
		return fmt.Errorf("write worker record %d: %w", rec.WorkerID, err)
	}
	return nil
}

func (s *RedisStore) WriteGlobal(ctx context.Context, rec GlobalRecord) error {
	rec.ClientAverages = nonNil(rec.ClientAverages)
	rec.CreatedAt = createdAt(rec.CreatedAt)
	if err := s.setJSON(ctx, s.globalKey(), rec); err != nil {
		return fmt.Errorf("write global record: %w", err)
	}
	return nil
}

func (s *RedisStore) ReadWorker(ctx context.Context, workerID int) (WorkerRecord, error) {
	var rec WorkerRecord
	if err := s.getJSON(ctx, s.workerKey(workerID), &rec); err != nil {
		return WorkerRecord{}, fmt.Errorf("worker %d: %w", workerID, err)
	}
	return rec, nil
}

func (s *RedisStore) ReadGlobal(ctx context.Context) (GlobalRecord, error) {
	var rec GlobalRecord
	if err := s.getJSON(ctx, s.globalKey(), &rec); err != nil {
		return GlobalRecord{}, fmt.Errorf("global: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return s.client.Set(ctx, key, data, s.ttl).Err()
}

func (s *RedisStore) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
