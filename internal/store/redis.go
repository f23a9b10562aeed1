package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arcade-backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// casRetries bounds the optimistic-concurrency loop before the caller
// sees ErrWriteConflict.
const casRetries = 5

// RedisStore is the Redis-backed record store. Each table is a key
// namespace ("table:key") holding JSON documents.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore creates a Redis record store and verifies the connection
func NewRedisStore(cfg *config.RedisConfig, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) recordKey(table, key string) string {
	return table + ":" + key
}

// Get returns the value for key, or ErrRecordNotFound
func (s *RedisStore) Get(ctx context.Context, table, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.recordKey(table, key)).Bytes()
	if err == redis.Nil {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return value, nil
}

// Put unconditionally upserts the value for key
func (s *RedisStore) Put(ctx context.Context, table, key string, value []byte) error {
	if err := s.client.Set(ctx, s.recordKey(table, key), value, 0).Err(); err != nil {
		return fmt.Errorf("putting record: %w", err)
	}
	return nil
}

// PutIfAbsent writes the value only if the key does not exist
func (s *RedisStore) PutIfAbsent(ctx context.Context, table, key string, value []byte) error {
	ok, err := s.client.SetNX(ctx, s.recordKey(table, key), value, 0).Result()
	if err != nil {
		return fmt.Errorf("putting record: %w", err)
	}
	if !ok {
		return ErrRecordExists
	}
	return nil
}

// Update applies fn to an existing record under WATCH/MULTI
func (s *RedisStore) Update(ctx context.Context, table, key string, fn UpdateFunc) error {
	return s.compareAndSwap(ctx, table, key, fn, false)
}

// Apply is Update with upsert semantics
func (s *RedisStore) Apply(ctx context.Context, table, key string, fn UpdateFunc) error {
	return s.compareAndSwap(ctx, table, key, fn, true)
}

func (s *RedisStore) compareAndSwap(ctx context.Context, table, key string, fn UpdateFunc, upsert bool) error {
	rk := s.recordKey(table, key)

	txn := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, rk).Bytes()
		if err == redis.Nil {
			if !upsert {
				return ErrRecordNotFound
			}
			current = nil
		} else if err != nil {
			return fmt.Errorf("getting record: %w", err)
		}

		next, err := fn(current)
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < casRetries; i++ {
		err := s.client.Watch(ctx, txn, rk)
		if err == redis.TxFailedErr {
			s.logger.Debug("record changed under update, retrying", "table", table, "key", key)
			continue
		}
		return err
	}
	return ErrWriteConflict
}

// Scan returns an unordered snapshot of up to limit records from a table
func (s *RedisStore) Scan(ctx context.Context, table string, limit int) ([]Record, error) {
	prefix := table + ":"
	match := prefix + "*"

	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning table: %w", err)
		}
		keys = append(keys, batch...)
		if limit > 0 && len(keys) >= limit {
			keys = keys[:limit]
			break
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading scanned records: %w", err)
	}

	records := make([]Record, 0, len(keys))
	for i, v := range values {
		// A key can vanish between SCAN and MGET; skip the hole.
		str, ok := v.(string)
		if !ok {
			continue
		}
		records = append(records, Record{
			Key:   strings.TrimPrefix(keys[i], prefix),
			Value: []byte(str),
		})
	}
	return records, nil
}
