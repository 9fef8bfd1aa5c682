package watermark

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces watermark keys.
const DefaultKeyPrefix = "reportsync:watermark:"

// RedisStore keeps watermarks as plain string keys. Put uses WATCH so two
// writers cannot interleave a read and a backwards write.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(table string) string {
	return s.prefix + table
}

func (s *RedisStore) Get(ctx context.Context, table string) (string, error) {
	value, err := s.redis.Get(ctx, s.key(table)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get watermark for %s: %w", table, err)
	}
	return value, nil
}

func (s *RedisStore) Put(ctx context.Context, table, value string) (bool, error) {
	key := s.key(table)
	moved := false

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if !Advances(current, value) {
			moved = false
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, value, 0)
			return nil
		})
		if err == nil {
			moved = true
		}
		return err
	}

	const maxAttempts = 3
	for i := 0; i < maxAttempts; i++ {
		err := s.redis.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to put watermark for %s: %w", table, err)
		}
		return moved, nil
	}
	return false, fmt.Errorf("failed to put watermark for %s: concurrent updates", table)
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}
