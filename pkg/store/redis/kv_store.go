package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	tableValuesSuffix = ":values" // hash: key -> value
	tableKeysSuffix   = ":keys"   // sorted set, score 0, gives lexical key order
)

// KVStore KeyValueStore over Redis so several listener replicas share one state.
// Each table is a hash of values plus a zero-score sorted set of keys.
type KVStore struct {
	redis  *redis.Client
	prefix string
}

// NewKVStore creates a Redis-backed KV store; prefix namespaces all table keys
func NewKVStore(redisClient *RedisClient, prefix string) *KVStore {
	if prefix == "" {
		prefix = "tcs:"
	}
	return &KVStore{
		redis:  redisClient.GetClient(),
		prefix: prefix,
	}
}

func (s *KVStore) valuesKey(table string) string {
	return s.prefix + table + tableValuesSuffix
}

func (s *KVStore) keysKey(table string) string {
	return s.prefix + table + tableKeysSuffix
}

// Get returns the value stored under table/key
func (s *KVStore) Get(ctx context.Context, table, key string) (string, bool, error) {
	value, err := s.redis.HGet(ctx, s.valuesKey(table), key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s/%s: %w", table, key, err)
	}
	return value, true, nil
}

// Set writes value under table/key
func (s *KVStore) Set(ctx context.Context, table, key, value string) error {
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, s.valuesKey(table), key, value)
	pipe.ZAdd(ctx, s.keysKey(table), &redis.Z{Score: 0, Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", table, key, err)
	}
	return nil
}

// Remove deletes table/key
func (s *KVStore) Remove(ctx context.Context, table, key string) error {
	pipe := s.redis.TxPipeline()
	pipe.HDel(ctx, s.valuesKey(table), key)
	pipe.ZRem(ctx, s.keysKey(table), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove %s/%s: %w", table, key, err)
	}
	return nil
}

// Lookup returns every key in table in lexical order
func (s *KVStore) Lookup(ctx context.Context, table string) ([]string, error) {
	keys, err := s.redis.ZRange(ctx, s.keysKey(table), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to lookup table %s: %w", table, err)
	}
	return keys, nil
}

// Close is a no-op; the Redis client is owned by the application
func (s *KVStore) Close() error {
	return nil
}
