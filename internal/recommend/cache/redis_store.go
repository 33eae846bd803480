package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore keeps responses as plain string keys and tags as sets of keys.
// Tag sets outlive their members by one ttl so stale members are cleaned on invalidation.
type RedisStore struct {
	rdb goredis.UniversalClient
}

func NewRedisStore(rdb goredis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return raw, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key, value, ttl)
	for _, t := range tags {
		pipe.SAdd(ctx, t, key)
		if ttl > 0 {
			pipe.Expire(ctx, t, 2*ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// InvalidateTag removes only the members it read, so a key tagged between SMEMBERS and
// the delete stays indexed for the next invalidation.
func (s *RedisStore) InvalidateTag(ctx context.Context, tag string) (int, error) {
	keys, err := s.rdb.SMembers(ctx, tag).Result()
	if err != nil {
		return 0, fmt.Errorf("redis smembers: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	pipe := s.rdb.TxPipeline()
	del := pipe.Del(ctx, keys...)
	pipe.SRem(ctx, tag, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis invalidate: %w", err)
	}
	return int(del.Val()), nil
}

func (s *RedisStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	pipe := s.rdb.TxPipeline()
	incr := pipe.IncrBy(ctx, key, delta)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incrby: %w", err)
	}
	return incr.Val(), nil
}
