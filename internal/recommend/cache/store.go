package cache

import (
	"context"
	"time"
)

// Store is the byte-level backend behind Cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set writes the value and registers key under every tag.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error
	// InvalidateTag deletes every key registered under tag and returns how many were removed.
	InvalidateTag(ctx context.Context, tag string) (int, error)
}

// Counter is implemented by stores that can adjust an integer value atomically.
// The ttl is refreshed on every change.
type Counter interface {
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
}
