package cache

import (
	"context"
	"errors"
	"time"
)

var ErrMiss = errors.New("cache miss")

// Cache stores serialized aggregation results. Implementations are safe for
// concurrent use.
type Cache interface {
	// Get returns the cached payload or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeletePrefix drops every key under the prefix; used for wholesale
	// invalidation when underlying records change.
	DeletePrefix(ctx context.Context, prefix string) error
}
