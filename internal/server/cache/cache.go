// Package cache is the key-value store for short-lived values, currently
// the one-time websocket handshake tokens.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key does not exist or has
// already expired.
var ErrCacheMiss = errors.New("cache: key not found")

type Cache interface {
	// SetEx stores a value that expires after ttl.
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value at key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (string, error)

	// Del removes the key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error
}
