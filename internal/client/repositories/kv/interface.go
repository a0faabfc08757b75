// Package kv is the raw byte key/value backend underneath the integrity
// store. It knows nothing about digests; every value is opaque.
package kv

import (
	"context"
)

// Repository stores opaque values by key. Get of a missing key returns
// (nil, nil).
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetMany writes all pairs atomically.
	SetMany(ctx context.Context, values map[string][]byte) error
	Delete(ctx context.Context, keys ...string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
