// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rediscache implements [cesk.CacheBackend] on Redis.
//
// Values are stored as JSON. They come back as the types encoding/json
// produces for an interface: numbers as float64, objects as
// map[string]any and arrays as []any.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"code.hybscloud.com/cesk"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces cache keys.
const DefaultPrefix = "cesk:cache:"

// Backend is a Redis-backed cache backend.
type Backend struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures a Backend.
type Option func(*Backend)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(b *Backend) {
		b.prefix = prefix
	}
}

// WithTTL sets the expiration applied to entries written without one.
func WithTTL(ttl time.Duration) Option {
	return func(b *Backend) {
		b.ttl = ttl
	}
}

// New connects a backend to the Redis server at address.
func New(address, password string, db int, opts ...Option) *Backend {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a backend from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Backend {
	b := &Backend{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) key(k string) string {
	return b.prefix + k
}

// Get implements [cesk.CacheBackend].
func (b *Backend) Get(ctx context.Context, key string) (cesk.Value, bool, error) {
	data, err := b.client.Get(ctx, b.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("rediscache: get %q: %w", key, err)
	}
	var v cesk.Value
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false, fmt.Errorf("rediscache: decode %q: %w", key, err)
	}
	return v, true, nil
}

// Put implements [cesk.CacheBackend]. A zero ttl falls back to the
// backend's default expiration.
func (b *Backend) Put(ctx context.Context, key string, v cesk.Value, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rediscache: encode %q: %w", key, err)
	}
	if ttl <= 0 {
		ttl = b.ttl
	}
	if err := b.client.Set(ctx, b.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("rediscache: set %q: %w", key, err)
	}
	return nil
}

// Delete implements [cesk.CacheBackend].
func (b *Backend) Delete(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Del(ctx, b.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("rediscache: delete %q: %w", key, err)
	}
	return n > 0, nil
}

// Exists implements [cesk.CacheBackend].
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, b.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("rediscache: exists %q: %w", key, err)
	}
	return n > 0, nil
}

// Close closes the underlying client.
func (b *Backend) Close() error {
	return b.client.Close()
}

var _ cesk.CacheBackend = (*Backend)(nil)
