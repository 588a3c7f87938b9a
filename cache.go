// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// CacheBackend stores cache entries for the cache effects. Implementations
// must be safe for concurrent use.
type CacheBackend interface {
	// Get returns the live entry under key.
	Get(ctx context.Context, key string) (Value, bool, error)
	// Put stores v under key. A ttl of zero never expires.
	Put(ctx context.Context, key string, v Value, ttl time.Duration) error
	// Delete removes key and reports whether it was present.
	Delete(ctx context.Context, key string) (bool, error)
	// Exists reports whether a live entry is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
}

// CacheGetOp reads a cache entry. A miss raises a *KeyError.
type CacheGetOp struct {
	EffectBase
	Key string
}

// CacheGet reads the cache entry under key.
func CacheGet(key string) CacheGetOp {
	return CacheGetOp{EffectBase: At(), Key: key}
}

func (e CacheGetOp) String() string { return "CacheGet(" + strconv.Quote(e.Key) + ")" }

// DispatchCache handles CacheGet in cache dispatch.
func (e CacheGetOp) DispatchCache(ctx *DispatchContext, b CacheBackend) Outcome {
	v, ok, err := b.Get(ctx.Context, e.Key)
	switch {
	case err != nil:
		return Throw(err)
	case !ok:
		return Throw(&KeyError{Scope: "cache", Key: e.Key})
	}
	return Resume(v)
}

// CachePutOp writes a cache entry and produces nil.
type CachePutOp struct {
	EffectBase
	Key   string
	Value Value
	TTL   time.Duration
}

// CachePut stores v under key. A ttl of zero never expires.
func CachePut(key string, v Value, ttl time.Duration) CachePutOp {
	return CachePutOp{EffectBase: At(), Key: key, Value: v, TTL: ttl}
}

func (e CachePutOp) String() string {
	return "CachePut(" + strconv.Quote(e.Key) + ", " + summarize(e.Value) + ")"
}

// DispatchCache handles CachePut in cache dispatch.
func (e CachePutOp) DispatchCache(ctx *DispatchContext, b CacheBackend) Outcome {
	if err := b.Put(ctx.Context, e.Key, e.Value, e.TTL); err != nil {
		return Throw(err)
	}
	return Resume(nil)
}

// CacheDeleteOp removes a cache entry and produces whether it existed.
type CacheDeleteOp struct {
	EffectBase
	Key string
}

// CacheDelete removes the cache entry under key.
func CacheDelete(key string) CacheDeleteOp {
	return CacheDeleteOp{EffectBase: At(), Key: key}
}

func (e CacheDeleteOp) String() string { return "CacheDelete(" + strconv.Quote(e.Key) + ")" }

// DispatchCache handles CacheDelete in cache dispatch.
func (e CacheDeleteOp) DispatchCache(ctx *DispatchContext, b CacheBackend) Outcome {
	ok, err := b.Delete(ctx.Context, e.Key)
	if err != nil {
		return Throw(err)
	}
	return Resume(ok)
}

// CacheExistsOp produces whether a live cache entry exists.
type CacheExistsOp struct {
	EffectBase
	Key string
}

// CacheExists reports whether key holds a live cache entry.
func CacheExists(key string) CacheExistsOp {
	return CacheExistsOp{EffectBase: At(), Key: key}
}

func (e CacheExistsOp) String() string { return "CacheExists(" + strconv.Quote(e.Key) + ")" }

// DispatchCache handles CacheExists in cache dispatch.
func (e CacheExistsOp) DispatchCache(ctx *DispatchContext, b CacheBackend) Outcome {
	ok, err := b.Exists(ctx.Context, e.Key)
	if err != nil {
		return Throw(err)
	}
	return Resume(ok)
}

type cacheOp interface {
	DispatchCache(ctx *DispatchContext, b CacheBackend) Outcome
}

type cacheHandler struct {
	backend CacheBackend
}

// CacheHandler returns the handler for the cache effects, backed by b.
func CacheHandler(b CacheBackend) Handler {
	return cacheHandler{backend: b}
}

func (cacheHandler) Name() string { return "cache" }

func (cacheHandler) Accepts(e Effect) bool {
	_, ok := e.(cacheOp)
	return ok
}

func (h cacheHandler) Handle(ctx *DispatchContext, e Effect) Outcome {
	if op, ok := e.(cacheOp); ok {
		return op.DispatchCache(ctx, h.backend)
	}
	return Delegate()
}

// MemoryCache is an in-process [CacheBackend]. Expired entries are dropped
// lazily on access.
type MemoryCache struct {
	mu    sync.Mutex
	clock Clock
	items map[string]cacheEntry
}

type cacheEntry struct {
	value   Value
	expires time.Time
}

// NewMemoryCache returns an empty cache that measures TTLs against clock,
// or the wall clock when clock is nil.
func NewMemoryCache(clock Clock) *MemoryCache {
	if clock == nil {
		clock = RealClock()
	}
	return &MemoryCache{clock: clock, items: make(map[string]cacheEntry)}
}

func (c *MemoryCache) live(key string) (cacheEntry, bool) {
	it, ok := c.items[key]
	if !ok {
		return cacheEntry{}, false
	}
	if !it.expires.IsZero() && !c.clock.Now().Before(it.expires) {
		delete(c.items, key)
		return cacheEntry{}, false
	}
	return it, true
}

// Get implements [CacheBackend].
func (c *MemoryCache) Get(_ context.Context, key string) (Value, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.live(key)
	return it.value, ok, nil
}

// Put implements [CacheBackend].
func (c *MemoryCache) Put(_ context.Context, key string, v Value, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := cacheEntry{value: v}
	if ttl > 0 {
		it.expires = c.clock.Now().Add(ttl)
	}
	c.items[key] = it
	return nil
}

// Delete implements [CacheBackend].
func (c *MemoryCache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live(key)
	delete(c.items, key)
	return ok, nil
}

// Exists implements [CacheBackend].
func (c *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live(key)
	return ok, nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.items {
		if _, ok := c.live(k); ok {
			n++
		}
	}
	return n
}
