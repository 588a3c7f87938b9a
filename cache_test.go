// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"code.hybscloud.com/cesk"
)

func cacheHandlers(b cesk.CacheBackend) cesk.Option {
	return cesk.WithHandlers(cesk.SyncHandlers(cesk.UsingCache(b))...)
}

func TestCachePutGet(t *testing.T) {
	p := cesk.Then(cesk.CachePut("user:1", "ada", 0), cesk.CacheGet("user:1"))
	if got := mustValue(t, run(t, p)); got != "ada" {
		t.Fatalf("got %v, want ada", got)
	}
}

func TestCacheMiss(t *testing.T) {
	res := run(t, cesk.CacheGet("absent"))
	var ke *cesk.KeyError
	if !errors.As(res.Err, &ke) || ke.Scope != "cache" {
		t.Fatalf("got %v, want a cache key error", res.Err)
	}
	var he *cesk.HandlerError
	if !errors.As(res.Err, &he) || he.Handler != "cache" {
		t.Fatalf("got %v, want a cache handler error", res.Err)
	}
}

func TestCacheDefaultUsesRunClock(t *testing.T) {
	clock := cesk.NewSimulatedClock(epoch)
	p := cesk.Do(
		cesk.CachePut("k", 1, time.Minute),
		cesk.Delay(2*time.Minute),
		cesk.CacheExists("k"),
	)
	if got := mustValue(t, run(t, p, cesk.WithClock(clock))); got != false {
		t.Fatalf("entry still live after %v", clock.Now().Sub(epoch))
	}
}

func TestCacheDeleteExists(t *testing.T) {
	p := cesk.Sequence(
		cesk.CachePut("k", 1, 0),
		cesk.CacheExists("k"),
		cesk.CacheDelete("k"),
		cesk.CacheExists("k"),
		cesk.CacheDelete("k"),
	)
	got := mustValue(t, run(t, p))
	if want := []cesk.Value{nil, true, true, false, false}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCacheTTL(t *testing.T) {
	clock := cesk.NewSimulatedClock(epoch)
	b := cesk.NewMemoryCache(clock)
	p := cesk.Sequence(
		cesk.CachePut("session", "s1", time.Minute),
		cesk.CacheExists("session"),
		cesk.Delay(time.Minute),
		cesk.CacheExists("session"),
	)
	got := mustValue(t, run(t, p, cacheHandlers(b), cesk.WithClock(clock)))
	if want := []cesk.Value{nil, true, nil, false}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCacheSharedAcrossRuns(t *testing.T) {
	b := cesk.NewMemoryCache(nil)
	run(t, cesk.CachePut("shared", 7, 0), cacheHandlers(b))
	if got := mustValue(t, run(t, cesk.CacheGet("shared"), cacheHandlers(b))); got != 7 {
		t.Fatalf("got %v, want 7", got)
	}
}

func TestCacheSharedAcrossTasks(t *testing.T) {
	p := cesk.Then(
		cesk.Gather(cesk.CachePut("from-child", "yes", 0)),
		cesk.CacheGet("from-child"),
	)
	if got := mustValue(t, run(t, p)); got != "yes" {
		t.Fatalf("got %v, want yes", got)
	}
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	clock := cesk.NewSimulatedClock(epoch)
	c := cesk.NewMemoryCache(clock)

	if err := c.Put(ctx, "a", 1, time.Second); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(ctx, "b", 2, 0); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Fatalf("len %d, want 2", c.Len())
	}
	clock.Advance(time.Second)
	if _, ok, _ := c.Get(ctx, "a"); ok {
		t.Fatal("entry a outlived its ttl")
	}
	if v, ok, _ := c.Get(ctx, "b"); !ok || v != 2 {
		t.Fatalf("entry b = %v, %v", v, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("len %d, want 1", c.Len())
	}
}
