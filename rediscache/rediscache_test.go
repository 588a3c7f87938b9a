// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rediscache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"code.hybscloud.com/cesk"
	"code.hybscloud.com/cesk/rediscache"
	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, opts ...rediscache.Option) (*miniredis.Miniredis, *rediscache.Backend) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	b := rediscache.NewFromClient(client, opts...)
	t.Cleanup(func() { _ = b.Close() })
	return mr, b
}

func TestBackend_Contract(t *testing.T) {
	_, b := setup(t)
	ctx := context.Background()

	_, ok, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Put(ctx, "user", map[string]any{"name": "ada", "age": 36}, 0))
	v, ok, err := b.Get(ctx, "user")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"name": "ada", "age": 36.0}, v)

	exists, err := b.Exists(ctx, "user")
	require.NoError(t, err)
	assert.True(t, exists)

	deleted, err := b.Delete(ctx, "user")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = b.Delete(ctx, "user")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestBackend_Prefix(t *testing.T) {
	mr, b := setup(t, rediscache.WithPrefix("app:"))
	require.NoError(t, b.Put(context.Background(), "k", "v", 0))

	assert.True(t, mr.Exists("app:k"))
	got, err := mr.Get("app:k")
	require.NoError(t, err)
	assert.Equal(t, `"v"`, got)
}

func TestBackend_TTL(t *testing.T) {
	mr, b := setup(t, rediscache.WithTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "default", 1, 0))
	require.NoError(t, b.Put(ctx, "explicit", 2, time.Second))
	assert.Equal(t, time.Minute, mr.TTL(rediscache.DefaultPrefix+"default"))

	mr.FastForward(2 * time.Second)
	_, ok, err := b.Get(ctx, "explicit")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = b.Get(ctx, "default")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBackend_Unencodable(t *testing.T) {
	_, b := setup(t)
	err := b.Put(context.Background(), "fn", func() {}, 0)
	require.Error(t, err)
}

func TestBackend_ServerDown(t *testing.T) {
	b := rediscache.New("127.0.0.1:1", "", 0)
	defer b.Close()

	_, _, err := b.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rediscache: get")
}

func TestBackend_CacheEffects(t *testing.T) {
	_, b := setup(t)
	prog := cesk.Then(
		cesk.CachePut("greeting", "hello", 0),
		cesk.CacheGet("greeting"),
	)
	handlers := cesk.SyncHandlers(cesk.UsingCache(b))
	res := cesk.Run(context.Background(), prog, cesk.WithHandlers(handlers...))
	require.NoError(t, res.Err)
	assert.Equal(t, "hello", res.Value)

	res = cesk.Run(context.Background(), cesk.CacheGet("absent"), cesk.WithHandlers(handlers...))
	var ke *cesk.KeyError
	require.True(t, errors.As(res.Err, &ke))
	assert.Equal(t, "cache", ke.Scope)
}
