// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"code.hybscloud.com/cesk"
	"code.hybscloud.com/cesk/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, cfg *config.Config, p cesk.Program) cesk.RunResult {
	t.Helper()
	opts, closeAll, err := cfg.Options()
	require.NoError(t, err)
	defer func() { require.NoError(t, closeAll()) }()
	return cesk.Run(context.Background(), p, opts...)
}

func TestParse(t *testing.T) {
	cfg, err := config.Parse([]byte(`
env:
  region: eu-west-1
store:
  count: 1
trace: false
max_steps: 500
clock:
  simulated: true
  start: "2026-01-01T00:00:00Z"
bridge:
  enabled: true
  workers: 4
cache:
  backend: redis
  redis:
    addr: localhost:6379
    ttl: 10m
`))
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.Env["region"])
	assert.Equal(t, 1, cfg.Store["count"])
	require.NotNil(t, cfg.Trace)
	assert.False(t, *cfg.Trace)
	assert.Equal(t, 500, cfg.MaxSteps)
	assert.True(t, cfg.Clock.Simulated)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), cfg.Clock.Start.UTC())
	assert.Equal(t, 4, cfg.Bridge.Workers)
	assert.Equal(t, config.CacheRedis, cfg.Cache.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Cache.Redis.TTL)
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown key":     "colour: blue\n",
		"bad duration":    "cache:\n  redis:\n    ttl: soon\n",
		"unknown backend": "cache:\n  backend: disk\n",
		"redis no addr":   "cache:\n  backend: redis\n",
		"bad format":      "log:\n  format: xml\n",
		"negative steps":  "max_steps: -1\n",
		"not yaml":        "env: [\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("env:\n  name: cesk\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	res := run(t, cfg, cesk.Ask("name"))
	require.NoError(t, res.Err)
	assert.Equal(t, "cesk", res.Value)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOptions_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte("{}"))
	require.NoError(t, err)

	res := run(t, cfg, cesk.Then(cesk.CachePut("k", 1, 0), cesk.CacheGet("k")))
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Value)
	assert.NotEmpty(t, res.Trace)
}

func TestOptions_SimulatedClock(t *testing.T) {
	cfg, err := config.Parse([]byte(`
trace: false
clock:
  simulated: true
  start: "2026-01-01T00:00:00Z"
store:
  n: 1
`))
	require.NoError(t, err)

	p := cesk.Then(cesk.Delay(time.Hour), cesk.Now())
	res := run(t, cfg, cesk.Then(cesk.Modify("n", func(n int) int { return n + 1 }), p))
	require.NoError(t, res.Err)
	assert.Equal(t, time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC), res.Value.(time.Time).UTC())
	assert.Equal(t, 2, res.Store["n"])
	assert.Empty(t, res.Trace)
}

func TestOptions_MaxSteps(t *testing.T) {
	cfg, err := config.Parse([]byte("max_steps: 3\n"))
	require.NoError(t, err)

	res := run(t, cfg, cesk.Do(cesk.Put("a", 1), cesk.Put("b", 2), cesk.Put("c", 3)))
	var ie *cesk.InvariantError
	assert.ErrorAs(t, res.Err, &ie)
}

func TestOptions_AsyncRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg, err := config.Parse([]byte(`
log:
  level: warn
bridge:
  enabled: true
cache:
  backend: redis
  redis:
    addr: ` + mr.Addr() + `
    prefix: "test:"
`))
	require.NoError(t, err)

	io := cesk.IO(func(context.Context) (cesk.Value, error) { return "fetched", nil })
	p := cesk.Bind(io, func(v string) cesk.Program {
		return cesk.Then(cesk.CachePut("last", v, 0), cesk.CacheGet("last"))
	})
	res := run(t, cfg, p)
	require.NoError(t, res.Err)
	assert.Equal(t, "fetched", res.Value)
	assert.True(t, mr.Exists("test:last"))
}

func TestOptions_BadLevel(t *testing.T) {
	cfg, err := config.Parse([]byte("log:\n  level: loud\n"))
	require.NoError(t, err)
	_, _, err = cfg.Options()
	assert.Error(t, err)
}
