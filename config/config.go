// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads run configuration from YAML.
//
// A document looks like:
//
//	env:
//	  region: eu-west-1
//	store:
//	  retries: 0
//	trace: true
//	max_steps: 100000
//	clock:
//	  simulated: true
//	  start: 2026-01-01T00:00:00Z
//	bridge:
//	  enabled: true
//	  workers: 16
//	log:
//	  level: debug
//	  format: console
//	cache:
//	  backend: redis
//	  redis:
//	    addr: localhost:6379
//	    prefix: "app:"
//	    ttl: 10m
//
// Every section is optional. Durations use Go syntax.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"code.hybscloud.com/cesk"
	"code.hybscloud.com/cesk/rediscache"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the decoded configuration of a run.
type Config struct {
	Env      map[string]any `mapstructure:"env"`
	Store    map[string]any `mapstructure:"store"`
	Trace    *bool          `mapstructure:"trace"`
	MaxSteps int            `mapstructure:"max_steps"`
	Clock    ClockConfig    `mapstructure:"clock"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Log      LogConfig      `mapstructure:"log"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// ClockConfig selects the run clock.
type ClockConfig struct {
	Simulated bool      `mapstructure:"simulated"`
	Start     time.Time `mapstructure:"start"`
}

// BridgeConfig enables the asynchronous profile.
type BridgeConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Workers int  `mapstructure:"workers"`
}

// LogConfig builds the run logger. An empty level keeps the package
// logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures [rediscache.Backend].
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Load reads and decodes the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML document. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg := &Config{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		ErrorUnused: true,
		Result:      cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case "", CacheMemory:
	case CacheRedis:
		if c.Cache.Redis.Addr == "" {
			return errors.New("config: cache.redis.addr is required")
		}
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if c.MaxSteps < 0 {
		return errors.New("config: max_steps must not be negative")
	}
	return nil
}

// Options builds run options from c. The returned function releases the
// bridge, cache client and logger it created; call it when the runs
// using the options are over.
func (c *Config) Options() ([]cesk.Option, func() error, error) {
	var (
		opts    []cesk.Option
		closers []func() error
	)
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	if c.Env != nil {
		opts = append(opts, cesk.WithEnv(c.Env))
	}
	if c.Store != nil {
		opts = append(opts, cesk.WithStore(c.Store))
	}
	if c.Trace != nil {
		opts = append(opts, cesk.WithTrace(*c.Trace))
	}
	if c.MaxSteps > 0 {
		opts = append(opts, cesk.WithMaxSteps(c.MaxSteps))
	}

	var clock cesk.Clock = cesk.RealClock()
	if c.Clock.Simulated {
		start := c.Clock.Start
		if start.IsZero() {
			start = time.Unix(0, 0).UTC()
		}
		clock = cesk.NewSimulatedClock(start)
	}
	opts = append(opts, cesk.WithClock(clock))

	logger := cesk.Logger()
	if c.Log.Level != "" {
		l, err := c.Log.build()
		if err != nil {
			return nil, nil, err
		}
		logger = l
		opts = append(opts, cesk.WithLogger(l))
		closers = append(closers, func() error {
			_ = l.Sync()
			return nil
		})
	}

	var cache cesk.CacheBackend = cesk.NewMemoryCache(clock)
	if c.Cache.Backend == CacheRedis {
		r := c.Cache.Redis
		var ropts []rediscache.Option
		if r.Prefix != "" {
			ropts = append(ropts, rediscache.WithPrefix(r.Prefix))
		}
		if r.TTL > 0 {
			ropts = append(ropts, rediscache.WithTTL(r.TTL))
		}
		b := rediscache.New(r.Addr, r.Password, r.DB, ropts...)
		cache = b
		closers = append(closers, b.Close)
	}

	if c.Bridge.Enabled {
		b := cesk.NewBridge(cesk.WithWorkers(c.Bridge.Workers), cesk.WithBridgeLogger(logger))
		closers = append(closers, b.Close)
		opts = append(opts,
			cesk.WithBridge(b),
			cesk.WithHandlers(cesk.AsyncHandlers(b, cesk.UsingCache(cache))...),
		)
	} else {
		opts = append(opts, cesk.WithHandlers(cesk.SyncHandlers(cesk.UsingCache(cache))...))
	}
	return opts, closeAll, nil
}

func (l LogConfig) build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("config: log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if l.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("config: build logger: %w", err)
	}
	return logger, nil
}
