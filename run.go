// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"context"

	"go.uber.org/zap"
)

// RunOptions holds the resolved configuration of a run.
type RunOptions struct {
	Env      Env
	Store    Store
	Handlers []Handler
	Bridge   *Bridge
	Clock    Clock
	Logger   *zap.Logger
	Observer Observer
	// Trace records call, dispatch and spawn events. On by default.
	Trace bool
	// MaxSteps bounds the number of machine steps; zero means unbounded.
	MaxSteps int

	handlersSet bool
}

// Option configures a run.
type Option func(*RunOptions)

// ResolveOptions applies functional options over the defaults. Unless
// handlers are set, the default set is used with a fresh [MemoryCache] on
// the run clock.
func ResolveOptions(opts ...Option) RunOptions {
	o := RunOptions{
		Clock:    RealClock(),
		Logger:   Logger(),
		Observer: nopObserver{},
		Trace:    true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.handlersSet {
		cache := UsingCache(NewMemoryCache(o.Clock))
		if o.Bridge != nil {
			o.Handlers = AsyncHandlers(o.Bridge, cache)
		} else {
			o.Handlers = SyncHandlers(cache)
		}
	}
	return o
}

// WithEnv sets the initial environment.
func WithEnv(kv map[string]Value) Option {
	return func(o *RunOptions) {
		o.Env = NewEnv(kv)
	}
}

// WithStore sets the initial store. Reserved keys are ignored.
func WithStore(kv map[string]Value) Option {
	return func(o *RunOptions) {
		o.Store = NewStore(kv)
	}
}

// WithHandlers sets the handler stack, innermost first. An empty stack is
// valid: every effect is then unhandled.
func WithHandlers(hs ...Handler) Option {
	return func(o *RunOptions) {
		o.Handlers = hs
		o.handlersSet = true
	}
}

// WithBridge runs external effects through b. Unless handlers are set
// explicitly, the asynchronous handler set is used.
func WithBridge(b *Bridge) Option {
	return func(o *RunOptions) {
		o.Bridge = b
	}
}

// WithClock sets the run's time source.
func WithClock(c Clock) Option {
	return func(o *RunOptions) {
		if c != nil {
			o.Clock = c
		}
	}
}

// WithLogger sets the run's logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *RunOptions) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithObserver registers scheduler notifications.
func WithObserver(obs Observer) Option {
	return func(o *RunOptions) {
		if obs != nil {
			o.Observer = obs
		}
	}
}

// WithTrace turns event recording on or off.
func WithTrace(on bool) Option {
	return func(o *RunOptions) {
		o.Trace = on
	}
}

// WithMaxSteps bounds the run to n machine steps. Exceeding the budget
// fails the run with an *InvariantError.
func WithMaxSteps(n int) Option {
	return func(o *RunOptions) {
		o.MaxSteps = n
	}
}

// RunResult is the outcome of a run. The trace is part of the result,
// never hidden on the error.
type RunResult struct {
	RunID string
	Value Value
	Err   error
	// Store is the root task's final store, without reserved keys.
	Store map[string]Value
	// Log is the root task's log, in order.
	Log   []Value
	Trace []Event
	Tasks []TaskInfo
	Steps int
}

// IsOk reports whether the run succeeded.
func (r RunResult) IsOk() bool { return r.Err == nil }

// Traceback renders the failure narrative of the run, or "" on success.
func (r RunResult) Traceback(opts TracebackOptions) string {
	if r.Err == nil {
		return ""
	}
	return Traceback(r.Err, r.Trace, opts)
}

// Run executes p to completion on the calling goroutine.
func Run(ctx context.Context, p Program, opts ...Option) RunResult {
	in := NewInterpreter(p, opts...)
	defer in.Close()
	for !in.Next(ctx, PollBlock) {
	}
	return in.Result()
}

// RunAsync executes p on a new goroutine with external effects bridged to
// background workers. If no bridge is supplied, one is created for the
// run and closed when it ends.
func RunAsync(ctx context.Context, p Program, opts ...Option) <-chan RunResult {
	o := ResolveOptions(opts...)
	var own *Bridge
	if o.Bridge == nil {
		own = NewBridge(WithBridgeLogger(o.Logger))
		opts = append(opts, WithBridge(own))
	}
	ch := make(chan RunResult, 1)
	go func() {
		defer close(ch)
		r := Run(ctx, p, opts...)
		if own != nil {
			_ = own.Close()
		}
		ch <- r
	}()
	return ch
}
