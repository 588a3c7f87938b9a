// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultWorkers bounds the number of concurrently running bridge jobs.
const DefaultWorkers = 64

// Bridge runs externally driven operations (blocking I/O, foreign awaits,
// timers) off the interpreter goroutine and feeds their completions back
// through [SuspensionHandle]s.
//
// A Bridge is an explicit lifecycle object: create it with [NewBridge],
// share it across runs, and shut it down with Close.
type Bridge struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
	logger *zap.Logger
}

// BridgeOption configures a Bridge.
type BridgeOption func(*bridgeConfig)

type bridgeConfig struct {
	workers int64
	logger  *zap.Logger
}

// WithWorkers bounds concurrent bridge jobs. Values below 1 select
// [DefaultWorkers].
func WithWorkers(n int) BridgeOption {
	return func(c *bridgeConfig) {
		if n > 0 {
			c.workers = int64(n)
		}
	}
}

// WithBridgeLogger sets the bridge logger.
func WithBridgeLogger(l *zap.Logger) BridgeOption {
	return func(c *bridgeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewBridge starts a bridge.
func NewBridge(opts ...BridgeOption) *Bridge {
	cfg := bridgeConfig{workers: DefaultWorkers, logger: Logger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		sem:    semaphore.NewWeighted(cfg.workers),
		ctx:    ctx,
		cancel: cancel,
		logger: cfg.logger,
	}
}

// Go runs f on a bridge worker and completes h with its outcome. The
// context passed to f is cancelled when the bridge closes.
func (b *Bridge) Go(h *SuspensionHandle, f func(ctx context.Context) (Value, error)) {
	if b.closed.Load() {
		_ = h.Fail(ErrBridgeClosed)
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.sem.Acquire(b.ctx, 1); err != nil {
			_ = h.Fail(ErrBridgeClosed)
			return
		}
		defer b.sem.Release(1)
		v, err := callGuarded(b.ctx, f)
		if err != nil {
			_ = h.Fail(err)
			return
		}
		_ = h.Complete(v)
	}()
}

// After completes h with nil once d has elapsed.
func (b *Bridge) After(h *SuspensionHandle, d time.Duration) {
	if b.closed.Load() {
		_ = h.Fail(ErrBridgeClosed)
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			_ = h.Complete(nil)
		case <-b.ctx.Done():
			_ = h.Fail(ErrBridgeClosed)
		case <-h.quit:
		}
	}()
}

// Close cancels outstanding jobs and waits for the workers to exit.
// Calling Close more than once is a no-op.
func (b *Bridge) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.cancel()
	b.wg.Wait()
	b.logger.Debug("bridge closed")
	return nil
}

func callGuarded(ctx context.Context, f func(ctx context.Context) (Value, error)) (v Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return f(ctx)
}

// delivery is one external completion on its way to the scheduler.
type delivery struct {
	token uint64
	value Value
	err   error
}

// SuspensionHandle completes one externally driven suspension. It is safe
// for use from any goroutine; exactly one of Complete and Fail succeeds.
type SuspensionHandle struct {
	token uint64
	task  TaskID
	done  atomic.Bool
	inbox chan<- delivery
	quit  <-chan struct{}
}

// Task returns the suspended task.
func (h *SuspensionHandle) Task() TaskID { return h.task }

// Done reports whether the handle has been completed.
func (h *SuspensionHandle) Done() bool { return h.done.Load() }

// Complete resumes the suspended task with v. A second completion returns
// an *InvariantError and has no effect.
func (h *SuspensionHandle) Complete(v Value) error {
	return h.deliver(delivery{token: h.token, value: v})
}

// Fail resumes the suspended task by raising err. A second completion
// returns an *InvariantError and has no effect.
func (h *SuspensionHandle) Fail(err error) error {
	if err == nil {
		err = invariant("suspension", "%s failed with a nil error", h.task)
	}
	return h.deliver(delivery{token: h.token, err: err})
}

func (h *SuspensionHandle) deliver(d delivery) error {
	if !h.done.CompareAndSwap(false, true) {
		return invariant("suspension", "handle for %s completed twice", h.task)
	}
	select {
	case h.inbox <- d:
	case <-h.quit:
	}
	return nil
}
