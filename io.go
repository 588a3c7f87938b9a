// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"context"
	"time"
)

// External effect operations: I/O, foreign awaits and time.
// Both profiles accept the same effects; the synchronous profile runs
// them on the interpreter goroutine, the asynchronous profile hands them
// to the [Bridge] and suspends the task until they complete.

// IOOp runs a blocking Go function.
type IOOp struct {
	EffectBase
	F func(ctx context.Context) (Value, error)
}

// IO performs f. The context is the run's context.
func IO(f func(ctx context.Context) (Value, error)) IOOp {
	return IOOp{EffectBase: At(), F: f}
}

func (IOOp) String() string { return "IO(...)" }

// DispatchSync handles IO in synchronous dispatch.
func (e IOOp) DispatchSync(ctx *DispatchContext) Outcome {
	v, err := callGuarded(ctx.Context, e.F)
	if err != nil {
		return Throw(err)
	}
	return Resume(v)
}

// DispatchAsync handles IO in asynchronous dispatch.
func (e IOOp) DispatchAsync(_ *DispatchContext, b *Bridge) Outcome {
	return Perform(SuspendAction{Start: func(h *SuspensionHandle) {
		b.Go(h, e.F)
	}})
}

// Completion is the outcome of a foreign asynchronous operation.
type Completion struct {
	Value Value
	Err   error
}

// AwaitOp waits for a foreign operation to deliver its completion on C.
type AwaitOp struct {
	EffectBase
	C <-chan Completion
}

// Await waits for the first completion sent on c. A closed channel
// completes with nil.
func Await(c <-chan Completion) AwaitOp {
	return AwaitOp{EffectBase: At(), C: c}
}

func (AwaitOp) String() string { return "Await(...)" }

func (e AwaitOp) wait(ctx context.Context) (Value, error) {
	select {
	case c := <-e.C:
		return c.Value, c.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DispatchSync handles Await in synchronous dispatch.
func (e AwaitOp) DispatchSync(ctx *DispatchContext) Outcome {
	v, err := e.wait(ctx.Context)
	if err != nil {
		return Throw(err)
	}
	return Resume(v)
}

// DispatchAsync handles Await in asynchronous dispatch.
func (e AwaitOp) DispatchAsync(_ *DispatchContext, b *Bridge) Outcome {
	return Perform(SuspendAction{Start: func(h *SuspensionHandle) {
		b.Go(h, e.wait)
	}})
}

// DelayOp suspends the task for D.
type DelayOp struct {
	EffectBase
	D time.Duration
}

// Delay suspends the task for d and produces nil.
func Delay(d time.Duration) DelayOp {
	return DelayOp{EffectBase: At(), D: d}
}

func (e DelayOp) String() string { return "Delay(" + e.D.String() + ")" }

// DispatchSync handles Delay in synchronous dispatch.
func (e DelayOp) DispatchSync(ctx *DispatchContext) Outcome {
	return Perform(WaitAction{Cond: Deadline{At: ctx.Now.Add(e.D)}})
}

// DispatchAsync handles Delay in asynchronous dispatch. Simulated clocks
// keep the scheduler's deadline wait so time stays deterministic.
func (e DelayOp) DispatchAsync(ctx *DispatchContext, b *Bridge) Outcome {
	if _, ok := ctx.Clock.(*SimulatedClock); ok {
		return e.DispatchSync(ctx)
	}
	return Perform(SuspendAction{Start: func(h *SuspensionHandle) {
		b.After(h, e.D)
	}})
}

// WaitUntilOp suspends the task until At.
type WaitUntilOp struct {
	EffectBase
	At time.Time
}

// WaitUntil suspends the task until the run clock reaches t.
func WaitUntil(t time.Time) WaitUntilOp {
	return WaitUntilOp{EffectBase: At(), At: t}
}

func (e WaitUntilOp) String() string { return "WaitUntil(" + e.At.Format(time.RFC3339Nano) + ")" }

// DispatchSync handles WaitUntil in both profiles.
func (e WaitUntilOp) DispatchSync(_ *DispatchContext) Outcome {
	return Perform(WaitAction{Cond: Deadline{At: e.At}})
}

// NowOp reads the run clock.
type NowOp struct {
	EffectBase
}

// Now produces the current time of the run clock.
func Now() NowOp {
	return NowOp{EffectBase: At()}
}

func (NowOp) String() string { return "Now()" }

// DispatchSync handles Now in both profiles.
func (NowOp) DispatchSync(ctx *DispatchContext) Outcome {
	return Resume(ctx.Now)
}

type syncOp interface {
	DispatchSync(ctx *DispatchContext) Outcome
}

type asyncOp interface {
	DispatchAsync(ctx *DispatchContext, b *Bridge) Outcome
}

type ioHandler struct{}

// IOHandler returns the synchronous handler for IO, Await, Delay,
// WaitUntil and Now.
func IOHandler() Handler { return ioHandler{} }

func (ioHandler) Name() string { return "io" }

func (ioHandler) Accepts(e Effect) bool {
	_, ok := e.(syncOp)
	return ok
}

func (ioHandler) Handle(ctx *DispatchContext, e Effect) Outcome {
	if op, ok := e.(syncOp); ok {
		return op.DispatchSync(ctx)
	}
	return Delegate()
}

type asyncIOHandler struct {
	bridge *Bridge
}

// AsyncIOHandler returns the handler that bridges IO, Await and Delay
// through b. WaitUntil and Now are handled as in [IOHandler].
func AsyncIOHandler(b *Bridge) Handler { return asyncIOHandler{bridge: b} }

func (asyncIOHandler) Name() string { return "async-io" }

func (asyncIOHandler) Accepts(e Effect) bool {
	_, ok := e.(syncOp)
	return ok
}

func (h asyncIOHandler) Handle(ctx *DispatchContext, e Effect) Outcome {
	if op, ok := e.(asyncOp); ok {
		return op.DispatchAsync(ctx, h.bridge)
	}
	if op, ok := e.(syncOp); ok {
		return op.DispatchSync(ctx)
	}
	return Delegate()
}
