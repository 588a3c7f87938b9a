// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"strconv"
	"time"
)

// Control effect operations.
// Safe, Catch, Recover, Retry and Finally install recovery frames around a
// body. Only recoverable errors are converted; unhandled effects,
// invariant violations and cancellation pass through, running finally
// cleanups on the way out.

// Result represents a value that is either an error or a success.
type Result struct {
	Value Value
	Err   error
}

// Ok creates a successful Result.
func Ok(v Value) Result {
	return Result{Value: v}
}

// Errored creates a failed Result.
func Errored(err error) Result {
	return Result{Err: err}
}

// IsOk returns true if r holds a value.
func (r Result) IsOk() bool {
	return r.Err == nil
}

// Get returns the value and error of r.
func (r Result) Get() (Value, error) {
	return r.Value, r.Err
}

// Program returns a program producing r's value or raising its error.
func (r Result) Program() Program {
	if r.Err != nil {
		return Fail(r.Err)
	}
	return Pure(r.Value)
}

func (r Result) String() string {
	if r.Err != nil {
		return "Err(" + r.Err.Error() + ")"
	}
	return "Ok(" + summarize(r.Value) + ")"
}

// MatchResult pattern matches on r, calling onErr or onOk.
func MatchResult[T any](r Result, onErr func(error) T, onOk func(Value) T) T {
	if r.Err != nil {
		return onErr(r.Err)
	}
	return onOk(r.Value)
}

// MapResult applies f to the value of a successful r.
func MapResult(r Result, f func(Value) Value) Result {
	if r.Err != nil {
		return r
	}
	return Ok(f(r.Value))
}

// FlatMapResult sequences two Result computations.
func FlatMapResult(r Result, f func(Value) Result) Result {
	if r.Err != nil {
		return r
	}
	return f(r.Value)
}

// SafeOp runs Body and produces its outcome as a [Result].
type SafeOp struct {
	EffectBase
	Body Program
}

// Safe runs body, converting a recoverable error into an errored Result
// and a value into an ok one.
func Safe(body Program) SafeOp {
	return SafeOp{EffectBase: At(), Body: body}
}

func (SafeOp) String() string { return "Safe(...)" }

// DispatchControl handles Safe in control dispatch.
func (e SafeOp) DispatchControl(*DispatchContext) Outcome {
	return Perform(RunAction{Program: e.Body, Frames: []Frame{&safeFrame{}}})
}

// CatchOp runs Body and hands a recoverable error to Handler.
type CatchOp struct {
	EffectBase
	Body    Program
	Handler func(error) Program
}

// Catch runs body; a recoverable error continues as handler(err).
func Catch(body Program, handler func(error) Program) CatchOp {
	return CatchOp{EffectBase: At(), Body: body, Handler: handler}
}

func (CatchOp) String() string { return "Catch(...)" }

// DispatchControl handles Catch in control dispatch.
func (e CatchOp) DispatchControl(*DispatchContext) Outcome {
	if e.Handler == nil {
		return Throw(invariant("catch", "nil handler"))
	}
	return Perform(RunAction{Program: e.Body, Frames: []Frame{&catchFrame{handler: e.Handler}}})
}

// RecoverOp runs Body and replaces a recoverable error with a value.
type RecoverOp struct {
	EffectBase
	Body     Program
	Fallback func(error) Value
}

// Recover runs body; a recoverable error produces fallback(err) instead.
func Recover(body Program, fallback func(error) Value) RecoverOp {
	return RecoverOp{EffectBase: At(), Body: body, Fallback: fallback}
}

func (RecoverOp) String() string { return "Recover(...)" }

// DispatchControl handles Recover in control dispatch.
func (e RecoverOp) DispatchControl(*DispatchContext) Outcome {
	if e.Fallback == nil {
		return Throw(invariant("recover", "nil fallback"))
	}
	f := e.Fallback
	handler := func(err error) Program {
		return Lazy(func() Program { return Pure(f(err)) })
	}
	return Perform(RunAction{Program: e.Body, Frames: []Frame{&catchFrame{handler: handler}}})
}

// RetryOp runs Body up to Attempts times while it fails recoverably.
type RetryOp struct {
	EffectBase
	Body     Program
	Attempts int
	Delay    time.Duration
}

// Retry runs body, re-running it after a recoverable error until it
// succeeds or attempts runs are used up; the last error is raised. Delay,
// if positive, is waited before each re-run. Body must be re-runnable,
// e.g. built with [Lazy] or [Gen].
func Retry(attempts int, delay time.Duration, body Program) RetryOp {
	return RetryOp{EffectBase: At(), Body: body, Attempts: attempts, Delay: delay}
}

func (e RetryOp) String() string { return "Retry(" + strconv.Itoa(e.Attempts) + ")" }

// DispatchControl handles Retry in control dispatch.
func (e RetryOp) DispatchControl(*DispatchContext) Outcome {
	left := max(e.Attempts, 1) - 1
	f := &retryFrame{body: e.Body, left: left, attempt: 1, delay: e.Delay}
	return Perform(RunAction{Program: e.Body, Frames: []Frame{f}})
}

// FinallyOp runs Body, then Cleanup on every exit path.
type FinallyOp struct {
	EffectBase
	Body    Program
	Cleanup Program
}

// Finally runs body and then cleanup, whether body produced a value or an
// error of any kind. The body outcome is kept unless cleanup itself fails.
func Finally(body, cleanup Program) FinallyOp {
	return FinallyOp{EffectBase: At(), Body: body, Cleanup: cleanup}
}

func (FinallyOp) String() string { return "Finally(...)" }

// DispatchControl handles Finally in control dispatch.
func (e FinallyOp) DispatchControl(*DispatchContext) Outcome {
	return Perform(RunAction{Program: e.Body, Frames: []Frame{&finallyFrame{cleanup: e.Cleanup}}})
}

// Bracket acquires a resource, passes it to use and releases it through
// [Finally]. Release sees the acquired value and runs on every exit from
// use, cancellation included. Nothing is released if acquire fails.
func Bracket(acquire Program, release func(Value) Program, use func(Value) Program) Program {
	return Bind(acquire, func(r Value) Program {
		return Finally(Lazy(func() Program { return use(r) }), Lazy(func() Program { return release(r) }))
	})
}

// OnError runs cleanup only if body raises a recoverable error, then
// raises the error again.
func OnError(body Program, cleanup func(error) Program) Program {
	return Catch(body, func(err error) Program {
		return Then(cleanup(err), Fail(err))
	})
}

type controlOp interface {
	DispatchControl(ctx *DispatchContext) Outcome
}

type controlHandler struct{}

// ControlHandler returns the handler for Safe, Catch, Recover, Retry,
// Finally and Intercept.
func ControlHandler() Handler { return controlHandler{} }

func (controlHandler) Name() string { return "control" }

func (controlHandler) Accepts(e Effect) bool {
	_, ok := e.(controlOp)
	return ok
}

func (controlHandler) Handle(ctx *DispatchContext, e Effect) Outcome {
	if op, ok := e.(controlOp); ok {
		return op.DispatchControl(ctx)
	}
	return Delegate()
}
