// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors.
var (
	// ErrNilProgram is raised when a nil Program is evaluated.
	ErrNilProgram = errors.New("cesk: nil program")

	// ErrReservedKey is raised when user code writes a store key that
	// begins with the engine-internal prefix.
	ErrReservedKey = errors.New("cesk: reserved store key")

	// ErrUnknownTask is raised when joining or cancelling a task id the
	// machine has never seen.
	ErrUnknownTask = errors.New("cesk: unknown task")

	// ErrBridgeClosed is delivered to suspensions submitted after the
	// bridge has been shut down.
	ErrBridgeClosed = errors.New("cesk: bridge closed")

	// ErrDeadlock is the cause of the invariant error raised when every
	// live task is blocked and nothing can wake them.
	ErrDeadlock = errors.New("cesk: all tasks blocked")
)

// Kind categorizes errors produced by the runtime.
type Kind string

const (
	KindUser      Kind = "user"      // raised by program logic
	KindHandler   Kind = "handler"   // a handler failed
	KindUnhandled Kind = "unhandled" // no handler accepted the effect
	KindInvariant Kind = "invariant" // engine contract violation
	KindCancelled Kind = "cancelled" // cooperative cancellation signal
)

// KindOf reports the runtime category of err.
func KindOf(err error) Kind {
	var (
		inv *InvariantError
		unh *UnhandledEffectError
		can *CancelledError
		hnd *HandlerError
	)
	switch {
	case errors.As(err, &inv):
		return KindInvariant
	case errors.As(err, &unh):
		return KindUnhandled
	case errors.As(err, &can):
		return KindCancelled
	case errors.As(err, &hnd):
		return KindHandler
	}
	return KindUser
}

// IsRecoverable reports whether err may be converted by Safe, Catch,
// Recover and Retry. Unhandled-effect errors, invariant violations and
// cancellation signals always keep unwinding.
func IsRecoverable(err error) bool {
	switch KindOf(err) {
	case KindInvariant, KindUnhandled, KindCancelled:
		return false
	}
	return true
}

// HandlerError annotates an error raised while a handler processed an
// effect.
type HandlerError struct {
	Handler string
	Effect  string
	Err     error
}

func (e *HandlerError) Error() string {
	return "cesk: handler " + e.Handler + " failed on " + e.Effect + ": " + errString(e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// UnhandledEffectError reports that no handler in the active stack
// accepted an effect.
type UnhandledEffectError struct {
	// Type is the effect's Go type name, e.g. "cesk.Get".
	Type    string
	Summary string
}

func (e *UnhandledEffectError) Error() string {
	return "cesk: unhandled effect " + e.Type + " (" + e.Summary + ")"
}

// InvariantError reports an engine contract violation: a one-shot
// continuation resumed twice, a suspension completed twice, a corrupt
// frame. It is never converted by recovery frames.
type InvariantError struct {
	Op     string
	Detail string
	Err    error
}

func (e *InvariantError) Error() string {
	var b strings.Builder
	b.WriteString("cesk: invariant violated in ")
	b.WriteString(e.Op)
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Err.Error())
		b.WriteByte(')')
	}
	return b.String()
}

func (e *InvariantError) Unwrap() error { return e.Err }

func invariant(op, format string, args ...any) *InvariantError {
	return &InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// CancelledError is the signal a cancelled task observes at its next
// suspension point.
type CancelledError struct {
	Task TaskID
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("cesk: task %d cancelled", e.Task)
}

// KeyError reports a missing environment, store or cache key.
type KeyError struct {
	Scope string
	Key   string
}

func (e *KeyError) Error() string {
	if e.Scope == reservedScope {
		return "cesk: reserved store key: " + e.Key
	}
	return "cesk: " + e.Scope + " key not found: " + e.Key
}

// Is reports a rejected reserved key as [ErrReservedKey].
func (e *KeyError) Is(target error) bool {
	return target == ErrReservedKey && e.Scope == reservedScope
}

const reservedScope = "reserved store"

// TimeoutError is raised by Timeout when the deadline wins the race.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return "cesk: timed out after " + e.After.String()
}

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("cesk: panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
