// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Handler gives semantics to effects.
//
// Handlers are tried innermost first: index 0 of the handler list is
// offered each effect before index 1. A handler that does not recognise an
// effect returns [Delegate]. Handlers that implement [Accepter] are not
// shown effects outside their accepted set at all.
type Handler interface {
	Name() string
	Handle(ctx *DispatchContext, e Effect) Outcome
}

// Accepter declares the closed set of effects a handler inspects.
type Accepter interface {
	Accepts(e Effect) bool
}

type outcomeKind uint8

const (
	outcomeDelegate outcomeKind = iota
	outcomeResume
	outcomeThrow
	outcomePerform
	outcomeTransfer
)

// Outcome is a handler's decision for one effect.
type Outcome struct {
	kind   outcomeKind
	value  Value
	err    error
	store  *Store
	action Action
	then   func(Outcome) Outcome
	cont   *Continuation
}

// Resume continues the suspended task with v.
func Resume(v Value) Outcome {
	return Outcome{kind: outcomeResume, value: v}
}

// WithStore replaces the task's store as part of a resumption.
func (o Outcome) WithStore(s Store) Outcome {
	o.store = &s
	return o
}

// Throw continues the suspended task by raising err at the effect site.
// Recoverable errors are annotated with the handler and effect.
func Throw(err error) Outcome {
	return Outcome{kind: outcomeThrow, err: err}
}

// Perform asks the scheduler to carry out an action on the task's behalf.
func Perform(a Action) Outcome {
	return Outcome{kind: outcomePerform, action: a}
}

// Delegate passes the effect to the next handler.
func Delegate() Outcome {
	return Outcome{kind: outcomeDelegate}
}

// DelegateThen passes the effect to the next handler and maps the outcome
// it produces. Mappings of nested delegations apply innermost last.
func DelegateThen(f func(Outcome) Outcome) Outcome {
	return Outcome{kind: outcomeDelegate, then: f}
}

// Transfer hands control to a parked continuation instead of resuming
// the current task. The target task continues with v; the current task
// parks at its suspension point, where it can itself be resumed by a later
// Transfer to the continuation captured from this dispatch.
func Transfer(k *Continuation, v Value) Outcome {
	return Outcome{kind: outcomeTransfer, cont: k, value: v}
}

// Park suspends the current task until another dispatch transfers to the
// continuation captured from this one.
func Park() Outcome {
	return Perform(WaitAction{Cond: Parked{}})
}

// Continue runs p in place of the effect. Effects performed by p are
// dispatched through the full handler stack.
func Continue(p Program) Outcome {
	return Perform(RunAction{Program: p})
}

// Handled runs p in place of the effect. Effects performed by p are
// offered only to handlers outside the one handling this effect, so a
// handler can build on the handlers beneath it without seeing its own
// requests.
func Handled(p Program) Outcome {
	return Perform(RunAction{Program: p, Scoped: true})
}

// Value reports the resumption value, for use in DelegateThen mappings.
func (o Outcome) Value() (Value, bool) {
	return o.value, o.kind == outcomeResume
}

// Err reports the thrown error, for use in DelegateThen mappings.
func (o Outcome) Err() (error, bool) {
	return o.err, o.kind == outcomeThrow
}

func (o Outcome) status() DispatchStatus {
	switch o.kind {
	case outcomeResume:
		return StatusResumed
	case outcomeThrow:
		return StatusThrew
	case outcomeTransfer:
		return StatusTransferred
	case outcomeDelegate:
		return StatusDelegated
	}
	return StatusActive
}

// Action is work a handler asks the scheduler to perform.
type Action interface {
	action() // unexported marker method
}

// RunAction runs Program as the task's control. Frames are pushed first,
// bottom first, and Env, if set, replaces the task environment beneath
// them.
type RunAction struct {
	Program Program
	Frames  []Frame
	Env     *Env
	// Scoped dispatches effects performed by Program from the next handler
	// outward.
	Scoped bool
}

func (RunAction) action() {}

// SpawnAction creates one child task per program, in order, and continues
// the current task with Then applied to the new ids.
type SpawnAction struct {
	Programs []Program
	Names    []string
	Then     func(ids []TaskID) Program
}

func (SpawnAction) action() {}

// WaitAction blocks the task on Cond. It resumes with nil for deadlines
// and parks, and with the finished task's outcome for TasksDone.
type WaitAction struct {
	Cond Condition
}

func (WaitAction) action() {}

// CancelAction requests cancellation of IDs and resumes the task with nil.
type CancelAction struct {
	IDs []TaskID
}

func (CancelAction) action() {}

// SuspendAction parks the task on a new suspension handle and calls Start
// with it. Start must arrange for exactly one Complete or Fail call, from
// any goroutine.
type SuspendAction struct {
	Start func(h *SuspensionHandle)
}

func (SuspendAction) action() {}

// Parked blocks a task until a [Transfer] to its continuation.
type Parked struct {
	Point uint64
}

func (Parked) condition() {}

// DispatchContext is the view of the suspended task offered to handlers.
type DispatchContext struct {
	Context context.Context
	Task    TaskID
	Env     Env
	Store   Store
	Now     time.Time
	Clock   Clock
	Logger  *zap.Logger
	Bridge  *Bridge

	kont  *Kont
	point uint64
	cont  *Continuation
}

// Frames returns a description of the task's continuation stack, top first.
func (c *DispatchContext) Frames() []string {
	fs := c.kont.Frames()
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = FrameName(f)
	}
	return out
}

// Continuation returns the one-shot continuation of the suspended task at
// this dispatch. Repeated calls return the same value.
func (c *DispatchContext) Continuation() *Continuation {
	if c.cont == nil {
		c.cont = &Continuation{task: c.Task, point: c.point}
	}
	return c.cont
}

type handlerFunc struct {
	name string
	f    func(ctx *DispatchContext, e Effect) Outcome
}

func (h handlerFunc) Name() string                                  { return h.name }
func (h handlerFunc) Handle(ctx *DispatchContext, e Effect) Outcome { return h.f(ctx, e) }

// HandlerFunc adapts a function to the [Handler] interface.
func HandlerFunc(name string, f func(ctx *DispatchContext, e Effect) Outcome) Handler {
	return handlerFunc{name: name, f: f}
}

type handlerFor[E Effect] struct {
	name string
	f    func(ctx *DispatchContext, e E) Outcome
}

func (h handlerFor[E]) Name() string { return h.name }

func (h handlerFor[E]) Accepts(e Effect) bool {
	_, ok := e.(E)
	return ok
}

func (h handlerFor[E]) Handle(ctx *DispatchContext, e Effect) Outcome {
	if ee, ok := e.(E); ok {
		return h.f(ctx, ee)
	}
	return Delegate()
}

// HandlerFor builds a handler that accepts exactly the effect type E.
//
//	h := cesk.HandlerFor("fetch", func(ctx *cesk.DispatchContext, e Fetch) cesk.Outcome {
//		return cesk.Resume(lookup(e.URL))
//	})
func HandlerFor[E Effect](name string, f func(ctx *DispatchContext, e E) Outcome) Handler {
	return handlerFor[E]{name: name, f: f}
}
