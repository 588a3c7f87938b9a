// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// inboxSize bounds completions buffered between bridge workers and the
// scheduler.
const inboxSize = 256

// PollMode selects how [Interpreter.Next] waits when every live task is
// blocked.
type PollMode struct {
	block   bool
	timeout time.Duration
}

var (
	// PollBlock waits until a completion arrives or a deadline passes.
	PollBlock = PollMode{block: true}
	// PollNow returns immediately when nothing is ready.
	PollNow = PollMode{}
)

// PollTimeout waits at most d for a completion or deadline.
func PollTimeout(d time.Duration) PollMode {
	return PollMode{timeout: d}
}

// Interpreter drives a [Machine]: it steps tasks, dispatches surfaced
// effects to handlers, applies their outcomes and feeds external
// completions back in.
//
// An Interpreter is owned by one goroutine. Only [SuspensionHandle]s cross
// goroutines, and they communicate through the interpreter inbox.
type Interpreter struct {
	m        *Machine
	handlers []Handler
	clock    Clock
	bridge   *Bridge
	logger   *zap.Logger
	observer Observer
	maxSteps int
	runID    string

	inbox     chan delivery
	quit      chan struct{}
	closeOnce sync.Once

	finished bool
	result   RunResult
}

// NewInterpreter prepares a run of p.
func NewInterpreter(p Program, opts ...Option) *Interpreter {
	o := ResolveOptions(opts...)
	runID := uuid.NewString()
	return &Interpreter{
		m:        NewMachine(p, o.Env, o.Store).WithTracing(o.Trace),
		handlers: o.Handlers,
		clock:    o.Clock,
		bridge:   o.Bridge,
		logger:   o.Logger.With(zap.String("run", runID)),
		observer: o.Observer,
		maxSteps: o.MaxSteps,
		runID:    runID,
		inbox:    make(chan delivery, inboxSize),
		quit:     make(chan struct{}),
	}
}

// RunID returns the unique id of this run.
func (in *Interpreter) RunID() string { return in.runID }

// Machine returns the current machine state.
func (in *Interpreter) Machine() *Machine { return in.m }

// Finished reports whether the run has ended.
func (in *Interpreter) Finished() bool { return in.finished }

// Result returns the outcome of a finished run.
func (in *Interpreter) Result() RunResult { return in.result }

// Close releases the inbox. Completions arriving afterwards are dropped.
func (in *Interpreter) Close() {
	in.closeOnce.Do(func() { close(in.quit) })
}

// Next advances the run until it finishes or, with every live task
// blocked, mode says to stop waiting. It reports whether the run has
// finished.
func (in *Interpreter) Next(ctx context.Context, mode PollMode) bool {
	for !in.finished {
		if err := ctx.Err(); err != nil {
			in.abort(err)
			break
		}
		in.drain()
		if in.maxSteps > 0 && in.m.steps >= in.maxSteps {
			in.abort(invariant("run", "step budget of %d exhausted", in.maxSteps))
			break
		}
		r := Step(in.m)
		in.m = r.Machine
		if r.Finished != 0 {
			in.exited(r.Finished)
		}
		switch r.Kind {
		case StepSuspended:
			in.handle(ctx, r)
		case StepDone, StepFailed:
			in.complete(ctx, r.Value, r.Err)
		case StepIdle:
			if !in.idle(ctx, mode) {
				return in.finished
			}
		}
	}
	return true
}

// handle dispatches the effect surfaced by r and applies the outcome.
func (in *Interpreter) handle(ctx context.Context, r StepResult) {
	t, ok := in.m.Task(r.Task)
	if !ok {
		in.abort(invariant("dispatch", "suspended %s is unknown", r.Task))
		return
	}
	dctx := &DispatchContext{
		Context: ctx,
		Task:    t.ID,
		Env:     t.Env,
		Store:   t.Store,
		Now:     in.clock.Now(),
		Clock:   in.clock,
		Logger:  in.logger,
		Bridge:  in.bridge,
		kont:    t.Kont,
		point:   uint64(in.m.steps),
	}
	begin := time.Now()
	o, at, chain := dispatch(in.handlers, handlerDepth(t.Kont), dctx, r.Effect)
	elapsed := time.Since(begin)

	handler := ""
	if at >= 0 {
		handler = in.handlers[at].Name()
	}
	status := in.apply(t, o, at, handler, dctx, r.Effect, chain)

	in.observer.ObserveDispatch(DispatchInfo{
		Task:     t.ID,
		Effect:   EffectType(r.Effect),
		Category: Classify(r.Effect),
		Handler:  handler,
		Status:   status,
		Duration: elapsed,
	})
	if ce := in.logger.Check(zap.DebugLevel, "effect dispatched"); ce != nil {
		ce.Write(
			zap.Stringer("task", t.ID),
			zap.String("effect", EffectType(r.Effect)),
			zap.String("handler", handler),
			zap.String("status", string(status)),
			zap.Duration("elapsed", elapsed),
		)
	}
}

// apply commits a handler outcome for t and records the dispatch event.
func (in *Interpreter) apply(t *Task, o Outcome, at int, handler string, dctx *DispatchContext, e Effect, chain []ChainStep) DispatchStatus {
	c := in.m.clone()
	n := *t
	var start func()

	if k := dctx.cont; k != nil && consumes(o) && !k.take() {
		o = Throw(invariant("resume", "continuation of %s already used", k.task))
	}
	switch o.kind {
	case outcomeResume:
		n.Control = ValueControl{Value: o.value}
		if o.store != nil {
			n.Store = *o.store
		}
		c.put(&n)
	case outcomeThrow:
		n.Control = ErrorControl{Err: o.err}
		c.put(&n)
	case outcomeTransfer:
		if err := c.transfer(&n, o.cont, o.value, dctx.point); err != nil {
			o = Throw(err)
			n.Control = ErrorControl{Err: err}
			c.put(&n)
		}
	case outcomePerform:
		start = in.perform(c, &n, o.action, at, handler, e.CreatedAt(), dctx.point)
	default:
		err := invariant("dispatch", "handler %s returned no outcome", handler)
		o = Throw(err)
		n.Control = ErrorControl{Err: err}
		c.put(&n)
	}

	status := o.status()
	ev := Event{
		Kind:       EventDispatch,
		Task:       n.ID,
		Call:       openCall(t.Kont),
		Site:       e.CreatedAt(),
		Effect:     truncate(Describe(e)),
		EffectType: EffectType(e),
		Category:   Classify(e).String(),
		Chain:      chain,
		Status:     status,
	}
	switch o.kind {
	case outcomeResume, outcomeTransfer:
		ev.Value = truncate(summarize(o.value))
	case outcomeThrow:
		ev.Err = o.err.Error()
		ev.ErrType = errType(o.err)
	}
	c.record(ev)
	in.m = c

	if start != nil {
		start()
	}
	return status
}

// consumes reports whether o resumes the dispatching continuation.
func consumes(o Outcome) bool {
	switch o.kind {
	case outcomeTransfer:
		return false
	case outcomePerform:
		if w, ok := o.action.(WaitAction); ok {
			if _, parked := w.Cond.(Parked); parked {
				return false
			}
		}
	}
	return true
}

// perform carries out a handler action on c for n, a private copy of the
// suspended task. The returned function, if any, runs after the new state
// is committed.
func (in *Interpreter) perform(c *Machine, n *Task, a Action, at int, handler string, site Site, point uint64) func() {
	switch a := a.(type) {
	case RunAction:
		if a.Env != nil {
			n.Env = *a.Env
		}
		for _, f := range a.Frames {
			n.Kont = n.Kont.Push(f)
		}
		if a.Scoped {
			n.Kont = n.Kont.Push(&handlerFrame{depth: at + 1, handler: handler})
		}
		n.Control = ProgramControl{Program: a.Program}
		c.put(n)

	case SpawnAction:
		ids := make([]TaskID, len(a.Programs))
		for i, p := range a.Programs {
			name := ""
			if i < len(a.Names) {
				name = a.Names[i]
			}
			ids[i] = c.spawn(n, p, name, site)
			in.observer.ObserveSpawn(SpawnInfo{Parent: n.ID, Child: ids[i], Name: name})
			in.logger.Debug("task spawned", zap.Stringer("parent", n.ID), zap.Stringer("task", ids[i]))
		}
		if a.Then == nil {
			handles := make([]TaskHandle, len(ids))
			for i, id := range ids {
				handles[i] = TaskHandle{ID: id}
			}
			n.Control = ValueControl{Value: handles}
		} else {
			n.Control = programControl(guard(func() Program { return a.Then(ids) }))
		}
		c.put(n)

	case WaitAction:
		c.put(n)
		switch cond := a.Cond.(type) {
		case Deadline:
			c.block(n.ID, cond)
		case TasksDone:
			c.await(n.ID, cond.IDs)
		case Parked:
			c.block(n.ID, Parked{Point: point})
		default:
			c.setControl(n.ID, ErrorControl{Err: invariant("wait", "cannot wait on %T", a.Cond)})
		}

	case CancelAction:
		n.Control = ValueControl{Value: nil}
		c.put(n)
		c.cancel(a.IDs)

	case SuspendAction:
		if a.Start == nil {
			n.Control = ErrorControl{Err: invariant("suspend", "handler %s suspended without a start function", handler)}
			c.put(n)
			return nil
		}
		c.put(n)
		tok := c.suspend(n.ID, handler)
		h := &SuspensionHandle{token: tok, task: n.ID, inbox: in.inbox, quit: in.quit}
		return func() {
			_, err := guard(func() struct{} {
				a.Start(h)
				return struct{}{}
			})
			if err != nil {
				_ = h.Fail(&HandlerError{Handler: handler, Effect: "suspend", Err: err})
			}
		}

	default:
		n.Control = ErrorControl{Err: invariant("perform", "unknown action %T", a)}
		c.put(n)
	}
	return nil
}

// transfer parks n at point and resumes the task captured by k with v.
func (m *Machine) transfer(n *Task, k *Continuation, v Value, point uint64) error {
	if k == nil {
		return invariant("transfer", "nil continuation")
	}
	if !k.take() {
		return invariant("transfer", "continuation of %s already used", k.task)
	}
	if k.task == n.ID && k.point == point {
		n.Control = ValueControl{Value: v}
		m.put(n)
		return nil
	}
	target, ok := m.tasks.Get(k.task)
	if !ok || target.Status != Blocked {
		return invariant("transfer", "%s is not parked", k.task)
	}
	if p, ok := target.Cond.(Parked); !ok || p.Point != k.point {
		return invariant("transfer", "%s is not parked at the captured point", k.task)
	}
	n.Status = Blocked
	n.Cond = Parked{Point: point}
	m.put(n)
	if m.active == n.ID {
		m.active = 0
	}
	m.wake(target, ValueControl{Value: v})
	return nil
}

// idle runs when no task is runnable. It reports whether progress became
// possible.
func (in *Interpreter) idle(ctx context.Context, mode PollMode) bool {
	now := in.clock.Now()
	if m, n := in.m.WakeDue(now); n > 0 {
		in.m = m
		return true
	}
	at, hasDeadline := in.m.NextDeadline()
	if !hasDeadline && in.m.Pending() == 0 {
		in.abort(&InvariantError{
			Op:     "schedule",
			Detail: fmt.Sprintf("%d live tasks are blocked and nothing can wake them", in.m.Live()),
			Err:    ErrDeadlock,
		})
		return false
	}
	if sim, ok := in.clock.(*SimulatedClock); ok && hasDeadline {
		sim.AdvanceTo(at)
		in.m, _ = in.m.WakeDue(sim.Now())
		return true
	}

	if !mode.block && mode.timeout <= 0 {
		select {
		case d := <-in.inbox:
			in.deliver(d)
			return true
		default:
			return false
		}
	}

	var deadline, poll <-chan time.Time
	if hasDeadline {
		t := time.NewTimer(at.Sub(now))
		defer t.Stop()
		deadline = t.C
	}
	if !mode.block {
		t := time.NewTimer(mode.timeout)
		defer t.Stop()
		poll = t.C
	}
	select {
	case <-ctx.Done():
		in.abort(ctx.Err())
		return false
	case d := <-in.inbox:
		in.deliver(d)
		return true
	case <-deadline:
		in.m, _ = in.m.WakeDue(in.clock.Now())
		return true
	case <-poll:
		return false
	}
}

func (in *Interpreter) drain() {
	for {
		select {
		case d := <-in.inbox:
			in.deliver(d)
		default:
			return
		}
	}
}

func (in *Interpreter) deliver(d delivery) {
	m, ok := in.m.Deliver(d.token, d.value, d.err)
	in.m = m
	if !ok {
		in.logger.Debug("stale completion dropped", zap.Uint64("token", d.token))
	}
}

func (in *Interpreter) exited(id TaskID) {
	t, ok := in.m.Task(id)
	if !ok {
		return
	}
	in.observer.ObserveExit(ExitInfo{Task: id, Status: t.Status, Err: t.err})
	if ce := in.logger.Check(zap.DebugLevel, "task finished"); ce != nil {
		ce.Write(zap.Stringer("task", id), zap.Stringer("status", t.Status), zap.Error(t.err))
	}
}

// complete ends the run after the root task finished. Remaining tasks are
// cancelled and stepped until none is runnable, so they unwind their
// frames and end Cancelled.
func (in *Interpreter) complete(ctx context.Context, v Value, err error) {
	c := in.m.clone()
	c.cancelAll(c.root)
	in.m = c
	for in.m.Runnable() {
		if in.maxSteps > 0 && in.m.steps >= in.maxSteps {
			break
		}
		r := Step(in.m)
		in.m = r.Machine
		if r.Finished != 0 {
			in.exited(r.Finished)
		}
		if r.Kind == StepSuspended {
			in.handle(ctx, r)
		}
	}
	in.finish(v, err)
}

// abort ends the run with err without waiting for tasks to unwind.
func (in *Interpreter) abort(err error) {
	in.logger.Debug("run aborted", zap.Error(err))
	in.finish(nil, err)
}

func (in *Interpreter) finish(v Value, err error) {
	res := RunResult{
		RunID: in.runID,
		Value: v,
		Err:   err,
		Trace: in.m.Trace(),
		Tasks: in.m.Tasks(),
		Steps: in.m.steps,
	}
	if root, ok := in.m.Task(in.m.root); ok {
		res.Store = root.Store.Map()
		res.Log = root.Store.Log()
	}
	in.result = res
	in.finished = true
}
