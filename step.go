// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import "slices"

// StepKind is the outcome class of one [Step].
type StepKind uint8

const (
	// StepContinue means a task made progress; call Step again.
	StepContinue StepKind = iota
	// StepDone means the root task completed with Value.
	StepDone
	// StepFailed means the root task failed with Err.
	StepFailed
	// StepSuspended means Task performed Effect and awaits a handler.
	StepSuspended
	// StepIdle means no task is runnable; every live task is blocked.
	StepIdle
)

func (k StepKind) String() string {
	switch k {
	case StepContinue:
		return "continue"
	case StepDone:
		return "done"
	case StepFailed:
		return "failed"
	case StepSuspended:
		return "suspended"
	case StepIdle:
		return "idle"
	}
	return "unknown"
}

// StepResult is the outcome of one [Step].
type StepResult struct {
	Kind    StepKind
	Machine *Machine

	Value  Value
	Err    error
	Effect Effect
	Task   TaskID

	// Finished is the task that reached a terminal state during this step,
	// or 0.
	Finished TaskID
}

// Step advances the machine by one transition of one task.
//
// Step is a pure function: the receiver is left unchanged and the next
// state is returned in the result. Effects that need a handler are
// surfaced as StepSuspended for the caller to dispatch; resume the task
// with [Machine.Resume] or [Machine.Throw].
func Step(m *Machine) StepResult {
	c := m.clone()
	t, ok := c.pick()
	if !ok {
		return StepResult{Kind: StepIdle, Machine: m}
	}
	c.steps++
	n := *t
	return c.stepTask(&n)
}

// stepTask performs one transition of t, a private copy of a running task.
func (m *Machine) stepTask(t *Task) StepResult {
	res := StepResult{Kind: StepContinue, Machine: m, Task: t.ID}

	switch ctl := t.Control.(type) {
	case ProgramControl:
		m.advance(t, ctl.Program)

	case EffectControl:
		if t.cancelRequested && !t.cancelDelivered && Classify(ctl.Effect) == CategoryExternal {
			if _, ok := ctl.Effect.(cancelTasks); !ok {
				t.cancelDelivered = true
				t.Control = ErrorControl{Err: &CancelledError{Task: t.ID}}
				break
			}
		}
		switch e := ctl.Effect.(type) {
		case awaitTasks:
			m.put(t)
			m.await(t.ID, e.IDs)
			return res
		case cancelTasks:
			t.Control = ValueControl{Value: nil}
			m.put(t)
			m.cancel(e.IDs)
			return res
		}
		if !ctl.intercepted {
			if m.intercept(t, ctl.Effect) {
				break
			}
		}
		m.put(t)
		eff := t.Control.(EffectControl).Effect
		return StepResult{Kind: StepSuspended, Machine: m, Task: t.ID, Effect: eff}

	case ValueControl:
		f, rest := t.Kont.Pop()
		if f == nil {
			if t.cancelRequested && !t.cancelDelivered {
				t.cancelDelivered = true
				return m.complete(t, nil, &CancelledError{Task: t.ID})
			}
			return m.complete(t, ctl.Value, nil)
		}
		t.Kont = rest
		m.applyValue(t, f, ctl.Value)

	case ErrorControl:
		f, rest := t.Kont.Pop()
		if f == nil {
			return m.complete(t, nil, ctl.Err)
		}
		t.Kont = rest
		m.applyError(t, f, ctl.Err)

	default:
		t.Control = ErrorControl{Err: invariant("step", "task %d has no control", t.ID)}
	}

	m.put(t)
	return res
}

// complete finishes t. The root task ends the run; any other task wakes
// its waiters and stepping continues.
func (m *Machine) complete(t *Task, v Value, err error) StepResult {
	done := m.finish(t, v, err)
	res := StepResult{Kind: StepContinue, Machine: m, Task: t.ID, Finished: t.ID}
	if t.ID != m.root {
		return res
	}
	res.Value, res.Err = done.result, done.err
	if err != nil {
		res.Kind = StepFailed
	} else {
		res.Kind = StepDone
	}
	return res
}

// advance pulls the next item out of p.
func (m *Machine) advance(t *Task, p Program) {
	switch p := p.(type) {
	case nil:
		t.Control = ErrorControl{Err: ErrNilProgram}
	case pureProgram:
		t.Control = ValueControl{Value: p.value}
	case failProgram:
		t.Control = ErrorControl{Err: p.err}
	case *bindProgram:
		t.Kont = t.Kont.Push(&bindFrame{f: p.f})
		t.Control = ProgramControl{Program: p.m}
	case *mapProgram:
		t.Kont = t.Kont.Push(&mapFrame{f: p.f})
		t.Control = ProgramControl{Program: p.m}
	case *thenProgram:
		t.Kont = t.Kont.Push(&thenFrame{next: p.n})
		t.Control = ProgramControl{Program: p.m}
	case *lazyProgram:
		t.Control = programControl(guard(p.f))
	case *genProgram:
		m.yield(t, p.g, resumeGen(p.g, nil, nil))
	case *framedProgram:
		t.Kont = t.Kont.Push(p.frame)
		t.Control = ProgramControl{Program: p.body}
	case *callProgram:
		m.nextCall++
		t.Kont = t.Kont.Push(&callFrame{call: p, id: m.nextCall})
		m.record(Event{
			Kind: EventCall,
			Task: t.ID,
			Call: m.nextCall,
			Func: p.name,
			Site: p.site,
			Args: summarizeArgs(p.args),
		})
		t.Control = programControl(guard(p.body))
	case TaskHandle:
		t.Kont = t.Kont.Push(&joinFrame{id: p.ID})
		t.Control = EffectControl{Effect: awaitTasks{IDs: []TaskID{p.ID}}}
	case Effect:
		t.Control = EffectControl{Effect: p}
	default:
		t.Control = ErrorControl{Err: invariant("advance", "unknown program %T", p)}
	}
}

// yield applies one generator step.
func (m *Machine) yield(t *Task, g Generator, y Yield) {
	switch y.kind {
	case yieldProgram:
		t.Kont = t.Kont.Push(&resumeFrame{g: g})
		t.Control = ProgramControl{Program: y.program}
	case yieldReturn:
		t.Control = ValueControl{Value: y.value}
	case yieldRaise:
		if y.err == nil {
			t.Control = ErrorControl{Err: invariant("yield", "generator raised a nil error")}
			return
		}
		t.Control = ErrorControl{Err: y.err}
	}
}

// applyValue delivers v to frame f, already popped from t.Kont.
func (m *Machine) applyValue(t *Task, f Frame, v Value) {
	switch f := f.(type) {
	case *bindFrame:
		t.Control = programControl(guard(func() Program { return f.f(v) }))
	case *mapFrame:
		w, err := guard(func() Value { return f.f(v) })
		if err != nil {
			t.Control = ErrorControl{Err: err}
			return
		}
		t.Control = ValueControl{Value: w}
	case *thenFrame:
		t.Control = ProgramControl{Program: f.next}
	case *resumeFrame:
		m.yield(t, f.g, resumeGen(f.g, v, nil))
	case *callFrame:
		m.record(Event{Kind: EventReturn, Task: t.ID, Call: f.id, Func: f.call.name, Value: truncate(summarize(v))})
		t.Control = ValueControl{Value: v}
	case *envFrame:
		t.Env = f.saved
		t.Control = ValueControl{Value: v}
	case *safeFrame:
		t.Control = ValueControl{Value: Ok(v)}
	case *finallyFrame:
		t.Kont = t.Kont.Push(&replyFrame{value: v})
		t.Control = ProgramControl{Program: f.cleanup}
	case *replyFrame:
		if f.err != nil {
			t.Control = ErrorControl{Err: f.err}
			return
		}
		t.Control = ValueControl{Value: f.value}
	case *listenFrame:
		t.Control = ValueControl{Value: Listened{Value: v, Log: t.Store.logSince(f.start)}}
	case *censorFrame:
		w, err := guard(func() []Value { return f.f(t.Store.logSince(f.start)) })
		if err != nil {
			t.Control = ErrorControl{Err: err}
			return
		}
		t.Store = t.Store.replaceLogSince(f.start, w)
		t.Control = ValueControl{Value: v}
	case *gatherFrame:
		m.gatherValue(t, f, v)
	case *raceFrame:
		cd, ok := v.(childDone)
		if !ok {
			t.Control = ErrorControl{Err: invariant("race", "expected a child outcome, got %T", v)}
			return
		}
		losers := slices.DeleteFunc(slices.Clone(f.ids), func(id TaskID) bool { return id == cd.id })
		t.Kont = t.Kont.Push(&replyFrame{value: cd.value, err: cd.err})
		t.Control = EffectControl{Effect: cancelTasks{IDs: losers}}
	case *joinFrame:
		cd, ok := v.(childDone)
		if !ok {
			t.Control = ErrorControl{Err: invariant("join", "expected a child outcome, got %T", v)}
			return
		}
		if cd.err != nil {
			t.Control = ErrorControl{Err: cd.err}
			return
		}
		t.Control = ValueControl{Value: cd.value}
	case *catchFrame, *retryFrame, *interceptFrame, *maskFrame, *handlerFrame:
		t.Control = ValueControl{Value: v}
	case Unwinder:
		t.Control = programControl(guard(func() Program { return f.Unwind(v, nil) }))
	default:
		t.Control = ErrorControl{Err: invariant("apply", "unknown frame %T", f)}
	}
}

// applyError delivers err to frame f, already popped from t.Kont.
func (m *Machine) applyError(t *Task, f Frame, err error) {
	t.Control = ErrorControl{Err: err}

	switch f := f.(type) {
	case *resumeFrame:
		if IsRecoverable(err) {
			m.yield(t, f.g, resumeGen(f.g, nil, err))
		}
	case *callFrame:
		m.record(Event{
			Kind:    EventUnwind,
			Task:    t.ID,
			Call:    f.id,
			Func:    f.call.name,
			Err:     err.Error(),
			ErrType: errType(err),
		})
	case *envFrame:
		t.Env = f.saved
	case *safeFrame:
		if IsRecoverable(err) {
			t.Control = ValueControl{Value: Errored(err)}
		}
	case *catchFrame:
		if IsRecoverable(err) {
			t.Control = programControl(guard(func() Program { return f.handler(err) }))
		}
	case *retryFrame:
		if !IsRecoverable(err) || f.left <= 0 {
			return
		}
		next := &retryFrame{body: f.body, left: f.left - 1, attempt: f.attempt + 1, delay: f.delay}
		t.Kont = t.Kont.Push(next)
		body := f.body
		if f.delay > 0 {
			body = Then(Delay(f.delay), body)
		}
		t.Control = ProgramControl{Program: body}
	case *finallyFrame:
		t.Kont = t.Kont.Push(&replyFrame{err: err})
		t.Control = ProgramControl{Program: f.cleanup}
	case *gatherFrame:
		if pending := f.outstanding(); len(pending) > 0 {
			t.Kont = t.Kont.Push(&replyFrame{err: err})
			t.Control = EffectControl{Effect: cancelTasks{IDs: pending}}
		}
	case *raceFrame:
		t.Kont = t.Kont.Push(&replyFrame{err: err})
		t.Control = EffectControl{Effect: cancelTasks{IDs: f.ids}}
	case Unwinder:
		t.Control = programControl(guard(func() Program { return f.Unwind(nil, err) }))
	}
}

// gatherValue records one child outcome and either finishes the fan-out or
// waits for the next child.
func (m *Machine) gatherValue(t *Task, f *gatherFrame, v Value) {
	cd, ok := v.(childDone)
	if !ok {
		t.Control = ErrorControl{Err: invariant("gather", "expected a child outcome, got %T", v)}
		return
	}
	if cd.err != nil && !f.safe {
		t.Control = ErrorControl{Err: cd.err}
		return
	}
	i := -1
	for j, id := range f.ids {
		if id == cd.id && !f.got[j] {
			i = j
			break
		}
	}
	if i < 0 {
		t.Control = ErrorControl{Err: invariant("gather", "unexpected outcome from %s", cd.id)}
		return
	}
	n := &gatherFrame{
		ids:     f.ids,
		results: slices.Clone(f.results),
		got:     slices.Clone(f.got),
		pending: f.pending,
		safe:    f.safe,
	}
	// A handle listed twice resolves every slot it occupies.
	for j, id := range n.ids {
		if id != cd.id || n.got[j] {
			continue
		}
		if n.safe {
			n.results[j] = Result{Value: cd.value, Err: cd.err}
		} else {
			n.results[j] = cd.value
		}
		n.got[j] = true
		n.pending--
	}
	if n.pending == 0 {
		t.Control = ValueControl{Value: n.results}
		return
	}
	t.Kont = t.Kont.Push(n)
	t.Control = EffectControl{Effect: awaitTasks{IDs: n.outstanding()}}
}

// outstanding returns the children that have not reported yet.
func (f *gatherFrame) outstanding() []TaskID {
	var ids []TaskID
	for j, id := range f.ids {
		if !f.got[j] && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// intercept applies the enclosing interception frames to e, nearest first.
// It reports true when a transform replaced the effect with a program.
func (m *Machine) intercept(t *Task, e Effect) bool {
	var (
		masked []*interceptFrame
		seen   []*interceptFrame
	)
scan:
	for k := t.Kont; k != nil; k = k.rest {
		switch f := k.top.(type) {
		case *handlerFrame:
			break scan
		case *maskFrame:
			masked = append(masked, f.skip...)
		case *interceptFrame:
			if slices.Contains(masked, f) {
				continue
			}
			seen = append(seen, f)
			for _, tr := range f.transforms {
				p, err := guard(func() Program { return tr(e) })
				switch {
				case err != nil:
					t.Control = ErrorControl{Err: err}
					return true
				case p == nil:
					continue
				}
				if r, ok := p.(Effect); ok {
					e = r
					continue
				}
				t.Control = ProgramControl{Program: withFrame(&maskFrame{skip: seen}, p)}
				return true
			}
		}
	}
	t.Control = EffectControl{Effect: e, intercepted: true}
	return false
}

// handlerDepth returns the handler index dispatch starts from for effects
// performed by t: the depth of the nearest handler frame, or 0.
func handlerDepth(k *Kont) int {
	for c := k; c != nil; c = c.rest {
		if f, ok := c.top.(*handlerFrame); ok {
			return f.depth
		}
	}
	return 0
}

// openCall returns the id of the innermost traced call in k, or 0.
func openCall(k *Kont) uint64 {
	for c := k; c != nil; c = c.rest {
		if f, ok := c.top.(*callFrame); ok {
			return f.id
		}
	}
	return 0
}

func programControl(p Program, err error) Control {
	if err != nil {
		return ErrorControl{Err: err}
	}
	return ProgramControl{Program: p}
}

// guard calls f, converting a panic into an error. Invariant violations
// raised by panicking keep their type.
func guard[T any](f func() T) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ie, ok := r.(*InvariantError); ok {
				err = ie
				return
			}
			err = &PanicError{Value: r}
		}
	}()
	return f(), nil
}

func resumeGen(g Generator, v Value, err error) Yield {
	y, perr := guard(func() Yield { return g.Resume(v, err) })
	if perr != nil {
		return Raise(perr)
	}
	return y
}
