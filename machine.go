// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/benbjohnson/immutable"
)

// Machine is the complete interpreter state: every live task, the active
// task, pending external suspensions, id generators and the trace.
// Finished tasks leave the live table and are kept, without control or
// continuation, so later joins still see their outcome.
//
// A Machine is an immutable value. Every exported transition returns a new
// Machine and leaves the receiver unchanged; unexported mutators operate
// only on a fresh clone owned by the caller.
type Machine struct {
	tasks   *immutable.SortedMap[TaskID, *Task]
	done    *immutable.SortedMap[TaskID, *Task]
	ready   *immutable.List[TaskID]
	pending *immutable.Map[uint64, TaskID]
	trace   *immutable.List[Event]

	active   TaskID
	root     TaskID
	nextID   TaskID
	nextTok  uint64
	nextCall uint64
	seq      uint64
	steps    int
	tracing  bool
}

// NewMachine creates a machine whose root task evaluates p.
func NewMachine(p Program, env Env, store Store) *Machine {
	m := &Machine{
		tasks:   immutable.NewSortedMap[TaskID, *Task](nil),
		done:    immutable.NewSortedMap[TaskID, *Task](nil),
		ready:   immutable.NewList[TaskID](),
		pending: immutable.NewMap[uint64, TaskID](nil),
		trace:   immutable.NewList[Event](),
		tracing: true,
	}
	m.nextID++
	root := &Task{
		ID:      m.nextID,
		Name:    "root",
		Status:  Running,
		Control: ProgramControl{Program: p},
		Env:     env,
		Store:   store,
	}
	m.root = root.ID
	m.put(root)
	m.enqueue(root.ID)
	return m
}

// WithTracing returns a machine that records (or stops recording) trace
// events.
func (m *Machine) WithTracing(on bool) *Machine {
	c := m.clone()
	c.tracing = on
	return c
}

func (m *Machine) clone() *Machine {
	c := *m
	return &c
}

// Root returns the root task id.
func (m *Machine) Root() TaskID { return m.root }

// Active returns the task currently pinned for stepping, or 0.
func (m *Machine) Active() TaskID { return m.active }

// Steps returns the number of steps taken so far.
func (m *Machine) Steps() int { return m.steps }

// Task returns the task with the given id, live or finished.
func (m *Machine) Task(id TaskID) (*Task, bool) {
	if t, ok := m.tasks.Get(id); ok {
		return t, true
	}
	return m.done.Get(id)
}

// Tasks returns a snapshot of every task in id order.
func (m *Machine) Tasks() []TaskInfo {
	out := make([]TaskInfo, 0, m.tasks.Len()+m.done.Len())
	for _, tm := range []*immutable.SortedMap[TaskID, *Task]{m.tasks, m.done} {
		itr := tm.Iterator()
		for !itr.Done() {
			_, t, _ := itr.Next()
			out = append(out, t.info())
		}
	}
	slices.SortFunc(out, func(a, b TaskInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Trace returns the recorded events in order.
func (m *Machine) Trace() []Event {
	out := make([]Event, 0, m.trace.Len())
	itr := m.trace.Iterator()
	for !itr.Done() {
		_, ev := itr.Next()
		out = append(out, ev)
	}
	return out
}

// Runnable reports whether some task can be stepped without waiting.
func (m *Machine) Runnable() bool {
	if t, ok := m.tasks.Get(m.active); ok && t.Status == Running {
		return true
	}
	itr := m.ready.Iterator()
	for !itr.Done() {
		_, id := itr.Next()
		if t, ok := m.tasks.Get(id); ok && t.Status == Running {
			return true
		}
	}
	return false
}

// Pending returns the number of suspensions awaiting external completion.
func (m *Machine) Pending() int { return m.pending.Len() }

// Live returns the number of non-terminal tasks.
func (m *Machine) Live() int { return m.tasks.Len() }

// Resume returns a machine in which task id continues with v.
func (m *Machine) Resume(id TaskID, v Value) *Machine {
	c := m.clone()
	c.setControl(id, ValueControl{Value: v})
	return c
}

// Throw returns a machine in which task id continues by raising err.
func (m *Machine) Throw(id TaskID, err error) *Machine {
	c := m.clone()
	c.setControl(id, ErrorControl{Err: err})
	return c
}

// Deliver completes the external suspension identified by token.
// It reports false when the token is unknown or stale (the task was
// cancelled or already woken).
func (m *Machine) Deliver(token uint64, v Value, err error) (*Machine, bool) {
	id, ok := m.pending.Get(token)
	if !ok {
		return m, false
	}
	c := m.clone()
	c.pending = c.pending.Delete(token)
	t, ok := c.tasks.Get(id)
	if !ok || t.Status != Blocked {
		return c, false
	}
	ext, ok := t.Cond.(External)
	if !ok || ext.Token != token {
		return c, false
	}
	if err != nil {
		c.wake(t, ErrorControl{Err: err})
	} else {
		c.wake(t, ValueControl{Value: v})
	}
	return c, true
}

// Cancel returns a machine in which cancellation was requested for ids.
func (m *Machine) Cancel(ids ...TaskID) *Machine {
	c := m.clone()
	c.cancel(ids)
	return c
}

func (m *Machine) put(t *Task) {
	m.tasks = m.tasks.Set(t.ID, t)
}

func (m *Machine) enqueue(id TaskID) {
	m.ready = m.ready.Append(id)
}

// pick selects the task to step: the pinned active task if it is still
// running, otherwise the first runnable task in the ready queue.
func (m *Machine) pick() (*Task, bool) {
	if t, ok := m.tasks.Get(m.active); ok && t.Status == Running {
		return t, true
	}
	m.active = 0
	for m.ready.Len() > 0 {
		id := m.ready.Get(0)
		m.ready = m.ready.Slice(1, m.ready.Len())
		if t, ok := m.tasks.Get(id); ok && t.Status == Running {
			m.active = id
			return t, true
		}
	}
	return nil, false
}

func (m *Machine) setControl(id TaskID, c Control) {
	t, ok := m.tasks.Get(id)
	if !ok {
		return
	}
	n := *t
	n.Control = c
	if n.Status == Blocked {
		m.wake(&n, c)
		return
	}
	m.put(&n)
}

func (m *Machine) record(ev Event) {
	if !m.tracing {
		return
	}
	ev.Seq = m.trace.Len()
	m.trace = m.trace.Append(ev)
}

// wake makes a blocked task runnable with control c.
func (m *Machine) wake(t *Task, c Control) {
	m.unblock(t, c)
	m.enqueue(t.ID)
}

func (m *Machine) unblock(t *Task, c Control) {
	n := *t
	n.Status = Running
	n.Cond = nil
	n.Control = c
	m.put(&n)
}

// block parks task id on cond. A task with an undelivered cancellation
// request gets the signal instead of blocking.
func (m *Machine) block(id TaskID, cond Condition) {
	t, ok := m.tasks.Get(id)
	if !ok {
		return
	}
	n := *t
	if n.cancelRequested && !n.cancelDelivered {
		if ext, ok := cond.(External); ok {
			m.pending = m.pending.Delete(ext.Token)
		}
		n.cancelDelivered = true
		n.Control = ErrorControl{Err: &CancelledError{Task: id}}
		m.put(&n)
		if m.active != id {
			m.enqueue(id)
		}
		return
	}
	n.Status = Blocked
	n.Cond = cond
	m.put(&n)
	if m.active == id {
		m.active = 0
	}
}

// spawn creates a child of parent evaluating p with a snapshot of the
// parent's store.
func (m *Machine) spawn(parent *Task, p Program, name string, site Site) TaskID {
	m.nextID++
	id := m.nextID
	if name == "" {
		name = id.String()
	}
	m.put(&Task{
		ID:      id,
		Parent:  parent.ID,
		Name:    name,
		Site:    site,
		Status:  Running,
		Control: ProgramControl{Program: p},
		Env:     parent.Env,
		Store:   parent.Store,
	})
	m.enqueue(id)
	m.record(Event{Kind: EventSpawn, Task: parent.ID, Child: id, Func: name, Site: site})
	return id
}

// await resumes task id with the first terminal task among ids, or blocks
// it until one finishes. Among several finished tasks the earliest
// completion wins.
func (m *Machine) await(id TaskID, ids []TaskID) {
	var (
		first *Task
		found bool
	)
	for _, cid := range ids {
		c, ok := m.Task(cid)
		if !ok {
			m.setControl(id, ErrorControl{Err: fmt.Errorf("%w: %s", ErrUnknownTask, cid)})
			return
		}
		if c.Status.Terminal() && (!found || c.seq < first.seq) {
			first, found = c, true
		}
	}
	if found {
		m.setControl(id, ValueControl{Value: childDone{id: first.ID, value: first.result, err: first.err}})
		return
	}
	m.block(id, TasksDone{IDs: ids})
}

// cancel requests cooperative cancellation. Blocked tasks are woken with
// the cancellation signal immediately; running tasks observe it at their
// next external effect, or when they finish.
func (m *Machine) cancel(ids []TaskID) {
	for _, id := range ids {
		t, ok := m.tasks.Get(id)
		if !ok || t.cancelRequested {
			continue
		}
		n := *t
		n.cancelRequested = true
		if n.Status != Blocked {
			m.put(&n)
			continue
		}
		if ext, ok := n.Cond.(External); ok {
			m.pending = m.pending.Delete(ext.Token)
		}
		n.cancelDelivered = true
		m.wake(&n, ErrorControl{Err: &CancelledError{Task: id}})
	}
}

// suspend parks task id on a new external suspension token.
func (m *Machine) suspend(id TaskID, handler string) uint64 {
	m.nextTok++
	tok := m.nextTok
	m.pending = m.pending.Set(tok, id)
	m.block(id, External{Token: tok, Handler: handler})
	return tok
}

// finish moves t to its terminal state and wakes every task waiting on it.
// Waiters are queued ahead of other ready tasks so a race settles before
// its losers run on.
func (m *Machine) finish(t *Task, v Value, err error) *Task {
	n := *t
	n.Control = nil
	n.Kont = nil
	n.Cond = nil
	n.result, n.err = v, err
	switch {
	case err == nil:
		n.Status = Completed
	case n.cancelRequested && KindOf(err) == KindCancelled:
		n.Status = Cancelled
	default:
		n.Status = Failed
	}
	m.seq++
	n.seq = m.seq
	m.tasks = m.tasks.Delete(n.ID)
	m.done = m.done.Set(n.ID, &n)
	if m.active == n.ID {
		m.active = 0
	}

	var waiters []*Task
	itr := m.tasks.Iterator()
	for !itr.Done() {
		_, w, _ := itr.Next()
		if w.Status == Blocked && w.waitsOn(n.ID) {
			waiters = append(waiters, w)
		}
	}
	for _, w := range waiters {
		if err != nil {
			m.record(Event{Kind: EventJoin, Task: w.ID, Child: n.ID, Err: err.Error()})
		}
		m.unblock(w, ValueControl{Value: childDone{id: n.ID, value: v, err: err}})
	}
	for i := len(waiters) - 1; i >= 0; i-- {
		m.ready = m.ready.Prepend(waiters[i].ID)
	}
	return &n
}

// nextDeadline returns the earliest deadline among blocked tasks.
func (m *Machine) nextDeadline() (time.Time, bool) {
	var (
		at    time.Time
		found bool
	)
	itr := m.tasks.Iterator()
	for !itr.Done() {
		_, t, _ := itr.Next()
		if t.Status != Blocked {
			continue
		}
		if d, ok := t.Cond.(Deadline); ok && (!found || d.At.Before(at)) {
			at, found = d.At, true
		}
	}
	return at, found
}

// wakeDue wakes every task whose deadline is at or before now and reports
// how many were woken.
func (m *Machine) wakeDue(now time.Time) int {
	var due []*Task
	itr := m.tasks.Iterator()
	for !itr.Done() {
		_, t, _ := itr.Next()
		if t.Status != Blocked {
			continue
		}
		if d, ok := t.Cond.(Deadline); ok && !d.At.After(now) {
			due = append(due, t)
		}
	}
	for _, t := range due {
		m.wake(t, ValueControl{Value: nil})
	}
	return len(due)
}

// WakeDue returns a machine in which every deadline at or before now has
// fired.
func (m *Machine) WakeDue(now time.Time) (*Machine, int) {
	c := m.clone()
	n := c.wakeDue(now)
	return c, n
}

// NextDeadline returns the earliest pending deadline.
func (m *Machine) NextDeadline() (time.Time, bool) { return m.nextDeadline() }

// cancelAll requests cancellation of every non-terminal task except skip.
func (m *Machine) cancelAll(skip TaskID) {
	var ids []TaskID
	itr := m.tasks.Iterator()
	for !itr.Done() {
		id, _, _ := itr.Next()
		if id != skip {
			ids = append(ids, id)
		}
	}
	m.cancel(ids)
}
