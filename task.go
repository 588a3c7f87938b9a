// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"slices"
	"strconv"
	"time"
)

// TaskID identifies a task. Ids are assigned monotonically from 1.
type TaskID uint64

func (id TaskID) String() string { return "task " + strconv.FormatUint(uint64(id), 10) }

// TaskStatus is a task's scheduling state.
type TaskStatus uint8

const (
	Running TaskStatus = iota
	Blocked
	Completed
	Failed
	Cancelled
)

func (s TaskStatus) String() string {
	switch s {
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// MarshalText implements [encoding.TextMarshaler].
func (s TaskStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether no transition leaves s.
func (s TaskStatus) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// Condition is what a blocked task waits for.
type Condition interface {
	condition() // unexported marker method
}

// TasksDone wakes when any of IDs reaches a terminal state.
type TasksDone struct{ IDs []TaskID }

func (TasksDone) condition() {}

// Deadline wakes once the scheduler clock reaches At.
type Deadline struct{ At time.Time }

func (Deadline) condition() {}

// External wakes when the suspension identified by Token completes.
type External struct {
	Token   uint64
	Handler string
}

func (External) condition() {}

// Task is one independently scheduled computation. Tasks stored in a
// [Machine] are never modified; transitions store a new copy.
type Task struct {
	ID     TaskID
	Parent TaskID
	Name   string
	Site   Site

	Status  TaskStatus
	Control Control
	Env     Env
	Store   Store
	Kont    *Kont
	Cond    Condition

	cancelRequested bool
	cancelDelivered bool
	result          Value
	err             error
	seq             uint64
}

// Result returns the final value and error of a terminal task.
func (t *Task) Result() (Value, error) { return t.result, t.err }

// CancelRequested reports whether cancellation was requested.
func (t *Task) CancelRequested() bool { return t.cancelRequested }

func (t *Task) waitsOn(id TaskID) bool {
	c, ok := t.Cond.(TasksDone)
	return ok && slices.Contains(c.IDs, id)
}

// TaskHandle is the value a spawn resumes with; pass it to Join, Gather,
// Race and Cancel. A handle is also a Program: evaluating it joins the
// task.
type TaskHandle struct {
	ID TaskID
}

func (TaskHandle) program() {}

func (h TaskHandle) String() string { return "<" + h.ID.String() + ">" }

// TaskInfo is a snapshot of a task reported in run results.
type TaskInfo struct {
	ID     TaskID     `json:"id"`
	Parent TaskID     `json:"parent,omitempty"`
	Name   string     `json:"name,omitempty"`
	Status TaskStatus `json:"status"`
	Err    string     `json:"err,omitempty"`
}

func (t *Task) info() TaskInfo {
	ti := TaskInfo{ID: t.ID, Parent: t.Parent, Name: t.Name, Status: t.Status}
	if t.err != nil {
		ti.Err = t.err.Error()
	}
	return ti
}

// childDone is the value delivered to a task blocked on TasksDone.
type childDone struct {
	id    TaskID
	value Value
	err   error
}
