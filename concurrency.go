// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrEmptyRace is raised by a Race with nothing to race.
var ErrEmptyRace = errors.New("cesk: race of no programs")

// Concurrency effect operations.
// Children run as separate tasks with a snapshot of the spawner's store.
// Wherever a program is expected, a [TaskHandle] names an existing task
// instead of a new one.

// SpawnOp starts Program as a new task and produces its [TaskHandle].
type SpawnOp struct {
	EffectBase
	Program Program
	Name    string
}

// Spawn starts p as a child task.
func Spawn(p Program) SpawnOp {
	return SpawnOp{EffectBase: At(), Program: p}
}

// SpawnNamed starts p as a child task named name.
func SpawnNamed(name string, p Program) SpawnOp {
	return SpawnOp{EffectBase: At(), Program: p, Name: name}
}

func (e SpawnOp) String() string {
	if e.Name != "" {
		return "Spawn(" + strconv.Quote(e.Name) + ")"
	}
	return "Spawn(...)"
}

// DispatchScheduler handles Spawn in scheduler dispatch.
func (e SpawnOp) DispatchScheduler(*DispatchContext) Outcome {
	return Perform(SpawnAction{
		Programs: []Program{e.Program},
		Names:    []string{e.Name},
		Then:     func(ids []TaskID) Program { return Pure(TaskHandle{ID: ids[0]}) },
	})
}

// JoinOp waits for a task and relays its value or error.
type JoinOp struct {
	EffectBase
	Task TaskHandle
}

// Join waits for h to finish and produces its value, or raises its error.
func Join(h TaskHandle) JoinOp {
	return JoinOp{EffectBase: At(), Task: h}
}

func (e JoinOp) String() string { return "Join(" + e.Task.ID.String() + ")" }

// DispatchScheduler handles Join in scheduler dispatch.
func (e JoinOp) DispatchScheduler(*DispatchContext) Outcome {
	return Continue(e.Task)
}

// GatherOp runs Items concurrently and produces their results in order.
type GatherOp struct {
	EffectBase
	Items []Program
	// Safe wraps every child outcome in a [Result] instead of failing on
	// the first error.
	Safe bool
}

// Gather runs every item as a child task and produces a []Value in item
// order. The first child error is raised as soon as it is observed; the
// other children keep running.
func Gather(items ...Program) GatherOp {
	return GatherOp{EffectBase: At(), Items: items}
}

// GatherSafe is Gather with each outcome wrapped in a [Result]; it never
// fails because of a child.
func GatherSafe(items ...Program) GatherOp {
	return GatherOp{EffectBase: At(), Items: items, Safe: true}
}

func (e GatherOp) String() string {
	name := "Gather"
	if e.Safe {
		name = "GatherSafe"
	}
	return name + "(" + strconv.Itoa(len(e.Items)) + ")"
}

// DispatchScheduler handles Gather in scheduler dispatch.
func (e GatherOp) DispatchScheduler(*DispatchContext) Outcome {
	return spawnItems(e.Items, func(ids []TaskID) Program {
		if len(ids) == 0 {
			return Pure([]Value{})
		}
		f := &gatherFrame{
			ids:     ids,
			results: make([]Value, len(ids)),
			got:     make([]bool, len(ids)),
			pending: len(ids),
			safe:    e.Safe,
		}
		return withFrame(f, awaitTasks{IDs: f.outstanding()})
	})
}

// RaceOp runs Items concurrently and produces the first outcome.
type RaceOp struct {
	EffectBase
	Items []Program
}

// Race runs every item as a child task. The first to finish, by value or
// by error, decides the result; the others are cancelled.
func Race(items ...Program) RaceOp {
	return RaceOp{EffectBase: At(), Items: items}
}

func (e RaceOp) String() string { return "Race(" + strconv.Itoa(len(e.Items)) + ")" }

// DispatchScheduler handles Race in scheduler dispatch.
func (e RaceOp) DispatchScheduler(*DispatchContext) Outcome {
	if len(e.Items) == 0 {
		return Throw(ErrEmptyRace)
	}
	return spawnItems(e.Items, func(ids []TaskID) Program {
		return withFrame(&raceFrame{ids: ids}, awaitTasks{IDs: ids})
	})
}

// CancelOp requests cancellation of tasks and produces nil.
type CancelOp struct {
	EffectBase
	Tasks []TaskHandle
}

// Cancel requests cooperative cancellation of hs. A cancelled task raises
// a *CancelledError at its next suspension point and unwinds normally.
func Cancel(hs ...TaskHandle) CancelOp {
	return CancelOp{EffectBase: At(), Tasks: hs}
}

func (e CancelOp) String() string {
	parts := make([]string, len(e.Tasks))
	for i, h := range e.Tasks {
		parts[i] = h.ID.String()
	}
	return "Cancel(" + strings.Join(parts, ", ") + ")"
}

// DispatchScheduler handles Cancel in scheduler dispatch.
func (e CancelOp) DispatchScheduler(*DispatchContext) Outcome {
	ids := make([]TaskID, len(e.Tasks))
	for i, h := range e.Tasks {
		ids[i] = h.ID
	}
	return Perform(CancelAction{IDs: ids})
}

// spawnItems spawns every item that is not already a task handle and
// continues with then applied to the ids of all items, in order.
func spawnItems(items []Program, then func(ids []TaskID) Program) Outcome {
	var (
		progs []Program
		slots []int
	)
	ids := make([]TaskID, len(items))
	for i, it := range items {
		if h, ok := it.(TaskHandle); ok {
			ids[i] = h.ID
			continue
		}
		progs = append(progs, it)
		slots = append(slots, i)
	}
	return Perform(SpawnAction{
		Programs: progs,
		Then: func(spawned []TaskID) Program {
			for j, id := range spawned {
				ids[slots[j]] = id
			}
			return then(slices.Clone(ids))
		},
	})
}

// timeoutSignal is the value of the deadline side of a Timeout race.
type timeoutSignal struct{}

// Timeout runs p in a child task raced against a deadline d away. If the
// deadline wins, p is cancelled and a *TimeoutError is raised. Because p
// runs as a child, its store writes are not visible afterwards.
func Timeout(d time.Duration, p Program) Program {
	timer := Then(Delay(d), Pure(timeoutSignal{}))
	return Bind(Race(p, timer), func(v Value) Program {
		if _, ok := v.(timeoutSignal); ok {
			return Fail(&TimeoutError{After: d})
		}
		return Pure(v)
	})
}

// awaitTasks resumes with the outcome of the first of IDs to finish.
// It is interpreted by the machine itself and never dispatched.
type awaitTasks struct {
	EffectBase
	IDs []TaskID
}

// cancelTasks requests cancellation of IDs and produces nil.
// It is interpreted by the machine itself and never dispatched.
type cancelTasks struct {
	EffectBase
	IDs []TaskID
}

type schedulerOp interface {
	DispatchScheduler(ctx *DispatchContext) Outcome
}

type schedulerHandler struct{}

// SchedulerHandler returns the handler for Spawn, Join, Gather, Race and
// Cancel.
func SchedulerHandler() Handler { return schedulerHandler{} }

func (schedulerHandler) Name() string { return "scheduler" }

func (schedulerHandler) Accepts(e Effect) bool {
	_, ok := e.(schedulerOp)
	return ok
}

func (schedulerHandler) Handle(ctx *DispatchContext, e Effect) Outcome {
	if op, ok := e.(schedulerOp); ok {
		return op.DispatchScheduler(ctx)
	}
	return Delegate()
}
