// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"code.hybscloud.com/cesk"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func after(d time.Duration, v cesk.Value) cesk.Program {
	return cesk.Then(cesk.Delay(d), cesk.Pure(v))
}

func taskInfo(t *testing.T, res cesk.RunResult, id cesk.TaskID) cesk.TaskInfo {
	t.Helper()
	for _, ti := range res.Tasks {
		if ti.ID == id {
			return ti
		}
	}
	t.Fatalf("no %s in %v", id, res.Tasks)
	return cesk.TaskInfo{}
}

// --- Gather ---

func TestGatherOrder(t *testing.T) {
	clock := cesk.NewSimulatedClock(epoch)
	p := cesk.Gather(after(3*time.Second, "a"), after(time.Second, "b"), cesk.Pure("c"))
	res := run(t, p, cesk.WithClock(clock))
	if want := []cesk.Value{"a", "b", "c"}; !reflect.DeepEqual(mustValue(t, res), want) {
		t.Fatalf("got %v, want %v", res.Value, want)
	}
	if got := clock.Now().Sub(epoch); got != 3*time.Second {
		t.Fatalf("clock advanced %v, want 3s", got)
	}
}

func TestGatherEmpty(t *testing.T) {
	got := mustValue(t, run(t, cesk.Gather()))
	if vs, ok := got.([]cesk.Value); !ok || len(vs) != 0 {
		t.Fatalf("got %#v, want an empty []Value", got)
	}
}

func TestGatherFirstError(t *testing.T) {
	clock := cesk.NewSimulatedClock(epoch)
	p := cesk.Gather(after(5*time.Second, 1), cesk.Fail(errBoom))
	res := run(t, p, cesk.WithClock(clock))
	if !errors.Is(res.Err, errBoom) {
		t.Fatalf("got %v, want boom", res.Err)
	}
	if clock.Now() != epoch {
		t.Fatalf("gather waited for the slow child until %v", clock.Now())
	}
	if ti := taskInfo(t, res, 3); ti.Status != cesk.Failed {
		t.Fatalf("failing child is %v, want failed", ti.Status)
	}
}

func TestGatherSafe(t *testing.T) {
	got := mustValue(t, run(t, cesk.GatherSafe(cesk.Pure(1), cesk.Fail(errBoom))))
	vs := got.([]cesk.Value)
	if r := vs[0].(cesk.Result); !r.IsOk() || r.Value != 1 {
		t.Fatalf("first %v, want Ok(1)", r)
	}
	if r := vs[1].(cesk.Result); !errors.Is(r.Err, errBoom) {
		t.Fatalf("second %v, want boom", r)
	}
}

func TestGatherHandles(t *testing.T) {
	p := cesk.Bind(cesk.Spawn(cesk.Pure("spawned")), func(h cesk.TaskHandle) cesk.Program {
		return cesk.Gather(h, cesk.Pure("fresh"), h)
	})
	got := mustValue(t, run(t, p))
	if want := []cesk.Value{"spawned", "fresh", "spawned"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// --- Race ---

func TestRaceWinnerAndLosers(t *testing.T) {
	clock := cesk.NewSimulatedClock(epoch)
	p := cesk.Race(after(5*time.Second, "slow"), after(time.Second, "fast"))
	res := run(t, p, cesk.WithClock(clock))
	if got := mustValue(t, res); got != "fast" {
		t.Fatalf("got %v, want fast", got)
	}
	if ti := taskInfo(t, res, 2); ti.Status != cesk.Cancelled {
		t.Fatalf("loser is %v, want cancelled", ti.Status)
	}
	if ti := taskInfo(t, res, 3); ti.Status != cesk.Completed {
		t.Fatalf("winner is %v, want completed", ti.Status)
	}
}

func TestRaceLosersThatNeverBlock(t *testing.T) {
	res := run(t, cesk.Race(cesk.Pure(1), cesk.Then(cesk.Get("x"), cesk.Pure(2)), cesk.Pure(3)))
	if got := mustValue(t, res); got != 1 {
		t.Fatalf("got %v, want 1", got)
	}
	if ti := taskInfo(t, res, 2); ti.Status != cesk.Completed {
		t.Fatalf("winner is %v, want completed", ti.Status)
	}
	for _, id := range []cesk.TaskID{3, 4} {
		if ti := taskInfo(t, res, id); ti.Status != cesk.Cancelled {
			t.Fatalf("loser %s is %v, want cancelled", id, ti.Status)
		}
	}
}

func TestRaceErrorWins(t *testing.T) {
	clock := cesk.NewSimulatedClock(epoch)
	res := run(t, cesk.Race(cesk.Fail(errBoom), after(time.Second, 1)), cesk.WithClock(clock))
	if !errors.Is(res.Err, errBoom) {
		t.Fatalf("got %v, want boom", res.Err)
	}
}

func TestRaceEmpty(t *testing.T) {
	if res := run(t, cesk.Race()); !errors.Is(res.Err, cesk.ErrEmptyRace) {
		t.Fatalf("got %v, want ErrEmptyRace", res.Err)
	}
}

// --- Spawn, Join, Cancel ---

func TestSpawnJoin(t *testing.T) {
	p := cesk.Bind(cesk.Spawn(cesk.Pure(5)), func(h cesk.TaskHandle) cesk.Program {
		return cesk.Join(h)
	})
	if got := mustValue(t, run(t, p)); got != 5 {
		t.Fatalf("got %v, want 5", got)
	}
}

func TestHandleEvaluatesAsJoin(t *testing.T) {
	p := cesk.Bind(cesk.SpawnNamed("worker", cesk.Pure(5)), func(h cesk.TaskHandle) cesk.Program {
		return h
	})
	res := run(t, p)
	if got := mustValue(t, res); got != 5 {
		t.Fatalf("got %v, want 5", got)
	}
	if ti := taskInfo(t, res, 2); ti.Name != "worker" || ti.Parent != 1 {
		t.Fatalf("child info %+v", ti)
	}
}

func TestJoinFailedChild(t *testing.T) {
	p := cesk.Bind(cesk.Spawn(cesk.Fail(errBoom)), func(h cesk.TaskHandle) cesk.Program {
		return cesk.Catch(cesk.Join(h), func(err error) cesk.Program {
			return cesk.Pure("child said " + err.Error())
		})
	})
	if got := mustValue(t, run(t, p)); got != "child said boom" {
		t.Fatalf("got %v", got)
	}
}

func TestJoinUnknownTask(t *testing.T) {
	res := run(t, cesk.Join(cesk.TaskHandle{ID: 99}))
	if !errors.Is(res.Err, cesk.ErrUnknownTask) {
		t.Fatalf("got %v, want ErrUnknownTask", res.Err)
	}
}

func TestCancelRunsCleanup(t *testing.T) {
	clock := cesk.NewSimulatedClock(epoch)
	cleaned := false
	cleanup := cesk.IO(func(context.Context) (cesk.Value, error) {
		cleaned = true
		return nil, nil
	})
	child := cesk.Finally(cesk.Delay(time.Hour), cleanup)
	p := cesk.Bind(cesk.Spawn(child), func(h cesk.TaskHandle) cesk.Program {
		return cesk.Then(cesk.Cancel(h), cesk.Join(h))
	})
	res := run(t, p, cesk.WithClock(clock))

	var ce *cesk.CancelledError
	if !errors.As(res.Err, &ce) || ce.Task != 2 {
		t.Fatalf("got %v, want cancellation of task 2", res.Err)
	}
	if !cleaned {
		t.Fatal("finally cleanup did not run in the cancelled task")
	}
	if ti := taskInfo(t, res, 2); ti.Status != cesk.Cancelled {
		t.Fatalf("child is %v, want cancelled", ti.Status)
	}
	if clock.Now() != epoch {
		t.Fatalf("clock advanced to %v", clock.Now())
	}
}

func TestCancelledTaskEndsCancelled(t *testing.T) {
	child := cesk.Then(cesk.Put("seen", true), cesk.Get("seen"))
	p := cesk.Bind(cesk.Spawn(child), func(h cesk.TaskHandle) cesk.Program {
		return cesk.Then(cesk.Cancel(h), cesk.Join(h))
	})
	res := run(t, p)
	var ce *cesk.CancelledError
	if !errors.As(res.Err, &ce) || ce.Task != 2 {
		t.Fatalf("got %v, want cancellation of task 2", res.Err)
	}
	if ti := taskInfo(t, res, 2); ti.Status != cesk.Cancelled {
		t.Fatalf("child is %v, want cancelled", ti.Status)
	}
}

func TestBracketReleasesOnCancel(t *testing.T) {
	clock := cesk.NewSimulatedClock(epoch)
	released := false
	release := func(cesk.Value) cesk.Program {
		return cesk.IO(func(context.Context) (cesk.Value, error) {
			released = true
			return nil, nil
		})
	}
	use := func(cesk.Value) cesk.Program { return cesk.Delay(time.Hour) }
	child := cesk.Bracket(cesk.Pure("conn"), release, use)
	p := cesk.Bind(cesk.Spawn(child), func(h cesk.TaskHandle) cesk.Program {
		return cesk.Then(cesk.Cancel(h), cesk.GatherSafe(h))
	})
	got := mustValue(t, run(t, p, cesk.WithClock(clock)))
	r := got.([]cesk.Value)[0].(cesk.Result)
	var ce *cesk.CancelledError
	if !errors.As(r.Err, &ce) {
		t.Fatalf("got %v, want a cancellation", r)
	}
	if !released {
		t.Fatal("release did not run in the cancelled task")
	}
}

func TestCancelIsNotCaught(t *testing.T) {
	clock := cesk.NewSimulatedClock(epoch)
	child := cesk.Safe(cesk.Delay(time.Hour))
	p := cesk.Bind(cesk.Spawn(child), func(h cesk.TaskHandle) cesk.Program {
		return cesk.Then(cesk.Cancel(h), cesk.GatherSafe(h))
	})
	got := mustValue(t, run(t, p, cesk.WithClock(clock)))
	r := got.([]cesk.Value)[0].(cesk.Result)
	var ce *cesk.CancelledError
	if !errors.As(r.Err, &ce) {
		t.Fatalf("got %v, want a cancellation that Safe did not convert", r)
	}
}

func TestRootFinishCancelsChildren(t *testing.T) {
	clock := cesk.NewSimulatedClock(epoch)
	p := cesk.Then(cesk.Spawn(cesk.Delay(time.Hour)), cesk.Pure("done"))
	res := run(t, p, cesk.WithClock(clock))
	if got := mustValue(t, res); got != "done" {
		t.Fatalf("got %v, want done", got)
	}
	if ti := taskInfo(t, res, 2); ti.Status != cesk.Cancelled {
		t.Fatalf("orphan is %v, want cancelled", ti.Status)
	}
}

// --- Timeout ---

func TestTimeoutExpires(t *testing.T) {
	clock := cesk.NewSimulatedClock(epoch)
	res := run(t, cesk.Timeout(time.Second, after(5*time.Second, "late")), cesk.WithClock(clock))
	var te *cesk.TimeoutError
	if !errors.As(res.Err, &te) || te.After != time.Second {
		t.Fatalf("got %v, want a 1s timeout", res.Err)
	}
	if got := clock.Now().Sub(epoch); got != time.Second {
		t.Fatalf("clock advanced %v, want 1s", got)
	}
}

func TestTimeoutInTime(t *testing.T) {
	clock := cesk.NewSimulatedClock(epoch)
	res := run(t, cesk.Timeout(5*time.Second, after(time.Second, "ok")), cesk.WithClock(clock))
	if got := mustValue(t, res); got != "ok" {
		t.Fatalf("got %v, want ok", got)
	}
}

// --- Time ---

func TestWaitUntilAndNow(t *testing.T) {
	clock := cesk.NewSimulatedClock(epoch)
	at := epoch.Add(time.Minute)
	res := run(t, cesk.Then(cesk.WaitUntil(at), cesk.Now()), cesk.WithClock(clock))
	if got := mustValue(t, res); got != at {
		t.Fatalf("got %v, want %v", got, at)
	}
}

func TestDeadlock(t *testing.T) {
	type hold struct{ cesk.EffectBase }
	parker := cesk.HandlerFor("parker", func(*cesk.DispatchContext, hold) cesk.Outcome {
		return cesk.Park()
	})
	res := run(t, hold{}, cesk.WithHandlers(parker))
	if !errors.Is(res.Err, cesk.ErrDeadlock) {
		t.Fatalf("got %v, want ErrDeadlock", res.Err)
	}
	var ie *cesk.InvariantError
	if !errors.As(res.Err, &ie) {
		t.Fatalf("got %T, want *InvariantError", res.Err)
	}
}
