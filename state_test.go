// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk_test

import (
	"errors"
	"reflect"
	"testing"

	"code.hybscloud.com/cesk"
)

// --- State ---

func TestStatePutModifyGet(t *testing.T) {
	p := cesk.Do(
		cesk.Put("x", 1),
		cesk.Modify("x", func(n int) int { return n + 1 }),
		cesk.Get("x"),
	)
	res := run(t, p)
	if got := mustValue(t, res); got != 2 {
		t.Fatalf("got %v, want 2", got)
	}
	if want := map[string]cesk.Value{"x": 2}; !reflect.DeepEqual(res.Store, want) {
		t.Fatalf("store %v, want %v", res.Store, want)
	}
}

func TestStateModifyResumesNewValue(t *testing.T) {
	p := cesk.Modify("n", func(n int) int { return n + 10 })
	if got := mustValue(t, run(t, p)); got != 10 {
		t.Fatalf("got %v, want 10", got)
	}
}

func TestStateMissingKeyReadsNil(t *testing.T) {
	if got := mustValue(t, run(t, cesk.Get("missing"))); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}

func TestStateInitialStore(t *testing.T) {
	res := run(t, cesk.Get("x"), cesk.WithStore(map[string]cesk.Value{"x": "init", cesk.LogKey: "ignored"}))
	if got := mustValue(t, res); got != "init" {
		t.Fatalf("got %v, want init", got)
	}
	if len(res.Log) != 0 {
		t.Fatalf("log %v, want empty", res.Log)
	}
}

func TestStateReservedKeyRejected(t *testing.T) {
	res := run(t, cesk.Put(cesk.ReservedPrefix+"counter", 1))
	if !errors.Is(res.Err, cesk.ErrReservedKey) {
		t.Fatalf("got %v, want ErrReservedKey", res.Err)
	}
	var he *cesk.HandlerError
	if !errors.As(res.Err, &he) || he.Handler != "state" {
		t.Fatalf("got %v, want a state handler error", res.Err)
	}

	res = run(t, cesk.Modify(cesk.LogKey, func(v cesk.Value) cesk.Value { return v }))
	if !errors.Is(res.Err, cesk.ErrReservedKey) {
		t.Fatalf("Modify: got %v, want ErrReservedKey", res.Err)
	}
}

func TestStateModifyPanic(t *testing.T) {
	p := cesk.Modify("x", func(int) int { panic("bad update") })
	res := run(t, p)
	var pe *cesk.PanicError
	if !errors.As(res.Err, &pe) {
		t.Fatalf("got %v, want *PanicError", res.Err)
	}
	if !cesk.IsRecoverable(res.Err) {
		t.Fatal("a panicking update should be recoverable")
	}
}

func TestStoreIsPersistent(t *testing.T) {
	s0 := cesk.NewStore(map[string]cesk.Value{"a": 1})
	s1, err := s0.Set("a", 2)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := s0.Get("a"); v != 1 {
		t.Fatalf("original store changed to %v", v)
	}
	if v, _ := s1.Get("a"); v != 2 {
		t.Fatalf("got %v, want 2", v)
	}
	if s2 := s1.Delete("a"); s2.Len() != 0 || s1.Len() != 1 {
		t.Fatalf("delete: len %d and %d", s2.Len(), s1.Len())
	}
}

// --- Spawn isolation ---

func TestSpawnStoreIsolation(t *testing.T) {
	child := cesk.Bind(cesk.Get("x"), func(v int) cesk.Program {
		return cesk.Then(cesk.Put("x", v+1), cesk.Pure(v))
	})
	p := cesk.Do(
		cesk.Put("x", 0),
		cesk.Bind(cesk.Gather(child, child, child), func(vs []cesk.Value) cesk.Program {
			return cesk.Bind(cesk.Get("x"), func(x int) cesk.Program {
				return cesk.Pure(append(vs, x))
			})
		}),
	)
	got := mustValue(t, run(t, p))
	if want := []cesk.Value{0, 0, 0, 0}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestChildLogDoesNotLeak(t *testing.T) {
	p := cesk.Do(
		cesk.Tell("parent"),
		cesk.Gather(cesk.Tell("child")),
	)
	res := run(t, p)
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if want := []cesk.Value{"parent"}; !reflect.DeepEqual(res.Log, want) {
		t.Fatalf("log %v, want %v", res.Log, want)
	}
}
