// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk_test

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"code.hybscloud.com/cesk"
)

// --- Result ---

func TestResultHelpers(t *testing.T) {
	ok := cesk.Ok(2)
	bad := cesk.Errored(errBoom)
	if !ok.IsOk() || bad.IsOk() {
		t.Fatal("IsOk mismatch")
	}
	if got := cesk.MapResult(ok, func(v cesk.Value) cesk.Value { return v.(int) * 3 }); got.Value != 6 {
		t.Fatalf("MapResult = %v, want 6", got)
	}
	if got := cesk.MapResult(bad, func(v cesk.Value) cesk.Value { return v }); !errors.Is(got.Err, errBoom) {
		t.Fatalf("MapResult on error = %v", got)
	}
	half := func(v cesk.Value) cesk.Result {
		if v.(int)%2 != 0 {
			return cesk.Errored(errors.New("odd"))
		}
		return cesk.Ok(v.(int) / 2)
	}
	if got := cesk.FlatMapResult(ok, half); got.Value != 1 {
		t.Fatalf("FlatMapResult = %v, want 1", got)
	}
	msg := cesk.MatchResult(bad,
		func(err error) string { return "err: " + err.Error() },
		func(v cesk.Value) string { return "ok" })
	if msg != "err: boom" {
		t.Fatalf("MatchResult = %q", msg)
	}
	if got := ok.String(); got != "Ok(2)" {
		t.Fatalf("String = %q, want Ok(2)", got)
	}
}

// --- Safe, Catch, Recover ---

func TestSafe(t *testing.T) {
	got := mustValue(t, run(t, cesk.Safe(cesk.Pure(1)))).(cesk.Result)
	if !got.IsOk() || got.Value != 1 {
		t.Fatalf("got %v, want Ok(1)", got)
	}
	got = mustValue(t, run(t, cesk.Safe(cesk.Fail(errBoom)))).(cesk.Result)
	if !errors.Is(got.Err, errBoom) {
		t.Fatalf("got %v, want boom", got)
	}
}

func TestSafeDoesNotConvertUnhandled(t *testing.T) {
	res := run(t, cesk.Safe(cesk.Get("x")), cesk.WithHandlers(cesk.ControlHandler()))
	var ue *cesk.UnhandledEffectError
	if !errors.As(res.Err, &ue) {
		t.Fatalf("got %v, want *UnhandledEffectError", res.Err)
	}
	if ue.Type != "cesk.GetOp" {
		t.Fatalf("effect type %q, want cesk.GetOp", ue.Type)
	}
}

func TestCatch(t *testing.T) {
	p := cesk.Catch(cesk.Fail(errBoom), func(err error) cesk.Program {
		return cesk.Pure("recovered from " + err.Error())
	})
	if got := mustValue(t, run(t, p)); got != "recovered from boom" {
		t.Fatalf("got %v", got)
	}
	p = cesk.Catch(cesk.Pure(1), func(error) cesk.Program { return cesk.Pure(2) })
	if got := mustValue(t, run(t, p)); got != 1 {
		t.Fatalf("got %v, want 1", got)
	}
}

func TestCatchRethrow(t *testing.T) {
	other := errors.New("other")
	p := cesk.Catch(cesk.Fail(errBoom), func(error) cesk.Program { return cesk.Fail(other) })
	if res := run(t, p); !errors.Is(res.Err, other) {
		t.Fatalf("got %v, want other", res.Err)
	}
}

func TestCatchHandlerError(t *testing.T) {
	p := cesk.Catch(cesk.Ask("missing"), func(err error) cesk.Program {
		var ke *cesk.KeyError
		if errors.As(err, &ke) {
			return cesk.Pure("default")
		}
		return cesk.Fail(err)
	})
	if got := mustValue(t, run(t, p)); got != "default" {
		t.Fatalf("got %v, want default", got)
	}
}

func TestRecover(t *testing.T) {
	p := cesk.Recover(cesk.Fail(errBoom), func(error) cesk.Value { return 0 })
	if got := mustValue(t, run(t, p)); got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
}

// --- Retry ---

func flaky(succeedOn int) cesk.Program {
	return cesk.Bind(cesk.Modify("n", func(n int) int { return n + 1 }), func(n int) cesk.Program {
		if n < succeedOn {
			return cesk.Fail(errBoom)
		}
		return cesk.Pure(n)
	})
}

func TestRetrySucceeds(t *testing.T) {
	res := run(t, cesk.Retry(5, 0, flaky(3)))
	if got := mustValue(t, res); got != 3 {
		t.Fatalf("got %v, want 3", got)
	}
	if res.Store["n"] != 3 {
		t.Fatalf("attempts %v, want 3", res.Store["n"])
	}
}

func TestRetryExhausted(t *testing.T) {
	res := run(t, cesk.Retry(2, 0, flaky(10)))
	if !errors.Is(res.Err, errBoom) {
		t.Fatalf("got %v, want boom", res.Err)
	}
	if res.Store["n"] != 2 {
		t.Fatalf("attempts %v, want 2", res.Store["n"])
	}
}

func TestRetryDelay(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := cesk.NewSimulatedClock(start)
	res := run(t, cesk.Retry(3, time.Second, flaky(3)), cesk.WithClock(clock))
	if got := mustValue(t, res); got != 3 {
		t.Fatalf("got %v, want 3", got)
	}
	if got := clock.Now().Sub(start); got != 2*time.Second {
		t.Fatalf("clock advanced %v, want 2s", got)
	}
}

// --- Finally, Bracket, OnError ---

func TestFinallyOnSuccess(t *testing.T) {
	res := run(t, cesk.Finally(cesk.Pure(1), cesk.Tell("cleanup")))
	if got := mustValue(t, res); got != 1 {
		t.Fatalf("got %v, want 1", got)
	}
	if want := []cesk.Value{"cleanup"}; !reflect.DeepEqual(res.Log, want) {
		t.Fatalf("log %v, want %v", res.Log, want)
	}
}

func TestFinallyOnError(t *testing.T) {
	res := run(t, cesk.Finally(cesk.Fail(errBoom), cesk.Tell("cleanup")))
	if !errors.Is(res.Err, errBoom) {
		t.Fatalf("got %v, want boom", res.Err)
	}
	if want := []cesk.Value{"cleanup"}; !reflect.DeepEqual(res.Log, want) {
		t.Fatalf("log %v, want %v", res.Log, want)
	}
}

func TestFinallyOnUnhandled(t *testing.T) {
	type mystery struct{ cesk.EffectBase }
	res := run(t, cesk.Finally(mystery{}, cesk.Tell("cleanup")))
	var ue *cesk.UnhandledEffectError
	if !errors.As(res.Err, &ue) {
		t.Fatalf("got %v, want *UnhandledEffectError", res.Err)
	}
	if want := []cesk.Value{"cleanup"}; !reflect.DeepEqual(res.Log, want) {
		t.Fatalf("log %v, want %v", res.Log, want)
	}
}

func TestFinallyCleanupFailureWins(t *testing.T) {
	other := errors.New("cleanup failed")
	res := run(t, cesk.Finally(cesk.Fail(errBoom), cesk.Fail(other)))
	if !errors.Is(res.Err, other) {
		t.Fatalf("got %v, want cleanup failure", res.Err)
	}
}

func TestBracket(t *testing.T) {
	release := func(r cesk.Value) cesk.Program { return cesk.Tell("release " + r.(string)) }
	use := func(r cesk.Value) cesk.Program {
		return cesk.Then(cesk.Tell("use "+r.(string)), cesk.Fail(errBoom))
	}
	res := run(t, cesk.Bracket(cesk.Pure("conn"), release, use))
	if !errors.Is(res.Err, errBoom) {
		t.Fatalf("got %v, want boom", res.Err)
	}
	if want := []cesk.Value{"use conn", "release conn"}; !reflect.DeepEqual(res.Log, want) {
		t.Fatalf("log %v, want %v", res.Log, want)
	}
}

func TestOnError(t *testing.T) {
	saw := func(err error) cesk.Program { return cesk.Tell("saw " + err.Error()) }

	res := run(t, cesk.OnError(cesk.Fail(errBoom), saw))
	if !errors.Is(res.Err, errBoom) {
		t.Fatalf("got %v, want boom", res.Err)
	}
	if want := []cesk.Value{"saw boom"}; !reflect.DeepEqual(res.Log, want) {
		t.Fatalf("log %v, want %v", res.Log, want)
	}

	res = run(t, cesk.OnError(cesk.Pure(1), saw))
	if got := mustValue(t, res); got != 1 || len(res.Log) != 0 {
		t.Fatalf("got %v with log %v", got, res.Log)
	}
}
