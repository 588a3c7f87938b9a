// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk_test

import (
	"slices"
	"testing"

	"code.hybscloud.com/cesk"
)

func TestIntrospect(t *testing.T) {
	inner := cesk.Def("inner", func(...cesk.Value) cesk.Program {
		return cesk.Local(map[string]cesk.Value{"k": 1}, cesk.Introspect())
	})
	outer := cesk.Def("outer", func(args ...cesk.Value) cesk.Program {
		return cesk.Map(inner(), func(in cesk.Introspection) cesk.Introspection { return in })
	})
	in := mustValue(t, run(t, outer(3))).(cesk.Introspection)

	if in.Task != 1 {
		t.Fatalf("task %s, want task 1", in.Task)
	}
	if len(in.Frames) == 0 || in.Frames[0] != "local" {
		t.Fatalf("frames %v, want local on top", in.Frames)
	}
	if !slices.Contains(in.Frames, "call outer") || !slices.Contains(in.Frames, "call inner") {
		t.Fatalf("frames %v, want both calls", in.Frames)
	}
	if len(in.CallChain) != 2 {
		t.Fatalf("call chain %v, want 2 calls", in.CallChain)
	}
	if c := in.CallChain[0]; c.Func != "inner" || c.Site.IsZero() {
		t.Fatalf("innermost call %+v", c)
	}
	if c := in.CallChain[1]; c.Func != "outer" || c.Args != "3" {
		t.Fatalf("outermost call %+v", c)
	}
}

func TestIntrospectOutsideCalls(t *testing.T) {
	in := mustValue(t, run(t, cesk.Introspect())).(cesk.Introspection)
	if len(in.Frames) != 0 || len(in.CallChain) != 0 {
		t.Fatalf("got %+v, want an empty continuation", in)
	}
}
