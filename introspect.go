// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

// IntrospectOp reports the performing task's continuation.
type IntrospectOp struct {
	EffectBase
}

// Introspect produces an [Introspection] of the current task. It does not
// alter control flow.
func Introspect() IntrospectOp {
	return IntrospectOp{EffectBase: At()}
}

func (IntrospectOp) String() string { return "Introspect()" }

// Introspection is a snapshot of a task's continuation at the point it
// performed Introspect.
type Introspection struct {
	Task TaskID
	// Frames describes the continuation stack, top first.
	Frames []string
	// CallChain lists the open traced calls, innermost first.
	CallChain []CallInfo
}

// CallInfo describes one open call made through [Def].
type CallInfo struct {
	Func string
	Site Site
	Args string
}

func introspect(ctx *DispatchContext) Introspection {
	in := Introspection{Task: ctx.Task, Frames: ctx.Frames()}
	for _, f := range ctx.kont.Frames() {
		if cf, ok := f.(*callFrame); ok {
			in.CallChain = append(in.CallChain, CallInfo{
				Func: cf.call.name,
				Site: cf.call.site,
				Args: summarizeArgs(cf.call.args),
			})
		}
	}
	return in
}

// IntrospectHandler returns the handler for Introspect.
func IntrospectHandler() Handler {
	return HandlerFor("introspect", func(ctx *DispatchContext, _ IntrospectOp) Outcome {
		return Resume(introspect(ctx))
	})
}
