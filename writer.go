// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

// Writer effect operations.
// The log lives in the store under LogKey, so spawned tasks start from a
// copy of their parent's log and never write back into it.

// TellOp appends a message to the log and produces nil.
type TellOp struct {
	EffectBase
	Message Value
}

// Tell appends msg to the log.
func Tell(msg Value) TellOp {
	return TellOp{EffectBase: At(), Message: msg}
}

func (e TellOp) String() string { return "Tell(" + summarize(e.Message) + ")" }

// DispatchWriter handles Tell in writer dispatch.
func (e TellOp) DispatchWriter(ctx *DispatchContext) Outcome {
	return Resume(nil).WithStore(ctx.Store.appendLog(e.Message))
}

// Listened is the result of Listen: the body's value and the messages it
// told.
type Listened struct {
	Value Value
	Log   []Value
}

// ListenOp runs Body and captures the messages it tells.
type ListenOp struct {
	EffectBase
	Body Program
}

// Listen runs body and produces a [Listened] with its value and the log
// window it appended. The messages stay in the log.
func Listen(body Program) ListenOp {
	return ListenOp{EffectBase: At(), Body: body}
}

func (ListenOp) String() string { return "Listen(...)" }

// DispatchWriter handles Listen in writer dispatch.
func (e ListenOp) DispatchWriter(ctx *DispatchContext) Outcome {
	return Perform(RunAction{
		Program: e.Body,
		Frames:  []Frame{&listenFrame{start: ctx.Store.logLen()}},
	})
}

// CensorOp runs Body and rewrites the messages it told with F.
type CensorOp struct {
	EffectBase
	F    func([]Value) []Value
	Body Program
}

// Censor runs body and replaces the log window it appended with f applied
// to that window. On failure the window is left as told.
func Censor(f func([]Value) []Value, body Program) CensorOp {
	return CensorOp{EffectBase: At(), F: f, Body: body}
}

func (CensorOp) String() string { return "Censor(...)" }

// DispatchWriter handles Censor in writer dispatch.
func (e CensorOp) DispatchWriter(ctx *DispatchContext) Outcome {
	return Perform(RunAction{
		Program: e.Body,
		Frames:  []Frame{&censorFrame{start: ctx.Store.logLen(), f: e.F}},
	})
}

type writerOp interface {
	DispatchWriter(ctx *DispatchContext) Outcome
}

type writerHandler struct{}

// WriterHandler returns the handler for Tell, Listen and Censor.
func WriterHandler() Handler { return writerHandler{} }

func (writerHandler) Name() string { return "writer" }

func (writerHandler) Accepts(e Effect) bool {
	_, ok := e.(writerOp)
	return ok
}

func (writerHandler) Handle(ctx *DispatchContext, e Effect) Outcome {
	if op, ok := e.(writerOp); ok {
		return op.DispatchWriter(ctx)
	}
	return Delegate()
}
