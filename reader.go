// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"strconv"
	"strings"
)

// Reader effect operations.
// The environment is read-only; Local is the only way to change it, and
// only for the extent of its body.

// AskOp reads one environment key.
// A missing key raises a *KeyError.
type AskOp struct {
	EffectBase
	Key string
}

// Ask reads the environment value bound to key.
func Ask(key string) AskOp {
	return AskOp{EffectBase: At(), Key: key}
}

func (e AskOp) String() string { return "Ask(" + strconv.Quote(e.Key) + ")" }

// DispatchReader handles Ask in reader dispatch.
func (e AskOp) DispatchReader(ctx *DispatchContext) Outcome {
	v, ok := ctx.Env.Get(e.Key)
	if !ok {
		return Throw(&KeyError{Scope: "environment", Key: e.Key})
	}
	return Resume(v)
}

// AskAllOp reads the whole environment as a map copy.
type AskAllOp struct {
	EffectBase
}

// AskAll reads every environment binding.
func AskAll() AskAllOp {
	return AskAllOp{EffectBase: At()}
}

func (AskAllOp) String() string { return "AskAll()" }

// DispatchReader handles AskAll in reader dispatch.
func (AskAllOp) DispatchReader(ctx *DispatchContext) Outcome {
	return Resume(ctx.Env.Map())
}

// LocalOp runs Body with Overrides applied on top of the environment.
// The previous environment is restored when Body returns or fails.
type LocalOp struct {
	EffectBase
	Overrides map[string]Value
	Body      Program
}

// Local runs body under an environment extended with overrides.
func Local(overrides map[string]Value, body Program) LocalOp {
	return LocalOp{EffectBase: At(), Overrides: overrides, Body: body}
}

func (e LocalOp) String() string {
	keys := make([]string, 0, len(e.Overrides))
	for _, k := range NewEnv(e.Overrides).Keys() {
		keys = append(keys, strconv.Quote(k))
	}
	return "Local({" + strings.Join(keys, ", ") + "})"
}

// DispatchReader handles Local in reader dispatch.
func (e LocalOp) DispatchReader(ctx *DispatchContext) Outcome {
	env := ctx.Env.With(e.Overrides)
	return Perform(RunAction{
		Program: e.Body,
		Frames:  []Frame{&envFrame{saved: ctx.Env}},
		Env:     &env,
	})
}

type readerOp interface {
	DispatchReader(ctx *DispatchContext) Outcome
}

type readerHandler struct{}

// ReaderHandler returns the handler for Ask, AskAll and Local.
func ReaderHandler() Handler { return readerHandler{} }

func (readerHandler) Name() string { return "reader" }

func (readerHandler) Accepts(e Effect) bool {
	_, ok := e.(readerOp)
	return ok
}

func (readerHandler) Handle(ctx *DispatchContext, e Effect) Outcome {
	if op, ok := e.(readerOp); ok {
		return op.DispatchReader(ctx)
	}
	return Delegate()
}
