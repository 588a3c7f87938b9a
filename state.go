// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import "strconv"

// State effect operations.
// State is the task's store: shared by everything the task runs, copied
// by value into every task it spawns.

// GetOp reads one store key. A missing key reads as nil.
type GetOp struct {
	EffectBase
	Key string
}

// Get reads the store value under key.
func Get(key string) GetOp {
	return GetOp{EffectBase: At(), Key: key}
}

func (e GetOp) String() string { return "Get(" + strconv.Quote(e.Key) + ")" }

// DispatchState handles Get in state dispatch.
func (e GetOp) DispatchState(ctx *DispatchContext) Outcome {
	v, _ := ctx.Store.Get(e.Key)
	return Resume(v)
}

// PutOp writes one store key and produces nil.
type PutOp struct {
	EffectBase
	Key   string
	Value Value
}

// Put binds key to v in the store.
func Put(key string, v Value) PutOp {
	return PutOp{EffectBase: At(), Key: key, Value: v}
}

func (e PutOp) String() string {
	return "Put(" + strconv.Quote(e.Key) + ", " + summarize(e.Value) + ")"
}

// DispatchState handles Put in state dispatch.
func (e PutOp) DispatchState(ctx *DispatchContext) Outcome {
	s, err := ctx.Store.Set(e.Key, e.Value)
	if err != nil {
		return Throw(err)
	}
	return Resume(nil).WithStore(s)
}

// ModifyOp applies F to a store key and produces the new value.
type ModifyOp struct {
	EffectBase
	Key string
	F   func(Value) Value
}

// Modify replaces the value under key with f applied to it. A missing key
// is passed to f as the zero value of T.
func Modify[T any](key string, f func(T) T) ModifyOp {
	return ModifyOp{
		EffectBase: At(),
		Key:        key,
		F:          func(v Value) Value { return f(cast[T](v)) },
	}
}

func (e ModifyOp) String() string { return "Modify(" + strconv.Quote(e.Key) + ")" }

// DispatchState handles Modify in state dispatch.
func (e ModifyOp) DispatchState(ctx *DispatchContext) Outcome {
	old, _ := ctx.Store.Get(e.Key)
	v, err := guard(func() Value { return e.F(old) })
	if err != nil {
		return Throw(err)
	}
	s, err := ctx.Store.Set(e.Key, v)
	if err != nil {
		return Throw(err)
	}
	return Resume(v).WithStore(s)
}

type stateOp interface {
	DispatchState(ctx *DispatchContext) Outcome
}

type stateHandler struct{}

// StateHandler returns the handler for Get, Put and Modify.
func StateHandler() Handler { return stateHandler{} }

func (stateHandler) Name() string { return "state" }

func (stateHandler) Accepts(e Effect) bool {
	_, ok := e.(stateOp)
	return ok
}

func (stateHandler) Handle(ctx *DispatchContext, e Effect) Outcome {
	if op, ok := e.(stateOp); ok {
		return op.DispatchState(ctx)
	}
	return Delegate()
}
