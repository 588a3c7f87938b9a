// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

// Control is a task's current focus. Exactly one variant is active per
// task: a produced value, a thrown error, a pending effect, or a program
// awaiting its first step.
type Control interface {
	control() // unexported marker method
}

// ValueControl holds a produced value flowing into the top frame.
type ValueControl struct{ Value Value }

func (ValueControl) control() {}

// ErrorControl holds an error unwinding the continuation stack.
type ErrorControl struct{ Err error }

func (ErrorControl) control() {}

// EffectControl holds an effect awaiting dispatch.
type EffectControl struct {
	Effect Effect
	// intercepted records that interception frames already ran.
	intercepted bool
}

func (EffectControl) control() {}

// ProgramControl holds a program that has not been advanced yet.
type ProgramControl struct{ Program Program }

func (ProgramControl) control() {}
