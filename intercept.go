// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import "strconv"

// Transform rewrites an effect before it is dispatched.
//
// Returning nil leaves the effect unchanged. Returning another Effect
// substitutes it and lets later transforms see the substitute. Any other
// program replaces the effect entirely; effects it performs skip the
// interception frames already consulted.
type Transform func(e Effect) Program

// InterceptOp runs Body with Transforms applied to every effect it
// performs, in order.
type InterceptOp struct {
	EffectBase
	Body       Program
	Transforms []Transform
}

// Intercept runs body with transforms applied to the effects it performs.
// Nested intercepts are consulted nearest first. Interception does not
// reach into spawned tasks or into programs run by handlers.
func Intercept(body Program, transforms ...Transform) InterceptOp {
	return InterceptOp{EffectBase: At(), Body: body, Transforms: transforms}
}

func (e InterceptOp) String() string {
	return "Intercept(" + strconv.Itoa(len(e.Transforms)) + ")"
}

// DispatchControl handles Intercept in control dispatch.
func (e InterceptOp) DispatchControl(*DispatchContext) Outcome {
	f := &interceptFrame{transforms: e.Transforms}
	return Perform(RunAction{Program: e.Body, Frames: []Frame{f}})
}

// InterceptFor returns a Transform that applies f to effects of type E and
// leaves all others unchanged.
func InterceptFor[E Effect](f func(E) Program) Transform {
	return func(e Effect) Program {
		if x, ok := e.(E); ok {
			return f(x)
		}
		return nil
	}
}
