// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import "errors"

// dispatch offers e to handlers[start:] in stack order and returns the
// first non-delegating outcome, the index of the handler that produced it
// (-1 when none accepted), and the delegation chain.
func dispatch(handlers []Handler, start int, ctx *DispatchContext, e Effect) (Outcome, int, []ChainStep) {
	var (
		o     Outcome
		at    = -1
		chain []ChainStep
		thens []func(Outcome) Outcome
		names []string
	)
	for i := start; i < len(handlers); i++ {
		h := handlers[i]
		if a, ok := h.(Accepter); ok && !a.Accepts(e) {
			continue
		}
		o = invoke(h, ctx, e)
		if o.kind == outcomeDelegate {
			chain = append(chain, ChainStep{Handler: h.Name(), Status: StatusDelegated})
			if o.then != nil {
				thens = append(thens, o.then)
				names = append(names, h.Name())
			}
			continue
		}
		if o.kind == outcomeThrow {
			o.err = annotate(h.Name(), e, o.err)
		}
		chain = append(chain, ChainStep{Handler: h.Name(), Status: o.status()})
		at = i
		break
	}
	if at < 0 {
		o = Throw(&UnhandledEffectError{Type: EffectType(e), Summary: Describe(e)})
	}
	for j := len(thens) - 1; j >= 0; j-- {
		f, prev := thens[j], o
		mapped, err := guard(func() Outcome { return f(prev) })
		switch {
		case err != nil:
			o = Throw(&HandlerError{Handler: names[j], Effect: EffectType(e), Err: err})
		case mapped.kind == outcomeDelegate:
			o = Throw(&UnhandledEffectError{Type: EffectType(e), Summary: Describe(e)})
		default:
			o = mapped
		}
	}
	return o, at, chain
}

// invoke calls h, converting a panic into a handler error.
func invoke(h Handler, ctx *DispatchContext, e Effect) Outcome {
	o, err := guard(func() Outcome { return h.Handle(ctx, e) })
	if err != nil {
		if !IsRecoverable(err) {
			return Throw(err)
		}
		return Throw(&HandlerError{Handler: h.Name(), Effect: EffectType(e), Err: err})
	}
	return o
}

// annotate attributes a thrown recoverable error to the handler that
// threw it.
func annotate(handler string, e Effect, err error) error {
	if err == nil {
		return invariant("dispatch", "handler %s threw a nil error", handler)
	}
	if !IsRecoverable(err) {
		return err
	}
	var he *HandlerError
	if errors.As(err, &he) {
		return err
	}
	return &HandlerError{Handler: handler, Effect: EffectType(e), Err: err}
}
