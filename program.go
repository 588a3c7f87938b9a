// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

// Program is a resumable computation: an immediately known value or error,
// a primitive [Effect], a sequenced composition, or an explicit stepping
// function ([Generator]).
//
// Composition pushes continuation frames instead of nesting host calls, so
// arbitrarily long Bind chains evaluate in constant host stack.
type Program interface {
	program() // unexported marker method
}

type pureProgram struct{ value Value }

func (pureProgram) program() {}

type failProgram struct{ err error }

func (failProgram) program() {}

type bindProgram struct {
	m Program
	f func(Value) Program
}

func (*bindProgram) program() {}

type mapProgram struct {
	m Program
	f func(Value) Value
}

func (*mapProgram) program() {}

type thenProgram struct {
	m, n Program
}

func (*thenProgram) program() {}

type lazyProgram struct {
	f func() Program
}

func (*lazyProgram) program() {}

type genProgram struct {
	g Generator
}

func (*genProgram) program() {}

// framedProgram pushes frame, then evaluates body beneath it.
type framedProgram struct {
	frame Frame
	body  Program
}

func (*framedProgram) program() {}

// Pure lifts a value into a program with no effects.
func Pure(v Value) Program {
	return pureProgram{value: v}
}

// Fail creates a program that raises err.
func Fail(err error) Program {
	return failProgram{err: err}
}

// cast recovers a concrete type at a program boundary. A nil value becomes
// the zero value of A.
func cast[A any](v Value) A {
	if v == nil {
		var zero A
		return zero
	}
	return v.(A)
}

// Bind sequences two programs: it runs m, then passes the result to f.
// The result of m is asserted to A; a mismatch raises a [PanicError].
func Bind[A any](m Program, f func(A) Program) Program {
	if p, ok := m.(pureProgram); ok {
		return Lazy(func() Program { return f(cast[A](p.value)) })
	}
	return &bindProgram{m: m, f: func(v Value) Program { return f(cast[A](v)) }}
}

// Map applies a pure function to the result of m.
func Map[A, B any](m Program, f func(A) B) Program {
	return &mapProgram{m: m, f: func(v Value) Value { return f(cast[A](v)) }}
}

// Then sequences m before n, discarding the result of m.
func Then(m, n Program) Program {
	if _, ok := m.(pureProgram); ok {
		return n
	}
	return &thenProgram{m: m, n: n}
}

// Do runs each program in order and produces the last result.
// Do() produces nil.
func Do(ps ...Program) Program {
	if len(ps) == 0 {
		return Pure(nil)
	}
	p := ps[len(ps)-1]
	for i := len(ps) - 2; i >= 0; i-- {
		p = Then(ps[i], p)
	}
	return p
}

// Sequence runs each program in order and collects every result.
func Sequence(ps ...Program) Program {
	var step func(i int, acc []Value) Program
	step = func(i int, acc []Value) Program {
		if i == len(ps) {
			return Pure(acc)
		}
		return Bind(ps[i], func(v Value) Program {
			return step(i+1, append(acc, v))
		})
	}
	return Lazy(func() Program { return step(0, make([]Value, 0, len(ps))) })
}

// Traverse applies f to each item and sequences the resulting programs.
func Traverse[T any](items []T, f func(T) Program) Program {
	ps := make([]Program, len(items))
	for i, it := range items {
		ps[i] = f(it)
	}
	return Sequence(ps...)
}

// Lazy defers construction of a program until it is evaluated.
func Lazy(f func() Program) Program {
	return &lazyProgram{f: f}
}

// FromFunc lifts a fallible Go function into a program. The function runs
// when the program is evaluated, not when it is constructed.
func FromFunc(f func() (Value, error)) Program {
	return Lazy(func() Program {
		v, err := f()
		if err != nil {
			return Fail(err)
		}
		return Pure(v)
	})
}

// withFrame evaluates body beneath frame.
func withFrame(f Frame, body Program) Program {
	return &framedProgram{frame: f, body: body}
}
