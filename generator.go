// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

// Generator is an explicit step-function state machine.
//
// The engine calls Resume(nil, nil) to start it, then once per yielded
// program with that program's value, or with its error. Each call returns
// the next [Yield]. A generator that receives an error may handle it and
// continue, or re-raise it.
//
// Generators hold private state, so a generator value is single-use.
// Wrap construction in [Lazy] when a program must be re-runnable
// (e.g. under [Retry]).
type Generator interface {
	Resume(v Value, err error) Yield
}

type yieldKind uint8

const (
	yieldProgram yieldKind = iota
	yieldReturn
	yieldRaise
)

// Yield is one step of a [Generator].
type Yield struct {
	kind    yieldKind
	program Program
	value   Value
	err     error
}

// Next yields p; the generator is resumed with its outcome.
func Next(p Program) Yield {
	return Yield{kind: yieldProgram, program: p}
}

// Return finishes the generator with v.
func Return(v Value) Yield {
	return Yield{kind: yieldReturn, value: v}
}

// Raise finishes the generator with err.
func Raise(err error) Yield {
	return Yield{kind: yieldRaise, err: err}
}

// Gen lifts a generator into a program.
func Gen(g Generator) Program {
	return &genProgram{g: g}
}

// GeneratorFunc adapts a function to the [Generator] interface.
type GeneratorFunc func(v Value, err error) Yield

// Resume implements [Generator].
func (f GeneratorFunc) Resume(v Value, err error) Yield { return f(v, err) }

// Steps builds a generator from straight-line stages. Stage i receives the
// value produced by the program yielded by stage i-1 (nil for the first).
// An error from a yielded program is re-raised. The last stage's Yield
// should Return or Raise; falling off the end returns the last value.
func Steps(stages ...func(Value) Yield) Program {
	return Lazy(func() Program {
		i := 0
		return Gen(GeneratorFunc(func(v Value, err error) Yield {
			if err != nil {
				return Raise(err)
			}
			if i == len(stages) {
				return Return(v)
			}
			s := stages[i]
			i++
			return s(v)
		}))
	})
}

// callProgram is a traced program call created by [Def].
type callProgram struct {
	name string
	site Site
	args []Value
	body func() Program
}

func (*callProgram) program() {}

// Def wraps a program-producing function so each invocation is recorded in
// traces as a call frame with its name, call site and arguments.
//
//	var transfer = cesk.Def("transfer", func(args ...cesk.Value) cesk.Program {
//		return cesk.Put("balance", args[0])
//	})
func Def(name string, f func(args ...Value) Program) func(args ...Value) Program {
	return func(args ...Value) Program {
		return &callProgram{
			name: name,
			site: callerSite(1),
			args: args,
			body: func() Program { return f(args...) },
		}
	}
}
