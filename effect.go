// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Value is a type-erased value flowing through frames and handlers.
// Concrete types are recovered via type assertions at program boundaries.
type Value = any

// Site is a source location recorded when an effect or traced call is
// constructed.
type Site struct {
	Func string `json:"func,omitempty"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

// IsZero reports whether the site was never recorded.
func (s Site) IsZero() bool { return s.File == "" && s.Line == 0 }

func (s Site) String() string {
	if s.IsZero() {
		return "<unknown>"
	}
	return filepath.Base(s.File) + ":" + strconv.Itoa(s.Line)
}

// callerSite records the location skip frames above its caller.
func callerSite(skip int) Site {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Site{}
	}
	s := Site{File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		s.Func = fn.Name()
	}
	return s
}

// Effect is an inert, typed description of a requested operation.
// Every Effect is also a Program: evaluating it performs the effect and
// produces the handler's resumption value.
//
// Effects defined outside this package embed [EffectBase]:
//
//	type Fetch struct {
//		cesk.EffectBase
//		URL string
//	}
type Effect interface {
	Program
	// CreatedAt returns the site where the effect was constructed.
	CreatedAt() Site
	isEffect()
}

// EffectBase carries cross-cutting effect metadata alongside the payload.
// Embed it to declare a new effect type.
type EffectBase struct {
	Site Site
}

func (EffectBase) program()  {}
func (EffectBase) isEffect() {}

// CreatedAt implements [Effect].
func (b EffectBase) CreatedAt() Site { return b.Site }

// At returns an EffectBase stamped with the caller's location.
// Custom effect constructors call it so traces can point at the
// suspension expression.
func At() EffectBase {
	return EffectBase{Site: callerSite(2)}
}

// Category is the three-way effect taxonomy that determines which frame
// machinery an effect needs.
type Category uint8

const (
	// CategoryPure effects touch only the environment, store, log or
	// cache. They are replayable and never suspend.
	CategoryPure Category = iota + 1
	// CategoryControl effects run a sub-program under a modification and
	// push a continuation frame.
	CategoryControl
	// CategoryExternal effects need the scheduler or async bridge and may
	// suspend indefinitely.
	CategoryExternal
)

func (c Category) String() string {
	switch c {
	case CategoryPure:
		return "pure"
	case CategoryControl:
		return "control"
	case CategoryExternal:
		return "external"
	}
	return "unknown"
}

// Categorizer lets user-defined effects declare their category.
// Effects that do not implement it are external.
type Categorizer interface {
	Category() Category
}

// Classify returns the category of e. It is computed per effect by a
// single exhaustive match; user effects fall back to [Categorizer].
func Classify(e Effect) Category {
	switch e.(type) {
	case AskOp, AskAllOp, GetOp, PutOp, ModifyOp, TellOp,
		CacheGetOp, CachePutOp, CacheDeleteOp, CacheExistsOp,
		NowOp, IntrospectOp:
		return CategoryPure
	case LocalOp, ListenOp, CensorOp, SafeOp, CatchOp, RecoverOp, RetryOp,
		FinallyOp, InterceptOp:
		return CategoryControl
	case IOOp, AwaitOp, DelayOp, WaitUntilOp,
		SpawnOp, JoinOp, GatherOp, RaceOp, CancelOp,
		awaitTasks, cancelTasks:
		return CategoryExternal
	}
	if c, ok := e.(Categorizer); ok {
		return c.Category()
	}
	return CategoryExternal
}

// EffectType returns the Go type name of e, e.g. "cesk.GetOp".
func EffectType(e Effect) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", e), "*")
}

// Describe renders a one-line summary of e for traces.
func Describe(e Effect) string {
	if s, ok := e.(fmt.Stringer); ok {
		return s.String()
	}
	name := EffectType(e)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name + "{...}"
}

// summarize renders a value for traces and error messages.
func summarize(v Value) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(v)
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprintf("%v", v)
}

func summarizeArgs(args []Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = summarize(a)
	}
	return strings.Join(parts, ", ")
}
