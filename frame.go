// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"strconv"
	"time"
)

// Frame is one unit of suspended work on a task's continuation stack.
// Frames are pure data; transitions are free functions in step.go that
// match on the frame type. Frame is a marker interface.
type Frame interface {
	frame() // unexported marker method
}

// FrameBase is embedded by frames defined outside this package.
// Such frames must also implement [Unwinder].
type FrameBase struct{}

func (FrameBase) frame() {}

// Unwinder provides custom frame reduction. Unwind receives either the
// value or the error flowing into the frame and returns the program to
// continue with: Pure(v) or Fail(err) to pass through.
type Unwinder interface {
	Frame
	Unwind(v Value, err error) Program
}

// Kont is the persistent continuation stack. The nil *Kont is empty.
// Push and Pop never modify the receiver.
type Kont struct {
	top   Frame
	rest  *Kont
	depth int
}

// Push returns a stack with f on top.
func (k *Kont) Push(f Frame) *Kont {
	return &Kont{top: f, rest: k, depth: k.Depth() + 1}
}

// Pop returns the top frame and the stack beneath it.
// Pop on an empty stack returns (nil, nil).
func (k *Kont) Pop() (Frame, *Kont) {
	if k == nil {
		return nil, nil
	}
	return k.top, k.rest
}

// Empty reports whether the stack has no frames.
func (k *Kont) Empty() bool { return k == nil }

// Depth returns the number of frames.
func (k *Kont) Depth() int {
	if k == nil {
		return 0
	}
	return k.depth
}

// Frames returns the frames top first.
func (k *Kont) Frames() []Frame {
	out := make([]Frame, 0, k.Depth())
	for c := k; c != nil; c = c.rest {
		out = append(out, c.top)
	}
	return out
}

// bindFrame continues with f applied to the incoming value.
type bindFrame struct{ f func(Value) Program }

func (*bindFrame) frame() {}

// mapFrame transforms the incoming value.
type mapFrame struct{ f func(Value) Value }

func (*mapFrame) frame() {}

// thenFrame discards the incoming value and continues with next.
type thenFrame struct{ next Program }

func (*thenFrame) frame() {}

// resumeFrame resumes a generator with the outcome of the program it
// yielded.
type resumeFrame struct{ g Generator }

func (*resumeFrame) frame() {}

// callFrame marks a traced program call.
type callFrame struct {
	call *callProgram
	id   uint64
}

func (*callFrame) frame() {}

// envFrame restores saved on both exit paths.
type envFrame struct{ saved Env }

func (*envFrame) frame() {}

// safeFrame converts a recoverable error into an errored [Result] and a
// value into an ok one.
type safeFrame struct{}

func (*safeFrame) frame() {}

// catchFrame hands a recoverable error to handler.
type catchFrame struct{ handler func(error) Program }

func (*catchFrame) frame() {}

// retryFrame re-runs body after a recoverable error while attempts remain.
type retryFrame struct {
	body    Program
	left    int
	attempt int
	delay   time.Duration
}

func (*retryFrame) frame() {}

// finallyFrame runs cleanup on both exit paths, then re-delivers the
// original outcome.
type finallyFrame struct{ cleanup Program }

func (*finallyFrame) frame() {}

// replyFrame ignores the incoming value and delivers its own outcome.
// An incoming error supersedes it.
type replyFrame struct {
	value Value
	err   error
}

func (*replyFrame) frame() {}

// listenFrame captures the log window appended since start.
type listenFrame struct{ start int }

func (*listenFrame) frame() {}

// censorFrame rewrites the log window appended since start.
type censorFrame struct {
	start int
	f     func([]Value) []Value
}

func (*censorFrame) frame() {}

// gatherFrame collects child results in submission order.
type gatherFrame struct {
	ids     []TaskID
	results []Value
	got     []bool
	pending int
	safe    bool
}

func (*gatherFrame) frame() {}

// raceFrame resolves with the first child to finish and cancels the rest.
type raceFrame struct{ ids []TaskID }

func (*raceFrame) frame() {}

// joinFrame relays the outcome of one child.
type joinFrame struct{ id TaskID }

func (*joinFrame) frame() {}

// interceptFrame applies transforms to effects performed beneath it.
type interceptFrame struct{ transforms []Transform }

func (*interceptFrame) frame() {}

// maskFrame hides the listed intercept frames from effects performed
// beneath it, so a replacement program is not re-intercepted by the frames
// that produced it.
type maskFrame struct{ skip []*interceptFrame }

func (*maskFrame) frame() {}

// handlerFrame scopes dispatch for a program run by a handler: effects
// performed beneath it are offered to handlers from index depth outward.
type handlerFrame struct {
	depth   int
	handler string
}

func (*handlerFrame) frame() {}

// FrameName returns a short description of f for introspection.
func FrameName(f Frame) string {
	switch f := f.(type) {
	case *bindFrame:
		return "bind"
	case *mapFrame:
		return "map"
	case *thenFrame:
		return "then"
	case *resumeFrame:
		return "resume"
	case *callFrame:
		return "call " + f.call.name
	case *envFrame:
		return "local"
	case *safeFrame:
		return "safe"
	case *catchFrame:
		return "catch"
	case *retryFrame:
		return "retry(" + strconv.Itoa(f.left) + " left)"
	case *finallyFrame:
		return "finally"
	case *replyFrame:
		return "reply"
	case *listenFrame:
		return "listen"
	case *censorFrame:
		return "censor"
	case *gatherFrame:
		return "gather(" + strconv.Itoa(f.pending) + "/" + strconv.Itoa(len(f.ids)) + " pending)"
	case *raceFrame:
		return "race(" + strconv.Itoa(len(f.ids)) + ")"
	case *joinFrame:
		return "join(" + strconv.FormatUint(uint64(f.id), 10) + ")"
	case *interceptFrame:
		return "intercept(" + strconv.Itoa(len(f.transforms)) + ")"
	case *maskFrame:
		return "mask"
	case *handlerFrame:
		return "handler " + f.handler
	}
	return "custom"
}
