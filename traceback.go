// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"os"
	"slices"
	"strings"

	"github.com/muesli/termenv"
)

// TracebackOptions controls how [Traceback] renders.
type TracebackOptions struct {
	// ShowHistory renders every recorded event instead of only the live
	// failure chain.
	ShowHistory bool
	// Color styles the output for a terminal using Profile.
	Color   bool
	Profile termenv.Profile
	// NoSource suppresses source lines read from disk.
	NoSource bool
}

// Traceback renders the failure narrative of err from a run's trace.
//
// By default only the live failure chain is shown: the traced calls open
// when the error was raised, followed across spawn boundaries into the
// child task it came from. The root error type and message are always
// included, even with an empty trace.
func Traceback(err error, events []Event, opts TracebackOptions) string {
	if err == nil {
		return ""
	}
	r := &tbRenderer{opts: opts, sources: make(map[string][]string)}
	if len(events) > 0 {
		r.b.WriteString(r.style("Traceback (most recent call last):", tbHeader))
		r.b.WriteByte('\n')
		if opts.ShowHistory {
			r.history(events)
		} else {
			r.live(events)
		}
	}
	r.b.WriteString(r.style(errType(err), tbError))
	r.b.WriteString(": ")
	r.b.WriteString(err.Error())
	r.b.WriteByte('\n')
	return r.b.String()
}

type tbStyle uint8

const (
	tbPlain tbStyle = iota
	tbHeader
	tbError
	tbFunc
	tbFaint
)

type tbRenderer struct {
	opts    TracebackOptions
	b       strings.Builder
	sources map[string][]string
	chain   string
}

func (r *tbRenderer) style(s string, st tbStyle) string {
	if !r.opts.Color || st == tbPlain {
		return s
	}
	p := r.opts.Profile
	out := termenv.String(s)
	switch st {
	case tbHeader:
		out = out.Bold()
	case tbError:
		out = out.Foreground(p.Color("#f87171")).Bold()
	case tbFunc:
		out = out.Foreground(p.Color("#818cf8"))
	case tbFaint:
		out = out.Faint()
	}
	return out.String()
}

// tbFrame is one open traced call during replay. The outermost pseudo
// frame has no call.
type tbFrame struct {
	call *Event
	last *Event
}

// failure is the state of a task when its final error was raised.
type failure struct {
	frames []tbFrame
	origin *Event
}

// replay walks the events of one task and returns its live failure, if
// the task was still unwinding when its events end.
func replay(events []*Event) (failure, bool) {
	var (
		stack     = []tbFrame{{}}
		snap      failure
		unwinding bool
	)
	capture := func(ev *Event) {
		snap = failure{frames: slices.Clone(stack), origin: ev}
		unwinding = true
	}
	for _, ev := range events {
		switch ev.Kind {
		case EventCall:
			unwinding = false
			stack = append(stack, tbFrame{call: ev})
		case EventReturn:
			unwinding = false
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case EventSpawn:
			unwinding = false
		case EventDispatch:
			stack[len(stack)-1].last = ev
			if ev.Status == StatusThrew {
				capture(ev)
			}
		case EventJoin:
			capture(ev)
		case EventUnwind:
			if !unwinding {
				capture(ev)
			}
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return snap, unwinding
}

func (r *tbRenderer) live(events []Event) {
	byTask := make(map[TaskID][]*Event)
	spawned := make(map[TaskID]*Event)
	for i := range events {
		ev := &events[i]
		byTask[ev.Task] = append(byTask[ev.Task], ev)
		if ev.Kind == EventSpawn {
			spawned[ev.Child] = ev
		}
	}
	root := TaskID(0)
	for id := range byTask {
		if _, child := spawned[id]; child {
			continue
		}
		if root == 0 || id < root {
			root = id
		}
	}
	if root == 0 {
		root = events[0].Task
	}

	seen := make(map[TaskID]bool)
	for cur := root; cur != 0 && !seen[cur]; {
		seen[cur] = true
		if sp, ok := spawned[cur]; ok && cur != root {
			r.separator(sp)
		} else {
			r.line(2, r.style(cur.String(), tbFaint))
		}
		f, ok := replay(byTask[cur])
		if !ok {
			return
		}
		r.failure(f)
		if f.origin.Kind != EventJoin {
			return
		}
		cur = f.origin.Child
	}
}

func (r *tbRenderer) separator(sp *Event) {
	label := "── spawned"
	if !sp.Site.IsZero() {
		label += " at " + sp.Site.String()
	}
	label += " as " + sp.Func + " (" + sp.Child.String() + ") ──"
	r.line(2, r.style(label, tbFaint))
}

func (r *tbRenderer) failure(f failure) {
	for i, fr := range f.frames {
		inner := i == len(f.frames)-1
		var at *Event
		switch {
		case !inner:
			at = f.frames[i+1].call
		case f.origin.Kind == EventDispatch:
			at = f.origin
		default:
			at = fr.last
		}
		if fr.call != nil {
			head := "in " + r.style(fr.call.Func, tbFunc) + "(" + fr.call.Args + ")"
			if at != nil && !at.Site.IsZero() {
				head += " at " + at.Site.String()
			}
			r.line(4, head)
			if at != nil {
				r.source(at.Site)
			}
		}
		if inner && at != nil && at.Kind == EventDispatch {
			r.line(4, r.dispatchRow(at))
			if fr.call == nil {
				r.source(at.Site)
			}
		}
	}
	if f.origin.Kind == EventJoin {
		r.line(4, "joined "+f.origin.Child.String()+", which failed")
	}
}

func (r *tbRenderer) dispatchRow(ev *Event) string {
	row := "dispatch " + ev.Effect
	if !ev.Site.IsZero() {
		row += " at " + ev.Site.String()
	}
	if chain := chainString(ev.Chain); len(ev.Chain) > 0 {
		if chain == r.chain {
			row += " [same]"
		} else {
			row += " " + chain
			r.chain = chain
		}
	}
	switch {
	case ev.Err != "":
		row += " ! " + ev.Err
	case ev.Value != "":
		row += " = " + ev.Value
	}
	return row
}

func (r *tbRenderer) history(events []Event) {
	depth := make(map[TaskID]int)
	for i := range events {
		ev := &events[i]
		d := depth[ev.Task]
		prefix := r.style("["+ev.Task.String()+"]", tbFaint) + " "
		switch ev.Kind {
		case EventCall:
			r.line(2+2*d, prefix+"→ "+r.style(ev.Func, tbFunc)+"("+ev.Args+") at "+ev.Site.String())
			depth[ev.Task] = d + 1
		case EventReturn:
			depth[ev.Task] = max(d-1, 0)
			r.line(2+2*max(d-1, 0), prefix+"← "+ev.Func+" = "+ev.Value)
		case EventUnwind:
			depth[ev.Task] = max(d-1, 0)
			r.line(2+2*max(d-1, 0), prefix+"✗ "+ev.Func+": "+ev.Err)
		case EventDispatch:
			r.line(2+2*d, prefix+r.dispatchRow(ev))
		case EventSpawn:
			r.separator(ev)
		case EventJoin:
			r.line(2+2*d, prefix+"joined "+ev.Child.String()+": "+ev.Err)
		}
	}
}

func (r *tbRenderer) line(indent int, s string) {
	r.b.WriteString(strings.Repeat(" ", indent))
	r.b.WriteString(s)
	r.b.WriteByte('\n')
}

// source writes the source line at s, when the file is readable.
func (r *tbRenderer) source(s Site) {
	if r.opts.NoSource || s.IsZero() {
		return
	}
	lines, ok := r.sources[s.File]
	if !ok {
		if data, err := os.ReadFile(s.File); err == nil {
			lines = strings.Split(string(data), "\n")
		}
		r.sources[s.File] = lines
	}
	if s.Line < 1 || s.Line > len(lines) {
		return
	}
	if text := strings.TrimSpace(lines[s.Line-1]); text != "" {
		r.line(8, r.style(text, tbFaint))
	}
}
