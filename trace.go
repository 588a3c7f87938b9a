// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// EventKind classifies trace events.
type EventKind string

const (
	EventCall     EventKind = "call"     // a traced program call was entered
	EventReturn   EventKind = "return"   // a traced call returned a value
	EventUnwind   EventKind = "unwind"   // an error unwound through a traced call
	EventDispatch EventKind = "dispatch" // an effect was offered to handlers
	EventSpawn    EventKind = "spawn"    // a child task was created
	EventJoin     EventKind = "join"     // a task observed a failed child
)

// DispatchStatus is one handler's verdict on an effect.
type DispatchStatus string

const (
	StatusActive      DispatchStatus = "active"
	StatusDelegated   DispatchStatus = "delegated"
	StatusResumed     DispatchStatus = "resumed"
	StatusThrew       DispatchStatus = "threw"
	StatusTransferred DispatchStatus = "transferred"
)

// Symbol returns the compact marker used in rendered delegation chains.
func (s DispatchStatus) Symbol() string {
	switch s {
	case StatusDelegated:
		return "↗"
	case StatusResumed:
		return "✓"
	case StatusThrew:
		return "✗"
	case StatusTransferred:
		return "⇢"
	}
	return "⋯"
}

// ChainStep is one handler visited while dispatching an effect.
type ChainStep struct {
	Handler string         `json:"handler"`
	Status  DispatchStatus `json:"status"`
}

// Event is one structured trace record. Which fields are set depends on
// Kind.
type Event struct {
	Seq  int       `json:"seq"`
	Kind EventKind `json:"kind"`
	Task TaskID    `json:"task"`

	// Call is the id of the traced call the event belongs to: the call
	// itself for call/return/unwind, the innermost open call for dispatch.
	Call uint64 `json:"call,omitempty"`
	Func string `json:"func,omitempty"`
	Site Site   `json:"site,omitzero"`
	Args string `json:"args,omitempty"`

	Effect     string         `json:"effect,omitempty"`
	EffectType string         `json:"effect_type,omitempty"`
	Category   string         `json:"category,omitempty"`
	Chain      []ChainStep    `json:"chain,omitempty"`
	Status     DispatchStatus `json:"status,omitempty"`

	Value   string `json:"value,omitempty"`
	Err     string `json:"err,omitempty"`
	ErrType string `json:"err_type,omitempty"`

	Child TaskID `json:"child,omitempty"`
}

// MarshalTrace writes events as JSON lines, one event per line.
func MarshalTrace(w io.Writer, events []Event) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return err
		}
	}
	return nil
}

// chainString renders a delegation chain as "[inner↗ > outer✗]".
func chainString(chain []ChainStep) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, s := range chain {
		if i > 0 {
			b.WriteString(" > ")
		}
		b.WriteString(s.Handler)
		b.WriteString(s.Status.Symbol())
	}
	b.WriteByte(']')
	return b.String()
}

// maxValueWidth bounds rendered values in traces.
const maxValueWidth = 80

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxValueWidth {
		return s
	}
	r := []rune(s)
	return string(r[:maxValueWidth-3]) + "..."
}

func errType(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
