// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"sync/atomic"
)

// Continuation is the one-shot resumption point of a task suspended at an
// effect. It can be consumed at most once: by the dispatch that captured
// it resuming normally, or by a single [Transfer]. Consuming it again is
// an engine invariant violation.
//
// Continuations model affine resource usage; the machine never duplicates
// the continuation stack they stand for.
type Continuation struct {
	used  atomic.Bool
	task  TaskID
	point uint64
}

// Task returns the task the continuation resumes.
func (k *Continuation) Task() TaskID { return k.task }

// Used reports whether the continuation has been consumed.
func (k *Continuation) Used() bool { return k.used.Load() }

// Discard marks the continuation as used without resuming it.
func (k *Continuation) Discard() { k.used.Store(true) }

// take consumes the continuation. It reports false if it was already used.
func (k *Continuation) take() bool {
	return k.used.CompareAndSwap(false, true)
}
