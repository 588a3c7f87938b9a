// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import "time"

// Observer receives scheduler notifications. Callbacks run on the
// interpreter goroutine and must not block.
type Observer interface {
	ObserveDispatch(DispatchInfo)
	ObserveSpawn(SpawnInfo)
	ObserveExit(ExitInfo)
}

// DispatchInfo describes one effect dispatch.
type DispatchInfo struct {
	Task     TaskID
	Effect   string
	Category Category
	Handler  string
	Status   DispatchStatus
	Duration time.Duration
}

// SpawnInfo describes a task creation.
type SpawnInfo struct {
	Parent TaskID
	Child  TaskID
	Name   string
}

// ExitInfo describes a task reaching a terminal state.
type ExitInfo struct {
	Task   TaskID
	Status TaskStatus
	Err    error
}

type nopObserver struct{}

func (nopObserver) ObserveDispatch(DispatchInfo) {}
func (nopObserver) ObserveSpawn(SpawnInfo)       {}
func (nopObserver) ObserveExit(ExitInfo)         {}

// Observers fans notifications out to several observers in order.
func Observers(obs ...Observer) Observer {
	return multiObserver(obs)
}

type multiObserver []Observer

func (m multiObserver) ObserveDispatch(i DispatchInfo) {
	for _, o := range m {
		o.ObserveDispatch(i)
	}
}

func (m multiObserver) ObserveSpawn(i SpawnInfo) {
	for _, o := range m {
		o.ObserveSpawn(i)
	}
}

func (m multiObserver) ObserveExit(i ExitInfo) {
	for _, o := range m {
		o.ObserveExit(i)
	}
}
