// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cesk provides an algebraic-effects runtime for Go built on a
// Control/Environment/Store/Kontinuation (CESK) machine.
//
// Programs describe computation as chains of effects: inert, typed requests
// for reads, mutations, I/O, concurrency or error handling. Handlers supply
// the semantics at run time. The machine steps a program one transition at
// a time with an explicit continuation stack, so composition never grows
// the Go stack, and schedules many programs as cooperatively interleaved
// tasks.
//
// # Programs
//
// [Program] is a sealed interface. Every [Effect] is a Program that performs
// itself.
//
//   - [Pure], [Fail]: Lift a value or an error
//   - [Bind], [Map], [Then]: Sequence programs
//   - [Do], [Sequence], [Traverse]: Sequence many programs
//   - [Lazy], [FromFunc]: Defer construction until evaluation
//   - [Gen], [Steps]: Explicit step-function generators
//   - [Def]: Named program functions recorded in traces
//
// # Machine
//
// [Machine] is immutable: every transition returns a new machine, and a
// machine can be kept as a snapshot. [Step] performs one transition and
// reports [StepContinue], [StepDone], [StepFailed], [StepSuspended] or
// [StepIdle]. A suspended task is resumed with [Machine.Resume] or
// [Machine.Throw] by whoever dispatched the effect.
//
// Each task owns its control, environment, store and continuation.
// The environment is lexically scoped and changed only by [Local]. The store
// is a persistent map; spawned tasks start from an O(1) snapshot of their
// parent's store and never observe each other's writes.
//
// # Handlers
//
// A [Handler] interprets effects. Handlers are tried innermost first; a
// handler may implement [Accepter] to declare the closed set of effects it
// inspects. A handler answers with an [Outcome]:
//
//   - [Resume], [Throw]: Continue the task with a value or an error
//   - [Delegate], [DelegateThen]: Pass the effect to the next handler
//   - [Perform]: Ask the scheduler for an [Action]
//   - [Continue], [Handled]: Run a program in place of the effect
//   - [Park], [Transfer]: Cooperative hand-off between tasks
//
// Resumption is one-shot. [Classify] sorts effects into [CategoryPure],
// [CategoryControl] and [CategoryExternal].
//
// # Standard Effects
//
// Reader: [Ask], [AskAll], [Local].
//
// State: [Get], [Put], [Modify]. Keys under [ReservedPrefix] are rejected.
//
// Writer: [Tell], [Listen], [Censor].
//
// Cache: [CacheGet], [CachePut], [CacheDelete], [CacheExists] over a
// [CacheBackend] such as [MemoryCache].
//
// Control: [Safe], [Catch], [Recover], [Retry], [Finally], [Bracket],
// [OnError], [Intercept].
//
// Concurrency: [Spawn], [Join], [Gather], [GatherSafe], [Race], [Cancel],
// [Timeout].
//
// External: [IO], [Await], [Delay], [WaitUntil], [Now].
//
// Debug: [Introspect].
//
// [SyncHandlers] and [AsyncHandlers] return the default handler sets. They
// differ only in how external effects run: on the interpreter goroutine, or
// on a [Bridge] worker with the task suspended until completion.
//
// # Running
//
// [Run] drives a program to completion and returns a [RunResult] carrying
// the value or error, the final store and log, the task table and the trace.
// [RunAsync] does the same with the asynchronous handler set. [Interpreter]
// exposes the underlying loop for foreign schedulers, polling with
// [PollBlock], [PollNow] or [PollTimeout].
//
// # Errors
//
// Handler failures surface as [*HandlerError], unknown effects as
// [*UnhandledEffectError] and broken invariants as [*InvariantError].
// Cancellation raises [*CancelledError] at the next external effect, or
// when the task finishes first.
// Recovery frames convert only errors for which [IsRecoverable] reports
// true; the rest unwind to the task boundary, running [Finally] cleanups.
//
// # Traces
//
// Runs record call, dispatch, spawn and join events. [Traceback] renders the
// live failure chain across handler delegation and spawn boundaries, and
// [MarshalTrace] writes events as JSON lines.
//
// # Example
//
//	counter := cesk.Do(
//		cesk.Put("x", 1),
//		cesk.Modify("x", func(n int) int { return n + 1 }),
//		cesk.Get("x"),
//	)
//
//	res := cesk.Run(context.Background(), counter)
//	// res.Value == 2, res.Store["x"] == 2
package cesk
