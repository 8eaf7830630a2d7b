// Package taskrunner executes a fixed batch of independent tasks with bounded
// concurrency. It exposes the `Runner` plus its collaborators (`Limiter`,
// `CancellationGate`, `ProgressSink`) so CLI packages can drive a batch, render
// live progress, and wire an interrupt to `SignalCancel`, while unit tests can
// swap in fakes. Cancellation only prevents queued tasks from starting; tasks
// already running always finish and are counted.
package taskrunner
