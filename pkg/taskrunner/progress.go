package taskrunner

// ProgressSink receives counter snapshots. Implementations must tolerate
// concurrent calls and may drop intermediate snapshots; counting never depends
// on rendering.
type ProgressSink interface {
	Render(snapshot Snapshot)
}

// ProgressSinkFunc adapts a function to ProgressSink.
type ProgressSinkFunc func(snapshot Snapshot)

// Render implements ProgressSink.
func (sinkFunction ProgressSinkFunc) Render(snapshot Snapshot) {
	sinkFunction(snapshot)
}

type nopProgressSink struct{}

func (nopProgressSink) Render(Snapshot) {}

type progressReporter struct {
	state *RunState
	sink  ProgressSink
}

func newProgressReporter(state *RunState, sink ProgressSink) progressReporter {
	if sink == nil {
		sink = nopProgressSink{}
	}
	return progressReporter{state: state, sink: sink}
}

func (reporter progressReporter) taskStarted() {
	reporter.sink.Render(reporter.state.taskStarted())
}

func (reporter progressReporter) taskFinished(kind OutcomeKind) {
	reporter.sink.Render(reporter.state.taskFinished(kind))
}

func (reporter progressReporter) publish() {
	reporter.sink.Render(reporter.state.Snapshot())
}
