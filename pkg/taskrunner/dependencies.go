package taskrunner

import (
	"time"

	"go.uber.org/zap"
)

// Options captures the collaborators a Runner needs. Every field is optional.
// FailureReporter runs on the worker goroutine as each task body fails and must
// tolerate concurrent calls.
type Options struct {
	LoggerProvider  func() *zap.Logger
	Sink            ProgressSink
	Gate            *CancellationGate
	NowProvider     func() time.Time
	FailureReporter func(failure TaskFailure)
}

func resolveLogger(provider func() *zap.Logger) *zap.Logger {
	if provider == nil {
		return zap.NewNop()
	}
	logger := provider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func resolveSink(sink ProgressSink) ProgressSink {
	if sink == nil {
		return nopProgressSink{}
	}
	return sink
}

func resolveGate(gate *CancellationGate) *CancellationGate {
	if gate == nil {
		return NewCancellationGate()
	}
	return gate
}

func resolveNowProvider(provider func() time.Time) func() time.Time {
	if provider == nil {
		return time.Now
	}
	return provider
}

func resolveFailureReporter(reporter func(TaskFailure)) func(TaskFailure) {
	if reporter == nil {
		return func(TaskFailure) {}
	}
	return reporter
}
