package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tyemirov/reqbatch/pkg/taskrunner"
)

const (
	logMessageBatchProgress   = "batch_progress"
	logFieldCompletedConstant = "completed"
	logFieldTotalConstant     = "total"
	logFieldSucceededConstant = "succeeded"
	logFieldFailedConstant    = "failed"
	logFieldInFlightConstant  = "in_flight"
)

// LogSink emits throttled progress log entries for non-interactive output.
type LogSink struct {
	mutex       sync.Mutex
	logger      *zap.Logger
	throttle    throttle
	latest      taskrunner.Snapshot
	hasLatest   bool
	latestDrawn bool
	stopped     bool
}

// NewLogSink constructs a LogSink.
func NewLogSink(logger *zap.Logger, interval time.Duration) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger, throttle: newThrottle(interval)}
}

// Render logs the snapshot unless throttled.
func (sink *LogSink) Render(snapshot taskrunner.Snapshot) {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	if sink.stopped || (sink.hasLatest && !snapshot.Supersedes(sink.latest)) {
		return
	}
	sink.latest = snapshot
	sink.hasLatest = true
	sink.latestDrawn = false
	if !sink.throttle.allow(snapshot) {
		return
	}
	sink.emitLocked()
}

// Stop logs the latest snapshot if it was throttled.
func (sink *LogSink) Stop() {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	if sink.stopped {
		return
	}
	sink.stopped = true
	if sink.hasLatest && !sink.latestDrawn {
		sink.emitLocked()
	}
}

func (sink *LogSink) emitLocked() {
	sink.logger.Info(
		logMessageBatchProgress,
		zap.Int(logFieldCompletedConstant, sink.latest.Completed),
		zap.Int(logFieldTotalConstant, sink.latest.Total),
		zap.Int(logFieldSucceededConstant, sink.latest.Succeeded),
		zap.Int(logFieldFailedConstant, sink.latest.Failed),
		zap.Int(logFieldInFlightConstant, sink.latest.InFlight),
	)
	sink.latestDrawn = true
}
