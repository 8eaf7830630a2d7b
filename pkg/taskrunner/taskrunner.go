package taskrunner

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	batchStartedMessageConstant           = "batch_started"
	batchTaskDispatchedMessageConstant    = "batch_task_dispatched"
	batchTaskFailedMessageConstant        = "batch_task_failed"
	batchCancelRequestedMessageConstant   = "batch_cancel_requested"
	batchGenerationStoppedMessageConstant = "batch_generation_stopped"
	batchUnexpectedFailureMessageConstant = "batch_unexpected_failure"
	batchCompleteMessageConstant          = "batch_complete"
	logFieldTotalConstant                 = "total"
	logFieldConcurrencyConstant           = "concurrency"
	logFieldIndexConstant                 = "index"
	logFieldLabelConstant                 = "label"
	logFieldRemainingConstant             = "remaining"
	logFieldErrorConstant                 = "error"
	logFieldSummaryConstant               = "summary"
	factoryPanicTemplateConstant          = "factory panicked: %v"
)

// BatchRequest describes one batch: Total tasks produced by Factory, with at
// most Concurrency running at once.
type BatchRequest struct {
	Total       int
	Concurrency int
	Factory     Factory
}

// Runner drives a single batch. The zero value is not usable; construct with NewRunner.
type Runner struct {
	logger        *zap.Logger
	sink          ProgressSink
	gate          *CancellationGate
	now           func() time.Time
	reportFailure func(TaskFailure)
	used          atomic.Bool
}

// NewRunner constructs a Runner from the provided options.
func NewRunner(options Options) *Runner {
	return &Runner{
		logger:        resolveLogger(options.LoggerProvider),
		sink:          resolveSink(options.Sink),
		gate:          resolveGate(options.Gate),
		now:           resolveNowProvider(options.NowProvider),
		reportFailure: resolveFailureReporter(options.FailureReporter),
	}
}

// SignalCancel stops queued tasks from starting. In-flight tasks finish
// normally. Safe to call from any goroutine, any number of times.
func (runner *Runner) SignalCancel() {
	if runner.gate.SignalCancel() {
		runner.logger.Info(batchCancelRequestedMessageConstant)
	}
}

// Cancelled reports whether cancellation has been signalled.
func (runner *Runner) Cancelled() bool {
	return runner.gate.Cancelled()
}

// Run executes the batch and blocks until every dispatched task has finished.
// Cancelling executionContext is equivalent to SignalCancel; task bodies
// receive a context that is not cancelled by it. A *SetupError is returned
// before anything runs; an *UnexpectedError is returned alongside the summary
// of the work that did run.
func (runner *Runner) Run(executionContext context.Context, request BatchRequest) (Summary, error) {
	if validationError := validateRequest(request); validationError != nil {
		return Summary{}, NewSetupError(validationError)
	}
	if !runner.used.CompareAndSwap(false, true) {
		return Summary{}, NewSetupError(ErrRunnerReused)
	}
	if executionContext == nil {
		executionContext = context.Background()
	}

	startTime := runner.now()
	state := newRunState(request.Total)
	reporter := newProgressReporter(state, runner.sink)
	taskContext := context.WithoutCancel(executionContext)

	if executionContext.Err() != nil {
		runner.SignalCancel()
	}
	stopWatching := context.AfterFunc(executionContext, runner.SignalCancel)
	defer stopWatching()

	limiter, limiterError := NewLimiter(request.Concurrency, runner.gate, func(handle *Handle) Outcome {
		return runner.execute(taskContext, handle, reporter)
	})
	if limiterError != nil {
		return Summary{}, NewSetupError(limiterError)
	}

	runner.logger.Info(
		batchStartedMessageConstant,
		zap.Int(logFieldTotalConstant, request.Total),
		zap.Int(logFieldConcurrencyConstant, request.Concurrency),
	)
	reporter.publish()

	handles := make([]*Handle, 0, request.Total)
	var unexpectedError error
	for index := 0; index < request.Total; index++ {
		if runner.gate.Cancelled() {
			runner.logger.Info(batchGenerationStoppedMessageConstant, zap.Int(logFieldRemainingConstant, request.Total-index))
			break
		}

		task, buildError := buildTask(request.Factory, index)
		if buildError == nil {
			var handle *Handle
			handle, buildError = limiter.Submit(task)
			if buildError == nil {
				handles = append(handles, handle)
				continue
			}
		}

		unexpectedError = &UnexpectedError{Index: index, Err: buildError}
		runner.logger.Error(batchUnexpectedFailureMessageConstant, zap.Int(logFieldIndexConstant, index), zap.Error(buildError))
		runner.SignalCancel()
		break
	}

	limiter.Close()
	limiter.Wait()
	reporter.publish()

	summary := collectSummary(request.Total, handles, runner.gate.Cancelled(), runner.now().Sub(startTime))
	runner.logger.Info(batchCompleteMessageConstant, zap.String(logFieldSummaryConstant, RenderSummaryLine(summary)))

	return summary, unexpectedError
}

func (runner *Runner) execute(taskContext context.Context, handle *Handle, reporter progressReporter) Outcome {
	task := handle.Task()
	runner.logger.Debug(batchTaskDispatchedMessageConstant, zap.Int(logFieldIndexConstant, task.Index), zap.String(logFieldLabelConstant, task.Label))

	reporter.taskStarted()
	value, bodyError := invokeBody(taskContext, task.Body)
	if bodyError != nil {
		runner.logger.Warn(
			batchTaskFailedMessageConstant,
			zap.Int(logFieldIndexConstant, task.Index),
			zap.String(logFieldLabelConstant, task.Label),
			zap.String(logFieldErrorConstant, FirstLine(bodyError)),
		)
		runner.reportFailure(TaskFailure{Index: task.Index, Label: task.Label, Err: bodyError})
		reporter.taskFinished(OutcomeFailed)
		return Outcome{Kind: OutcomeFailed, Error: bodyError}
	}

	reporter.taskFinished(OutcomeSucceeded)
	return Outcome{Kind: OutcomeSucceeded, Value: value}
}

func validateRequest(request BatchRequest) error {
	if request.Total < 0 {
		return ErrInvalidTotal
	}
	if request.Concurrency < 1 {
		return ErrInvalidConcurrency
	}
	if request.Factory == nil {
		return ErrMissingFactory
	}
	return nil
}

func buildTask(factory Factory, index int) (task TaskDescriptor, buildError error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			buildError = fmt.Errorf(factoryPanicTemplateConstant, recovered)
		}
	}()

	task, buildError = factory(index)
	if buildError != nil {
		return TaskDescriptor{}, buildError
	}
	if task.Body == nil {
		return TaskDescriptor{}, ErrMissingBody
	}
	task.Index = index
	return task, nil
}

func collectSummary(total int, handles []*Handle, cancelled bool, duration time.Duration) Summary {
	summary := Summary{
		Total:     total,
		Cancelled: cancelled,
		Duration:  duration,
	}
	for _, handle := range handles {
		outcome := handle.Wait()
		switch outcome.Kind {
		case OutcomeSucceeded:
			summary.Succeeded++
		case OutcomeFailed:
			summary.Failed++
			task := handle.Task()
			summary.Failures = append(summary.Failures, TaskFailure{Index: task.Index, Label: task.Label, Err: outcome.Error})
		default:
			summary.Skipped++
		}
	}
	sort.Slice(summary.Failures, func(left, right int) bool {
		return summary.Failures[left].Index < summary.Failures[right].Index
	})
	summary.Attempted = summary.Succeeded + summary.Failed
	summary.NotAttempted = summary.Total - summary.Attempted
	return summary
}
