package taskrunner

import (
	"context"
	"fmt"
)

// Body performs one unit of external work and yields its result.
type Body func(context.Context) (any, error)

// TaskDescriptor identifies a task and the work it performs.
type TaskDescriptor struct {
	Index int
	Label string
	Body  Body
}

// Factory maps a batch index to the task that runs at that position.
type Factory func(index int) (TaskDescriptor, error)

// OutcomeKind enumerates the terminal states of a task.
type OutcomeKind int

// Supported outcome kinds.
const (
	OutcomeSkipped OutcomeKind = iota
	OutcomeSucceeded
	OutcomeFailed
)

// String implements fmt.Stringer.
func (kind OutcomeKind) String() string {
	switch kind {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Outcome captures the terminal result of a task. Value is set only for
// succeeded tasks and Error only for failed ones.
type Outcome struct {
	Kind  OutcomeKind
	Value any
	Error error
}

// Handle represents the eventual completion of a submitted task.
type Handle struct {
	task    TaskDescriptor
	done    chan struct{}
	outcome Outcome
}

func newHandle(task TaskDescriptor) *Handle {
	return &Handle{task: task, done: make(chan struct{})}
}

func (handle *Handle) resolve(outcome Outcome) {
	handle.outcome = outcome
	close(handle.done)
}

// Task returns the descriptor the handle was created for.
func (handle *Handle) Task() TaskDescriptor {
	return handle.task
}

// Done is closed once the task reaches a terminal outcome.
func (handle *Handle) Done() <-chan struct{} {
	return handle.done
}

// Wait blocks until the task reaches a terminal outcome and returns it.
func (handle *Handle) Wait() Outcome {
	<-handle.done
	return handle.outcome
}

// PanicError reports a task body that panicked instead of returning.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (panicError PanicError) Error() string {
	return fmt.Sprintf(taskPanicTemplateConstant, panicError.Value)
}

func invokeBody(executionContext context.Context, body Body) (value any, bodyError error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			value = nil
			bodyError = PanicError{Value: recovered}
		}
	}()
	return body(executionContext)
}
