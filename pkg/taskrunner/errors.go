package taskrunner

import (
	"errors"
	"fmt"
	"strings"
)

const (
	setupErrorTemplateConstant      = "taskrunner.setup: %v"
	unexpectedErrorTemplateConstant = "taskrunner.unexpected: task %d: %v"
	taskPanicTemplateConstant       = "task panicked: %v"
)

var (
	// ErrInvalidConcurrency indicates a concurrency limit below one.
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")
	// ErrInvalidTotal indicates a negative batch size.
	ErrInvalidTotal = errors.New("total must not be negative")
	// ErrMissingFactory indicates that no task factory was supplied.
	ErrMissingFactory = errors.New("task factory is required")
	// ErrMissingBody indicates a factory produced a descriptor without work.
	ErrMissingBody = errors.New("task descriptor has no body")
	// ErrLimiterClosed indicates a submission after the limiter stopped accepting work.
	ErrLimiterClosed = errors.New("limiter is closed")
	// ErrRunnerReused indicates a second Run on a runner that already executed a batch.
	ErrRunnerReused = errors.New("runner already executed a batch")
)

// SetupError reports a precondition failure detected before any task started.
type SetupError struct {
	Err error
}

// NewSetupError wraps the provided error as a setup failure.
func NewSetupError(err error) error {
	if err == nil {
		return nil
	}
	return &SetupError{Err: err}
}

// Error implements the error interface.
func (setupError *SetupError) Error() string {
	return fmt.Sprintf(setupErrorTemplateConstant, setupError.Err)
}

// Unwrap exposes the underlying cause.
func (setupError *SetupError) Unwrap() error {
	return setupError.Err
}

// UnexpectedError reports a failure outside any individual task body, such as
// a factory error while generating the task at Index.
type UnexpectedError struct {
	Index int
	Err   error
}

// Error implements the error interface.
func (unexpectedError *UnexpectedError) Error() string {
	return fmt.Sprintf(unexpectedErrorTemplateConstant, unexpectedError.Index, unexpectedError.Err)
}

// Unwrap exposes the underlying cause.
func (unexpectedError *UnexpectedError) Unwrap() error {
	return unexpectedError.Err
}

// FirstLine returns the first line of an error message, which keeps per-task
// failure output to one line even when collaborators return stack-like text.
func FirstLine(err error) string {
	if err == nil {
		return ""
	}
	message := strings.TrimSpace(err.Error())
	if newlineIndex := strings.IndexByte(message, '\n'); newlineIndex >= 0 {
		message = strings.TrimSpace(message[:newlineIndex])
	}
	return message
}
