package taskrunner

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	taskFailureTemplateConstant = "%s: %s"
	taskLabelTemplateConstant   = "task-%d"
)

// TaskFailure records a task body that returned an error.
type TaskFailure struct {
	Index int
	Label string
	Err   error
}

// Error implements the error interface.
func (failure TaskFailure) Error() string {
	label := strings.TrimSpace(failure.Label)
	if len(label) == 0 {
		label = fmt.Sprintf(taskLabelTemplateConstant, failure.Index)
	}
	return fmt.Sprintf(taskFailureTemplateConstant, label, FirstLine(failure.Err))
}

// Unwrap exposes the task body error.
func (failure TaskFailure) Unwrap() error {
	return failure.Err
}

// Summary reports the final counts of a batch. Attempted always equals
// Succeeded+Failed and NotAttempted equals Total-Attempted; Skipped counts the
// queued tasks that were dropped after cancellation and is part of NotAttempted.
type Summary struct {
	Total        int           `json:"total" yaml:"total"`
	Attempted    int           `json:"attempted" yaml:"attempted"`
	Succeeded    int           `json:"succeeded" yaml:"succeeded"`
	Failed       int           `json:"failed" yaml:"failed"`
	Skipped      int           `json:"skipped" yaml:"skipped"`
	NotAttempted int           `json:"not_attempted" yaml:"not_attempted"`
	Cancelled    bool          `json:"cancelled" yaml:"cancelled"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
	Failures     []TaskFailure `json:"-" yaml:"-"`
}

// Err aggregates task failures, returning nil when every attempted task succeeded.
func (summary Summary) Err() error {
	var aggregated *multierror.Error
	for _, failure := range summary.Failures {
		aggregated = multierror.Append(aggregated, failure)
	}
	return aggregated.ErrorOrNil()
}

// RenderSummaryLine returns the key=value summary line logged after a batch.
func RenderSummaryLine(summary Summary) string {
	parts := []string{
		fmt.Sprintf("Summary: total=%d", summary.Total),
		fmt.Sprintf("attempted=%d", summary.Attempted),
		fmt.Sprintf("succeeded=%d", summary.Succeeded),
		fmt.Sprintf("failed=%d", summary.Failed),
		fmt.Sprintf("not_attempted=%d", summary.NotAttempted),
	}
	if summary.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("skipped=%d", summary.Skipped))
	}
	parts = append(parts, fmt.Sprintf("cancelled=%t", summary.Cancelled))

	durationHuman := summary.Duration.Round(time.Millisecond).String()
	if summary.Duration <= 0 {
		durationHuman = "0s"
	}
	parts = append(parts, fmt.Sprintf("duration_human=%s", durationHuman))
	parts = append(parts, fmt.Sprintf("duration_ms=%d", summary.Duration.Milliseconds()))

	return strings.Join(parts, " ")
}
