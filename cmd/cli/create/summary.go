package create

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tyemirov/reqbatch/pkg/taskrunner"
)

const (
	summaryHeaderConstant          = "--- Request Creation Summary ---"
	summaryFooterConstant          = "------------------------------"
	summaryAttemptedTemplate       = "Total attempted: %d"
	summarySucceededTemplate       = "Successful: %d"
	summaryFailedTemplate          = "Failed: %d"
	summaryNotAttemptedTemplate    = "Process aborted. %d requests were not attempted."
	summaryFailureTemplate         = "Request failed: %s"
	summaryYAMLEncodeErrorTemplate = "unable to encode summary: %w"
	summaryWriteErrorTemplate      = "unable to write summary: %w"
)

type summaryDocument struct {
	RunIdentifier string             `yaml:"run_id"`
	Summary       taskrunner.Summary `yaml:",inline"`
	Failures      []failureDocument  `yaml:"failures,omitempty"`
}

type failureDocument struct {
	Index int    `yaml:"index"`
	Label string `yaml:"label"`
	Error string `yaml:"error"`
}

// RenderSummary writes the batch summary in the requested format.
func RenderSummary(writer io.Writer, runIdentifier string, summary taskrunner.Summary, format string) error {
	var rendered string
	switch format {
	case SummaryFormatYAML:
		document := summaryDocument{RunIdentifier: runIdentifier, Summary: summary}
		for _, failure := range summary.Failures {
			document.Failures = append(document.Failures, failureDocument{
				Index: failure.Index,
				Label: failure.Label,
				Error: taskrunner.FirstLine(failure.Err),
			})
		}
		encoded, encodeError := yaml.Marshal(document)
		if encodeError != nil {
			return fmt.Errorf(summaryYAMLEncodeErrorTemplate, encodeError)
		}
		rendered = string(encoded)
	default:
		rendered = renderTextSummary(summary)
	}

	if _, writeError := io.WriteString(writer, rendered); writeError != nil {
		return fmt.Errorf(summaryWriteErrorTemplate, writeError)
	}
	return nil
}

func renderTextSummary(summary taskrunner.Summary) string {
	lines := make([]string, 0, len(summary.Failures)+6)
	for _, failure := range summary.Failures {
		lines = append(lines, fmt.Sprintf(summaryFailureTemplate, failure.Error()))
	}
	lines = append(lines,
		summaryHeaderConstant,
		fmt.Sprintf(summaryAttemptedTemplate, summary.Attempted),
		fmt.Sprintf(summarySucceededTemplate, summary.Succeeded),
		fmt.Sprintf(summaryFailedTemplate, summary.Failed),
	)
	if summary.Cancelled && summary.NotAttempted > 0 {
		lines = append(lines, fmt.Sprintf(summaryNotAttemptedTemplate, summary.NotAttempted))
	}
	lines = append(lines, summaryFooterConstant)
	return strings.Join(lines, "\n") + "\n"
}
