package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/tyemirov/reqbatch/pkg/taskrunner"
)

// Mode selects how progress is displayed.
type Mode string

// Supported progress modes.
const (
	ModeAuto Mode = "auto"
	ModeBar  Mode = "bar"
	ModeLog  Mode = "log"
	ModeNone Mode = "none"
)

const unsupportedModeTemplateConstant = "progress: unsupported mode %q"

// Sink renders snapshots and releases its output when the batch ends.
type Sink interface {
	taskrunner.ProgressSink
	Stop()
}

// Options configures sink construction.
type Options struct {
	Mode     Mode
	Output   io.Writer
	Logger   *zap.Logger
	Interval time.Duration
}

type fileDescriptor interface {
	Fd() uintptr
}

// ParseMode normalizes a mode name.
func ParseMode(value string) (Mode, error) {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(value))); mode {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeBar, ModeLog, ModeNone:
		return mode, nil
	default:
		return "", fmt.Errorf(unsupportedModeTemplateConstant, value)
	}
}

// NewSink builds the sink for the requested mode. Auto picks the bar when the
// output is a terminal and progress log lines otherwise.
func NewSink(options Options) (Sink, error) {
	mode, modeError := ParseMode(string(options.Mode))
	if modeError != nil {
		return nil, modeError
	}

	output := options.Output
	if output == nil {
		output = os.Stderr
	}

	if mode == ModeAuto {
		mode = ModeLog
		if IsTerminal(output) {
			mode = ModeBar
		}
	}

	switch mode {
	case ModeBar:
		return NewBarSink(output, BarOptions{Interval: options.Interval}), nil
	case ModeLog:
		return NewLogSink(options.Logger, options.Interval), nil
	default:
		return NopSink{}, nil
	}
}

// IsTerminal reports whether the writer is an interactive terminal.
func IsTerminal(writer io.Writer) bool {
	descriptor, hasDescriptor := writer.(fileDescriptor)
	if !hasDescriptor {
		return false
	}
	return isatty.IsTerminal(descriptor.Fd()) || isatty.IsCygwinTerminal(descriptor.Fd())
}

// NopSink discards snapshots.
type NopSink struct{}

// Render discards the snapshot.
func (NopSink) Render(taskrunner.Snapshot) {}

// Stop does nothing.
func (NopSink) Stop() {}

// MultiSink fans snapshots out to several sinks.
type MultiSink []Sink

// Render forwards the snapshot to every sink.
func (sinks MultiSink) Render(snapshot taskrunner.Snapshot) {
	for _, sink := range sinks {
		if sink != nil {
			sink.Render(snapshot)
		}
	}
}

// Stop stops every sink.
func (sinks MultiSink) Stop() {
	for _, sink := range sinks {
		if sink != nil {
			sink.Stop()
		}
	}
}
