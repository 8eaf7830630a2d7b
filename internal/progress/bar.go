package progress

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	bubblesprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/tyemirov/reqbatch/internal/utils"
	"github.com/tyemirov/reqbatch/pkg/taskrunner"
)

const (
	defaultBarWidthConstant = 40
	barLineTemplateConstant = "\r %s | %d%% | S: %s, F: %s, IP: %s | %d/%d"
	lineTerminatorConstant  = "\n"
	successColorConstant    = "42"
	failureColorConstant    = "196"
	inFlightColorConstant   = "214"
	percentageScaleConstant = 100
	linePadConstant         = " "
)

var (
	successCountStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(successColorConstant))
	failureCountStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(failureColorConstant))
	inFlightCountStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(inFlightColorConstant))
)

// BarOptions configures a BarSink.
type BarOptions struct {
	Width    int
	Interval time.Duration
}

// BarSink draws a single-line progress bar, redrawn in place.
type BarSink struct {
	mutex       sync.Mutex
	writer      io.Writer
	bar         bubblesprogress.Model
	throttle    throttle
	latest      taskrunner.Snapshot
	hasLatest   bool
	latestDrawn bool
	drawn       bool
	stopped     bool
	lineWidth   int
}

// NewBarSink constructs a BarSink writing to writer.
func NewBarSink(writer io.Writer, options BarOptions) *BarSink {
	width := options.Width
	if width <= 0 {
		width = defaultBarWidthConstant
	}
	return &BarSink{
		writer:   utils.NewFlushingWriter(writer),
		bar:      bubblesprogress.New(bubblesprogress.WithDefaultGradient(), bubblesprogress.WithWidth(width), bubblesprogress.WithoutPercentage()),
		throttle: newThrottle(options.Interval),
	}
}

// Render redraws the bar unless throttled.
func (sink *BarSink) Render(snapshot taskrunner.Snapshot) {
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
	sink.drawLocked()
}

// Stop draws the latest snapshot if it was throttled and ends the line.
func (sink *BarSink) Stop() {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	if sink.stopped {
		return
	}
	sink.stopped = true
	if sink.hasLatest && !sink.latestDrawn {
		sink.drawLocked()
	}
	if sink.drawn {
		_, _ = io.WriteString(sink.writer, lineTerminatorConstant)
	}
}

func (sink *BarSink) drawLocked() {
	line := FormatBarLine(sink.bar, sink.latest)
	visibleWidth := lipgloss.Width(line)
	if visibleWidth < sink.lineWidth {
		line += strings.Repeat(linePadConstant, sink.lineWidth-visibleWidth)
	}
	sink.lineWidth = visibleWidth
	_, _ = io.WriteString(sink.writer, line)
	sink.latestDrawn = true
	sink.drawn = true
}

// FormatBarLine renders " {bar} | {pct}% | S: s, F: f, IP: ip | done/total"
// prefixed with a carriage return.
func FormatBarLine(bar bubblesprogress.Model, snapshot taskrunner.Snapshot) string {
	fraction := snapshot.Fraction()
	return fmt.Sprintf(
		barLineTemplateConstant,
		bar.ViewAs(fraction),
		int(math.Floor(fraction*percentageScaleConstant)),
		successCountStyle.Render(fmt.Sprint(snapshot.Succeeded)),
		failureCountStyle.Render(fmt.Sprint(snapshot.Failed)),
		inFlightCountStyle.Render(fmt.Sprint(snapshot.InFlight)),
		snapshot.Completed,
		snapshot.Total,
	)
}
