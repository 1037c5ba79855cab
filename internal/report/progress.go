package report

import (
	"bufio"
	"fmt"
	"io"

	"github.com/pterm/pterm"

	"github.com/shinji-kodama/portsweep/internal/config"
	"github.com/shinji-kodama/portsweep/internal/model"
	"github.com/shinji-kodama/portsweep/internal/port"
)

// dotsFlushEvery bounds how many marks are buffered before they reach the
// terminal.
const dotsFlushEvery = 256

// DotsSink prints one '.' per probe and a newline when the scan finishes.
type DotsSink struct {
	w       *bufio.Writer
	pending int
}

// NewDotsSink creates a DotsSink writing to w.
func NewDotsSink(w io.Writer) *DotsSink {
	return &DotsSink{w: bufio.NewWriter(w)}
}

// Observe records one probe.
func (s *DotsSink) Observe(model.ProbeOutcome) {
	_ = s.w.WriteByte('.')
	s.pending++
	if s.pending >= dotsFlushEvery {
		_ = s.w.Flush()
		s.pending = 0
	}
}

// Finish terminates the line of marks.
func (s *DotsSink) Finish() {
	_ = s.w.WriteByte('\n')
	_ = s.w.Flush()
}

// barStep is the number of probes folded into one progress bar redraw.
const barStep = 128

// BarSink drives a pterm progress bar.
type BarSink struct {
	bar     *pterm.ProgressbarPrinter
	pending int
}

// NewBarSink starts a progress bar on w sized for total probes.
func NewBarSink(w io.Writer, title string, total int) (*BarSink, error) {
	bar, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle(title).
		WithWriter(w).
		WithRemoveWhenDone(true).
		Start()
	if err != nil {
		return nil, fmt.Errorf("start progress bar: %w", err)
	}
	return &BarSink{bar: bar}, nil
}

// Observe records one probe.
func (s *BarSink) Observe(model.ProbeOutcome) {
	s.pending++
	if s.pending >= barStep {
		s.bar.Add(s.pending)
		s.pending = 0
	}
}

// Finish flushes outstanding probes and removes the bar.
func (s *BarSink) Finish() {
	if s.pending > 0 {
		s.bar.Add(s.pending)
		s.pending = 0
	}
	_, _ = s.bar.Stop()
}

// NoneSink discards progress.
type NoneSink struct{}

// Observe does nothing.
func (NoneSink) Observe(model.ProbeOutcome) {}

// Finish does nothing.
func (NoneSink) Finish() {}

// NewSink returns the progress sink for style. Progress for a scan of
// address is written to w.
func NewSink(style string, w io.Writer, address string, total int) (port.ProgressSink, error) {
	switch style {
	case config.ProgressDots, "":
		return NewDotsSink(w), nil
	case config.ProgressBar:
		return NewBarSink(w, "Scanning "+address, total)
	case config.ProgressNone:
		return NoneSink{}, nil
	default:
		return nil, fmt.Errorf("unsupported progress style %q", style)
	}
}
