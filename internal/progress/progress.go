// Package progress implements the Progress & summary emitter (spec
// §4.2, §4.9, C11): processed/total counts, an ETA, and a final
// summary line. On a terminal it renders a single updating line (via
// github.com/mattn/go-isatty's TTY detection); otherwise it writes
// newline-delimited JSON, one event per update, so piped/logged output
// stays machine-parseable.
package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// Event is one progress update. Waiting marks a wait for a declared
// rate-limit reset instant and renders as a waiting line; no component
// in this repository sets it (the Rate Governor does not report to a
// progress sink), so only counted-progress events are emitted.
type Event struct {
	Processed int       `json:"processed"`
	Total     int       `json:"total,omitempty"`
	Op        string    `json:"op"`
	Waiting   bool      `json:"waiting,omitempty"`
	ResetAt   time.Time `json:"resetAt,omitempty"`
}

// Sink is where the Export and Analysis Engines report progress.
// Implementations must tolerate a non-monotonic Total (unknown until
// the first page/record count is known) but Processed only ever
// increases within one run (spec §8 Property 15).
type Sink interface {
	Report(Event)
	// Summary prints a terse closing line; called once at the end of a
	// run.
	Summary(text string)
}

// TerminalSink is the default Sink: single-line live updates on a TTY,
// JSONL otherwise.
type TerminalSink struct {
	out       io.Writer
	isTTY     bool
	start     time.Time
	lastWidth int
}

// NewTerminalSink wraps w, detecting TTY-ness via go-isatty when w is
// an *os.File (as it is for os.Stderr in normal CLI use).
func NewTerminalSink(w io.Writer) *TerminalSink {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &TerminalSink{out: w, isTTY: tty, start: time.Now()}
}

// Report renders ev: a carriage-return-updated line on a TTY, a JSON
// line otherwise.
func (s *TerminalSink) Report(ev Event) {
	if !s.isTTY {
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintln(s.out, string(data))
		return
	}

	line := s.renderLine(ev)
	pad := s.lastWidth - len(line)
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(s.out, "\r%s%*s", line, pad, "")
	s.lastWidth = len(line)
}

func (s *TerminalSink) renderLine(ev Event) string {
	if ev.Waiting {
		return fmt.Sprintf("[%s] waiting for rate limit, resets %s", ev.Op, humanize.Time(ev.ResetAt))
	}

	if ev.Total > 0 {
		eta := s.estimateETA(ev.Processed, ev.Total)
		return fmt.Sprintf("[%s] %d/%d (eta %s)", ev.Op, ev.Processed, ev.Total, eta)
	}
	return fmt.Sprintf("[%s] %s processed", ev.Op, humanize.Comma(int64(ev.Processed)))
}

func (s *TerminalSink) estimateETA(processed, total int) string {
	if processed <= 0 {
		return "unknown"
	}
	elapsed := time.Since(s.start)
	rate := float64(elapsed) / float64(processed)
	remaining := time.Duration(rate * float64(total-processed))
	return humanize.Time(time.Now().Add(remaining))
}

// Summary prints text on its own line, first finishing the live
// progress line on a TTY with a trailing newline.
func (s *TerminalSink) Summary(text string) {
	if s.isTTY && s.lastWidth > 0 {
		fmt.Fprintln(s.out)
	}
	fmt.Fprintln(s.out, text)
}
