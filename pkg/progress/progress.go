// Package progress tracks completed and consumed work units for one run and
// reports the completion percentage while the run is in flight.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/cuemby/flock/pkg/log"
	"github.com/cuemby/flock/pkg/metrics"
	"golang.org/x/term"
)

// DefaultInterval is how often the reporter samples the state
const DefaultInterval = time.Second

// State is the shared run-wide counters. It is safe for concurrent use and
// owned by one run; every client of that run updates the same State.
type State struct {
	completed atomic.Int64
	consumed  atomic.Int64
	target    int64
}

// NewState creates counters for a run of target units
func NewState(target int64) *State {
	return &State{target: target}
}

// Add records one finished block. Negative deltas are ignored so neither
// counter ever decreases.
func (s *State) Add(contribution, consumed int64) {
	if contribution > 0 {
		s.completed.Add(contribution)
	}
	if consumed > 0 {
		s.consumed.Add(consumed)
	}
}

// Completed returns the units attributed as contribution
func (s *State) Completed() int64 {
	return s.completed.Load()
}

// Consumed returns the units issued and finished
func (s *State) Consumed() int64 {
	return s.consumed.Load()
}

// Target returns the configured run size
func (s *State) Target() int64 {
	return s.target
}

// Percent returns consumed/target as a percentage, or 0 for an empty target
func (s *State) Percent() float64 {
	if s.target <= 0 {
		return 0
	}
	return 100 * float64(s.Consumed()) / float64(s.target)
}

// Done reports whether consumption has reached the target
func (s *State) Done() bool {
	return s.Consumed() >= s.target
}

// Reporter periodically publishes the progress of a State
type Reporter struct {
	state    *State
	interval time.Duration
	out      io.Writer
	tty      bool
}

// NewReporter creates a reporter writing to stdout. The percentage line is
// only drawn when stdout is a terminal.
func NewReporter(state *State) *Reporter {
	return &Reporter{
		state:    state,
		interval: DefaultInterval,
		out:      os.Stdout,
		tty:      term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// WithOutput redirects rendering to w; tty forces the percentage line on or off
func (r *Reporter) WithOutput(w io.Writer, tty bool) *Reporter {
	r.out = w
	r.tty = tty
	return r
}

// WithInterval changes the sampling interval
func (r *Reporter) WithInterval(d time.Duration) *Reporter {
	if d > 0 {
		r.interval = d
	}
	return r
}

// Run samples until ctx is done, then publishes one final sample
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Report()
			return
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report publishes the current sample
func (r *Reporter) Report() {
	pct := r.state.Percent()

	metrics.ProgressPercent.Set(pct)
	metrics.ConsumedUnits.Set(float64(r.state.Consumed()))
	metrics.CompletedUnits.Set(float64(r.state.Completed()))

	if r.tty {
		fmt.Fprintf(r.out, "\r%0.1f%%", pct)
		return
	}
	log.Logger.Debug().
		Float64("percent", pct).
		Int64("consumed", r.state.Consumed()).
		Int64("target", r.state.Target()).
		Msg("Progress")
}
