// Package console provides the process-wide synchronized output sink.
//
// A Sink prints three kinds of lines: transient progress ("ticks" that
// rewrite the current terminal line), permanent info lines, and
// permanent warnings. Tick calls are rate-limited - two calls within 1ms
// of each other collapse into one - so a worker pool hammering the sink
// during intake does not thrash the terminal. Info and Warn first erase
// whatever transient line is showing, then print a line that stays.
//
// Everything is serialized behind a single mutex, including the
// rate-limit timestamp: reading the last-tick time outside the lock that
// also protects the write would be a race under a pool of workers
// calling Tick concurrently, so the clock lives inside the same critical
// section as the terminal write it gates.
package console

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// minTickInterval is the rate limit applied to Tick: calls arriving
// within this long of the previous accepted tick are dropped silently.
const minTickInterval = time.Millisecond

// Sink is the synchronized output contract. Implementations must be
// safe for concurrent use by multiple goroutines.
type Sink interface {
	// Info prints a permanent informational line.
	Info(msg string)
	// Warn prints a permanent warning line (used for IoError/DecodeError
	// conditions the pipeline swallows and continues past).
	Warn(msg string)
	// Tick rewrites the transient progress line, subject to rate
	// limiting. s.String() is only evaluated if the tick is accepted.
	Tick(s fmt.Stringer)
}

// terminal is the default Sink, backed by a spinner-mode progress bar
// for Tick and direct writes for Info/Warn.
type terminal struct {
	mu       sync.Mutex
	w        io.Writer
	bar      *progressbar.ProgressBar
	lastTick time.Time
	hasTick  bool
}

// New creates the default terminal Sink, writing to w.
func New(w io.Writer) Sink {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionClearOnFinish(),
	)
	return &terminal{w: w, bar: bar}
}

func (t *terminal) Info(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearLocked()
	fmt.Fprintln(t.w, msg)
}

func (t *terminal) Warn(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearLocked()
	fmt.Fprintln(t.w, "Error: "+msg)
}

func (t *terminal) Tick(s fmt.Stringer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if t.hasTick && now.Sub(t.lastTick) < minTickInterval {
		return
	}
	t.lastTick = now
	t.hasTick = true

	t.bar.Describe(s.String())
}

// clearLocked erases the transient line. Caller must hold t.mu.
func (t *terminal) clearLocked() {
	_ = t.bar.Clear()
}

// noop is a Sink that discards everything, used for quiet mode (-q).
type noop struct{}

// NewNoop returns a Sink whose methods are all no-ops.
func NewNoop() Sink { return noop{} }

func (noop) Info(string)       {}
func (noop) Warn(string)       {}
func (noop) Tick(fmt.Stringer) {}

// Recording is a Sink that records every call instead of writing to a
// terminal, for use in tests that assert on pipeline progress/warnings
// without a real tty.
type Recording struct {
	mu    sync.Mutex
	Infos []string
	Warns []string
	Ticks []string
}

// NewRecording returns a Sink that records calls for later inspection.
func NewRecording() *Recording { return &Recording{} }

func (r *Recording) Info(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Infos = append(r.Infos, msg)
}

func (r *Recording) Warn(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warns = append(r.Warns, msg)
}

func (r *Recording) Tick(s fmt.Stringer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Ticks = append(r.Ticks, s.String())
}

// Stderr is a convenience default Sink writing to os.Stderr.
func Stderr() Sink { return New(os.Stderr) }
