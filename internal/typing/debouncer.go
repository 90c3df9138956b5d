// Package typing turns a stream of keystrokes into typing start/stop
// signals. A signal is sent when the user starts typing and again after a
// quiet period, an explicit send, or teardown.
package typing

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultTimeout is the quiet period after the last keystroke before the
// user is reported as no longer typing.
const DefaultTimeout = 1000 * time.Millisecond

// State of a Debouncer.
type State int

const (
	Idle State = iota
	Typing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Typing:
		return "typing"
	default:
		return "unknown"
	}
}

// SignalFunc delivers a typing signal. It is called with the debouncer's
// lock held and must not block or call back into the debouncer.
type SignalFunc func(isTyping bool)

// Debouncer is a two-state machine with at most one pending timer.
type Debouncer struct {
	clock   clockwork.Clock
	timeout time.Duration
	signal  SignalFunc

	mu    sync.Mutex
	state State
	timer clockwork.Timer
	gen   uint64
}

// New creates an idle debouncer. A non-positive timeout selects
// DefaultTimeout; a nil clock selects the real clock.
func New(clock clockwork.Clock, timeout time.Duration, signal SignalFunc) *Debouncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Debouncer{clock: clock, timeout: timeout, signal: signal}
}

// Keystroke records an edit of the draft. Whitespace-only content does not
// start typing, but while already typing any edit pushes the timer back.
func (d *Debouncer) Keystroke(content string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case Idle:
		if strings.TrimSpace(content) == "" {
			return
		}
		d.state = Typing
		d.arm()
		d.signal(true)
	case Typing:
		d.arm()
	}
}

// Sent forces the idle state and always emits false, even when no timer
// was pending.
func (d *Debouncer) Sent() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.disarm()
	d.state = Idle
	d.signal(false)
}

// Close cancels the timer and emits a final false when typing.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.disarm()
	if d.state == Typing {
		d.state = Idle
		d.signal(false)
	}
}

// Reset cancels the timer and returns to idle without emitting.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.disarm()
	d.state = Idle
}

// State returns the current state.
func (d *Debouncer) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// arm replaces the pending timer. Callers hold d.mu.
func (d *Debouncer) arm() {
	d.disarm()
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.timeout, func() { d.expire(gen) })
}

// disarm cancels the pending timer. A callback that already started is
// neutralised by the generation bump. Callers hold d.mu.
func (d *Debouncer) disarm() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) expire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.gen || d.state != Typing {
		return
	}
	d.timer = nil
	d.state = Idle
	d.signal(false)
}
