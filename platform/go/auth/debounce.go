package auth

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Debouncer coalesces bursts of Trigger calls into a single fn invocation that
// runs once wait has elapsed without a new trigger.
type Debouncer struct {
	clock clock.Clock
	wait  time.Duration
	fn    func()

	mu    sync.Mutex
	timer *clock.Timer
	// gen identifies the latest scheduled timer; a firing timer with an older
	// generation was superseded after it started and must do nothing.
	gen uint64
}

// NewDebouncer builds a Debouncer. A nil clock uses wall time.
func NewDebouncer(clk clock.Clock, wait time.Duration, fn func()) *Debouncer {
	if fn == nil {
		panic("debouncer: fn is required")
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Debouncer{clock: clk, wait: wait, fn: fn}
}

// Trigger (re)starts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.wait, func() { d.fire(gen) })
}

// Stop cancels a pending invocation.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}
