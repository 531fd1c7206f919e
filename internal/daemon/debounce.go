package daemon

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of file events into a single fire after a quiet
// period with no further activity. Each Touch cancels the pending fire and
// restarts the clock; the generation counter gives atomic cancel-or-fire
// semantics, so a timer callback that lost the race with a later Touch or a
// Stop never fires.
type Debouncer struct {
	quiet time.Duration
	fire  func()

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// NewDebouncer returns a debouncer that calls fire once per settled burst.
// The callback runs on the timer goroutine; hand long work off to a worker.
func NewDebouncer(quiet time.Duration, fire func()) *Debouncer {
	return &Debouncer{quiet: quiet, fire: fire}
}

// Touch restarts the quiet period.
func (d *Debouncer) Touch() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, func() { d.fireIfCurrent(gen) })
}

// Stop cancels any pending fire. A callback already past Stop's lock will
// still observe the generation bump and abort.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fireIfCurrent(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.fire()
}
