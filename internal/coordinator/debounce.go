package coordinator

import (
	"sync"
	"time"
)

// Debouncer coalesces refresh requests: the first request arms a timer and
// every further request inside the cooldown window is absorbed, so at most
// one execution happens per window. Execution runs on the timer goroutine.
type Debouncer struct {
	cooldown time.Duration
	fn       func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func NewDebouncer(cooldown time.Duration, fn func()) *Debouncer {
	return &Debouncer{cooldown: cooldown, fn: fn}
}

// Request schedules an execution after the cooldown unless one is already
// pending.
func (d *Debouncer) Request() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || d.timer != nil {
		return
	}
	d.timer = time.AfterFunc(d.cooldown, func() {
		d.mu.Lock()
		d.timer = nil
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			d.fn()
		}
	})
}

// Stop cancels any pending execution. Further requests are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
