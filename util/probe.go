package util

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Probe is a single-shot deferred read of a boolean flag. It is armed once at
// creation, fires exactly once after the delay and resolves with the value the
// flag holds at that moment. It never re-arms.
type Probe struct {
	result chan bool
	quit   chan struct{}
	once   sync.Once
}

// NewProbe schedules a probe on the given clock. The read callback runs on the
// probe goroutine when the timer fires; callers that guard the observed flag
// with a mutex should lock inside the callback.
func NewProbe(clk clock.Clock, delay time.Duration, read func() bool) *Probe {
	p := &Probe{
		result: make(chan bool, 1),
		quit:   make(chan struct{}),
	}
	timer := clk.Timer(delay)
	go func() {
		defer timer.Stop()
		select {
		case <-timer.C:
			p.result <- read()
			close(p.result)
		case <-p.quit:
			close(p.result)
		}
	}()
	return p
}

// Result resolves with the observed value once the probe fires. A canceled
// probe closes the channel without a value.
func (p *Probe) Result() <-chan bool {
	return p.result
}

// Cancel stops a pending probe so a caller that no longer cares about the
// result can drop it. Canceling an already fired probe has no effect.
func (p *Probe) Cancel() {
	p.once.Do(func() { close(p.quit) })
}
