// Package clock provides a one-second countdown that knows nothing about
// exams: it ticks, it expires once, it stops.
package clock

import (
	"fmt"
	"sync"
	"time"
)

// Countdown counts down whole seconds and fires onExpire exactly once.
type Countdown struct {
	source Source

	mu   sync.Mutex
	gen  uint64
	stop chan struct{}
}

// New creates a Countdown. A nil source means real time.
func New(source Source) *Countdown {
	if source == nil {
		source = RealSource{}
	}
	return &Countdown{source: source}
}

// Start begins counting down from initial seconds. onTick receives the
// remaining seconds after each elapsed second (initial-1 down to 0), then
// onExpire fires once and the countdown stops itself. Starting again
// cancels the previous run. Callbacks run on the countdown's goroutine.
func (c *Countdown) Start(initial int, onTick func(remaining int), onExpire func()) {
	c.mu.Lock()
	if c.stop != nil {
		close(c.stop)
	}
	c.gen++
	gen := c.gen
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()

	if initial <= 0 {
		go func() {
			if c.finish(gen) && onExpire != nil {
				onExpire()
			}
		}()
		return
	}

	ticker := c.source.NewTicker(time.Second)
	go c.run(gen, stop, ticker, initial, onTick, onExpire)
}

func (c *Countdown) run(gen uint64, stop <-chan struct{}, ticker Ticker, remaining int, onTick func(int), onExpire func()) {
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
		}

		if !c.current(gen) {
			return
		}

		remaining--
		if onTick != nil {
			onTick(remaining)
		}
		if remaining <= 0 {
			if c.finish(gen) && onExpire != nil {
				onExpire()
			}
			return
		}
	}
}

// Stop halts the countdown. Safe to call repeatedly and after expiry.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.gen++
}

// Running reports whether a countdown is in flight.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

func (c *Countdown) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// finish marks run gen as done. It reports false when the run was already
// stopped or replaced, which keeps onExpire from firing twice.
func (c *Countdown) finish(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.stop = nil
	c.gen++
	return true
}

// FormatMMSS renders seconds as MM:SS. Minutes are not wrapped at 60.
func FormatMMSS(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
