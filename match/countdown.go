package match

import (
	"sync"
	"time"
)

// Tick is delivered on a Countdown's channel when it expires.
type Tick struct {
	Gen    uint64
	Window time.Duration
}

// Countdown is a restartable one-shot timer owned by a single event loop.
// Expiries are delivered on C; the loop must confirm each one with Live,
// which discards ticks from cancelled or superseded armings.
type Countdown struct {
	C <-chan Tick

	c     chan Tick
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

func NewCountdown() *Countdown {
	c := make(chan Tick, 1)

	return &Countdown{C: c, c: c}
}

// Arm (re)starts the countdown with the full window d, cancelling any
// previous arming.
func (c *Countdown) Arm(d time.Duration) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.gen++
	gen := c.gen
	c.timer = time.AfterFunc(d, func() {
		c.fire(Tick{Gen: gen, Window: d})
	})

	return gen
}

// Cancel stops the countdown. It reports whether an unexpired arming was
// stopped; cancelling an idle or already fired countdown is a no-op.
func (c *Countdown) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	stopped := c.stopLocked()
	c.gen++

	return stopped
}

// Live reports whether t belongs to the current arming and consumes it,
// so a tick is acted on at most once.
func (c *Countdown) Live(t Tick) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.Gen != c.gen {
		return false
	}
	c.gen++
	c.timer = nil

	return true
}

// Armed reports whether an arming is pending or delivered but unconsumed.
func (c *Countdown) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.timer != nil
}

func (c *Countdown) stopLocked() bool {
	if c.timer == nil {
		return false
	}
	stopped := c.timer.Stop()
	c.timer = nil

	return stopped
}

func (c *Countdown) fire(t Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.Gen != c.gen {
		return
	}

	// Replace any stale tick still sitting in the buffer.
	select {
	case <-c.c:
	default:
	}
	c.c <- t
}
