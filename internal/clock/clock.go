// Package clock provides the ledger's monotonic time source in unix seconds.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current ledger time.
type Clock interface {
	Now() int64
}

// System reads wall-clock time and never goes backwards, even if the host
// clock is stepped back.
type System struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewSystem creates a System clock.
func NewSystem() *System {
	return &System{now: time.Now}
}

// Now returns the current unix time in seconds.
func (c *System) Now() int64 {
	t := c.now().Unix()

	c.mu.Lock()
	defer c.mu.Unlock()
	if t < c.last {
		return c.last
	}
	c.last = t
	return t
}

// Manual is a clock that only moves when told to. It is used by tests and by
// the dev harness.
type Manual struct {
	mu  sync.Mutex
	now int64
}

// NewManual creates a Manual clock starting at now.
func NewManual(now int64) *Manual {
	return &Manual{now: now}
}

// Now returns the current time.
func (c *Manual) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t. Moving backwards is ignored.
func (c *Manual) Set(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t > c.now {
		c.now = t
	}
}

// Advance moves the clock forward by d seconds.
func (c *Manual) Advance(d int64) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}
