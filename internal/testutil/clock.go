// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"sync"
	"time"
)

// FakeClock is a manually driven time source for code that accepts a
// `func() time.Time`. Pass its Now method value.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// Epoch is where a clock created with a zero initial time starts.
var Epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// NewFakeClock returns a clock stopped at initial, or at Epoch when initial
// is zero.
func NewFakeClock(initial time.Time) *FakeClock {
	return NewTickingClock(initial, 0)
}

// NewTickingClock returns a clock that moves forward by step after every
// Now call, so consecutive readings are strictly increasing.
func NewTickingClock(initial time.Time, step time.Duration) *FakeClock {
	if initial.IsZero() {
		initial = Epoch
	}
	return &FakeClock{current: initial, step: step}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current
	c.current = c.current.Add(c.step)
	return now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}
