// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"sync"
	"time"
)

// Clock is a deterministic time source. Every call to Now returns the current
// instant and then moves it forward by Step, so consecutive writes get
// strictly increasing timestamps.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewClock returns a clock starting at start (in UTC) that advances by step per read.
func NewClock(start time.Time, step time.Duration) *Clock {
	return &Clock{now: start.UTC(), Step: step}
}

// Now returns the current instant and advances the clock by Step.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

// Peek returns the current instant without advancing.
func (c *Clock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}
