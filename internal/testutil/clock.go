package testutil

import (
	"sync"
	"time"
)

// DeterministicClock hands out strictly increasing record timestamps for
// tests, in whole seconds.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start int64
	ts    int64
}

// NewDeterministicClock creates a clock whose first Next() returns start+1.
func NewDeterministicClock(start int64) *DeterministicClock {
	return &DeterministicClock{start: start, ts: start}
}

// Next advances the clock by one second and returns the new timestamp.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ts++
	return c.ts
}

// Current returns the current timestamp without advancing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ts
}

// Now returns Current as a UTC time. It matches the func() time.Time
// signature used for clock injection.
func (c *DeterministicClock) Now() time.Time {
	return time.Unix(c.Current(), 0).UTC()
}

// Reset moves the clock back to its start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ts = c.start
}
