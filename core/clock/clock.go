// Package clock provides the wall-clock seconds source used throughout the
// routing core for HELLO/LSA timers, neighbor liveness, and LSDB aging.
//
// Adapted from the reference mesh implementation's RTCClock: where that
// clock exposes a strictly-increasing uint32 unique-timestamp generator for
// firmware timestamping, this Clock exists purely so timer comparisons
// (spec §4.4, §5) can be swapped onto a fake source in tests without
// threading time.Now() through every routing method.
package clock

import (
	"sync"
	"time"
)

// Clock yields the current local-epoch time (spec §5: "a non-monotonic
// clock is acceptable ... all ages are measured locally").
type Clock struct {
	mu    sync.Mutex
	nowFn func() time.Time
}

// New creates a Clock backed by the system wall clock.
func New() *Clock {
	return &Clock{nowFn: time.Now}
}

// NewFake creates a Clock whose Now() always calls fn, for deterministic
// tests of timer-driven behavior (HELLO_INTERVAL, NEIGHBOR_TIMEOUT, ...).
func NewFake(fn func() time.Time) *Clock {
	return &Clock{nowFn: fn}
}

// Now returns the current time as observed by this clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowFn()
}

// NowSeconds returns the current local-epoch time as a UNIX timestamp in
// whole seconds, the unit every LSR timer and age comparison in spec §4.4
// is expressed in.
func (c *Clock) NowSeconds() int64 {
	return c.Now().Unix()
}

// Since returns how much time has elapsed since t, per this clock.
func (c *Clock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}
