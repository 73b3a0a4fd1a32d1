// Package testutil holds fixtures shared by the ledger test suites.
package testutil

import "time"

// Clock provides deterministic, monotonically increasing timestamps.
// Backup archive names have one-second resolution, so every call advances
// by a full second.
type Clock struct {
	current time.Time
	step    time.Duration
}

// NewClock returns a clock initialized to a fixed UTC start time.
func NewClock() *Clock {
	return &Clock{
		current: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC),
		step:    time.Second,
	}
}

// Now advances the clock and returns the new time.
func (c *Clock) Now() time.Time {
	c.current = c.current.Add(c.step)

	return c.current
}
