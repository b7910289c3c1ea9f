package core

import (
	"fmt"
	"time"
)

// Clock is the injected time source. All scheduling decisions are made in
// the configured business timezone, not in UTC, because "today" for a
// JobSchedule means the customer's calendar day.
type Clock interface {
	// Now returns the current instant in the configured timezone.
	Now() time.Time
	// Today returns midnight of the current calendar day in the
	// configured timezone.
	Today() time.Time
}

type systemClock struct {
	loc *time.Location
}

// NewClock builds a Clock for the given IANA timezone name.
func NewClock(tz string) (Clock, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", tz, err)
	}
	return &systemClock{loc: loc}, nil
}

func (c *systemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *systemClock) Today() time.Time {
	return Midnight(c.Now())
}

// Midnight truncates t to the start of its calendar day, keeping the location.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// FixedClock is a Clock pinned to a single instant, for tests.
type FixedClock struct {
	Instant time.Time
}

func (c *FixedClock) Now() time.Time   { return c.Instant }
func (c *FixedClock) Today() time.Time { return Midnight(c.Instant) }
