// Package clock supplies the current instant in the studio timezone.
//
// Engine code must not read the host clock directly. Inject a Clock instead so
// that lifecycle decisions and report periods are deterministic under test.
package clock

import "time"

// Clock provides the current time in a fixed location.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

type realClock struct {
	loc *time.Location
}

// New returns a Clock backed by the system time, converted to loc.
// Only process entrypoints should construct it.
func New(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return realClock{loc: loc}
}

func (c realClock) Now() time.Time           { return time.Now().In(c.loc) }
func (c realClock) Location() *time.Location { return c.loc }

// FixedClock always returns T.
type FixedClock struct {
	T   time.Time
	Loc *time.Location
}

// NewFixed returns a Clock that always reports t.
func NewFixed(t time.Time, loc *time.Location) *FixedClock {
	if loc == nil {
		loc = time.UTC
	}
	return &FixedClock{T: t, Loc: loc}
}

func (c *FixedClock) Now() time.Time           { return c.T.In(c.Loc) }
func (c *FixedClock) Location() *time.Location { return c.Loc }

// Set moves the fixed instant.
func (c *FixedClock) Set(t time.Time) { c.T = t }

// Advance moves the fixed instant forward by d.
func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }

type funcClock struct {
	fn  func() time.Time
	loc *time.Location
}

// NewFunc returns a Clock that asks fn for the current instant.
func NewFunc(fn func() time.Time, loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return funcClock{fn: fn, loc: loc}
}

func (c funcClock) Now() time.Time           { return c.fn().In(c.loc) }
func (c funcClock) Location() *time.Location { return c.loc }

// LoadLocation resolves a studio timezone name, falling back to UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
