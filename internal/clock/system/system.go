// Package system provides the clocks that date archive runs.
package system

import "time"

// Clock reads the wall clock in UTC.
type Clock struct{}

// New returns the wall clock.
func New() Clock {
	return Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant. It backs the --date override and tests.
type Fixed struct {
	t time.Time
}

// NewFixed returns a clock stuck at t.
func NewFixed(t time.Time) Fixed {
	return Fixed{t: t}
}

// ParseFixed returns a clock stuck at midnight UTC of a YYYY-MM-DD date.
func ParseFixed(date string) (Fixed, error) {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return Fixed{}, err
	}
	return Fixed{t: t.UTC()}, nil
}

// Now returns the fixed instant.
func (f Fixed) Now() time.Time {
	return f.t
}
