// Package calendar defines the discrete time unit a Sparsity Map is
// quantized to, and the arithmetic (increment, decrement, adjacency,
// intersection) the algebra in internal/sparsity is built on.
package calendar

import (
	"fmt"
	"time"
)

// Unit identifies one of the three supported calendar granularities.
type Unit string

const (
	Days   Unit = "days"
	Months Unit = "months"
	Years  Unit = "years"
)

// Calendar moves timestamps by exactly one quantum of a Unit and converts
// them to/from their canonical string form. Implementations must round-trip:
// Parse(Format(t)) == t for any t already aligned to the unit.
type Calendar interface {
	Unit() Unit
	Increment(t time.Time) time.Time
	Decrement(t time.Time) time.Time
	Equal(a, b time.Time) bool
	Format(t time.Time) string
	Parse(s string) (time.Time, error)
}

// For resolves a Unit to its Calendar implementation. Unknown units are a
// configuration error, not a runtime one: callers should validate at
// construction time.
func For(u Unit) (Calendar, error) {
	switch u {
	case Days:
		return dayCalendar{}, nil
	case Months:
		return monthCalendar{}, nil
	case Years:
		return yearCalendar{}, nil
	default:
		return nil, fmt.Errorf("calendar: unknown unit %q", u)
	}
}

// IntervalsIntersect reports whether two closed intervals overlap or sit
// exactly one quantum apart, in which case the Sparsity Map algebra must
// merge them to preserve invariant (I2).
func IntervalsIntersect(cal Calendar, aStart, aEnd, bStart, bEnd time.Time) bool {
	if !aStart.After(bEnd) && !bStart.After(aEnd) {
		return true
	}
	if cal.Equal(cal.Increment(aEnd), bStart) {
		return true
	}
	if cal.Equal(cal.Increment(bEnd), aStart) {
		return true
	}
	return false
}

const dayLayout = "2006-01-02"

type dayCalendar struct{}

func (dayCalendar) Unit() Unit                   { return Days }
func (dayCalendar) Increment(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
func (dayCalendar) Decrement(t time.Time) time.Time { return t.AddDate(0, 0, -1) }
func (dayCalendar) Equal(a, b time.Time) bool    { return a.Equal(b) }
func (dayCalendar) Format(t time.Time) string    { return t.Format(dayLayout) }
func (dayCalendar) Parse(s string) (time.Time, error) {
	return time.Parse(dayLayout, s)
}

const monthLayout = "2006-01"

type monthCalendar struct{}

func (monthCalendar) Unit() Unit { return Months }

// Increment/Decrement move by one calendar month, quantized to the first
// day of the month — month-length and leap-year differences never matter
// because endpoints are always aligned to month boundaries.
func (monthCalendar) Increment(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
func (monthCalendar) Decrement(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
}
func (monthCalendar) Equal(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
func (monthCalendar) Format(t time.Time) string { return t.Format(monthLayout) }
func (monthCalendar) Parse(s string) (time.Time, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
}

const yearLayout = "2006"

type yearCalendar struct{}

func (yearCalendar) Unit() Unit                      { return Years }
func (yearCalendar) Increment(t time.Time) time.Time { return time.Date(t.Year()+1, 1, 1, 0, 0, 0, 0, time.UTC) }
func (yearCalendar) Decrement(t time.Time) time.Time { return time.Date(t.Year()-1, 1, 1, 0, 0, 0, 0, time.UTC) }
func (yearCalendar) Equal(a, b time.Time) bool       { return a.Year() == b.Year() }
func (yearCalendar) Format(t time.Time) string       { return t.Format(yearLayout) }
func (yearCalendar) Parse(s string) (time.Time, error) {
	t, err := time.Parse(yearLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC), nil
}
