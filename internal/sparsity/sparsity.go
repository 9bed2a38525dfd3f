// Package sparsity implements the Sparsity Map: a canonical representation
// of a finite set of closed, unit-aligned time intervals, with union,
// relative complement, iteration, and a bit-exact string codec.
package sparsity

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nholding/tsingest/internal/calendar"
	"github.com/nholding/tsingest/internal/tserr"
)

// Interval is one closed, inclusive sub-range of the timeline.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Map is the canonical value type for a set of intervals. The zero value is
// not usable; construct with Empty or Parse.
type Map struct {
	unit      calendar.Unit
	cal       calendar.Calendar
	intervals []Interval // sorted, pairwise non-adjacent-non-overlapping (I1)/(I2)
}

// MalformedDomainError reports a Sparsity Map string that fails to parse.
type MalformedDomainError struct {
	Input string
	Cause error
}

func (e *MalformedDomainError) Error() string {
	return fmt.Sprintf("sparsity: malformed domain %q: %v", e.Input, e.Cause)
}

func (e *MalformedDomainError) Unwrap() error { return e.Cause }

func (e *MalformedDomainError) Kind() tserr.Kind { return tserr.KindMalformedDomain }

// Empty returns the empty set ("/") for the given unit.
func Empty(unit calendar.Unit) (Map, error) {
	cal, err := calendar.For(unit)
	if err != nil {
		return Map{}, err
	}
	return Map{unit: unit, cal: cal}, nil
}

// Parse decodes a Sparsity Map string of the form
// "/" (date "|" date "/")*. It rejects a missing leading slash, segments
// without exactly one "|", inverted (start > end) segments, and segments
// that do not start after the previous segment's end. Calendar-adjacent
// segments are merged into one interval, per invariant (I2).
func Parse(unit calendar.Unit, s string) (Map, error) {
	cal, err := calendar.For(unit)
	if err != nil {
		return Map{}, err
	}

	if !strings.HasPrefix(s, "/") {
		return Map{}, &MalformedDomainError{Input: s, Cause: fmt.Errorf("missing leading '/'")}
	}

	segments := strings.Split(s[1:], "/")
	intervals := make([]Interval, 0, len(segments))
	var lastEnd time.Time
	hasLast := false

	for _, seg := range segments {
		if seg == "" {
			continue
		}
		parts := strings.Split(seg, "|")
		if len(parts) != 2 {
			return Map{}, &MalformedDomainError{Input: s, Cause: fmt.Errorf("segment %q must contain exactly one '|'", seg)}
		}

		start, err := cal.Parse(parts[0])
		if err != nil {
			return Map{}, &MalformedDomainError{Input: s, Cause: fmt.Errorf("bad start date %q: %w", parts[0], err)}
		}
		end, err := cal.Parse(parts[1])
		if err != nil {
			return Map{}, &MalformedDomainError{Input: s, Cause: fmt.Errorf("bad end date %q: %w", parts[1], err)}
		}
		if start.After(end) {
			return Map{}, &MalformedDomainError{Input: s, Cause: fmt.Errorf("segment %q has start after end", seg)}
		}
		if hasLast && !start.After(lastEnd) {
			return Map{}, &MalformedDomainError{Input: s, Cause: fmt.Errorf("segment %q does not start after the previous segment's end", seg)}
		}

		if hasLast && cal.Equal(cal.Increment(lastEnd), start) {
			intervals[len(intervals)-1].End = end
		} else {
			intervals = append(intervals, Interval{Start: start, End: end})
		}
		lastEnd = end
		hasLast = true
	}

	return Map{unit: unit, cal: cal, intervals: intervals}, nil
}

// Unit reports the calendar unit this Map is quantized to.
func (m Map) Unit() calendar.Unit { return m.unit }

// IsEmpty reports whether the Map represents the empty set.
func (m Map) IsEmpty() bool { return len(m.intervals) == 0 }

// Intervals returns the sorted, canonical intervals of the Map. The caller
// must not mutate the returned slice.
func (m Map) Intervals() []Interval { return m.intervals }

// String renders the bit-exact canonical form, e.g.
// "/2020-01-01|2020-06-30/2021-01-01|2021-12-31", or "/" for the empty set.
func (m Map) String() string {
	if len(m.intervals) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, iv := range m.intervals {
		b.WriteByte('/')
		b.WriteString(m.cal.Format(iv.Start))
		b.WriteByte('|')
		b.WriteString(m.cal.Format(iv.End))
	}
	return b.String()
}

func (m Map) sameUnit(other Map) error {
	if m.unit != other.unit {
		return fmt.Errorf("sparsity: unit mismatch: %s vs %s", m.unit, other.unit)
	}
	return nil
}

// Add computes the union A + B: every interval of other is folded into a
// copy of m, merging any interval it intersects or is adjacent to, per
// invariant (I2).
func (m Map) Add(other Map) (Map, error) {
	if err := m.sameUnit(other); err != nil {
		return Map{}, err
	}

	result := append([]Interval(nil), m.intervals...)
	for _, incoming := range other.intervals {
		result = mergeInterval(m.cal, result, incoming)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Start.Before(result[j].Start) })
	return Map{unit: m.unit, cal: m.cal, intervals: result}, nil
}

func mergeInterval(cal calendar.Calendar, intervals []Interval, incoming Interval) []Interval {
	start, end := incoming.Start, incoming.End
	kept := intervals[:0:0]
	for _, existing := range intervals {
		if calendar.IntervalsIntersect(cal, start, end, existing.Start, existing.End) {
			if existing.Start.Before(start) {
				start = existing.Start
			}
			if existing.End.After(end) {
				end = existing.End
			}
			continue
		}
		kept = append(kept, existing)
	}
	kept = append(kept, Interval{Start: start, End: end})
	return kept
}

// Subtract computes the relative complement A − B: for each interval of
// other, every interval of m is trimmed, split, or dropped according to how
// it overlaps that subtracted interval.
func (m Map) Subtract(other Map) (Map, error) {
	if err := m.sameUnit(other); err != nil {
		return Map{}, err
	}

	result := append([]Interval(nil), m.intervals...)
	for _, sub := range other.intervals {
		result = subtractInterval(m.cal, result, sub)
	}
	return Map{unit: m.unit, cal: m.cal, intervals: result}, nil
}

func subtractInterval(cal calendar.Calendar, intervals []Interval, sub Interval) []Interval {
	out := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		out = append(out, subtractOne(cal, iv, sub)...)
	}
	return out
}

// subtractOne applies the relative complement of sub from a single interval
// iv, in the tie-break order specified by the algebra: disjoint, B ⊇ A,
// A ⊃ B (split), left overlap, right overlap.
func subtractOne(cal calendar.Calendar, iv, sub Interval) []Interval {
	if intervalsDisjointStrict(iv, sub) {
		return []Interval{iv}
	}

	// B ⊇ A
	if !sub.Start.After(iv.Start) && !iv.End.After(sub.End) {
		return nil
	}

	// A ⊃ B strictly: split into two.
	if iv.Start.Before(sub.Start) && sub.End.Before(iv.End) {
		left := Interval{Start: iv.Start, End: cal.Decrement(sub.Start)}
		right := Interval{Start: cal.Increment(sub.End), End: iv.End}
		return []Interval{left, right}
	}

	// left overlap: sa < sb <= ea <= eb
	if iv.Start.Before(sub.Start) {
		return []Interval{{Start: iv.Start, End: cal.Decrement(sub.Start)}}
	}

	// right overlap: sb <= sa <= eb < ea
	return []Interval{{Start: cal.Increment(sub.End), End: iv.End}}
}

// intervalsDisjointStrict reports true when iv and sub do not overlap even
// though they might be calendar-adjacent; adjacency must not be treated as
// overlap for subtraction (only Add merges adjacent intervals).
func intervalsDisjointStrict(a, b Interval) bool {
	return a.End.Before(b.Start) || b.End.Before(a.Start)
}
