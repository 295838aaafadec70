package sensor

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format accepted from the operator.
const DateLayout = "2006-01-02"

// DateRange is an inclusive window of whole calendar days. The zero value is
// the unset range.
type DateRange struct {
	Start time.Time // midnight of the first day
	End   time.Time // midnight of the last day
}

// NewDateRange builds a range covering the calendar days of start through
// end, each taken in its own location.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: midnight(start, 0), End: midnight(end, 0)}
	if r.End.Before(r.Start) {
		return DateRange{}, fmt.Errorf("%w: %s > %s", ErrInvertedRange,
			r.Start.Format(DateLayout), r.End.Format(DateLayout))
	}
	return r, nil
}

// ParseDateRange builds a range from two yyyy-MM-dd strings interpreted in
// loc. The range stays unset unless both strings are present.
func ParseDateRange(start, end string, loc *time.Location) (DateRange, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" || end == "" {
		return DateRange{}, nil
	}
	if loc == nil {
		loc = time.Local
	}
	s, err := time.ParseInLocation(DateLayout, start, loc)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse start date: %w", err)
	}
	e, err := time.ParseInLocation(DateLayout, end, loc)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse end date: %w", err)
	}
	return NewDateRange(s, e)
}

// IsSet reports whether the range filters anything.
func (r DateRange) IsSet() bool {
	return !r.Start.IsZero() && !r.End.IsZero()
}

// Bounds returns the inclusive millisecond bounds: midnight starting the
// first day through midnight ending the last day.
func (r DateRange) Bounds() (startMs, endMs int64) {
	return r.Start.UnixMilli(), midnight(r.End, 1).UnixMilli()
}

func (r DateRange) String() string {
	if !r.IsSet() {
		return "all"
	}
	return r.Start.Format(DateLayout) + " → " + r.End.Format(DateLayout)
}

// Filter returns the readings inside r. An unset range returns readings
// itself; a set range returns a new slice and never touches the input.
func Filter(readings []Reading, r DateRange) []Reading {
	if !r.IsSet() {
		return readings
	}
	lo, hi := r.Bounds()
	startMs, endMs := float64(lo), float64(hi)
	out := make([]Reading, 0, len(readings))
	for _, rd := range readings {
		if ms := rd.Millis(); ms >= startMs && ms <= endMs {
			out = append(out, rd)
		}
	}
	return out
}

func midnight(t time.Time, addDays int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+addDays, 0, 0, 0, 0, t.Location())
}
