package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidHalf is returned when a period half is outside {1, 2}.
var ErrInvalidHalf = errors.New("period half must be 1 or 2")

// Period is a six-month assessment window identified by (year, half).
// Boundaries are half-open: [Start, End). Periods are contiguous and
// non-overlapping, so exactly one period contains any given instant.
type Period struct {
	Year  int
	Half  int
	Start time.Time
	End   time.Time
}

// PeriodFor maps (year, half) to the concrete window. Half 1 covers
// January through June, half 2 covers July through December.
func PeriodFor(year, half int) (Period, error) {
	if half != 1 && half != 2 {
		return Period{}, fmt.Errorf("%w: got %d", ErrInvalidHalf, half)
	}
	startMonth := time.January
	if half == 2 {
		startMonth = time.July
	}
	start := time.Date(year, startMonth, 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Year:  year,
		Half:  half,
		Start: start,
		End:   start.AddDate(0, 6, 0),
	}, nil
}

// CurrentPeriod returns the period containing now. Consistent with
// PeriodFor: same boundaries for the same (year, half).
func CurrentPeriod(now time.Time) Period {
	now = now.UTC()
	half := 1
	if now.Month() >= time.July {
		half = 2
	}
	period, _ := PeriodFor(now.Year(), half)
	return period
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.Start) && t.Before(p.End)
}

// Key returns the canonical short identifier, e.g. "2024H2".
func (p Period) Key() string {
	return fmt.Sprintf("%dH%d", p.Year, p.Half)
}

// Index orders periods chronologically; consecutive periods differ by one.
func (p Period) Index() int {
	return p.Year*2 + p.Half - 1
}

// Before reports whether p ends before other begins.
func (p Period) Before(other Period) bool {
	return p.Index() < other.Index()
}
