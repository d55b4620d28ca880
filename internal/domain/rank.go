package domain

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Range is an ordered performance tier a manager occupies. The promotion
// threshold of range N is the sales figure required to enter N from N-1;
// the maintenance threshold is the minimum to remain in N.
type Range struct {
	Number               int
	PromotionThreshold   decimal.Decimal
	MaintenanceThreshold decimal.Decimal
}

// Catalog is the ordered, read-only set of ranges used during assessment.
type Catalog struct {
	ranges   []Range
	byNumber map[int]Range
}

// NewCatalog validates and builds the catalog. Range numbers must be
// unique, positive and the configuration must satisfy
// promotionThreshold(next) >= maintenanceThreshold(current).
func NewCatalog(ranges []Range) (*Catalog, error) {
	if len(ranges) == 0 {
		return nil, errors.New("range catalog is empty")
	}
	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	byNumber := make(map[int]Range, len(sorted))
	for i, r := range sorted {
		if r.Number < 1 {
			return nil, fmt.Errorf("range number must be >= 1, got %d", r.Number)
		}
		if i > 0 && sorted[i-1].Number == r.Number {
			return nil, fmt.Errorf("duplicate range number %d", r.Number)
		}
		if i > 0 && r.PromotionThreshold.LessThan(sorted[i-1].MaintenanceThreshold) {
			return nil, fmt.Errorf(
				"promotion threshold of range %d is below maintenance threshold of range %d",
				r.Number, sorted[i-1].Number)
		}
		byNumber[r.Number] = r
	}
	return &Catalog{ranges: sorted, byNumber: byNumber}, nil
}

// Get looks up a range by number.
func (c *Catalog) Get(number int) (Range, bool) {
	r, ok := c.byNumber[number]
	return r, ok
}

// Next returns the range directly above the given one.
func (c *Catalog) Next(number int) (Range, bool) {
	for i, r := range c.ranges {
		if r.Number == number && i+1 < len(c.ranges) {
			return c.ranges[i+1], true
		}
	}
	return Range{}, false
}

// Previous returns the range directly below the given one.
func (c *Catalog) Previous(number int) (Range, bool) {
	for i, r := range c.ranges {
		if r.Number == number && i > 0 {
			return c.ranges[i-1], true
		}
	}
	return Range{}, false
}

// Ranges returns the ordered ranges.
func (c *Catalog) Ranges() []Range {
	out := make([]Range, len(c.ranges))
	copy(out, c.ranges)
	return out
}

// Proposal is the computed outcome for one member in one period.
type Proposal struct {
	Outcome     AssessmentOutcome
	TargetRange int
}

// Propose applies the assessment decision rule for a member currently in
// currentRange with the given period sales. Precedence: promotion into the
// next range, then demotion candidacy below the current maintenance
// threshold, then maintain. Only single-step transitions are proposed; a
// member already at the lowest range is maintained instead of demoted.
func (c *Catalog) Propose(currentRange int, sales decimal.Decimal) (Proposal, error) {
	current, ok := c.Get(currentRange)
	if !ok {
		return Proposal{}, fmt.Errorf("unknown range %d", currentRange)
	}
	if next, ok := c.Next(current.Number); ok && sales.GreaterThanOrEqual(next.PromotionThreshold) {
		return Proposal{Outcome: OutcomePromote, TargetRange: next.Number}, nil
	}
	if sales.LessThan(current.MaintenanceThreshold) {
		if prev, ok := c.Previous(current.Number); ok {
			return Proposal{Outcome: OutcomeDemoteCandidate, TargetRange: prev.Number}, nil
		}
		// Lowest range: nowhere to go down, degrade to maintain.
		return Proposal{Outcome: OutcomeMaintain, TargetRange: current.Number}, nil
	}
	return Proposal{Outcome: OutcomeMaintain, TargetRange: current.Number}, nil
}
