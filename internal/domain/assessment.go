package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssessmentOutcome is the proposal computed once at batch execution.
type AssessmentOutcome string

const (
	OutcomePromote         AssessmentOutcome = "PROMOTE"
	OutcomeMaintain        AssessmentOutcome = "MAINTAIN"
	OutcomeDemoteCandidate AssessmentOutcome = "DEMOTE_CANDIDATE"
)

// AssessmentStatus enumerates lifecycle states for an assessment record.
type AssessmentStatus string

const (
	AssessmentStatusPending   AssessmentStatus = "PENDING"
	AssessmentStatusConfirmed AssessmentStatus = "CONFIRMED"
	AssessmentStatusDemoted   AssessmentStatus = "DEMOTED"
	AssessmentStatusExpired   AssessmentStatus = "EXPIRED"
)

// Assessment is the reviewable rank-change proposal for one member in one
// period. At most one exists per (member, period); the outcome is computed
// at execution and never recomputed, confirmation only applies or discards
// it.
type Assessment struct {
	ID               string
	MemberID         string
	PeriodYear       int
	PeriodHalf       int
	PeriodSales      decimal.Decimal
	RangeAtExecution int
	ProposedRange    int
	Outcome          AssessmentOutcome
	Status           AssessmentStatus
	ExecutedBy       string
	ExecutedAt       time.Time
	ConfirmedBy      *string
	ConfirmedAt      *time.Time
}

// Period reconstructs the assessment window of the record.
func (a *Assessment) Period() Period {
	period, _ := PeriodFor(a.PeriodYear, a.PeriodHalf)
	return period
}
