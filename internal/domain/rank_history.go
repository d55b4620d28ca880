package domain

import "time"

// RankChangeReason captures why a member's range moved.
type RankChangeReason string

const (
	RankChangePromotion RankChangeReason = "PROMOTION"
	RankChangeDemotion  RankChangeReason = "DEMOTION"
)

// RankHistory is an immutable audit trail entry for a range change.
type RankHistory struct {
	ID           string
	MemberID     string
	OldRange     int
	NewRange     int
	Reason       RankChangeReason
	ChangedBy    string
	AssessmentID *string
	CreatedAt    time.Time
}
