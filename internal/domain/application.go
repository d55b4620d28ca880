package domain

import "time"

// ApplicationStatus enumerates promotion application states.
type ApplicationStatus string

const (
	ApplicationStatusPending   ApplicationStatus = "PENDING"
	ApplicationStatusApproved  ApplicationStatus = "APPROVED"
	ApplicationStatusRejected  ApplicationStatus = "REJECTED"
	ApplicationStatusCompleted ApplicationStatus = "COMPLETED"
)

// PromotionApplication is a member's request for a role upgrade
// (member to FP-aide, FP-aide to manager). Only one non-terminal
// application per (member, target role) may be in flight.
type PromotionApplication struct {
	ID              string
	MemberID        string
	TargetRole      MemberRole
	Status          ApplicationStatus
	AppliedAt       time.Time
	ReviewedBy      *string
	ApprovedAt      *time.Time
	RejectedAt      *time.Time
	RejectionReason *string
	CompletedAt     *time.Time
}
