package dto

import (
	"time"

	"github.com/spec-kit/membership-service/internal/domain"
)

// CreateApplicationRequest payload.
type CreateApplicationRequest struct {
	MemberID   string            `json:"member_id"`
	TargetRole domain.MemberRole `json:"target_role"`
}

// RejectApplicationRequest payload.
type RejectApplicationRequest struct {
	Reason string `json:"reason"`
}

// ApplicationResponse represents a promotion application.
type ApplicationResponse struct {
	ID              string                   `json:"id"`
	MemberID        string                   `json:"member_id"`
	TargetRole      domain.MemberRole        `json:"target_role"`
	Status          domain.ApplicationStatus `json:"status"`
	AppliedAt       time.Time                `json:"applied_at"`
	ReviewedBy      *string                  `json:"reviewed_by,omitempty"`
	ApprovedAt      *time.Time               `json:"approved_at,omitempty"`
	RejectedAt      *time.Time               `json:"rejected_at,omitempty"`
	RejectionReason *string                  `json:"rejection_reason,omitempty"`
	CompletedAt     *time.Time               `json:"completed_at,omitempty"`
}

// EligibilityResponse reports the gate decision.
type EligibilityResponse struct {
	Eligible bool     `json:"eligible"`
	Unmet    []string `json:"unmet"`
}
