package events

import (
	"time"

	"github.com/spec-kit/membership-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAssessmentExecuted   EventType = "assessment_executed"
	EventAssessmentConfirmed  EventType = "assessment_confirmed"
	EventManagerDemoted       EventType = "manager_demoted"
	EventApplicationSubmitted EventType = "application_submitted"
	EventApplicationApproved  EventType = "application_approved"
	EventApplicationRejected  EventType = "application_rejected"
	EventApplicationCompleted EventType = "application_completed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	EntityID   string      `json:"entity_id"`
	OperatorID string      `json:"operator_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}

// AssessmentExecutedPayload summarizes a batch run.
type AssessmentExecutedPayload struct {
	PeriodKey          string `json:"period_key"`
	Promotions         int    `json:"promotions"`
	Maintains          int    `json:"maintains"`
	DemotionCandidates int    `json:"demotion_candidates"`
	Skipped            int    `json:"skipped"`
	Errors             int    `json:"errors"`
}

// AssessmentConfirmedPayload payload.
type AssessmentConfirmedPayload struct {
	MemberID     string                   `json:"member_id"`
	Outcome      domain.AssessmentOutcome `json:"outcome"`
	RangeApplied bool                     `json:"range_applied"`
	OldRange     int                      `json:"old_range"`
	NewRange     int                      `json:"new_range"`
}

// ManagerDemotedPayload payload.
type ManagerDemotedPayload struct {
	MemberID string `json:"member_id"`
	OldRange int    `json:"old_range"`
	NewRange int    `json:"new_range"`
}

// ApplicationSubmittedPayload payload.
type ApplicationSubmittedPayload struct {
	MemberID   string            `json:"member_id"`
	TargetRole domain.MemberRole `json:"target_role"`
}

// ApplicationReviewedPayload covers approval and rejection.
type ApplicationReviewedPayload struct {
	MemberID   string            `json:"member_id"`
	TargetRole domain.MemberRole `json:"target_role"`
	Reason     string            `json:"reason,omitempty"`
}

// ApplicationCompletedPayload payload.
type ApplicationCompletedPayload struct {
	MemberID string            `json:"member_id"`
	OldRole  domain.MemberRole `json:"old_role"`
	NewRole  domain.MemberRole `json:"new_role"`
}
