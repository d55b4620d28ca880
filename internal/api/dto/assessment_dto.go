package dto

import (
	"time"

	"github.com/spec-kit/membership-service/internal/domain"
)

// ExecuteAssessmentRequest selects the period; both fields zero means the
// current period.
type ExecuteAssessmentRequest struct {
	Year int `json:"year"`
	Half int `json:"half"`
}

// ExecutionSummaryResponse reports batch counts.
type ExecutionSummaryResponse struct {
	Period             string `json:"period"`
	PeriodStart        string `json:"period_start"`
	PeriodEnd          string `json:"period_end"`
	Assessed           int    `json:"assessed"`
	Promotions         int    `json:"promotions"`
	Maintains          int    `json:"maintains"`
	DemotionCandidates int    `json:"demotion_candidates"`
	Skipped            int    `json:"skipped"`
	Errors             int    `json:"errors"`
	Expired            int64  `json:"expired"`
}

// ConfirmAssessmentRequest payload.
type ConfirmAssessmentRequest struct {
	ApplyRangeChange bool `json:"apply_range_change"`
}

// AssessmentResponse represents one assessment record.
type AssessmentResponse struct {
	ID               string                   `json:"id"`
	MemberID         string                   `json:"member_id"`
	Period           string                   `json:"period"`
	PeriodSales      string                   `json:"period_sales"`
	RangeAtExecution int                      `json:"range_at_execution"`
	ProposedRange    int                      `json:"proposed_range"`
	Outcome          domain.AssessmentOutcome `json:"outcome"`
	Status           domain.AssessmentStatus  `json:"status"`
	ExecutedBy       string                   `json:"executed_by"`
	ExecutedAt       time.Time                `json:"executed_at"`
	ConfirmedBy      *string                  `json:"confirmed_by,omitempty"`
	ConfirmedAt      *time.Time               `json:"confirmed_at,omitempty"`
}

// RangeResponse represents one catalog tier.
type RangeResponse struct {
	Number               int    `json:"number"`
	PromotionThreshold   string `json:"promotion_threshold"`
	MaintenanceThreshold string `json:"maintenance_threshold"`
}

// RankHistoryResponse represents one audit entry.
type RankHistoryResponse struct {
	ID           string    `json:"id"`
	MemberID     string    `json:"member_id"`
	OldRange     int       `json:"old_range"`
	NewRange     int       `json:"new_range"`
	Reason       string    `json:"reason"`
	ChangedBy    string    `json:"changed_by"`
	AssessmentID *string   `json:"assessment_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
