package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/membership-service/internal/api/dto"
	"github.com/spec-kit/membership-service/internal/auth"
	"github.com/spec-kit/membership-service/internal/domain"
	"github.com/spec-kit/membership-service/internal/repository"
	"github.com/spec-kit/membership-service/internal/service"
	apperrors "github.com/spec-kit/membership-service/pkg/util"
)

// AssessmentsHandler manages the batch execution and confirmation endpoints.
type AssessmentsHandler struct {
	service *service.AssessmentService
}

// NewAssessmentsHandler constructs handler.
func NewAssessmentsHandler(assessmentService *service.AssessmentService) *AssessmentsHandler {
	return &AssessmentsHandler{service: assessmentService}
}

// Execute POST /assessments/execute.
func (h *AssessmentsHandler) Execute(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Operator == nil {
		return apperrors.NewUnauthorized("operator required")
	}
	var req dto.ExecuteAssessmentRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}

	summary, err := h.service.ExecuteAssessment(c.UserContext(), service.ExecuteInput{
		Year:       req.Year,
		Half:       req.Half,
		ExecutedBy: principal.Operator.ID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "assessment batch executed",
		"data":    executionSummaryResponse(summary),
	})
}

// List GET /assessments.
func (h *AssessmentsHandler) List(c *fiber.Ctx) error {
	filter, err := parseAssessmentQuery(c)
	if err != nil {
		return err
	}
	assessments, err := h.service.ListAssessments(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.AssessmentResponse, 0, len(assessments))
	for i := range assessments {
		items = append(items, assessmentResponse(&assessments[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /assessments/:id.
func (h *AssessmentsHandler) Get(c *fiber.Ctx) error {
	assessment, err := h.service.GetAssessment(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": assessmentResponse(assessment)})
}

// Confirm POST /assessments/:id/confirm.
func (h *AssessmentsHandler) Confirm(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Operator == nil {
		return apperrors.NewUnauthorized("operator required")
	}
	var req dto.ConfirmAssessmentRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}

	assessment, err := h.service.ConfirmAssessment(c.UserContext(), c.Params("id"), principal.Operator.ID, req.ApplyRangeChange)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "assessment confirmed",
		"data":    assessmentResponse(assessment),
	})
}

// Demote POST /assessments/:id/demote.
func (h *AssessmentsHandler) Demote(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Operator == nil {
		return apperrors.NewUnauthorized("operator required")
	}
	assessment, err := h.service.DemoteManager(c.UserContext(), c.Params("id"), principal.Operator.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "manager demoted",
		"data":    assessmentResponse(assessment),
	})
}

// ListRanges GET /ranges.
func (h *AssessmentsHandler) ListRanges(c *fiber.Ctx) error {
	ranges, err := h.service.ListRanges(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.RangeResponse, 0, len(ranges))
	for _, tier := range ranges {
		items = append(items, dto.RangeResponse{
			Number:               tier.Number,
			PromotionThreshold:   tier.PromotionThreshold.String(),
			MaintenanceThreshold: tier.MaintenanceThreshold.String(),
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// RankHistory GET /members/:id/rank-history.
func (h *AssessmentsHandler) RankHistory(c *fiber.Ctx) error {
	memberID := c.Params("id")
	if memberID == "" {
		return apperrors.NewValidationError("member id required", nil)
	}
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	entries, err := h.service.ListRankHistory(c.UserContext(), memberID, limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.RankHistoryResponse, 0, len(entries))
	for i := range entries {
		entry := &entries[i]
		items = append(items, dto.RankHistoryResponse{
			ID:           entry.ID,
			MemberID:     entry.MemberID,
			OldRange:     entry.OldRange,
			NewRange:     entry.NewRange,
			Reason:       string(entry.Reason),
			ChangedBy:    entry.ChangedBy,
			AssessmentID: entry.AssessmentID,
			CreatedAt:    entry.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseAssessmentQuery(c *fiber.Ctx) (repository.AssessmentFilter, error) {
	filter := repository.AssessmentFilter{
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	if memberID := c.Query("member_id"); memberID != "" {
		filter.MemberID = &memberID
	}
	if yearStr := c.Query("year"); yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			return filter, apperrors.NewValidationError("invalid year", nil)
		}
		filter.Year = &year
	}
	if halfStr := c.Query("half"); halfStr != "" {
		half, err := strconv.Atoi(halfStr)
		if err != nil {
			return filter, apperrors.NewValidationError("invalid half", nil)
		}
		filter.Half = &half
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.AssessmentStatus(strings.TrimSpace(part)))
		}
	}
	if outcomeStr := c.Query("outcome"); outcomeStr != "" {
		for _, part := range strings.Split(outcomeStr, ",") {
			filter.Outcomes = append(filter.Outcomes, domain.AssessmentOutcome(strings.TrimSpace(part)))
		}
	}
	return filter, nil
}

func assessmentResponse(assessment *domain.Assessment) dto.AssessmentResponse {
	return dto.AssessmentResponse{
		ID:               assessment.ID,
		MemberID:         assessment.MemberID,
		Period:           fmt.Sprintf("%dH%d", assessment.PeriodYear, assessment.PeriodHalf),
		PeriodSales:      assessment.PeriodSales.String(),
		RangeAtExecution: assessment.RangeAtExecution,
		ProposedRange:    assessment.ProposedRange,
		Outcome:          assessment.Outcome,
		Status:           assessment.Status,
		ExecutedBy:       assessment.ExecutedBy,
		ExecutedAt:       assessment.ExecutedAt,
		ConfirmedBy:      assessment.ConfirmedBy,
		ConfirmedAt:      assessment.ConfirmedAt,
	}
}

func executionSummaryResponse(summary *service.ExecutionSummary) dto.ExecutionSummaryResponse {
	return dto.ExecutionSummaryResponse{
		Period:             summary.Period.Key(),
		PeriodStart:        summary.Period.Start.Format("2006-01-02"),
		PeriodEnd:          summary.Period.End.Format("2006-01-02"),
		Assessed:           summary.Assessed,
		Promotions:         summary.Promotions,
		Maintains:          summary.Maintains,
		DemotionCandidates: summary.DemotionCandidates,
		Skipped:            summary.Skipped,
		Errors:             summary.Errors,
		Expired:            summary.Expired,
	}
}
