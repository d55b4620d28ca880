package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/membership-service/internal/api/dto"
	"github.com/spec-kit/membership-service/internal/auth"
	"github.com/spec-kit/membership-service/internal/domain"
	"github.com/spec-kit/membership-service/internal/service"
	apperrors "github.com/spec-kit/membership-service/pkg/util"
)

// ApplicationsHandler manages promotion application endpoints.
type ApplicationsHandler struct {
	service *service.PromotionService
}

// NewApplicationsHandler constructs handler.
func NewApplicationsHandler(promotionService *service.PromotionService) *ApplicationsHandler {
	return &ApplicationsHandler{service: promotionService}
}

// Create POST /applications.
func (h *ApplicationsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateApplicationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.MemberID == "" || req.TargetRole == "" {
		return apperrors.NewValidationError("member_id, target_role required", nil)
	}

	application, err := h.service.SubmitApplication(c.UserContext(), req.MemberID, req.TargetRole)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "application submitted",
		"data":    applicationResponse(application),
	})
}

// Get GET /applications/:id.
func (h *ApplicationsHandler) Get(c *fiber.Ctx) error {
	application, err := h.service.GetApplication(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": applicationResponse(application)})
}

// ListByMember GET /members/:id/applications.
func (h *ApplicationsHandler) ListByMember(c *fiber.Ctx) error {
	memberID := c.Params("id")
	if memberID == "" {
		return apperrors.NewValidationError("member id required", nil)
	}
	applications, err := h.service.ListApplications(c.UserContext(), memberID)
	if err != nil {
		return err
	}
	items := make([]dto.ApplicationResponse, 0, len(applications))
	for i := range applications {
		items = append(items, applicationResponse(&applications[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Eligibility GET /applications/:id/eligibility.
func (h *ApplicationsHandler) Eligibility(c *fiber.Ctx) error {
	result, err := h.service.EvaluateEligibility(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	unmet := result.Unmet
	if unmet == nil {
		unmet = []string{}
	}
	return c.JSON(fiber.Map{"data": dto.EligibilityResponse{
		Eligible: result.Eligible,
		Unmet:    unmet,
	}})
}

// Approve POST /applications/:id/approve.
func (h *ApplicationsHandler) Approve(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Operator == nil {
		return apperrors.NewUnauthorized("operator required")
	}
	application, err := h.service.ApproveApplication(c.UserContext(), c.Params("id"), principal.Operator.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "application approved",
		"data":    applicationResponse(application),
	})
}

// Reject POST /applications/:id/reject.
func (h *ApplicationsHandler) Reject(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Operator == nil {
		return apperrors.NewUnauthorized("operator required")
	}
	var req dto.RejectApplicationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	application, err := h.service.RejectApplication(c.UserContext(), c.Params("id"), principal.Operator.ID, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "application rejected",
		"data":    applicationResponse(application),
	})
}

// Complete POST /applications/:id/complete.
func (h *ApplicationsHandler) Complete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Operator == nil {
		return apperrors.NewUnauthorized("operator required")
	}
	application, err := h.service.CompleteApplication(c.UserContext(), c.Params("id"), principal.Operator.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "application completed",
		"data":    applicationResponse(application),
	})
}

func applicationResponse(application *domain.PromotionApplication) dto.ApplicationResponse {
	return dto.ApplicationResponse{
		ID:              application.ID,
		MemberID:        application.MemberID,
		TargetRole:      application.TargetRole,
		Status:          application.Status,
		AppliedAt:       application.AppliedAt,
		ReviewedBy:      application.ReviewedBy,
		ApprovedAt:      application.ApprovedAt,
		RejectedAt:      application.RejectedAt,
		RejectionReason: application.RejectionReason,
		CompletedAt:     application.CompletedAt,
	}
}
