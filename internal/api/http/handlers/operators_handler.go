package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/membership-service/internal/api/dto"
	"github.com/spec-kit/membership-service/internal/auth"
	"github.com/spec-kit/membership-service/internal/service"
	apperrors "github.com/spec-kit/membership-service/pkg/util"
)

// OperatorsHandler manages back-office authentication endpoints.
type OperatorsHandler struct {
	service *service.AuthService
}

// NewOperatorsHandler constructs handler.
func NewOperatorsHandler(authService *service.AuthService) *OperatorsHandler {
	return &OperatorsHandler{service: authService}
}

// Login POST /auth/login.
func (h *OperatorsHandler) Login(c *fiber.Ctx) error {
	var req dto.OperatorLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email, password required", nil)
	}

	result, err := h.service.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuthResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		Role:      string(result.Operator.Role),
	}})
}

// ChangePassword POST /auth/password/change.
func (h *OperatorsHandler) ChangePassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Operator == nil {
		return apperrors.NewUnauthorized("operator required")
	}
	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		return apperrors.NewValidationError("old_password, new_password required", nil)
	}

	if err := h.service.ChangePassword(c.UserContext(), principal.Operator.ID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "password updated",
	})
}
