package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/membership-service/internal/auth"
	"github.com/spec-kit/membership-service/internal/config"
	"github.com/spec-kit/membership-service/internal/domain"
	"github.com/spec-kit/membership-service/internal/repository"
	apperrors "github.com/spec-kit/membership-service/pkg/util"
)

// AuthService authenticates back-office operators; their identity is what
// the engine records as executedBy/confirmedBy.
type AuthService struct {
	operators repository.OperatorRepository
	tokens    *auth.TokenManager
	cfg       config.AuthConfig
}

// NewAuthService constructs the service.
func NewAuthService(cfg config.AuthConfig, operators repository.OperatorRepository) *AuthService {
	return &AuthService{
		operators: operators,
		tokens:    auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		cfg:       cfg,
	}
}

// TokenManager exposes the manager for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}

// LoginResult carries the issued session.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Operator  *domain.Operator
}

// Login verifies operator credentials and issues a JWT.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	operator, err := s.operators.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if !operator.Active {
		return nil, apperrors.NewForbidden("operator deactivated")
	}
	if err := auth.ComparePassword(operator.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err := s.tokens.GenerateToken(operator.ID, operator.Role)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, Operator: operator}, nil
}

// ChangePassword rotates an operator's password after verifying the old one.
func (s *AuthService) ChangePassword(ctx context.Context, operatorID, oldPassword, newPassword string) error {
	operator, err := s.operators.GetByID(ctx, operatorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("operator", map[string]any{"operator_id": operatorID})
		}
		return apperrors.MapError(err)
	}
	if err := auth.ComparePassword(operator.PasswordHash, oldPassword); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	if len(newPassword) < 8 {
		return apperrors.NewValidationError("password must be at least 8 characters", nil)
	}
	hashed, err := auth.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return apperrors.MapError(err)
	}
	if err := s.operators.UpdatePassword(ctx, operatorID, hashed); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}
