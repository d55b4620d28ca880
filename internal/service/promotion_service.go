package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/membership-service/internal/config"
	"github.com/spec-kit/membership-service/internal/domain"
	"github.com/spec-kit/membership-service/internal/events"
	"github.com/spec-kit/membership-service/internal/repository"
	apperrors "github.com/spec-kit/membership-service/pkg/util"
)

// PromotionService manages role-upgrade applications: submission, the
// multi-condition eligibility gate, review and the final role change.
type PromotionService struct {
	applications   repository.ApplicationRepository
	members        repository.MemberRepository
	qualifications repository.QualificationRepository
	ranges         repository.RangeRepository
	tx             repository.TxRunner
	dispatcher     events.Dispatcher
	logger         *zap.Logger
	policy         domain.EligibilityPolicy
	now            func() time.Time
}

// PromotionDependencies bundles collaborators for the service.
type PromotionDependencies struct {
	ApplicationRepo   repository.ApplicationRepository
	MemberRepo        repository.MemberRepository
	QualificationRepo repository.QualificationRepository
	RangeRepo         repository.RangeRepository
	TxRunner          repository.TxRunner
	Dispatcher        events.Dispatcher
	Logger            *zap.Logger
	Clock             func() time.Time
}

// NewPromotionService constructs the service.
func NewPromotionService(cfg config.EligibilityConfig, deps PromotionDependencies) *PromotionService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromotionService{
		applications:   deps.ApplicationRepo,
		members:        deps.MemberRepo,
		qualifications: deps.QualificationRepo,
		ranges:         deps.RangeRepo,
		tx:             deps.TxRunner,
		dispatcher:     deps.Dispatcher,
		logger:         logger,
		policy: domain.EligibilityPolicy{
			CompensationAverageMin: cfg.CompensationAverageMin,
			MemberReferralsMin:     cfg.MemberReferralsMin,
			FPReferralsMin:         cfg.FPReferralsMin,
		},
		now: clock,
	}
}

// SubmitApplication opens a promotion application for the member's next
// role. One non-terminal application per (member, target role) at a time.
func (s *PromotionService) SubmitApplication(ctx context.Context, memberID string, targetRole domain.MemberRole) (*domain.PromotionApplication, error) {
	member, err := s.getMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if member.Status != domain.MemberStatusActive {
		return nil, apperrors.NewInvalidState("member is not active",
			map[string]any{"member_id": memberID, "status": member.Status})
	}
	next, ok := domain.NextRole(member.Role)
	if !ok || next != targetRole {
		return nil, apperrors.NewInvalidState("target role is not the next role for member",
			map[string]any{"member_role": member.Role, "target_role": targetRole})
	}

	application := &domain.PromotionApplication{
		MemberID:   memberID,
		TargetRole: targetRole,
		Status:     domain.ApplicationStatusPending,
	}
	if err := s.applications.Create(ctx, application); err != nil {
		if errors.Is(err, repository.ErrDuplicateApplication) {
			return nil, apperrors.NewConflict("application already in flight",
				map[string]any{"member_id": memberID, "target_role": targetRole})
		}
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventApplicationSubmitted,
		EntityID: application.ID,
		Payload: events.ApplicationSubmittedPayload{
			MemberID:   memberID,
			TargetRole: targetRole,
		},
	})
	return application, nil
}

// EvaluateEligibility runs the gate for an application without touching
// any state. Returns the decision plus every unmet condition for display.
func (s *PromotionService) EvaluateEligibility(ctx context.Context, applicationID string) (domain.EligibilityResult, error) {
	application, err := s.getApplication(ctx, applicationID)
	if err != nil {
		return domain.EligibilityResult{}, err
	}
	return s.evaluate(ctx, application)
}

// ApproveApplication approves a pending application; the eligibility gate
// must pass in full, partial satisfaction never approves.
func (s *PromotionService) ApproveApplication(ctx context.Context, applicationID, reviewedBy string) (*domain.PromotionApplication, error) {
	application, err := s.getApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if application.Status != domain.ApplicationStatusPending {
		return nil, apperrors.NewInvalidState("application is not pending",
			map[string]any{"application_id": applicationID, "status": application.Status})
	}

	result, err := s.evaluate(ctx, application)
	if err != nil {
		return nil, err
	}
	if !result.Eligible {
		return nil, apperrors.NewInvalidState("eligibility conditions not met",
			map[string]any{"unmet": result.Unmet})
	}

	now := s.now()
	application.Status = domain.ApplicationStatusApproved
	application.ReviewedBy = &reviewedBy
	application.ApprovedAt = &now
	if err := s.applications.Transition(ctx, nil, application, domain.ApplicationStatusPending); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewInvalidState("application is not pending",
				map[string]any{"application_id": applicationID})
		}
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:       events.EventApplicationApproved,
		EntityID:   application.ID,
		OperatorID: reviewedBy,
		Payload: events.ApplicationReviewedPayload{
			MemberID:   application.MemberID,
			TargetRole: application.TargetRole,
		},
	})
	return application, nil
}

// RejectApplication rejects a pending application with a reason.
func (s *PromotionService) RejectApplication(ctx context.Context, applicationID, reviewedBy, reason string) (*domain.PromotionApplication, error) {
	application, err := s.getApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if application.Status != domain.ApplicationStatusPending {
		return nil, apperrors.NewInvalidState("application is not pending",
			map[string]any{"application_id": applicationID, "status": application.Status})
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewInvalidArgument("rejection reason required", nil)
	}

	now := s.now()
	application.Status = domain.ApplicationStatusRejected
	application.ReviewedBy = &reviewedBy
	application.RejectedAt = &now
	application.RejectionReason = &reason
	if err := s.applications.Transition(ctx, nil, application, domain.ApplicationStatusPending); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewInvalidState("application is not pending",
				map[string]any{"application_id": applicationID})
		}
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:       events.EventApplicationRejected,
		EntityID:   application.ID,
		OperatorID: reviewedBy,
		Payload: events.ApplicationReviewedPayload{
			MemberID:   application.MemberID,
			TargetRole: application.TargetRole,
			Reason:     reason,
		},
	})
	return application, nil
}

// CompleteApplication applies an approved promotion: the member's role
// changes and the application terminates, atomically. A member entering
// the manager tier starts at the lowest range.
func (s *PromotionService) CompleteApplication(ctx context.Context, applicationID, executedBy string) (*domain.PromotionApplication, error) {
	application, err := s.getApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if application.Status != domain.ApplicationStatusApproved {
		return nil, apperrors.NewInvalidState("application is not approved",
			map[string]any{"application_id": applicationID, "status": application.Status})
	}
	member, err := s.getMember(ctx, application.MemberID)
	if err != nil {
		return nil, err
	}

	var entryRange int
	if application.TargetRole == domain.RoleManager {
		ranges, err := s.ranges.List(ctx)
		if err != nil {
			return nil, apperrors.NewDependencyFailure("range catalog unavailable", err)
		}
		catalog, err := domain.NewCatalog(ranges)
		if err != nil {
			return nil, apperrors.NewDependencyFailure("range catalog invalid", err)
		}
		entryRange = catalog.Ranges()[0].Number
	}

	now := s.now()
	oldRole := member.Role
	application.Status = domain.ApplicationStatusCompleted
	application.CompletedAt = &now
	err = s.tx.WithinTx(ctx, func(db repository.DB) error {
		if err := s.members.UpdateRole(ctx, db, member.ID, oldRole, application.TargetRole); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewConflict("member role changed since approval",
					map[string]any{"member_id": member.ID})
			}
			return err
		}
		if application.TargetRole == domain.RoleManager {
			if err := s.members.SetInitialRange(ctx, db, member.ID, entryRange); err != nil {
				return err
			}
		}
		return s.applications.Transition(ctx, db, application, domain.ApplicationStatusApproved)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:       events.EventApplicationCompleted,
		EntityID:   application.ID,
		OperatorID: executedBy,
		Payload: events.ApplicationCompletedPayload{
			MemberID: member.ID,
			OldRole:  oldRole,
			NewRole:  application.TargetRole,
		},
	})
	return application, nil
}

// GetApplication fetches one application.
func (s *PromotionService) GetApplication(ctx context.Context, applicationID string) (*domain.PromotionApplication, error) {
	return s.getApplication(ctx, applicationID)
}

// ListApplications returns a member's applications, newest first.
func (s *PromotionService) ListApplications(ctx context.Context, memberID string) ([]domain.PromotionApplication, error) {
	result, err := s.applications.ListByMember(ctx, memberID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return result, nil
}

func (s *PromotionService) evaluate(ctx context.Context, application *domain.PromotionApplication) (domain.EligibilityResult, error) {
	conditions, err := s.qualifications.ConditionsFor(ctx, application.MemberID, s.now())
	if err != nil {
		return domain.EligibilityResult{}, apperrors.NewDependencyFailure("qualification lookup failed", err)
	}
	result, err := domain.EvaluateEligibility(conditions, application.TargetRole, s.policy)
	if err != nil {
		return domain.EligibilityResult{}, apperrors.NewInvalidArgument(err.Error(), nil)
	}
	return result, nil
}

func (s *PromotionService) getApplication(ctx context.Context, applicationID string) (*domain.PromotionApplication, error) {
	if applicationID == "" {
		return nil, apperrors.NewInvalidArgument("application_id required", nil)
	}
	application, err := s.applications.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("application", map[string]any{"application_id": applicationID})
		}
		return nil, apperrors.MapError(err)
	}
	return application, nil
}

func (s *PromotionService) getMember(ctx context.Context, memberID string) (*domain.Member, error) {
	if memberID == "" {
		return nil, apperrors.NewInvalidArgument("member_id required", nil)
	}
	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("member", map[string]any{"member_id": memberID})
		}
		return nil, apperrors.MapError(err)
	}
	return member, nil
}

func (s *PromotionService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
