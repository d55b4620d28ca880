package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/membership-service/internal/config"
	"github.com/spec-kit/membership-service/internal/domain"
	"github.com/spec-kit/membership-service/internal/events"
	"github.com/spec-kit/membership-service/internal/observability"
	"github.com/spec-kit/membership-service/internal/repository"
	apperrors "github.com/spec-kit/membership-service/pkg/util"
)

// RunLocker serializes batch executions per period key.
type RunLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (noopLocker) Release(context.Context, string) error                        { return nil }

// AssessmentService runs the half-yearly rank assessment batch and the
// confirmation/demotion workflow that applies its proposals.
type AssessmentService struct {
	members     repository.MemberRepository
	ranges      repository.RangeRepository
	assessments repository.AssessmentRepository
	history     repository.RankHistoryRepository
	sales       repository.SalesRepository
	tx          repository.TxRunner
	lock        RunLocker
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
	cfg         config.AssessmentConfig
	now         func() time.Time
}

// AssessmentDependencies bundles collaborators for the service.
type AssessmentDependencies struct {
	MemberRepo     repository.MemberRepository
	RangeRepo      repository.RangeRepository
	AssessmentRepo repository.AssessmentRepository
	HistoryRepo    repository.RankHistoryRepository
	SalesRepo      repository.SalesRepository
	TxRunner       repository.TxRunner
	RunLock        RunLocker
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	Clock          func() time.Time
}

// NewAssessmentService constructs the service.
func NewAssessmentService(cfg config.AssessmentConfig, deps AssessmentDependencies) *AssessmentService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	lock := deps.RunLock
	if lock == nil {
		lock = noopLocker{}
	}
	return &AssessmentService{
		members:     deps.MemberRepo,
		ranges:      deps.RangeRepo,
		assessments: deps.AssessmentRepo,
		history:     deps.HistoryRepo,
		sales:       deps.SalesRepo,
		tx:          deps.TxRunner,
		lock:        lock,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		metrics:     deps.Metrics,
		cfg:         cfg,
		now:         clock,
	}
}

// ExecuteInput selects the assessment period. Leaving Year and Half zero
// assesses the period containing the service clock's current time.
type ExecuteInput struct {
	Year       int
	Half       int
	ExecutedBy string
}

// ExecutionSummary reports per-bucket counts for one batch run.
type ExecutionSummary struct {
	Period             domain.Period
	Assessed           int
	Promotions         int
	Maintains          int
	DemotionCandidates int
	Skipped            int
	Errors             int
	Expired            int64
}

// ExecuteAssessment evaluates every active manager against the range
// catalog for the period and persists one PENDING assessment per member.
// Re-running for an already-assessed member/period is a benign skip, so
// the whole operation is idempotent. Per-member failures are counted,
// never fatal to the batch.
func (s *AssessmentService) ExecuteAssessment(ctx context.Context, input ExecuteInput) (*ExecutionSummary, error) {
	if input.ExecutedBy == "" {
		return nil, apperrors.NewInvalidArgument("executed_by required", nil)
	}

	period, err := s.resolvePeriod(input.Year, input.Half)
	if err != nil {
		return nil, err
	}

	lockKey := "assessment:run:" + period.Key()
	acquired, err := s.lock.Acquire(ctx, lockKey, s.cfg.LockTTL())
	if err != nil {
		// The unique constraint still guards idempotency; proceed without the lock.
		s.logger.Warn("batch lock unavailable", zap.Error(err))
	} else if !acquired {
		return nil, apperrors.NewConflict("assessment batch already running for period",
			map[string]any{"period": period.Key()})
	} else {
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), lockKey); err != nil {
				s.logger.Warn("release batch lock", zap.Error(err))
			}
		}()
	}

	summary := &ExecutionSummary{Period: period}

	expired, err := s.assessments.ExpirePendingBefore(ctx, period.Year, period.Half)
	if err != nil {
		s.logger.Warn("expire stale assessments", zap.Error(err))
	} else {
		summary.Expired = expired
	}

	catalogRanges, err := s.ranges.List(ctx)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("range catalog unavailable", err)
	}
	catalog, err := domain.NewCatalog(catalogRanges)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("range catalog invalid", err)
	}

	managers, err := s.members.ListActiveManagers(ctx)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("member listing unavailable", err)
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	workers := s.cfg.WorkerCount
	if workers <= 0 {
		workers = 8
	}
	group.SetLimit(workers)

	for _, manager := range managers {
		manager := manager
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			result := s.assessMember(groupCtx, catalog, manager, period, input.ExecutedBy)
			mu.Lock()
			defer mu.Unlock()
			switch result {
			case domain.OutcomePromote:
				summary.Assessed++
				summary.Promotions++
			case domain.OutcomeMaintain:
				summary.Assessed++
				summary.Maintains++
			case domain.OutcomeDemoteCandidate:
				summary.Assessed++
				summary.DemotionCandidates++
			case memberSkipped:
				summary.Skipped++
			default:
				summary.Errors++
			}
			return nil
		})
	}

	waitErr := group.Wait()

	s.metrics.RecordBatchOutcome(period.Key(), "promotions", summary.Promotions)
	s.metrics.RecordBatchOutcome(period.Key(), "maintains", summary.Maintains)
	s.metrics.RecordBatchOutcome(period.Key(), "demotion_candidates", summary.DemotionCandidates)
	s.metrics.RecordBatchOutcome(period.Key(), "errors", summary.Errors)

	s.logger.Info("assessment batch finished",
		zap.String("period", period.Key()),
		zap.Int("assessed", summary.Assessed),
		zap.Int("promotions", summary.Promotions),
		zap.Int("maintains", summary.Maintains),
		zap.Int("demotion_candidates", summary.DemotionCandidates),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors),
		zap.Int64("expired", summary.Expired))

	s.publishEvent(ctx, events.Event{
		Type:       events.EventAssessmentExecuted,
		EntityID:   period.Key(),
		OperatorID: input.ExecutedBy,
		Payload: events.AssessmentExecutedPayload{
			PeriodKey:          period.Key(),
			Promotions:         summary.Promotions,
			Maintains:          summary.Maintains,
			DemotionCandidates: summary.DemotionCandidates,
			Skipped:            summary.Skipped,
			Errors:             summary.Errors,
		},
	})

	if waitErr != nil {
		// Cancellation mid-batch: per-member writes already committed stay.
		return summary, apperrors.MapError(waitErr)
	}
	return summary, nil
}

// memberSkipped and memberFailed are internal per-member result markers
// alongside the three real outcomes.
const (
	memberSkipped domain.AssessmentOutcome = "SKIPPED"
	memberFailed  domain.AssessmentOutcome = "FAILED"
)

func (s *AssessmentService) assessMember(ctx context.Context, catalog *domain.Catalog, member domain.Member, period domain.Period, executedBy string) domain.AssessmentOutcome {
	if member.CurrentRange == nil {
		s.logger.Warn("manager without range skipped", zap.String("member_id", member.ID))
		return memberFailed
	}

	sales, err := s.sales.TotalSales(ctx, member.ID, period.Start, period.End)
	if err != nil {
		s.logger.Error("sales lookup failed",
			zap.String("member_id", member.ID),
			zap.String("period", period.Key()),
			zap.Error(err))
		return memberFailed
	}

	proposal, err := catalog.Propose(*member.CurrentRange, sales)
	if err != nil {
		s.logger.Error("proposal failed",
			zap.String("member_id", member.ID),
			zap.Error(err))
		return memberFailed
	}

	assessment := &domain.Assessment{
		MemberID:         member.ID,
		PeriodYear:       period.Year,
		PeriodHalf:       period.Half,
		PeriodSales:      sales,
		RangeAtExecution: *member.CurrentRange,
		ProposedRange:    proposal.TargetRange,
		Outcome:          proposal.Outcome,
		Status:           domain.AssessmentStatusPending,
		ExecutedBy:       executedBy,
		ExecutedAt:       s.now(),
	}
	if err := s.assessments.Create(ctx, assessment); err != nil {
		if errors.Is(err, repository.ErrDuplicateAssessment) {
			return memberSkipped
		}
		s.logger.Error("persist assessment failed",
			zap.String("member_id", member.ID),
			zap.Error(err))
		return memberFailed
	}
	return proposal.Outcome
}

// ConfirmAssessment applies or acknowledges a pending proposal. Only a
// PROMOTE outcome with applyRangeChange=true mutates the member's range;
// DEMOTE_CANDIDATE outcomes are never applied here, demotion has its own
// authorized path.
func (s *AssessmentService) ConfirmAssessment(ctx context.Context, assessmentID, confirmedBy string, applyRangeChange bool) (*domain.Assessment, error) {
	assessment, err := s.getAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if assessment.Status != domain.AssessmentStatusPending {
		return nil, apperrors.NewInvalidState("assessment is not pending",
			map[string]any{"assessment_id": assessmentID, "status": assessment.Status})
	}

	now := s.now()
	applied := applyRangeChange && assessment.Outcome == domain.OutcomePromote

	if applied {
		entry := &domain.RankHistory{
			MemberID:     assessment.MemberID,
			OldRange:     assessment.RangeAtExecution,
			NewRange:     assessment.ProposedRange,
			Reason:       domain.RankChangePromotion,
			ChangedBy:    confirmedBy,
			AssessmentID: &assessment.ID,
		}
		err = s.tx.WithinTx(ctx, func(db repository.DB) error {
			if err := s.members.UpdateRange(ctx, db, assessment.MemberID, assessment.RangeAtExecution, assessment.ProposedRange); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return apperrors.NewConflict("member range changed since execution",
						map[string]any{"member_id": assessment.MemberID})
				}
				return err
			}
			if err := s.assessments.SetStatus(ctx, db, assessment.ID,
				domain.AssessmentStatusPending, domain.AssessmentStatusConfirmed, confirmedBy, now); err != nil {
				return err
			}
			if s.cfg.StrictHistory {
				return s.history.Create(ctx, db, entry)
			}
			return nil
		})
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if !s.cfg.StrictHistory {
			s.writeHistoryBestEffort(ctx, entry)
		}
	} else {
		if err := s.assessments.SetStatus(ctx, nil, assessment.ID,
			domain.AssessmentStatusPending, domain.AssessmentStatusConfirmed, confirmedBy, now); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewInvalidState("assessment is not pending",
					map[string]any{"assessment_id": assessmentID})
			}
			return nil, apperrors.MapError(err)
		}
	}

	assessment.Status = domain.AssessmentStatusConfirmed
	assessment.ConfirmedBy = &confirmedBy
	assessment.ConfirmedAt = &now

	s.publishEvent(ctx, events.Event{
		Type:       events.EventAssessmentConfirmed,
		EntityID:   assessment.ID,
		OperatorID: confirmedBy,
		Payload: events.AssessmentConfirmedPayload{
			MemberID:     assessment.MemberID,
			Outcome:      assessment.Outcome,
			RangeApplied: applied,
			OldRange:     assessment.RangeAtExecution,
			NewRange:     assessment.ProposedRange,
		},
	})
	return assessment, nil
}

// DemoteManager applies a DEMOTE_CANDIDATE proposal. It is the only
// operation that lowers a member's range. A candidate stays demotable
// after an assessor confirmed it; a demoted or expired one does not, so
// a second invocation fails.
func (s *AssessmentService) DemoteManager(ctx context.Context, assessmentID, executedBy string) (*domain.Assessment, error) {
	assessment, err := s.getAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if assessment.Outcome != domain.OutcomeDemoteCandidate {
		return nil, apperrors.NewInvalidState("assessment is not a demotion candidate",
			map[string]any{"assessment_id": assessmentID, "outcome": assessment.Outcome})
	}
	if assessment.Status != domain.AssessmentStatusPending && assessment.Status != domain.AssessmentStatusConfirmed {
		return nil, apperrors.NewInvalidState("assessment is not demotable",
			map[string]any{"assessment_id": assessmentID, "status": assessment.Status})
	}

	now := s.now()
	entry := &domain.RankHistory{
		MemberID:     assessment.MemberID,
		OldRange:     assessment.RangeAtExecution,
		NewRange:     assessment.ProposedRange,
		Reason:       domain.RankChangeDemotion,
		ChangedBy:    executedBy,
		AssessmentID: &assessment.ID,
	}
	err = s.tx.WithinTx(ctx, func(db repository.DB) error {
		if err := s.members.UpdateRange(ctx, db, assessment.MemberID, assessment.RangeAtExecution, assessment.ProposedRange); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewConflict("member range changed since execution",
					map[string]any{"member_id": assessment.MemberID})
			}
			return err
		}
		if err := s.assessments.SetStatus(ctx, db, assessment.ID,
			assessment.Status, domain.AssessmentStatusDemoted, executedBy, now); err != nil {
			return err
		}
		if s.cfg.StrictHistory {
			return s.history.Create(ctx, db, entry)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !s.cfg.StrictHistory {
		s.writeHistoryBestEffort(ctx, entry)
	}

	assessment.Status = domain.AssessmentStatusDemoted
	assessment.ConfirmedBy = &executedBy
	assessment.ConfirmedAt = &now

	s.publishEvent(ctx, events.Event{
		Type:       events.EventManagerDemoted,
		EntityID:   assessment.ID,
		OperatorID: executedBy,
		Payload: events.ManagerDemotedPayload{
			MemberID: assessment.MemberID,
			OldRange: assessment.RangeAtExecution,
			NewRange: assessment.ProposedRange,
		},
	})
	return assessment, nil
}

// GetAssessment fetches a single record.
func (s *AssessmentService) GetAssessment(ctx context.Context, assessmentID string) (*domain.Assessment, error) {
	return s.getAssessment(ctx, assessmentID)
}

// ListAssessments returns records matching the filter.
func (s *AssessmentService) ListAssessments(ctx context.Context, filter repository.AssessmentFilter) ([]domain.Assessment, error) {
	result, err := s.assessments.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return result, nil
}

// ListRankHistory returns range changes for a member, newest first.
func (s *AssessmentService) ListRankHistory(ctx context.Context, memberID string, limit, offset int) ([]domain.RankHistory, error) {
	result, err := s.history.ListByMember(ctx, memberID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return result, nil
}

// ListRanges returns the validated catalog ranges.
func (s *AssessmentService) ListRanges(ctx context.Context) ([]domain.Range, error) {
	ranges, err := s.ranges.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	catalog, err := domain.NewCatalog(ranges)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("range catalog invalid", err)
	}
	return catalog.Ranges(), nil
}

func (s *AssessmentService) resolvePeriod(year, half int) (domain.Period, error) {
	if year == 0 && half == 0 {
		return domain.CurrentPeriod(s.now()), nil
	}
	if year == 0 || half == 0 {
		return domain.Period{}, apperrors.NewInvalidArgument("year and half must be provided together",
			map[string]any{"year": year, "half": half})
	}
	period, err := domain.PeriodFor(year, half)
	if err != nil {
		return domain.Period{}, apperrors.NewInvalidArgument(err.Error(),
			map[string]any{"year": year, "half": half})
	}
	return period, nil
}

func (s *AssessmentService) getAssessment(ctx context.Context, assessmentID string) (*domain.Assessment, error) {
	if assessmentID == "" {
		return nil, apperrors.NewInvalidArgument("assessment_id required", nil)
	}
	assessment, err := s.assessments.GetByID(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("assessment", map[string]any{"assessment_id": assessmentID})
		}
		return nil, apperrors.MapError(err)
	}
	return assessment, nil
}

// writeHistoryBestEffort records audit history outside the rank-change
// transaction; a failure is logged and swallowed, state stays authoritative.
func (s *AssessmentService) writeHistoryBestEffort(ctx context.Context, entry *domain.RankHistory) {
	if err := s.history.Create(context.WithoutCancel(ctx), nil, entry); err != nil {
		s.logger.Error("rank history write failed",
			zap.String("member_id", entry.MemberID),
			zap.Error(err))
	}
}

func (s *AssessmentService) publishEvent(ctx context.Context, event events.Event) {
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
