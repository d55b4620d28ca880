package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/membership-service/internal/config"
	"github.com/spec-kit/membership-service/internal/domain"
	"github.com/spec-kit/membership-service/internal/repository"
	"github.com/spec-kit/membership-service/internal/service"
	apperrors "github.com/spec-kit/membership-service/pkg/util"
)

// =============================================================================
// TEST FAKES
// =============================================================================

type fakeMemberRepo struct {
	mu           sync.Mutex
	members      map[string]*domain.Member
	rangeChanges int
}

func newFakeMemberRepo() *fakeMemberRepo {
	return &fakeMemberRepo{members: map[string]*domain.Member{}}
}

func (f *fakeMemberRepo) add(member domain.Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := member
	f.members[member.ID] = &copied
}

func (f *fakeMemberRepo) GetByID(_ context.Context, id string) (*domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *member
	return &copied, nil
}

func (f *fakeMemberRepo) ListActiveManagers(_ context.Context) ([]domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Member
	for _, member := range f.members {
		if member.Role == domain.RoleManager && member.Status == domain.MemberStatusActive && member.CurrentRange != nil {
			result = append(result, *member)
		}
	}
	return result, nil
}

func (f *fakeMemberRepo) UpdateRange(_ context.Context, _ repository.DB, memberID string, oldRange, newRange int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[memberID]
	if !ok || member.CurrentRange == nil || *member.CurrentRange != oldRange {
		return pgx.ErrNoRows
	}
	member.CurrentRange = &newRange
	f.rangeChanges++
	return nil
}

func (f *fakeMemberRepo) UpdateRole(_ context.Context, _ repository.DB, memberID string, oldRole, newRole domain.MemberRole) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[memberID]
	if !ok || member.Role != oldRole {
		return pgx.ErrNoRows
	}
	member.Role = newRole
	return nil
}

func (f *fakeMemberRepo) SetInitialRange(_ context.Context, _ repository.DB, memberID string, rangeNumber int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[memberID]
	if !ok {
		return pgx.ErrNoRows
	}
	if member.CurrentRange == nil {
		member.CurrentRange = &rangeNumber
	}
	return nil
}

type fakeRangeRepo struct {
	ranges []domain.Range
	err    error
}

func (f *fakeRangeRepo) List(context.Context) ([]domain.Range, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ranges, nil
}

type fakeAssessmentRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.Assessment
	seq  int
}

func newFakeAssessmentRepo() *fakeAssessmentRepo {
	return &fakeAssessmentRepo{byID: map[string]*domain.Assessment{}}
}

func (f *fakeAssessmentRepo) Create(_ context.Context, assessment *domain.Assessment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.MemberID == assessment.MemberID &&
			existing.PeriodYear == assessment.PeriodYear &&
			existing.PeriodHalf == assessment.PeriodHalf {
			return repository.ErrDuplicateAssessment
		}
	}
	f.seq++
	assessment.ID = fmt.Sprintf("as-%d", f.seq)
	copied := *assessment
	f.byID[assessment.ID] = &copied
	return nil
}

func (f *fakeAssessmentRepo) GetByID(_ context.Context, id string) (*domain.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	assessment, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *assessment
	return &copied, nil
}

func (f *fakeAssessmentRepo) ListWithFilter(_ context.Context, filter repository.AssessmentFilter) ([]domain.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Assessment
	for _, assessment := range f.byID {
		if filter.MemberID != nil && assessment.MemberID != *filter.MemberID {
			continue
		}
		if filter.Year != nil && assessment.PeriodYear != *filter.Year {
			continue
		}
		if filter.Half != nil && assessment.PeriodHalf != *filter.Half {
			continue
		}
		result = append(result, *assessment)
	}
	return result, nil
}

func (f *fakeAssessmentRepo) SetStatus(_ context.Context, _ repository.DB, id string, from, to domain.AssessmentStatus, actor string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	assessment, ok := f.byID[id]
	if !ok || assessment.Status != from {
		return pgx.ErrNoRows
	}
	assessment.Status = to
	assessment.ConfirmedBy = &actor
	assessment.ConfirmedAt = &at
	return nil
}

func (f *fakeAssessmentRepo) ExpirePendingBefore(_ context.Context, year, half int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	cutoff := year*2 + half
	for _, assessment := range f.byID {
		if assessment.Status == domain.AssessmentStatusPending &&
			assessment.PeriodYear*2+assessment.PeriodHalf < cutoff {
			assessment.Status = domain.AssessmentStatusExpired
			count++
		}
	}
	return count, nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.RankHistory
	seq     int
}

func (f *fakeHistoryRepo) Create(_ context.Context, _ repository.DB, history *domain.RankHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	history.ID = fmt.Sprintf("rh-%d", f.seq)
	history.CreatedAt = time.Now()
	f.entries = append(f.entries, *history)
	return nil
}

func (f *fakeHistoryRepo) ListByMember(_ context.Context, memberID string, _, _ int) ([]domain.RankHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.RankHistory
	for _, entry := range f.entries {
		if entry.MemberID == memberID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type fakeSalesRepo struct {
	mu      sync.Mutex
	amounts map[string]decimal.Decimal
	failFor map[string]bool
}

func newFakeSalesRepo() *fakeSalesRepo {
	return &fakeSalesRepo{amounts: map[string]decimal.Decimal{}, failFor: map[string]bool{}}
}

func (f *fakeSalesRepo) TotalSales(_ context.Context, memberID string, _, _ time.Time) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[memberID] {
		return decimal.Zero, errors.New("sales store unavailable")
	}
	return f.amounts[memberID], nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithinTx(_ context.Context, fn func(db repository.DB) error) error {
	return fn(nil)
}

// =============================================================================
// FIXTURE
// =============================================================================

type assessmentFixture struct {
	service     *service.AssessmentService
	members     *fakeMemberRepo
	assessments *fakeAssessmentRepo
	history     *fakeHistoryRepo
	sales       *fakeSalesRepo
}

func amount(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func catalogRanges() []domain.Range {
	return []domain.Range{
		{Number: 1, PromotionThreshold: amount(0), MaintenanceThreshold: amount(1_200_000)},
		{Number: 2, PromotionThreshold: amount(1_500_000), MaintenanceThreshold: amount(1_500_000)},
		{Number: 3, PromotionThreshold: amount(2_500_000), MaintenanceThreshold: amount(2_200_000)},
	}
}

func manager(id string, rangeNumber int) domain.Member {
	return domain.Member{
		ID:           id,
		Name:         "Manager " + id,
		Email:        id + "@example.com",
		Role:         domain.RoleManager,
		CurrentRange: &rangeNumber,
		Status:       domain.MemberStatusActive,
	}
}

func fixedClock() func() time.Time {
	at := time.Date(2024, time.September, 15, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func newAssessmentFixture(strictHistory bool) *assessmentFixture {
	members := newFakeMemberRepo()
	assessments := newFakeAssessmentRepo()
	history := &fakeHistoryRepo{}
	sales := newFakeSalesRepo()

	cfg := config.AssessmentConfig{WorkerCount: 2, LockTTLSeconds: 60, StrictHistory: strictHistory}
	svc := service.NewAssessmentService(cfg, service.AssessmentDependencies{
		MemberRepo:     members,
		RangeRepo:      &fakeRangeRepo{ranges: catalogRanges()},
		AssessmentRepo: assessments,
		HistoryRepo:    history,
		SalesRepo:      sales,
		TxRunner:       fakeTxRunner{},
		Clock:          fixedClock(),
	})
	return &assessmentFixture{
		service:     svc,
		members:     members,
		assessments: assessments,
		history:     history,
		sales:       sales,
	}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, code, domainErr.Code)
}

// =============================================================================
// BATCH EXECUTION TESTS
// =============================================================================

func TestExecuteAssessment_BucketsOutcomes(t *testing.T) {
	// GIVEN: Three active managers with promote, maintain and demote sales
	// WHEN: Executing the batch for the current period
	// THEN: One pending assessment per manager, bucketed by outcome

	f := newAssessmentFixture(false)
	f.members.add(manager("m1", 1))
	f.members.add(manager("m2", 2))
	f.members.add(manager("m3", 2))
	f.sales.amounts["m1"] = amount(1_600_000)
	f.sales.amounts["m2"] = amount(2_000_000)
	f.sales.amounts["m3"] = amount(1_000_000)

	summary, err := f.service.ExecuteAssessment(context.Background(), service.ExecuteInput{ExecutedBy: "op-1"})
	require.NoError(t, err)

	assert.Equal(t, "2024H2", summary.Period.Key())
	assert.Equal(t, 3, summary.Assessed)
	assert.Equal(t, 1, summary.Promotions)
	assert.Equal(t, 1, summary.Maintains)
	assert.Equal(t, 1, summary.DemotionCandidates)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 0, summary.Errors)

	memberID := "m1"
	stored, err := f.assessments.ListWithFilter(context.Background(), repository.AssessmentFilter{MemberID: &memberID})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, domain.OutcomePromote, stored[0].Outcome)
	assert.Equal(t, domain.AssessmentStatusPending, stored[0].Status)
	assert.Equal(t, 1, stored[0].RangeAtExecution)
	assert.Equal(t, 2, stored[0].ProposedRange)

	// Execution never touches member ranges.
	m1, err := f.members.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, *m1.CurrentRange)
}

func TestExecuteAssessment_RerunSkipsAssessedMembers(t *testing.T) {
	// GIVEN: A completed batch for the period
	// WHEN: Executing the same batch again
	// THEN: Every member is skipped, nothing is overwritten

	f := newAssessmentFixture(false)
	f.members.add(manager("m1", 1))
	f.members.add(manager("m2", 2))
	f.sales.amounts["m1"] = amount(1_600_000)
	f.sales.amounts["m2"] = amount(2_000_000)

	_, err := f.service.ExecuteAssessment(context.Background(), service.ExecuteInput{ExecutedBy: "op-1"})
	require.NoError(t, err)

	summary, err := f.service.ExecuteAssessment(context.Background(), service.ExecuteInput{ExecutedBy: "op-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Assessed)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 0, summary.Errors)
}

func TestExecuteAssessment_PerMemberFailureDoesNotAbort(t *testing.T) {
	// GIVEN: One manager whose sales lookup fails
	// WHEN: Executing the batch
	// THEN: The failure is counted, remaining members still get assessed

	f := newAssessmentFixture(false)
	f.members.add(manager("m1", 1))
	f.members.add(manager("m2", 2))
	f.sales.amounts["m2"] = amount(2_000_000)
	f.sales.failFor["m1"] = true

	summary, err := f.service.ExecuteAssessment(context.Background(), service.ExecuteInput{ExecutedBy: "op-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Assessed)
}

func TestExecuteAssessment_ExpiresStalePendingProposals(t *testing.T) {
	// GIVEN: A pending assessment from an earlier period
	// WHEN: Executing the next batch
	// THEN: The stale proposal is expired before new ones are written

	f := newAssessmentFixture(false)
	f.members.add(manager("m1", 1))
	f.sales.amounts["m1"] = amount(1_300_000)

	stale := &domain.Assessment{
		MemberID:         "m1",
		PeriodYear:       2024,
		PeriodHalf:       1,
		PeriodSales:      amount(1_300_000),
		RangeAtExecution: 1,
		ProposedRange:    1,
		Outcome:          domain.OutcomeMaintain,
		Status:           domain.AssessmentStatusPending,
		ExecutedBy:       "op-1",
		ExecutedAt:       time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.assessments.Create(context.Background(), stale))

	summary, err := f.service.ExecuteAssessment(context.Background(), service.ExecuteInput{ExecutedBy: "op-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Expired)

	expired, err := f.assessments.GetByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssessmentStatusExpired, expired.Status)
}

func TestExecuteAssessment_RejectsBadInput(t *testing.T) {
	f := newAssessmentFixture(false)

	_, err := f.service.ExecuteAssessment(context.Background(), service.ExecuteInput{})
	requireCode(t, err, "INVALID_ARGUMENT")

	_, err = f.service.ExecuteAssessment(context.Background(), service.ExecuteInput{Year: 2024, Half: 3, ExecutedBy: "op-1"})
	requireCode(t, err, "INVALID_ARGUMENT")

	// A half without a year (or vice versa) must not resolve to year zero.
	_, err = f.service.ExecuteAssessment(context.Background(), service.ExecuteInput{Half: 1, ExecutedBy: "op-1"})
	requireCode(t, err, "INVALID_ARGUMENT")

	_, err = f.service.ExecuteAssessment(context.Background(), service.ExecuteInput{Year: 2024, ExecutedBy: "op-1"})
	requireCode(t, err, "INVALID_ARGUMENT")
}

// =============================================================================
// CONFIRMATION AND DEMOTION TESTS
// =============================================================================

func executePromoteAssessment(t *testing.T, f *assessmentFixture) string {
	t.Helper()
	f.members.add(manager("m1", 1))
	f.sales.amounts["m1"] = amount(1_600_000)
	_, err := f.service.ExecuteAssessment(context.Background(), service.ExecuteInput{ExecutedBy: "op-1"})
	require.NoError(t, err)

	memberID := "m1"
	stored, err := f.assessments.ListWithFilter(context.Background(), repository.AssessmentFilter{MemberID: &memberID})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	return stored[0].ID
}

func executeDemoteCandidate(t *testing.T, f *assessmentFixture) string {
	t.Helper()
	f.members.add(manager("m2", 2))
	f.sales.amounts["m2"] = amount(1_000_000)
	_, err := f.service.ExecuteAssessment(context.Background(), service.ExecuteInput{ExecutedBy: "op-1"})
	require.NoError(t, err)

	memberID := "m2"
	stored, err := f.assessments.ListWithFilter(context.Background(), repository.AssessmentFilter{MemberID: &memberID})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	return stored[0].ID
}

func TestConfirmAssessment_AppliesPromotion(t *testing.T) {
	// GIVEN: A pending PROMOTE assessment for a range 1 manager
	// WHEN: Confirming with apply_range_change
	// THEN: The member moves to range 2 and an audit entry is written

	f := newAssessmentFixture(false)
	id := executePromoteAssessment(t, f)

	confirmed, err := f.service.ConfirmAssessment(context.Background(), id, "op-2", true)
	require.NoError(t, err)
	assert.Equal(t, domain.AssessmentStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedBy)
	assert.Equal(t, "op-2", *confirmed.ConfirmedBy)

	member, err := f.members.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, *member.CurrentRange)

	entries, err := f.history.ListByMember(context.Background(), "m1", 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.RankChangePromotion, entries[0].Reason)
	assert.Equal(t, 1, entries[0].OldRange)
	assert.Equal(t, 2, entries[0].NewRange)
}

func TestConfirmAssessment_StrictHistoryMode(t *testing.T) {
	// GIVEN: Strict history configuration
	// WHEN: Confirming a PROMOTE with apply_range_change
	// THEN: The audit entry is written inside the transaction path too

	f := newAssessmentFixture(true)
	id := executePromoteAssessment(t, f)

	_, err := f.service.ConfirmAssessment(context.Background(), id, "op-2", true)
	require.NoError(t, err)

	entries, err := f.history.ListByMember(context.Background(), "m1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestConfirmAssessment_WithoutApplyLeavesRange(t *testing.T) {
	// GIVEN: A pending PROMOTE assessment
	// WHEN: Confirming without applying the range change
	// THEN: Status flips, the member's range stays put

	f := newAssessmentFixture(false)
	id := executePromoteAssessment(t, f)

	confirmed, err := f.service.ConfirmAssessment(context.Background(), id, "op-2", false)
	require.NoError(t, err)
	assert.Equal(t, domain.AssessmentStatusConfirmed, confirmed.Status)

	member, err := f.members.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, *member.CurrentRange)
	assert.Equal(t, 0, f.members.rangeChanges)
}

func TestConfirmAssessment_NeverAppliesDemotion(t *testing.T) {
	// GIVEN: A pending DEMOTE_CANDIDATE assessment
	// WHEN: Confirming with apply_range_change set
	// THEN: The proposal is acknowledged but the range does not move

	f := newAssessmentFixture(false)
	id := executeDemoteCandidate(t, f)

	confirmed, err := f.service.ConfirmAssessment(context.Background(), id, "op-2", true)
	require.NoError(t, err)
	assert.Equal(t, domain.AssessmentStatusConfirmed, confirmed.Status)

	member, err := f.members.GetByID(context.Background(), "m2")
	require.NoError(t, err)
	assert.Equal(t, 2, *member.CurrentRange)
	assert.Equal(t, 0, f.members.rangeChanges)
}

func TestConfirmAssessment_RejectsNonPending(t *testing.T) {
	// GIVEN: An already confirmed assessment
	// WHEN: Confirming it again
	// THEN: The call fails with an invalid state error

	f := newAssessmentFixture(false)
	id := executePromoteAssessment(t, f)

	_, err := f.service.ConfirmAssessment(context.Background(), id, "op-2", true)
	require.NoError(t, err)

	_, err = f.service.ConfirmAssessment(context.Background(), id, "op-2", true)
	requireCode(t, err, "INVALID_STATE")
	assert.Equal(t, 1, f.members.rangeChanges)
}

func TestConfirmAssessment_UnknownID(t *testing.T) {
	f := newAssessmentFixture(false)
	_, err := f.service.ConfirmAssessment(context.Background(), "missing", "op-2", true)
	requireCode(t, err, "NOT_FOUND")
}

func TestDemoteManager_AppliesOnce(t *testing.T) {
	// GIVEN: A pending DEMOTE_CANDIDATE assessment for a range 2 manager
	// WHEN: Demoting, then demoting again
	// THEN: The range drops to 1 exactly once, the second call fails

	f := newAssessmentFixture(false)
	id := executeDemoteCandidate(t, f)

	demoted, err := f.service.DemoteManager(context.Background(), id, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AssessmentStatusDemoted, demoted.Status)

	member, err := f.members.GetByID(context.Background(), "m2")
	require.NoError(t, err)
	assert.Equal(t, 1, *member.CurrentRange)

	entries, err := f.history.ListByMember(context.Background(), "m2", 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.RankChangeDemotion, entries[0].Reason)

	_, err = f.service.DemoteManager(context.Background(), id, "admin-1")
	requireCode(t, err, "INVALID_STATE")
	assert.Equal(t, 1, f.members.rangeChanges)
}

func TestDemoteManager_AppliesAfterConfirmation(t *testing.T) {
	// GIVEN: A DEMOTE_CANDIDATE confirmed with apply_range_change set
	// WHEN: Demoting through the admin path afterwards
	// THEN: Confirmation left the range at 2, demotion lowers it to 1 once

	f := newAssessmentFixture(false)
	id := executeDemoteCandidate(t, f)

	confirmed, err := f.service.ConfirmAssessment(context.Background(), id, "op-2", true)
	require.NoError(t, err)
	assert.Equal(t, domain.AssessmentStatusConfirmed, confirmed.Status)

	member, err := f.members.GetByID(context.Background(), "m2")
	require.NoError(t, err)
	assert.Equal(t, 2, *member.CurrentRange)

	demoted, err := f.service.DemoteManager(context.Background(), id, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AssessmentStatusDemoted, demoted.Status)

	member, err = f.members.GetByID(context.Background(), "m2")
	require.NoError(t, err)
	assert.Equal(t, 1, *member.CurrentRange)
	assert.Equal(t, 1, f.members.rangeChanges)

	entries, err := f.history.ListByMember(context.Background(), "m2", 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.RankChangeDemotion, entries[0].Reason)

	_, err = f.service.DemoteManager(context.Background(), id, "admin-1")
	requireCode(t, err, "INVALID_STATE")
	assert.Equal(t, 1, f.members.rangeChanges)
}

func TestDemoteManager_RejectsNonCandidate(t *testing.T) {
	// GIVEN: A pending PROMOTE assessment
	// WHEN: Demoting through it
	// THEN: The call fails, demotion only applies to demotion candidates

	f := newAssessmentFixture(false)
	id := executePromoteAssessment(t, f)

	_, err := f.service.DemoteManager(context.Background(), id, "admin-1")
	requireCode(t, err, "INVALID_STATE")
	assert.Equal(t, 0, f.members.rangeChanges)
}
