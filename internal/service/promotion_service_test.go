package service_test

import (
	"context"
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
)

// =============================================================================
// TEST FAKES
// =============================================================================

type fakeApplicationRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.PromotionApplication
	seq  int
}

func newFakeApplicationRepo() *fakeApplicationRepo {
	return &fakeApplicationRepo{byID: map[string]*domain.PromotionApplication{}}
}

func (f *fakeApplicationRepo) Create(_ context.Context, application *domain.PromotionApplication) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		inFlight := existing.Status == domain.ApplicationStatusPending || existing.Status == domain.ApplicationStatusApproved
		if inFlight && existing.MemberID == application.MemberID && existing.TargetRole == application.TargetRole {
			return repository.ErrDuplicateApplication
		}
	}
	f.seq++
	application.ID = fmt.Sprintf("app-%d", f.seq)
	application.AppliedAt = time.Now()
	copied := *application
	f.byID[application.ID] = &copied
	return nil
}

func (f *fakeApplicationRepo) GetByID(_ context.Context, id string) (*domain.PromotionApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	application, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *application
	return &copied, nil
}

func (f *fakeApplicationRepo) ListByMember(_ context.Context, memberID string) ([]domain.PromotionApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.PromotionApplication
	for _, application := range f.byID {
		if application.MemberID == memberID {
			result = append(result, *application)
		}
	}
	return result, nil
}

func (f *fakeApplicationRepo) Transition(_ context.Context, _ repository.DB, application *domain.PromotionApplication, from domain.ApplicationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.byID[application.ID]
	if !ok || stored.Status != from {
		return pgx.ErrNoRows
	}
	copied := *application
	f.byID[application.ID] = &copied
	return nil
}

type fakeQualificationRepo struct {
	conditions map[string]domain.EligibilityConditions
}

func (f *fakeQualificationRepo) ConditionsFor(_ context.Context, memberID string, _ time.Time) (domain.EligibilityConditions, error) {
	return f.conditions[memberID], nil
}

// =============================================================================
// FIXTURE
// =============================================================================

type promotionFixture struct {
	service        *service.PromotionService
	members        *fakeMemberRepo
	applications   *fakeApplicationRepo
	qualifications *fakeQualificationRepo
}

func eligibleConditions() domain.EligibilityConditions {
	return domain.EligibilityConditions{
		TestPassed:                true,
		LPMeetingCompleted:        true,
		SurveyCompleted:           true,
		ContractAchieved:          true,
		IdentityDocumentSubmitted: true,
		CompensationAverage:       decimal.NewFromInt(300_000),
		MemberReferrals:           3,
		FPReferrals:               1,
	}
}

func activeMember(id string, role domain.MemberRole) domain.Member {
	return domain.Member{
		ID:     id,
		Name:   "Member " + id,
		Email:  id + "@example.com",
		Role:   role,
		Status: domain.MemberStatusActive,
	}
}

func newPromotionFixture() *promotionFixture {
	members := newFakeMemberRepo()
	applications := newFakeApplicationRepo()
	qualifications := &fakeQualificationRepo{conditions: map[string]domain.EligibilityConditions{}}

	cfg := config.EligibilityConfig{
		CompensationAverageMin: decimal.NewFromInt(250_000),
		MemberReferralsMin:     3,
		FPReferralsMin:         1,
	}
	svc := service.NewPromotionService(cfg, service.PromotionDependencies{
		ApplicationRepo:   applications,
		MemberRepo:        members,
		QualificationRepo: qualifications,
		RangeRepo:         &fakeRangeRepo{ranges: catalogRanges()},
		TxRunner:          fakeTxRunner{},
		Clock:             fixedClock(),
	})
	return &promotionFixture{
		service:        svc,
		members:        members,
		applications:   applications,
		qualifications: qualifications,
	}
}

// =============================================================================
// SUBMISSION TESTS
// =============================================================================

func TestSubmitApplication_NextRoleOnly(t *testing.T) {
	// GIVEN: An FP-aide member
	// WHEN: Applying for MANAGER vs skipping back to FP_AIDE
	// THEN: Only the next role up is accepted

	f := newPromotionFixture()
	f.members.add(activeMember("m1", domain.RoleFPAide))

	application, err := f.service.SubmitApplication(context.Background(), "m1", domain.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, domain.ApplicationStatusPending, application.Status)

	f.members.add(activeMember("m2", domain.RoleMember))
	_, err = f.service.SubmitApplication(context.Background(), "m2", domain.RoleManager)
	requireCode(t, err, "INVALID_STATE")
}

func TestSubmitApplication_RejectsInactiveMember(t *testing.T) {
	f := newPromotionFixture()
	member := activeMember("m1", domain.RoleMember)
	member.Status = domain.MemberStatusSuspended
	f.members.add(member)

	_, err := f.service.SubmitApplication(context.Background(), "m1", domain.RoleFPAide)
	requireCode(t, err, "INVALID_STATE")
}

func TestSubmitApplication_OneInFlightPerTarget(t *testing.T) {
	// GIVEN: A member with a pending application
	// WHEN: Submitting for the same target role again
	// THEN: The duplicate is refused as a conflict

	f := newPromotionFixture()
	f.members.add(activeMember("m1", domain.RoleFPAide))

	_, err := f.service.SubmitApplication(context.Background(), "m1", domain.RoleManager)
	require.NoError(t, err)

	_, err = f.service.SubmitApplication(context.Background(), "m1", domain.RoleManager)
	requireCode(t, err, "CONFLICT")
}

// =============================================================================
// REVIEW AND COMPLETION TESTS
// =============================================================================

func TestApproveApplication_BlockedByUnmetGate(t *testing.T) {
	// GIVEN: A manager application missing the contract condition
	// WHEN: Approving
	// THEN: Refused, partial satisfaction never approves

	f := newPromotionFixture()
	f.members.add(activeMember("m1", domain.RoleFPAide))
	cond := eligibleConditions()
	cond.ContractAchieved = false
	f.qualifications.conditions["m1"] = cond

	application, err := f.service.SubmitApplication(context.Background(), "m1", domain.RoleManager)
	require.NoError(t, err)

	_, err = f.service.ApproveApplication(context.Background(), application.ID, "op-1")
	requireCode(t, err, "INVALID_STATE")

	result, err := f.service.EvaluateEligibility(context.Background(), application.ID)
	require.NoError(t, err)
	assert.False(t, result.Eligible)
	assert.Equal(t, []string{domain.ConditionContractAchieved}, result.Unmet)
}

func TestApproveAndComplete_PromotesToManager(t *testing.T) {
	// GIVEN: An eligible FP-aide with an approved manager application
	// WHEN: Completing the application
	// THEN: The role changes and the member enters the lowest range

	f := newPromotionFixture()
	f.members.add(activeMember("m1", domain.RoleFPAide))
	f.qualifications.conditions["m1"] = eligibleConditions()

	application, err := f.service.SubmitApplication(context.Background(), "m1", domain.RoleManager)
	require.NoError(t, err)

	approved, err := f.service.ApproveApplication(context.Background(), application.ID, "op-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ApplicationStatusApproved, approved.Status)

	completed, err := f.service.CompleteApplication(context.Background(), application.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ApplicationStatusCompleted, completed.Status)

	member, err := f.members.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleManager, member.Role)
	require.NotNil(t, member.CurrentRange)
	assert.Equal(t, 1, *member.CurrentRange)
}

func TestCompleteApplication_FPAideKeepsNoRange(t *testing.T) {
	// GIVEN: An approved FP_AIDE application
	// WHEN: Completing it
	// THEN: The role changes, no range is assigned outside the manager tier

	f := newPromotionFixture()
	f.members.add(activeMember("m1", domain.RoleMember))
	f.qualifications.conditions["m1"] = eligibleConditions()

	application, err := f.service.SubmitApplication(context.Background(), "m1", domain.RoleFPAide)
	require.NoError(t, err)
	_, err = f.service.ApproveApplication(context.Background(), application.ID, "op-1")
	require.NoError(t, err)

	_, err = f.service.CompleteApplication(context.Background(), application.ID, "admin-1")
	require.NoError(t, err)

	member, err := f.members.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleFPAide, member.Role)
	assert.Nil(t, member.CurrentRange)
}

func TestCompleteApplication_RequiresApproval(t *testing.T) {
	f := newPromotionFixture()
	f.members.add(activeMember("m1", domain.RoleFPAide))

	application, err := f.service.SubmitApplication(context.Background(), "m1", domain.RoleManager)
	require.NoError(t, err)

	_, err = f.service.CompleteApplication(context.Background(), application.ID, "admin-1")
	requireCode(t, err, "INVALID_STATE")
}

func TestRejectApplication_RequiresReason(t *testing.T) {
	// GIVEN: A pending application
	// WHEN: Rejecting with and without a reason
	// THEN: A reason is mandatory and the terminal state sticks

	f := newPromotionFixture()
	f.members.add(activeMember("m1", domain.RoleFPAide))

	application, err := f.service.SubmitApplication(context.Background(), "m1", domain.RoleManager)
	require.NoError(t, err)

	_, err = f.service.RejectApplication(context.Background(), application.ID, "op-1", "  ")
	requireCode(t, err, "INVALID_ARGUMENT")

	rejected, err := f.service.RejectApplication(context.Background(), application.ID, "op-1", "incomplete documents")
	require.NoError(t, err)
	assert.Equal(t, domain.ApplicationStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "incomplete documents", *rejected.RejectionReason)

	_, err = f.service.ApproveApplication(context.Background(), application.ID, "op-1")
	requireCode(t, err, "INVALID_STATE")
}
