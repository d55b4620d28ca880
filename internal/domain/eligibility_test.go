package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/membership-service/internal/domain"
)

func testPolicy() domain.EligibilityPolicy {
	return domain.EligibilityPolicy{
		CompensationAverageMin: decimal.NewFromInt(250_000),
		MemberReferralsMin:     3,
		FPReferralsMin:         1,
	}
}

func fullConditions() domain.EligibilityConditions {
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

func TestEvaluateEligibility_AllConditionsMet(t *testing.T) {
	// GIVEN: A candidate satisfying every gate
	// WHEN: Evaluating for both target roles
	// THEN: Eligible with no unmet conditions

	for _, target := range []domain.MemberRole{domain.RoleFPAide, domain.RoleManager} {
		result, err := domain.EvaluateEligibility(fullConditions(), target, testPolicy())
		require.NoError(t, err)
		assert.True(t, result.Eligible, "target=%s", target)
		assert.Empty(t, result.Unmet)
	}
}

func TestEvaluateEligibility_SingleUnmetConditionBlocks(t *testing.T) {
	// GIVEN: A manager candidate failing exactly one gate at a time
	// WHEN: Evaluating eligibility
	// THEN: Never eligible, and the failing condition is named

	cases := []struct {
		name   string
		mutate func(*domain.EligibilityConditions)
		unmet  string
	}{
		{"test", func(c *domain.EligibilityConditions) { c.TestPassed = false }, domain.ConditionTestPassed},
		{"lp meeting", func(c *domain.EligibilityConditions) { c.LPMeetingCompleted = false }, domain.ConditionLPMeetingCompleted},
		{"survey", func(c *domain.EligibilityConditions) { c.SurveyCompleted = false }, domain.ConditionSurveyCompleted},
		{"identity", func(c *domain.EligibilityConditions) { c.IdentityDocumentSubmitted = false }, domain.ConditionIdentityDocument},
		{"contract", func(c *domain.EligibilityConditions) { c.ContractAchieved = false }, domain.ConditionContractAchieved},
		{"compensation", func(c *domain.EligibilityConditions) {
			c.CompensationAverage = decimal.NewFromInt(249_999)
		}, domain.ConditionCompensationAverage},
		{"member referrals", func(c *domain.EligibilityConditions) { c.MemberReferrals = 2 }, domain.ConditionMemberReferrals},
		{"fp referrals", func(c *domain.EligibilityConditions) { c.FPReferrals = 0 }, domain.ConditionFPReferrals},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cond := fullConditions()
			tc.mutate(&cond)
			result, err := domain.EvaluateEligibility(cond, domain.RoleManager, testPolicy())
			require.NoError(t, err)
			assert.False(t, result.Eligible)
			assert.Equal(t, []string{tc.unmet}, result.Unmet)
		})
	}
}

func TestEvaluateEligibility_FPAideIgnoresManagerGates(t *testing.T) {
	// GIVEN: An FP-aide candidate with no referrals, no contract and zero compensation
	// WHEN: Evaluating for FP_AIDE
	// THEN: Only the base gates count

	cond := fullConditions()
	cond.ContractAchieved = false
	cond.CompensationAverage = decimal.Zero
	cond.MemberReferrals = 0
	cond.FPReferrals = 0

	result, err := domain.EvaluateEligibility(cond, domain.RoleFPAide, testPolicy())
	require.NoError(t, err)
	assert.True(t, result.Eligible)
}

func TestEvaluateEligibility_CompensationBoundary(t *testing.T) {
	// GIVEN: A compensation average exactly at the policy minimum
	// WHEN: Evaluating for MANAGER
	// THEN: The gate passes, the comparison is inclusive

	cond := fullConditions()
	cond.CompensationAverage = decimal.NewFromInt(250_000)

	result, err := domain.EvaluateEligibility(cond, domain.RoleManager, testPolicy())
	require.NoError(t, err)
	assert.True(t, result.Eligible)
}

func TestEvaluateEligibility_UnknownTargetRole(t *testing.T) {
	_, err := domain.EvaluateEligibility(fullConditions(), domain.RoleMember, testPolicy())
	assert.Error(t, err)
}
