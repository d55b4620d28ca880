package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Unmet condition identifiers returned to callers for display.
const (
	ConditionTestPassed          = "test_passed"
	ConditionLPMeetingCompleted  = "lp_meeting_completed"
	ConditionSurveyCompleted     = "survey_completed"
	ConditionIdentityDocument    = "identity_document"
	ConditionContractAchieved    = "contract_achieved"
	ConditionCompensationAverage = "compensation_average"
	ConditionMemberReferrals     = "member_referrals"
	ConditionFPReferrals         = "fp_referrals"
)

// EligibilityConditions holds the gate values collected for one member.
type EligibilityConditions struct {
	TestPassed                bool
	LPMeetingCompleted        bool
	SurveyCompleted           bool
	ContractAchieved          bool
	IdentityDocumentSubmitted bool
	CompensationAverage       decimal.Decimal
	MemberReferrals           int
	FPReferrals               int
}

// EligibilityPolicy carries the numeric thresholds for the manager gate.
type EligibilityPolicy struct {
	CompensationAverageMin decimal.Decimal
	MemberReferralsMin     int
	FPReferralsMin         int
}

// EligibilityResult reports the gate decision plus every unmet condition.
// Partial satisfaction never yields eligibility.
type EligibilityResult struct {
	Eligible bool
	Unmet    []string
}

// EvaluateEligibility applies the multi-condition gate for the target
// role. FP_AIDE requires the test, LP meeting, survey and a submitted
// identity document; MANAGER additionally requires the compensation
// average, both referral counts and an achieved contract. Pure function,
// no side effects.
func EvaluateEligibility(cond EligibilityConditions, target MemberRole, policy EligibilityPolicy) (EligibilityResult, error) {
	var unmet []string

	switch target {
	case RoleFPAide, RoleManager:
	default:
		return EligibilityResult{}, fmt.Errorf("no eligibility gate for target role %q", target)
	}

	if !cond.TestPassed {
		unmet = append(unmet, ConditionTestPassed)
	}
	if !cond.LPMeetingCompleted {
		unmet = append(unmet, ConditionLPMeetingCompleted)
	}
	if !cond.SurveyCompleted {
		unmet = append(unmet, ConditionSurveyCompleted)
	}
	if !cond.IdentityDocumentSubmitted {
		unmet = append(unmet, ConditionIdentityDocument)
	}

	if target == RoleManager {
		if cond.CompensationAverage.LessThan(policy.CompensationAverageMin) {
			unmet = append(unmet, ConditionCompensationAverage)
		}
		if cond.MemberReferrals < policy.MemberReferralsMin {
			unmet = append(unmet, ConditionMemberReferrals)
		}
		if cond.FPReferrals < policy.FPReferralsMin {
			unmet = append(unmet, ConditionFPReferrals)
		}
		if !cond.ContractAchieved {
			unmet = append(unmet, ConditionContractAchieved)
		}
	}

	return EligibilityResult{Eligible: len(unmet) == 0, Unmet: unmet}, nil
}
