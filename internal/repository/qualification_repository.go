package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/spec-kit/membership-service/internal/domain"
)

// QualificationRepository collects the eligibility gate values for a
// member: qualification flags, referral counts and the trailing six-month
// compensation average.
type QualificationRepository interface {
	ConditionsFor(ctx context.Context, memberID string, now time.Time) (domain.EligibilityConditions, error)
}

type qualificationRepository struct {
	pool *pgxpool.Pool
}

// NewQualificationRepository builds the repository.
func NewQualificationRepository(pool *pgxpool.Pool) QualificationRepository {
	return &qualificationRepository{pool: pool}
}

func (r *qualificationRepository) ConditionsFor(ctx context.Context, memberID string, now time.Time) (domain.EligibilityConditions, error) {
	var (
		cond        domain.EligibilityConditions
		identityKey *string
	)

	const qualQuery = `
        SELECT test_passed, lp_meeting_completed, survey_completed, contract_achieved, identity_document_key
        FROM member_qualifications WHERE member_id=$1`
	err := r.pool.QueryRow(ctx, qualQuery, memberID).Scan(
		&cond.TestPassed,
		&cond.LPMeetingCompleted,
		&cond.SurveyCompleted,
		&cond.ContractAchieved,
		&identityKey,
	)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.EligibilityConditions{}, err
	}
	// No qualification row means no gate is satisfied yet.
	cond.IdentityDocumentSubmitted = identityKey != nil && *identityKey != ""

	const referralQuery = `
        SELECT
            COUNT(*) FILTER (WHERE referred_role = $2),
            COUNT(*) FILTER (WHERE referred_role = $3)
        FROM referrals WHERE referrer_member_id=$1`
	if err := r.pool.QueryRow(ctx, referralQuery, memberID,
		domain.RoleMember, domain.RoleFPAide).Scan(&cond.MemberReferrals, &cond.FPReferrals); err != nil {
		return domain.EligibilityConditions{}, err
	}

	from := now.AddDate(0, -6, 0)
	const compQuery = `
        SELECT (COALESCE(SUM(amount), 0) / 6)::text
        FROM sales WHERE member_id=$1 AND sold_at >= $2 AND sold_at < $3`
	var avg string
	if err := r.pool.QueryRow(ctx, compQuery, memberID, from, now).Scan(&avg); err != nil {
		return domain.EligibilityConditions{}, err
	}
	if cond.CompensationAverage, err = decimal.NewFromString(avg); err != nil {
		return domain.EligibilityConditions{}, err
	}

	return cond, nil
}
