package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/spec-kit/membership-service/internal/domain"
)

// ErrDuplicateAssessment marks an insert that hit the one-per-(member,
// period) unique constraint. Callers treat it as a benign skip.
var ErrDuplicateAssessment = errors.New("assessment already exists for member and period")

// AssessmentFilter captures listing parameters.
type AssessmentFilter struct {
	MemberID *string
	Year     *int
	Half     *int
	Statuses []domain.AssessmentStatus
	Outcomes []domain.AssessmentOutcome
	Limit    int
	Offset   int
}

// AssessmentRepository encapsulates assessment persistence.
type AssessmentRepository interface {
	Create(ctx context.Context, assessment *domain.Assessment) error
	GetByID(ctx context.Context, id string) (*domain.Assessment, error)
	ListWithFilter(ctx context.Context, filter AssessmentFilter) ([]domain.Assessment, error)
	// SetStatus flips status conditionally: the update applies only while
	// the stored status still equals from.
	SetStatus(ctx context.Context, db DB, id string, from, to domain.AssessmentStatus, actor string, at time.Time) error
	// ExpirePendingBefore marks still-pending assessments of periods
	// strictly earlier than (year, half) as EXPIRED.
	ExpirePendingBefore(ctx context.Context, year, half int) (int64, error)
}

type assessmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssessmentRepository instantiates the repository.
func NewAssessmentRepository(pool *pgxpool.Pool) AssessmentRepository {
	return &assessmentRepository{pool: pool}
}

const assessmentColumns = `id, member_id, period_year, period_half, period_sales::text,
       range_at_execution, proposed_range, outcome, status,
       executed_by, executed_at, confirmed_by, confirmed_at`

func (r *assessmentRepository) Create(ctx context.Context, assessment *domain.Assessment) error {
	const query = `
        INSERT INTO assessments (member_id, period_year, period_half, period_sales,
            range_at_execution, proposed_range, outcome, status, executed_by, executed_at)
        VALUES ($1,$2,$3,$4::numeric,$5,$6,$7,$8,$9,$10)
        RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		assessment.MemberID,
		assessment.PeriodYear,
		assessment.PeriodHalf,
		assessment.PeriodSales.String(),
		assessment.RangeAtExecution,
		assessment.ProposedRange,
		assessment.Outcome,
		assessment.Status,
		assessment.ExecutedBy,
		assessment.ExecutedAt,
	).Scan(&assessment.ID)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicateAssessment
		}
		return err
	}
	return nil
}

func (r *assessmentRepository) GetByID(ctx context.Context, id string) (*domain.Assessment, error) {
	const query = `SELECT ` + assessmentColumns + ` FROM assessments WHERE id=$1`
	return scanAssessmentRow(r.pool.QueryRow(ctx, query, id))
}

func (r *assessmentRepository) ListWithFilter(ctx context.Context, filter AssessmentFilter) ([]domain.Assessment, error) {
	base := `SELECT ` + assessmentColumns + ` FROM assessments`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.MemberID != nil {
		args = append(args, *filter.MemberID)
		clauses = append(clauses, fmt.Sprintf("member_id=$%d", len(args)))
	}
	if filter.Year != nil {
		args = append(args, *filter.Year)
		clauses = append(clauses, fmt.Sprintf("period_year=$%d", len(args)))
	}
	if filter.Half != nil {
		args = append(args, *filter.Half)
		clauses = append(clauses, fmt.Sprintf("period_half=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Outcomes) > 0 {
		placeholders := make([]string, len(filter.Outcomes))
		for i, outcome := range filter.Outcomes {
			args = append(args, outcome)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("outcome IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf("%s WHERE %s ORDER BY executed_at DESC LIMIT %d OFFSET %d",
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Assessment
	for rows.Next() {
		assessment, err := scanAssessmentRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *assessment)
	}
	return result, rows.Err()
}

func (r *assessmentRepository) SetStatus(ctx context.Context, db DB, id string, from, to domain.AssessmentStatus, actor string, at time.Time) error {
	if db == nil {
		db = r.pool
	}
	const query = `
        UPDATE assessments SET status=$1, confirmed_by=$2, confirmed_at=$3
        WHERE id=$4 AND status=$5`
	cmd, err := db.Exec(ctx, query, to, actor, at, id, from)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *assessmentRepository) ExpirePendingBefore(ctx context.Context, year, half int) (int64, error) {
	const query = `
        UPDATE assessments SET status=$1
        WHERE status=$2 AND (period_year*2 + period_half) < ($3*2 + $4)`
	cmd, err := r.pool.Exec(ctx, query,
		domain.AssessmentStatusExpired, domain.AssessmentStatusPending, year, half)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanAssessmentRow(row pgx.Row) (*domain.Assessment, error) {
	var (
		assessment domain.Assessment
		sales      string
	)
	if err := row.Scan(
		&assessment.ID,
		&assessment.MemberID,
		&assessment.PeriodYear,
		&assessment.PeriodHalf,
		&sales,
		&assessment.RangeAtExecution,
		&assessment.ProposedRange,
		&assessment.Outcome,
		&assessment.Status,
		&assessment.ExecutedBy,
		&assessment.ExecutedAt,
		&assessment.ConfirmedBy,
		&assessment.ConfirmedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(sales)
	if err != nil {
		return nil, err
	}
	assessment.PeriodSales = parsed
	return &assessment, nil
}
