package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/membership-service/internal/domain"
)

// ErrDuplicateApplication marks a submit that hit the one-in-flight
// constraint per (member, target role).
var ErrDuplicateApplication = errors.New("application already in flight for member and target role")

// ApplicationRepository encapsulates promotion application persistence.
type ApplicationRepository interface {
	Create(ctx context.Context, application *domain.PromotionApplication) error
	GetByID(ctx context.Context, id string) (*domain.PromotionApplication, error)
	ListByMember(ctx context.Context, memberID string) ([]domain.PromotionApplication, error)
	// Transition persists the application's review fields conditionally on
	// the status it was loaded with.
	Transition(ctx context.Context, db DB, application *domain.PromotionApplication, from domain.ApplicationStatus) error
}

type applicationRepository struct {
	pool *pgxpool.Pool
}

// NewApplicationRepository instantiates the repository.
func NewApplicationRepository(pool *pgxpool.Pool) ApplicationRepository {
	return &applicationRepository{pool: pool}
}

const applicationColumns = `id, member_id, target_role, status, applied_at,
       reviewed_by, approved_at, rejected_at, rejection_reason, completed_at`

func (r *applicationRepository) Create(ctx context.Context, application *domain.PromotionApplication) error {
	const query = `
        INSERT INTO promotion_applications (member_id, target_role, status)
        VALUES ($1,$2,$3)
        RETURNING id, applied_at`
	err := r.pool.QueryRow(ctx, query,
		application.MemberID,
		application.TargetRole,
		application.Status,
	).Scan(&application.ID, &application.AppliedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicateApplication
		}
		return err
	}
	return nil
}

func (r *applicationRepository) GetByID(ctx context.Context, id string) (*domain.PromotionApplication, error) {
	const query = `SELECT ` + applicationColumns + ` FROM promotion_applications WHERE id=$1`
	var application domain.PromotionApplication
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&application.ID,
		&application.MemberID,
		&application.TargetRole,
		&application.Status,
		&application.AppliedAt,
		&application.ReviewedBy,
		&application.ApprovedAt,
		&application.RejectedAt,
		&application.RejectionReason,
		&application.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &application, nil
}

func (r *applicationRepository) ListByMember(ctx context.Context, memberID string) ([]domain.PromotionApplication, error) {
	const query = `
        SELECT ` + applicationColumns + `
        FROM promotion_applications WHERE member_id=$1
        ORDER BY applied_at DESC`
	rows, err := r.pool.Query(ctx, query, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PromotionApplication
	for rows.Next() {
		var application domain.PromotionApplication
		if err := rows.Scan(
			&application.ID,
			&application.MemberID,
			&application.TargetRole,
			&application.Status,
			&application.AppliedAt,
			&application.ReviewedBy,
			&application.ApprovedAt,
			&application.RejectedAt,
			&application.RejectionReason,
			&application.CompletedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, application)
	}
	return result, rows.Err()
}

func (r *applicationRepository) Transition(ctx context.Context, db DB, application *domain.PromotionApplication, from domain.ApplicationStatus) error {
	if db == nil {
		db = r.pool
	}
	const query = `
        UPDATE promotion_applications
        SET status=$1, reviewed_by=$2, approved_at=$3, rejected_at=$4, rejection_reason=$5, completed_at=$6
        WHERE id=$7 AND status=$8`
	cmd, err := db.Exec(ctx, query,
		application.Status,
		application.ReviewedBy,
		application.ApprovedAt,
		application.RejectedAt,
		application.RejectionReason,
		application.CompletedAt,
		application.ID,
		from,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
