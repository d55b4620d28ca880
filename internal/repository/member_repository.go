package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/membership-service/internal/domain"
)

// MemberRepository defines persistence access for members.
type MemberRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Member, error)
	ListActiveManagers(ctx context.Context) ([]domain.Member, error)
	// UpdateRange moves a member's range conditionally: the write only
	// applies when the stored range still matches oldRange.
	UpdateRange(ctx context.Context, db DB, memberID string, oldRange, newRange int) error
	// UpdateRole upgrades a member's role conditionally on the current role.
	UpdateRole(ctx context.Context, db DB, memberID string, oldRole, newRole domain.MemberRole) error
	// SetInitialRange seeds a range for a member entering the manager
	// tier. It only ever fills an empty slot, never overwrites.
	SetInitialRange(ctx context.Context, db DB, memberID string, rangeNumber int) error
}

type memberRepository struct {
	pool *pgxpool.Pool
}

// NewMemberRepository returns a Postgres-backed implementation.
func NewMemberRepository(pool *pgxpool.Pool) MemberRepository {
	return &memberRepository{pool: pool}
}

const memberColumns = `id, name, email, role, current_range, status, created_at, updated_at`

func (r *memberRepository) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	const query = `SELECT ` + memberColumns + ` FROM members WHERE id=$1`
	var member domain.Member
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&member.ID,
		&member.Name,
		&member.Email,
		&member.Role,
		&member.CurrentRange,
		&member.Status,
		&member.CreatedAt,
		&member.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *memberRepository) ListActiveManagers(ctx context.Context) ([]domain.Member, error) {
	const query = `
        SELECT ` + memberColumns + `
        FROM members
        WHERE role=$1 AND status=$2 AND current_range IS NOT NULL
        ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, domain.RoleManager, domain.MemberStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Member
	for rows.Next() {
		var member domain.Member
		if err := rows.Scan(
			&member.ID,
			&member.Name,
			&member.Email,
			&member.Role,
			&member.CurrentRange,
			&member.Status,
			&member.CreatedAt,
			&member.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, member)
	}
	return result, rows.Err()
}

func (r *memberRepository) UpdateRange(ctx context.Context, db DB, memberID string, oldRange, newRange int) error {
	if db == nil {
		db = r.pool
	}
	const query = `
        UPDATE members SET current_range=$1, updated_at=NOW()
        WHERE id=$2 AND current_range=$3`
	cmd, err := db.Exec(ctx, query, newRange, memberID, oldRange)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *memberRepository) SetInitialRange(ctx context.Context, db DB, memberID string, rangeNumber int) error {
	if db == nil {
		db = r.pool
	}
	const query = `
        UPDATE members SET current_range=$1, updated_at=NOW()
        WHERE id=$2 AND current_range IS NULL`
	_, err := db.Exec(ctx, query, rangeNumber, memberID)
	return err
}

func (r *memberRepository) UpdateRole(ctx context.Context, db DB, memberID string, oldRole, newRole domain.MemberRole) error {
	if db == nil {
		db = r.pool
	}
	const query = `
        UPDATE members SET role=$1, updated_at=NOW()
        WHERE id=$2 AND role=$3`
	cmd, err := db.Exec(ctx, query, newRole, memberID, oldRole)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
