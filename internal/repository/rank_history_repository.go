package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/membership-service/internal/domain"
)

// RankHistoryRepository stores append-only range-change audit entries.
type RankHistoryRepository interface {
	Create(ctx context.Context, db DB, history *domain.RankHistory) error
	ListByMember(ctx context.Context, memberID string, limit, offset int) ([]domain.RankHistory, error)
}

type rankHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewRankHistoryRepository builds the repository.
func NewRankHistoryRepository(pool *pgxpool.Pool) RankHistoryRepository {
	return &rankHistoryRepository{pool: pool}
}

// Create writes an entry through db, which is either the pool (best-effort
// after commit) or an open transaction (strict history mode).
func (r *rankHistoryRepository) Create(ctx context.Context, db DB, history *domain.RankHistory) error {
	if db == nil {
		db = r.pool
	}
	const query = `
        INSERT INTO rank_history (member_id, old_range, new_range, reason, changed_by, assessment_id)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return db.QueryRow(ctx, query,
		history.MemberID,
		history.OldRange,
		history.NewRange,
		history.Reason,
		history.ChangedBy,
		history.AssessmentID,
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *rankHistoryRepository) ListByMember(ctx context.Context, memberID string, limit, offset int) ([]domain.RankHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, member_id, old_range, new_range, reason, changed_by, assessment_id, created_at
        FROM rank_history WHERE member_id=$1
        ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, memberID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RankHistory
	for rows.Next() {
		var history domain.RankHistory
		if err := rows.Scan(
			&history.ID,
			&history.MemberID,
			&history.OldRange,
			&history.NewRange,
			&history.Reason,
			&history.ChangedBy,
			&history.AssessmentID,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}
