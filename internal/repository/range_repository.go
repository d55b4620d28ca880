package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/spec-kit/membership-service/internal/domain"
)

// RangeRepository reads the range catalog. The catalog is mutated only by
// administrative configuration, never by the assessment engine.
type RangeRepository interface {
	List(ctx context.Context) ([]domain.Range, error)
}

type rangeRepository struct {
	pool *pgxpool.Pool
}

// NewRangeRepository builds the repository.
func NewRangeRepository(pool *pgxpool.Pool) RangeRepository {
	return &rangeRepository{pool: pool}
}

func (r *rangeRepository) List(ctx context.Context) ([]domain.Range, error) {
	const query = `
        SELECT range_number, promotion_threshold::text, maintenance_threshold::text
        FROM ranges ORDER BY range_number ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Range
	for rows.Next() {
		var (
			rng                 domain.Range
			promotion, maintain string
		)
		if err := rows.Scan(&rng.Number, &promotion, &maintain); err != nil {
			return nil, err
		}
		if rng.PromotionThreshold, err = decimal.NewFromString(promotion); err != nil {
			return nil, err
		}
		if rng.MaintenanceThreshold, err = decimal.NewFromString(maintain); err != nil {
			return nil, err
		}
		result = append(result, rng)
	}
	return result, rows.Err()
}
