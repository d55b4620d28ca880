package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// SalesRepository aggregates qualifying sales for a member inside a
// window. Idempotent for the same arguments; the assessment engine treats
// its failures as per-member errors, never batch aborts.
type SalesRepository interface {
	TotalSales(ctx context.Context, memberID string, from, to time.Time) (decimal.Decimal, error)
}

type salesRepository struct {
	pool *pgxpool.Pool
}

// NewSalesRepository builds the repository.
func NewSalesRepository(pool *pgxpool.Pool) SalesRepository {
	return &salesRepository{pool: pool}
}

func (r *salesRepository) TotalSales(ctx context.Context, memberID string, from, to time.Time) (decimal.Decimal, error) {
	const query = `
        SELECT COALESCE(SUM(amount), 0)::text
        FROM sales
        WHERE member_id=$1 AND sold_at >= $2 AND sold_at < $3`
	var total string
	if err := r.pool.QueryRow(ctx, query, memberID, from, to).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(total)
}
