package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stayrewards/coupon-engine/internal/model"
	"github.com/stayrewards/coupon-engine/pkg/database"
)

// RedemptionEventRepository is the append-only audit trail of redemption
// attempts. Rows are never updated or deleted.
type RedemptionEventRepository struct {
	pool PoolInterface
}

// NewRedemptionEventRepository creates a new RedemptionEventRepository.
func NewRedemptionEventRepository(pool *pgxpool.Pool) *RedemptionEventRepository {
	return &RedemptionEventRepository{pool: pool}
}

// NewRedemptionEventRepositoryWithPool creates a RedemptionEventRepository
// with a custom pool interface. Primarily used for testing.
func NewRedemptionEventRepositoryWithPool(pool PoolInterface) *RedemptionEventRepository {
	return &RedemptionEventRepository{pool: pool}
}

// Insert appends one event using the given querier, so a successful
// redemption commits its event in the same transaction as the status
// transition.
func (r *RedemptionEventRepository) Insert(ctx context.Context, q database.TxQuerier, ev *model.RedemptionEvent) error {
	_, err := q.Exec(ctx,
		`INSERT INTO redemption_events (id, user_coupon_id, outcome, actor, channel)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.UserCouponID, ev.Outcome, ev.Actor, ev.Channel)
	if err != nil {
		return fmt.Errorf("insert redemption event: %w", err)
	}
	return nil
}

// Stats is the admin aggregate over the catalog and assignment tables.
func (r *RedemptionEventRepository) Stats(ctx context.Context) (*model.CouponStats, error) {
	var s model.CouponStats
	err := r.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM coupons),
			(SELECT COUNT(*) FROM coupons WHERE status = 'active'),
			(SELECT COUNT(*) FROM user_coupons),
			(SELECT COUNT(*) FROM user_coupons WHERE status = 'used')`).
		Scan(&s.TotalCoupons, &s.ActiveCoupons, &s.TotalAssigned, &s.TotalRedeemed)
	if err != nil {
		return nil, fmt.Errorf("coupon stats: %w", err)
	}
	if s.TotalAssigned > 0 {
		s.RedemptionRate = float64(s.TotalRedeemed) / float64(s.TotalAssigned) * 100
	}
	return &s, nil
}

// RedemptionsByDay aggregates successful redemptions per calendar day since
// the given instant.
func (r *RedemptionEventRepository) RedemptionsByDay(ctx context.Context, since time.Time) ([]*model.RedemptionsByDay, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DATE_TRUNC('day', created_at) AS day, COUNT(*)
		 FROM redemption_events
		 WHERE outcome = 'redeemed' AND created_at >= $1
		 GROUP BY day ORDER BY day`, since)
	if err != nil {
		return nil, fmt.Errorf("redemptions by day: %w", err)
	}
	defer rows.Close()

	points := []*model.RedemptionsByDay{}
	for rows.Next() {
		var p model.RedemptionsByDay
		if err := rows.Scan(&p.Date, &p.Redemptions); err != nil {
			return nil, fmt.Errorf("scan redemption data point: %w", err)
		}
		points = append(points, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate redemption data points: %w", err)
	}
	return points, nil
}
