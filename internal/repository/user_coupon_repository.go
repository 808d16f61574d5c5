package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stayrewards/coupon-engine/internal/model"
	"github.com/stayrewards/coupon-engine/internal/validity"
	"github.com/stayrewards/coupon-engine/pkg/database"
)

const userCouponColumns = `id, coupon_id, user_id, status, qr_nonce,
	assigned_by, assigned_reason, expires_at, used_at, used_by, used_channel,
	created_at, updated_at`

// UserCouponRepository stores assignment instances. Only the assignment
// engine inserts rows here; only the redemption state machine (and admin
// revocation) moves status away from available.
type UserCouponRepository struct {
	pool PoolInterface
}

// NewUserCouponRepository creates a new UserCouponRepository with the given pool.
func NewUserCouponRepository(pool *pgxpool.Pool) *UserCouponRepository {
	return &UserCouponRepository{pool: pool}
}

// NewUserCouponRepositoryWithPool creates a UserCouponRepository with a
// custom pool interface. Primarily used for testing.
func NewUserCouponRepositoryWithPool(pool PoolInterface) *UserCouponRepository {
	return &UserCouponRepository{pool: pool}
}

func scanUserCoupon(row pgx.Row) (*model.UserCoupon, error) {
	var uc model.UserCoupon
	err := row.Scan(
		&uc.ID, &uc.CouponID, &uc.UserID, &uc.Status, &uc.QRNonce,
		&uc.AssignedBy, &uc.AssignedReason, &uc.ExpiresAt, &uc.UsedAt,
		&uc.UsedBy, &uc.UsedChannel, &uc.CreatedAt, &uc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &uc, nil
}

// Insert persists a new assignment within a transaction. Must run after the
// coupon row lock in the same transaction as the cap counts.
func (r *UserCouponRepository) Insert(ctx context.Context, tx database.TxQuerier, uc *model.UserCoupon) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO user_coupons (
			id, coupon_id, user_id, status, qr_nonce,
			assigned_by, assigned_reason, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uc.ID, uc.CouponID, uc.UserID, uc.Status, uc.QRNonce,
		uc.AssignedBy, uc.AssignedReason, uc.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert user coupon: %w", err)
	}
	return nil
}

// CountConsumed counts instances that consume global capacity for a coupon.
// Expired and revoked instances release their slot.
func (r *UserCouponRepository) CountConsumed(ctx context.Context, tx database.TxQuerier, couponID uuid.UUID) (int64, error) {
	var n int64
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_coupons
		 WHERE coupon_id = $1 AND status IN ('available', 'used')`, couponID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count coupon usage: %w", err)
	}
	return n, nil
}

// CountConsumedByUser counts instances that consume per-user capacity.
func (r *UserCouponRepository) CountConsumedByUser(ctx context.Context, tx database.TxQuerier, couponID, userID uuid.UUID) (int64, error) {
	var n int64
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_coupons
		 WHERE coupon_id = $1 AND user_id = $2 AND status IN ('available', 'used')`,
		couponID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count user coupon usage: %w", err)
	}
	return n, nil
}

// GetByID retrieves an assignment by id using the given querier (pool or
// transaction). Returns nil, nil when not found.
func (r *UserCouponRepository) GetByID(ctx context.Context, q database.TxQuerier, id uuid.UUID) (*model.UserCoupon, error) {
	uc, err := scanUserCoupon(q.QueryRow(ctx,
		`SELECT `+userCouponColumns+` FROM user_coupons WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user coupon %s: %w", id, err)
	}
	return uc, nil
}

// GetByIDForUpdate locks the assignment row for the duration of the
// transaction. Redemption uses it so the status checks and the conditional
// update observe a stable row.
func (r *UserCouponRepository) GetByIDForUpdate(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.UserCoupon, error) {
	uc, err := scanUserCoupon(tx.QueryRow(ctx,
		`SELECT `+userCouponColumns+` FROM user_coupons WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user coupon for update %s: %w", id, err)
	}
	return uc, nil
}

// MarkUsed transitions available -> used. The WHERE status = 'available'
// guard makes the transition exactly-once: of two simultaneous redeemers,
// one sees true and the other false.
func (r *UserCouponRepository) MarkUsed(ctx context.Context, tx database.TxQuerier, id, usedBy uuid.UUID, channel string) (bool, error) {
	tag, err := tx.Exec(ctx,
		`UPDATE user_coupons
		 SET status = 'used', used_at = NOW(), used_by = $2, used_channel = $3, updated_at = NOW()
		 WHERE id = $1 AND status = 'available'`, id, usedBy, channel)
	if err != nil {
		return false, fmt.Errorf("mark user coupon used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkExpired transitions available -> expired (lazy expiry).
func (r *UserCouponRepository) MarkExpired(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx,
		`UPDATE user_coupons SET status = 'expired', updated_at = NOW()
		 WHERE id = $1 AND status = 'available'`, id)
	if err != nil {
		return false, fmt.Errorf("mark user coupon expired: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkRevoked transitions available -> revoked.
func (r *UserCouponRepository) MarkRevoked(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_coupons SET status = 'revoked', updated_at = NOW()
		 WHERE id = $1 AND status = 'available'`, id)
	if err != nil {
		return false, fmt.Errorf("revoke user coupon: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByCoupon pages every assignment of a coupon, newest first, and
// returns the unpaged total for the same filter.
func (r *UserCouponRepository) ListByCoupon(ctx context.Context, couponID uuid.UUID, limit, offset int) ([]*model.UserCoupon, int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_coupons WHERE coupon_id = $1`, couponID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count coupon assignments: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+userCouponColumns+` FROM user_coupons
		 WHERE coupon_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, couponID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list coupon assignments: %w", err)
	}
	items, err := collectUserCoupons(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListRedeemedByCoupon pages the used instances of a coupon ordered by
// redemption time, newest first.
func (r *UserCouponRepository) ListRedeemedByCoupon(ctx context.Context, couponID uuid.UUID, limit, offset int) ([]*model.UserCoupon, int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_coupons WHERE coupon_id = $1 AND status = 'used'`,
		couponID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count coupon redemptions: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+userCouponColumns+` FROM user_coupons
		 WHERE coupon_id = $1 AND status = 'used'
		 ORDER BY used_at DESC
		 LIMIT $2 OFFSET $3`, couponID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list coupon redemptions: %w", err)
	}
	items, err := collectUserCoupons(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func collectUserCoupons(rows pgx.Rows) ([]*model.UserCoupon, error) {
	defer rows.Close()

	items := []*model.UserCoupon{}
	for rows.Next() {
		uc, err := scanUserCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user coupon: %w", err)
		}
		items = append(items, uc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user coupons: %w", err)
	}
	return items, nil
}

const userCouponDetailColumns = `uc.id, uc.coupon_id, uc.user_id, uc.status, uc.qr_nonce,
	uc.assigned_by, uc.assigned_reason, uc.expires_at, uc.used_at, uc.used_by,
	uc.used_channel, uc.created_at, uc.updated_at,
	c.code, c.name, c.kind, c.value, c.currency,
	c.minimum_spend, c.maximum_discount, c.status, c.valid_until`

func scanUserCouponDetail(row pgx.Row) (*model.UserCouponDetail, error) {
	var d model.UserCouponDetail
	err := row.Scan(
		&d.ID, &d.CouponID, &d.UserID, &d.Status, &d.QRNonce,
		&d.AssignedBy, &d.AssignedReason, &d.ExpiresAt, &d.UsedAt,
		&d.UsedBy, &d.UsedChannel, &d.CreatedAt, &d.UpdatedAt,
		&d.CouponCode, &d.CouponName, &d.Kind, &d.Value, &d.Currency,
		&d.MinimumSpend, &d.MaximumDiscount, &d.CouponStatus, &d.CouponValidUntil,
	)
	if err != nil {
		return nil, err
	}
	d.EffectiveExpiry = d.EffectiveExpiryAgainst(d.CouponValidUntil)
	return &d, nil
}

// GetDetail joins an assignment with its coupon metadata. Returns nil, nil
// when not found.
func (r *UserCouponRepository) GetDetail(ctx context.Context, id uuid.UUID) (*model.UserCouponDetail, error) {
	d, err := scanUserCouponDetail(r.pool.QueryRow(ctx,
		`SELECT `+userCouponDetailColumns+`
		 FROM user_coupons uc JOIN coupons c ON uc.coupon_id = c.id
		 WHERE uc.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user coupon detail %s: %w", id, err)
	}
	return d, nil
}

// ListRedeemableByUser is the wallet projection. Its filter is the shared
// redeemability predicate, so an instance appears here if and only if
// redeeming it right now would succeed.
func (r *UserCouponRepository) ListRedeemableByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]*model.UserCouponDetail, error) {
	query := `SELECT ` + userCouponDetailColumns + `
		 FROM user_coupons uc JOIN coupons c ON uc.coupon_id = c.id
		 WHERE uc.user_id = $1 AND ` + fmt.Sprintf(validity.RedeemableSQL, "$2") + `
		 ORDER BY uc.created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list redeemable user coupons: %w", err)
	}
	defer rows.Close()

	details := []*model.UserCouponDetail{}
	for rows.Next() {
		d, err := scanUserCouponDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user coupon detail: %w", err)
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user coupon details: %w", err)
	}
	return details, nil
}
