package repository

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stayrewards/coupon-engine/internal/model"
	"github.com/stayrewards/coupon-engine/internal/service"
	"github.com/stayrewards/coupon-engine/pkg/database"
)

// PoolInterface defines the database operations needed by repositories.
// This allows for easier testing with mocks.
type PoolInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const couponColumns = `id, code, name, description, kind, value, currency,
	minimum_spend, maximum_discount, valid_from, valid_until,
	usage_limit, usage_limit_per_user, status, created_by, created_at, updated_at`

// CouponRepository is the catalog store for coupon templates.
type CouponRepository struct {
	pool PoolInterface
}

// NewCouponRepository creates a new CouponRepository with the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// NewCouponRepositoryWithPool creates a CouponRepository with a custom pool
// interface. Primarily used for testing.
func NewCouponRepositoryWithPool(pool PoolInterface) *CouponRepository {
	return &CouponRepository{pool: pool}
}

func scanCoupon(row pgx.Row) (*model.Coupon, error) {
	var c model.Coupon
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.Description, &c.Kind, &c.Value, &c.Currency,
		&c.MinimumSpend, &c.MaximumDiscount, &c.ValidFrom, &c.ValidUntil,
		&c.UsageLimit, &c.UsageLimitPerUser, &c.Status, &c.CreatedBy,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Insert persists a new coupon template.
// Returns service.ErrDuplicateCode if a non-archived coupon already carries
// the same code (partial unique index).
func (r *CouponRepository) Insert(ctx context.Context, c *model.Coupon) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO coupons (
			id, code, name, description, kind, value, currency,
			minimum_spend, maximum_discount, valid_from, valid_until,
			usage_limit, usage_limit_per_user, status, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		c.ID, c.Code, c.Name, c.Description, c.Kind, c.Value, c.Currency,
		c.MinimumSpend, c.MaximumDiscount, c.ValidFrom, c.ValidUntil,
		c.UsageLimit, c.UsageLimitPerUser, c.Status, c.CreatedBy)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return service.ErrDuplicateCode
		}
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

// GetByID retrieves a coupon template by id.
// Returns nil, nil if the coupon is not found (service layer handles this).
func (r *CouponRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Coupon, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id)

	c, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get coupon %s: %w", id, err)
	}
	return c, nil
}

// GetByIDForUpdate retrieves a coupon with a row lock (SELECT FOR UPDATE).
// The lock serializes concurrent assignment transactions on the same
// template, which is what makes the count-and-insert sequence atomic.
// Returns service.ErrCouponNotFound if the coupon doesn't exist.
func (r *CouponRepository) GetByIDForUpdate(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.Coupon, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE id = $1 FOR UPDATE`, id)

	c, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon for update %s: %w", id, err)
	}
	return c, nil
}

// ListActive yields active coupons whose validity window contains asOf.
// The sequence is lazy over the underlying query and restartable: each
// range re-executes the query.
func (r *CouponRepository) ListActive(ctx context.Context, asOf time.Time) iter.Seq2[*model.Coupon, error] {
	return func(yield func(*model.Coupon, error) bool) {
		rows, err := r.pool.Query(ctx,
			`SELECT `+couponColumns+` FROM coupons
			 WHERE status = 'active' AND valid_from <= $1 AND valid_until >= $1
			 ORDER BY created_at DESC`, asOf)
		if err != nil {
			yield(nil, fmt.Errorf("list active coupons: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			c, err := scanCoupon(rows)
			if err != nil {
				yield(nil, fmt.Errorf("scan coupon: %w", err))
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("iterate coupons: %w", err))
		}
	}
}

// ListAssignable returns active, in-window coupons the user could still be
// granted: both the global cap and the per-user cap have headroom. Expired
// and revoked instances do not consume capacity.
func (r *CouponRepository) ListAssignable(ctx context.Context, userID uuid.UUID, asOf time.Time) ([]*model.Coupon, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+couponColumns+` FROM coupons c
		 WHERE c.status = 'active' AND c.valid_from <= $2 AND c.valid_until > $2
		   AND (SELECT COUNT(*) FROM user_coupons uc
		        WHERE uc.coupon_id = c.id AND uc.status IN ('available', 'used')) < c.usage_limit
		   AND (SELECT COUNT(*) FROM user_coupons uc
		        WHERE uc.coupon_id = c.id AND uc.user_id = $1
		          AND uc.status IN ('available', 'used')) < c.usage_limit_per_user
		 ORDER BY c.created_at DESC`, userID, asOf)
	if err != nil {
		return nil, fmt.Errorf("list assignable coupons: %w", err)
	}
	defer rows.Close()

	var coupons []*model.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coupons: %w", err)
	}
	return coupons, nil
}

// UpdateStatus applies a lifecycle transition conditioned on the expected
// current status. Returns false when the row was not in that status anymore,
// so two racing transitions cannot both apply.
func (r *CouponRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.CouponStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE coupons SET status = $3, updated_at = NOW()
		 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("update coupon status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
