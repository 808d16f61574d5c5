package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/stayrewards/coupon-engine/internal/model"
	"github.com/stayrewards/coupon-engine/internal/validity"
	"github.com/stayrewards/coupon-engine/pkg/database"
)

// TxBeginner defines the interface for beginning transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AssignmentCouponRepo is the catalog access the assignment engine needs:
// a locked read inside its transaction.
type AssignmentCouponRepo interface {
	GetByIDForUpdate(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.Coupon, error)
}

// UserCouponWriter is the assignment-side access to user coupon rows.
type UserCouponWriter interface {
	Insert(ctx context.Context, tx database.TxQuerier, uc *model.UserCoupon) error
	CountConsumed(ctx context.Context, tx database.TxQuerier, couponID uuid.UUID) (int64, error)
	CountConsumedByUser(ctx context.Context, tx database.TxQuerier, couponID, userID uuid.UUID) (int64, error)
}

// QREncoder signs the token bound to one assignment instance.
type QREncoder interface {
	Encode(userCouponID, couponID, userID uuid.UUID, issuedAt time.Time) (string, error)
}

// AssignmentService is the only component that creates user coupon rows.
// Every grant runs in one transaction that locks the coupon row, counts
// existing instances against both caps, and inserts. Two concurrent grants
// for the same coupon therefore serialize on the row lock and cannot
// jointly exceed a cap.
type AssignmentService struct {
	pool       TxBeginner
	couponRepo AssignmentCouponRepo
	ucRepo     UserCouponWriter
	codec      QREncoder
	now        func() time.Time
}

// NewAssignmentService creates an AssignmentService with the given pool,
// repositories and QR codec.
func NewAssignmentService(pool *pgxpool.Pool, couponRepo AssignmentCouponRepo, ucRepo UserCouponWriter, codec QREncoder) *AssignmentService {
	return &AssignmentService{pool: pool, couponRepo: couponRepo, ucRepo: ucRepo, codec: codec, now: time.Now}
}

// NewAssignmentServiceWithTxBeginner creates an AssignmentService with a
// custom TxBeginner. Primarily used for testing.
func NewAssignmentServiceWithTxBeginner(pool TxBeginner, couponRepo AssignmentCouponRepo, ucRepo UserCouponWriter, codec QREncoder) *AssignmentService {
	return &AssignmentService{pool: pool, couponRepo: couponRepo, ucRepo: ucRepo, codec: codec, now: time.Now}
}

// AssignCouponToUser grants one instance of a coupon to a user.
// Returns:
//   - ErrCouponNotFound if the template doesn't exist
//   - ErrCouponInactive if its status is not active
//   - ErrCouponExpired if its window has already closed at call time
//   - ErrInvalidExpiry if the custom expiry is already in the past
//   - ErrUsageLimitExceeded if the grant would exceed either cap
func (s *AssignmentService) AssignCouponToUser(ctx context.Context, couponID, userID, assignedBy uuid.UUID, reason string, customExpiry *time.Time) (*model.UserCoupon, string, error) {
	now := s.now().UTC()

	if customExpiry != nil && !customExpiry.After(now) {
		return nil, "", fmt.Errorf("%w: custom expiry is in the past", ErrInvalidExpiry)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	coupon, err := s.couponRepo.GetByIDForUpdate(ctx, tx, couponID)
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			return nil, "", ErrCouponNotFound
		}
		return nil, "", fmt.Errorf("get coupon for update: %w", err)
	}

	// The window check uses the execution-time clock: a grant requested
	// after valid_until must fail even if the trigger fired on time.
	if err := validity.Grantable(coupon, now); err != nil {
		switch {
		case errors.Is(err, validity.ErrInactive):
			return nil, "", ErrCouponInactive
		case errors.Is(err, validity.ErrWindowPassed):
			return nil, "", ErrCouponExpired
		default:
			return nil, "", err
		}
	}

	consumed, err := s.ucRepo.CountConsumed(ctx, tx, couponID)
	if err != nil {
		return nil, "", fmt.Errorf("count global usage: %w", err)
	}
	if consumed >= int64(coupon.UsageLimit) {
		return nil, "", fmt.Errorf("%w: global limit %d reached", ErrUsageLimitExceeded, coupon.UsageLimit)
	}

	consumedByUser, err := s.ucRepo.CountConsumedByUser(ctx, tx, couponID, userID)
	if err != nil {
		return nil, "", fmt.Errorf("count per-user usage: %w", err)
	}
	if consumedByUser >= int64(coupon.UsageLimitPerUser) {
		return nil, "", fmt.Errorf("%w: per-user limit %d reached", ErrUsageLimitExceeded, coupon.UsageLimitPerUser)
	}

	// Effective expiry: the custom expiry may only narrow the template
	// window, never extend it.
	expiresAt := coupon.ValidUntil
	if customExpiry != nil && customExpiry.Before(expiresAt) {
		expiresAt = *customExpiry
	}

	uc := &model.UserCoupon{
		ID:             uuid.New(),
		CouponID:       couponID,
		UserID:         userID,
		Status:         model.UserCouponAvailable,
		QRNonce:        uuid.NewString(),
		AssignedBy:     assignedBy,
		AssignedReason: reason,
		ExpiresAt:      &expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.ucRepo.Insert(ctx, tx, uc); err != nil {
		return nil, "", fmt.Errorf("insert user coupon: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("commit tx: %w", err)
	}

	token, err := s.codec.Encode(uc.ID, couponID, userID, now)
	if err != nil {
		// The grant is committed and has consumed its cap slot, so hand
		// the instance back; the wallet view re-derives its token.
		return uc, "", fmt.Errorf("encode qr token: %w", err)
	}

	log.Info().
		Str("user_coupon_id", uc.ID.String()).
		Str("coupon_id", couponID.String()).
		Str("user_id", userID.String()).
		Str("assigned_by", assignedBy.String()).
		Time("expires_at", expiresAt).
		Msg("coupon assigned")

	return uc, token, nil
}

// BatchDistribute applies AssignCouponToUser per entry, one result per
// entry in request order. Partial failure is expected and reported per
// entry; one rejection neither blocks nor rolls back the others. A user
// id listed twice is attempted twice, and the per-user cap decides
// whether the second grant goes through.
func (s *AssignmentService) BatchDistribute(ctx context.Context, couponID uuid.UUID, userIDs []uuid.UUID, assignedBy uuid.UUID, reason string, customExpiry *time.Time) []*model.AssignmentResult {
	results := make([]*model.AssignmentResult, 0, len(userIDs))

	for _, userID := range userIDs {
		uc, token, err := s.AssignCouponToUser(ctx, couponID, userID, assignedBy, reason, customExpiry)
		if err != nil {
			msg := err.Error()
			if code := ReasonCode(err); code != "" {
				msg = code
			}
			// uc is non-nil when the grant committed but token signing
			// failed afterwards.
			results = append(results, &model.AssignmentResult{UserID: userID, UserCoupon: uc, Error: msg})
			continue
		}
		results = append(results, &model.AssignmentResult{UserID: userID, UserCoupon: uc, QRToken: token})
	}

	return results
}
