package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/stayrewards/coupon-engine/internal/model"
	"github.com/stayrewards/coupon-engine/internal/qrtoken"
	"github.com/stayrewards/coupon-engine/internal/validity"
	"github.com/stayrewards/coupon-engine/pkg/database"
)

// RedemptionCouponRepo is the catalog read access the state machine needs.
type RedemptionCouponRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Coupon, error)
}

// UserCouponStateRepo is the assignment-row access the state machine owns:
// locked reads and the conditional terminal transitions.
type UserCouponStateRepo interface {
	GetByIDForUpdate(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.UserCoupon, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*model.UserCouponDetail, error)
	MarkUsed(ctx context.Context, tx database.TxQuerier, id, usedBy uuid.UUID, channel string) (bool, error)
	MarkExpired(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (bool, error)
	MarkRevoked(ctx context.Context, id uuid.UUID) (bool, error)
}

// RedemptionEventWriter appends audit rows.
type RedemptionEventWriter interface {
	Insert(ctx context.Context, q database.TxQuerier, ev *model.RedemptionEvent) error
}

// QRDecoder verifies and decodes a presented token.
type QRDecoder interface {
	Decode(token string) (*qrtoken.Payload, error)
}

// Actor identifies who performs a redemption and through which channel.
type Actor struct {
	ID      uuid.UUID
	Channel string
}

// RedemptionService is the state machine that consumes assignment
// instances exactly once. It is the only component allowed to move
// user coupon status away from available.
type RedemptionService struct {
	pool       TxBeginner
	couponRepo RedemptionCouponRepo
	ucRepo     UserCouponStateRepo
	events     RedemptionEventWriter
	codec      QRDecoder
	now        func() time.Time
}

// NewRedemptionService creates a RedemptionService.
func NewRedemptionService(pool *pgxpool.Pool, couponRepo RedemptionCouponRepo, ucRepo UserCouponStateRepo, events RedemptionEventWriter, codec QRDecoder) *RedemptionService {
	return &RedemptionService{pool: pool, couponRepo: couponRepo, ucRepo: ucRepo, events: events, codec: codec, now: time.Now}
}

// NewRedemptionServiceWithTxBeginner creates a RedemptionService with a
// custom TxBeginner. Primarily used for testing.
func NewRedemptionServiceWithTxBeginner(pool TxBeginner, couponRepo RedemptionCouponRepo, ucRepo UserCouponStateRepo, events RedemptionEventWriter, codec QRDecoder) *RedemptionService {
	return &RedemptionService{pool: pool, couponRepo: couponRepo, ucRepo: ucRepo, events: events, codec: codec, now: time.Now}
}

// statusError maps a terminal assignment status to its rejection.
func statusError(status model.UserCouponStatus) error {
	switch status {
	case model.UserCouponUsed:
		return ErrAlreadyRedeemed
	case model.UserCouponRevoked:
		return ErrAssignmentRevoked
	case model.UserCouponExpired:
		return ErrCouponExpiredAtRedemption
	default:
		return nil
	}
}

// reject records the audit event for a refused attempt and commits the
// transaction, so the event (and a lazy-expiry transition, when one
// happened) survive the rejection.
func (s *RedemptionService) reject(ctx context.Context, tx database.TxQuerier, commit func(context.Context) error, ucID uuid.UUID, actor Actor, cause error) error {
	ev := &model.RedemptionEvent{
		ID:           uuid.New(),
		UserCouponID: ucID,
		Outcome:      "rejected:" + ReasonCode(cause),
		Actor:        actor.ID,
		Channel:      actor.Channel,
	}
	if err := s.events.Insert(ctx, tx, ev); err != nil {
		return fmt.Errorf("record rejection: %w", err)
	}
	if err := commit(ctx); err != nil {
		return fmt.Errorf("commit rejection: %w", err)
	}
	return cause
}

// RedeemCoupon validates a QR token and consumes the referenced assignment
// exactly once.
// Rejections: ErrInvalidToken, ErrAssignmentNotFound, ErrAlreadyRedeemed,
// ErrAssignmentRevoked, ErrCouponExpiredAtRedemption, ErrCouponInactive,
// ErrMinimumSpendNotMet. Every rejection on an existing assignment is also
// recorded as a RedemptionEvent.
func (s *RedemptionService) RedeemCoupon(ctx context.Context, token string, actor Actor, originalAmount decimal.Decimal) (*model.RedemptionResult, error) {
	payload, err := s.codec.Decode(token)
	if err != nil {
		log.Warn().Err(err).Str("actor", actor.ID.String()).Msg("qr token rejected, possible tamper attempt")
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	now := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	uc, err := s.ucRepo.GetByIDForUpdate(ctx, tx, payload.UserCouponID)
	if err != nil {
		return nil, fmt.Errorf("load user coupon: %w", err)
	}
	if uc == nil {
		log.Warn().Str("user_coupon_id", payload.UserCouponID.String()).Msg("qr token references unknown assignment")
		return nil, ErrAssignmentNotFound
	}

	// The token binds instance, coupon and user together; a mismatch means
	// a token replayed against the wrong row.
	if uc.CouponID != payload.CouponID || uc.UserID != payload.UserID {
		log.Warn().Str("user_coupon_id", uc.ID.String()).Msg("qr token binding mismatch")
		return nil, ErrInvalidToken
	}

	if cause := statusError(uc.Status); cause != nil {
		return nil, s.reject(ctx, tx, tx.Commit, uc.ID, actor, cause)
	}

	coupon, err := s.couponRepo.GetByID(ctx, payload.CouponID)
	if err != nil {
		return nil, fmt.Errorf("load coupon: %w", err)
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}

	// Lazy expiry: no background sweep runs; the lapse is discovered and
	// recorded here, at the next access.
	if validity.Expired(uc, coupon, now) {
		if _, err := s.ucRepo.MarkExpired(ctx, tx, uc.ID); err != nil {
			return nil, fmt.Errorf("mark expired: %w", err)
		}
		return nil, s.reject(ctx, tx, tx.Commit, uc.ID, actor, ErrCouponExpiredAtRedemption)
	}

	if coupon.Status != model.CouponActive {
		return nil, s.reject(ctx, tx, tx.Commit, uc.ID, actor, ErrCouponInactive)
	}

	if coupon.MinimumSpend != nil && originalAmount.LessThan(*coupon.MinimumSpend) {
		return nil, s.reject(ctx, tx, tx.Commit, uc.ID, actor, ErrMinimumSpendNotMet)
	}

	// Conditioned on status = available at write time: of two simultaneous
	// attempts exactly one observes success.
	ok, err := s.ucRepo.MarkUsed(ctx, tx, uc.ID, actor.ID, actor.Channel)
	if err != nil {
		return nil, fmt.Errorf("mark used: %w", err)
	}
	if !ok {
		return nil, s.reject(ctx, tx, tx.Commit, uc.ID, actor, ErrAlreadyRedeemed)
	}

	ev := &model.RedemptionEvent{
		ID:           uuid.New(),
		UserCouponID: uc.ID,
		Outcome:      "redeemed",
		Actor:        actor.ID,
		Channel:      actor.Channel,
	}
	if err := s.events.Insert(ctx, tx, ev); err != nil {
		return nil, fmt.Errorf("record redemption: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit redemption: %w", err)
	}

	discount, final := ComputeDiscount(coupon, originalAmount)

	uc.Status = model.UserCouponUsed
	uc.UsedAt = &now
	usedBy := actor.ID
	uc.UsedBy = &usedBy
	uc.UsedChannel = actor.Channel

	log.Info().
		Str("user_coupon_id", uc.ID.String()).
		Str("coupon_id", coupon.ID.String()).
		Str("user_id", uc.UserID.String()).
		Str("actor", actor.ID.String()).
		Str("discount", discount.String()).
		Msg("coupon redeemed")

	return &model.RedemptionResult{
		UserCoupon:     uc,
		OriginalAmount: originalAmount,
		DiscountAmount: discount,
		FinalAmount:    final,
	}, nil
}

// ValidateQRCode reports a dry-run verdict for a presented token without
// mutating any state. It applies the same redeemability predicate the
// redemption path enforces.
func (s *RedemptionService) ValidateQRCode(ctx context.Context, token string) (*model.ValidationVerdict, error) {
	payload, err := s.codec.Decode(token)
	if err != nil {
		return &model.ValidationVerdict{Valid: false, Reason: ReasonCode(ErrInvalidToken)}, nil
	}

	detail, err := s.ucRepo.GetDetail(ctx, payload.UserCouponID)
	if err != nil {
		return nil, fmt.Errorf("load user coupon detail: %w", err)
	}
	if detail == nil {
		return &model.ValidationVerdict{Valid: false, Reason: ReasonCode(ErrAssignmentNotFound)}, nil
	}
	if detail.CouponID != payload.CouponID || detail.UserID != payload.UserID {
		return &model.ValidationVerdict{Valid: false, Reason: ReasonCode(ErrInvalidToken)}, nil
	}

	now := s.now().UTC()
	coupon := detail.Coupon()

	if validity.Redeemable(&detail.UserCoupon, coupon, now) {
		return &model.ValidationVerdict{Valid: true, Detail: detail}, nil
	}

	// Classify the failure for the confirmation UI; state is untouched.
	var cause error
	switch {
	case statusError(detail.Status) != nil:
		cause = statusError(detail.Status)
	case validity.Expired(&detail.UserCoupon, coupon, now):
		cause = ErrCouponExpiredAtRedemption
	default:
		cause = ErrCouponInactive
	}
	return &model.ValidationVerdict{Valid: false, Reason: ReasonCode(cause)}, nil
}

// RevokeUserCoupon withdraws an available assignment (admin action).
// Returns ErrAssignmentNotFound if the id is unknown, or the terminal-state
// rejection matching the instance's current status when it already left
// available.
func (s *RedemptionService) RevokeUserCoupon(ctx context.Context, id, revokedBy uuid.UUID) error {
	ok, err := s.ucRepo.MarkRevoked(ctx, id)
	if err != nil {
		return fmt.Errorf("revoke user coupon: %w", err)
	}
	if ok {
		log.Info().
			Str("user_coupon_id", id.String()).
			Str("revoked_by", revokedBy.String()).
			Msg("user coupon revoked")
		return nil
	}

	detail, err := s.ucRepo.GetDetail(ctx, id)
	if err != nil {
		return fmt.Errorf("load user coupon detail: %w", err)
	}
	if detail == nil {
		return ErrAssignmentNotFound
	}
	if cause := statusError(detail.Status); cause != nil {
		return cause
	}
	return ErrAssignmentNotFound
}
