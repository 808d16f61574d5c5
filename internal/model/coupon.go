package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CouponKind is the discount mechanism of a coupon template.
type CouponKind string

const (
	KindPercentage  CouponKind = "percentage"
	KindFixedAmount CouponKind = "fixed_amount"
)

// CouponStatus is the lifecycle status of a coupon template.
type CouponStatus string

const (
	CouponDraft    CouponStatus = "draft"
	CouponActive   CouponStatus = "active"
	CouponPaused   CouponStatus = "paused"
	CouponArchived CouponStatus = "archived"
)

// UserCouponStatus is the state of one assignment instance.
// An instance starts as available and moves exactly once to used,
// expired or revoked.
type UserCouponStatus string

const (
	UserCouponAvailable UserCouponStatus = "available"
	UserCouponUsed      UserCouponStatus = "used"
	UserCouponExpired   UserCouponStatus = "expired"
	UserCouponRevoked   UserCouponStatus = "revoked"
)

// Coupon is a coupon template owned by catalog administration.
type Coupon struct {
	ID                uuid.UUID        `json:"id"`
	Code              string           `json:"code"`
	Name              string           `json:"name"`
	Description       string           `json:"description,omitempty"`
	Kind              CouponKind       `json:"kind"`
	Value             decimal.Decimal  `json:"value"`
	Currency          string           `json:"currency"`
	MinimumSpend      *decimal.Decimal `json:"minimum_spend,omitempty"`
	MaximumDiscount   *decimal.Decimal `json:"maximum_discount,omitempty"`
	ValidFrom         time.Time        `json:"valid_from"`
	ValidUntil        time.Time        `json:"valid_until"`
	UsageLimit        int              `json:"usage_limit"`
	UsageLimitPerUser int              `json:"usage_limit_per_user"`
	Status            CouponStatus     `json:"status"`
	CreatedBy         uuid.UUID        `json:"created_by"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// UserCoupon is one grant of a Coupon to a user, the unit of redemption.
type UserCoupon struct {
	ID             uuid.UUID        `json:"id"`
	CouponID       uuid.UUID        `json:"coupon_id"`
	UserID         uuid.UUID        `json:"user_id"`
	Status         UserCouponStatus `json:"status"`
	QRNonce        string           `json:"-"`
	AssignedBy     uuid.UUID        `json:"assigned_by"`
	AssignedReason string           `json:"assigned_reason,omitempty"`
	ExpiresAt      *time.Time       `json:"expires_at,omitempty"`
	UsedAt         *time.Time       `json:"used_at,omitempty"`
	UsedBy         *uuid.UUID       `json:"used_by,omitempty"`
	UsedChannel    string           `json:"used_channel,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// RedemptionEvent is one append-only audit row per redemption attempt,
// successful or rejected.
type RedemptionEvent struct {
	ID           uuid.UUID `json:"id"`
	UserCouponID uuid.UUID `json:"user_coupon_id"`
	Outcome      string    `json:"outcome"` // "redeemed" or "rejected:<reason>"
	Actor        uuid.UUID `json:"actor"`
	Channel      string    `json:"channel,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserCouponDetail is a UserCoupon joined with the coupon metadata the
// wallet view renders.
type UserCouponDetail struct {
	UserCoupon
	CouponCode       string           `json:"coupon_code"`
	CouponName       string           `json:"coupon_name"`
	Kind             CouponKind       `json:"kind"`
	Value            decimal.Decimal  `json:"value"`
	Currency         string           `json:"currency"`
	MinimumSpend     *decimal.Decimal `json:"minimum_spend,omitempty"`
	MaximumDiscount  *decimal.Decimal `json:"maximum_discount,omitempty"`
	CouponStatus     CouponStatus     `json:"coupon_status"`
	CouponValidUntil time.Time        `json:"coupon_valid_until"`
	EffectiveExpiry  time.Time        `json:"effective_expiry"`

	// QRToken is re-derived from the signing key at read time; the row
	// itself never stores a signed token.
	QRToken string `json:"qr_token,omitempty"`
}

// Coupon reconstructs the template fields the redeemability predicate
// needs, so views and the state machine evaluate one and the same check.
func (d *UserCouponDetail) Coupon() *Coupon {
	return &Coupon{
		ID:         d.CouponID,
		Code:       d.CouponCode,
		Name:       d.CouponName,
		Kind:       d.Kind,
		Value:      d.Value,
		Currency:   d.Currency,
		Status:     d.CouponStatus,
		ValidUntil: d.CouponValidUntil,
	}
}

// EffectiveExpiryAgainst is the instant an assignment actually lapses:
// the instance-level expiry when set, narrowed to the template window.
func (uc *UserCoupon) EffectiveExpiryAgainst(couponValidUntil time.Time) time.Time {
	if uc.ExpiresAt != nil && uc.ExpiresAt.Before(couponValidUntil) {
		return *uc.ExpiresAt
	}
	return couponValidUntil
}

// CanTransitionTo reports whether a coupon status change is allowed.
// Archived is terminal; a draft must be activated before anything else.
func (s CouponStatus) CanTransitionTo(next CouponStatus) bool {
	switch s {
	case CouponDraft:
		return next == CouponActive || next == CouponArchived
	case CouponActive:
		return next == CouponPaused || next == CouponArchived
	case CouponPaused:
		return next == CouponActive || next == CouponArchived
	default:
		return false
	}
}
