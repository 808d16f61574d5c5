package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateCouponRequest is the DTO for creating a coupon template.
type CreateCouponRequest struct {
	Code              string           `json:"code" validate:"required,notblank,max=64"`
	Name              string           `json:"name" validate:"required,notblank,max=255"`
	Description       string           `json:"description" validate:"max=2000"`
	Kind              CouponKind       `json:"kind" validate:"required,oneof=percentage fixed_amount"`
	Value             decimal.Decimal  `json:"value" validate:"required"`
	Currency          string           `json:"currency" validate:"omitempty,len=3"`
	MinimumSpend      *decimal.Decimal `json:"minimum_spend"`
	MaximumDiscount   *decimal.Decimal `json:"maximum_discount"`
	ValidFrom         time.Time        `json:"valid_from" validate:"required"`
	ValidUntil        time.Time        `json:"valid_until" validate:"required"`
	UsageLimit        int              `json:"usage_limit" validate:"required,gte=1"`
	UsageLimitPerUser int              `json:"usage_limit_per_user" validate:"required,gte=1"`
}

// UpdateCouponStatusRequest is the DTO for a lifecycle transition.
type UpdateCouponStatusRequest struct {
	Status CouponStatus `json:"status" validate:"required,oneof=active paused archived"`
}

// DistributeCouponRequest is the DTO for assigning a coupon to one or
// more users. The engine caps a single batch at 100 users.
type DistributeCouponRequest struct {
	CouponID       uuid.UUID   `json:"coupon_id" validate:"required"`
	UserIDs        []uuid.UUID `json:"user_ids" validate:"required,min=1,max=100"`
	AssignedReason string      `json:"assigned_reason" validate:"max=500"`
	CustomExpiry   *time.Time  `json:"custom_expiry"`
}

// RedeemCouponRequest is the DTO for redeeming a QR token against a spend.
type RedeemCouponRequest struct {
	Token          string          `json:"token" validate:"required,notblank"`
	OriginalAmount decimal.Decimal `json:"original_amount" validate:"required"`
	Channel        string          `json:"channel" validate:"max=100"`
}

// AssignmentResult is one entry of a batch distribution response. A
// rejected entry carries Error; a granted entry carries UserCoupon and
// QRToken. A granted entry whose token signing failed carries both
// UserCoupon and Error.
type AssignmentResult struct {
	UserID     uuid.UUID   `json:"user_id"`
	UserCoupon *UserCoupon `json:"user_coupon,omitempty"`
	QRToken    string      `json:"qr_token,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// RedemptionResult is the outcome of a successful redemption, including
// the computed discount.
type RedemptionResult struct {
	UserCoupon     *UserCoupon     `json:"user_coupon"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
}

// ValidationVerdict is the dry-run answer for a presented QR token.
type ValidationVerdict struct {
	Valid  bool              `json:"valid"`
	Reason string            `json:"reason,omitempty"`
	Detail *UserCouponDetail `json:"detail,omitempty"`
}

// CouponStats is the admin aggregate view.
type CouponStats struct {
	TotalCoupons   int64   `json:"total_coupons"`
	ActiveCoupons  int64   `json:"active_coupons"`
	TotalAssigned  int64   `json:"total_assigned"`
	TotalRedeemed  int64   `json:"total_redeemed"`
	RedemptionRate float64 `json:"redemption_rate"`
}

// RedemptionsByDay is one data point of the redemptions-per-day series.
type RedemptionsByDay struct {
	Date        time.Time `json:"date"`
	Redemptions int64     `json:"redemptions"`
}
