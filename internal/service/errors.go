package service

import "errors"

var (
	// ErrInvalidDefinition is returned when a coupon template violates a
	// definition invariant (window, value range, limits).
	ErrInvalidDefinition = errors.New("invalid coupon definition")

	// ErrDuplicateCode is returned when the human code collides with a
	// non-archived coupon.
	ErrDuplicateCode = errors.New("coupon code already exists")

	// ErrCouponNotFound is returned when a coupon template cannot be found.
	ErrCouponNotFound = errors.New("coupon not found")

	// ErrAssignmentNotFound is returned when a user coupon cannot be found.
	ErrAssignmentNotFound = errors.New("user coupon not found")

	// ErrCouponInactive is returned when an operation requires an active
	// coupon and its status is draft, paused or archived.
	ErrCouponInactive = errors.New("coupon is not active")

	// ErrCouponExpired is returned at assignment time when the coupon's
	// validity window has already passed.
	ErrCouponExpired = errors.New("coupon validity window has passed")

	// ErrInvalidTransition is returned for a disallowed lifecycle change.
	ErrInvalidTransition = errors.New("invalid coupon status transition")

	// ErrInvalidExpiry is returned when a custom expiry falls outside the
	// coupon's validity window.
	ErrInvalidExpiry = errors.New("custom expiry exceeds coupon validity")

	// ErrUsageLimitExceeded is returned when a grant would exceed the
	// global or per-user usage limit.
	ErrUsageLimitExceeded = errors.New("coupon usage limit exceeded")

	// ErrInvalidToken is returned when a QR token fails to decode or its
	// integrity tag does not verify.
	ErrInvalidToken = errors.New("invalid QR token")

	// ErrAlreadyRedeemed is returned when the assignment has already been
	// used.
	ErrAlreadyRedeemed = errors.New("coupon already redeemed")

	// ErrAssignmentRevoked is returned when the assignment was revoked by
	// an administrator.
	ErrAssignmentRevoked = errors.New("user coupon revoked")

	// ErrCouponExpiredAtRedemption is returned when expiry is discovered at
	// redemption time; the assignment is lazily transitioned to expired.
	ErrCouponExpiredAtRedemption = errors.New("coupon expired at redemption")

	// ErrMinimumSpendNotMet is returned when the presented amount is below
	// the coupon's minimum spend.
	ErrMinimumSpendNotMet = errors.New("minimum spend not met")
)

// ReasonCode maps a business rejection to its stable machine-readable code.
// Presentation layers localize from these codes; RedemptionEvent rows persist
// them as "rejected:<code>". Returns "" for errors that are not business
// rejections.
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidDefinition):
		return "invalid_definition"
	case errors.Is(err, ErrDuplicateCode):
		return "duplicate_code"
	case errors.Is(err, ErrCouponNotFound):
		return "coupon_not_found"
	case errors.Is(err, ErrAssignmentNotFound):
		return "assignment_not_found"
	case errors.Is(err, ErrCouponInactive):
		return "coupon_inactive"
	case errors.Is(err, ErrCouponExpired):
		return "coupon_expired"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrInvalidExpiry):
		return "invalid_expiry"
	case errors.Is(err, ErrUsageLimitExceeded):
		return "usage_limit_exceeded"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrAlreadyRedeemed):
		return "already_redeemed"
	case errors.Is(err, ErrAssignmentRevoked):
		return "assignment_revoked"
	case errors.Is(err, ErrCouponExpiredAtRedemption):
		return "coupon_expired_at_redemption"
	case errors.Is(err, ErrMinimumSpendNotMet):
		return "minimum_spend_not_met"
	default:
		return ""
	}
}
