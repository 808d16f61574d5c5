// Package validity holds the single redeemability predicate shared by the
// assignment path, the redemption state machine and the availability view.
// Keeping one function and one SQL fragment is what guarantees a coupon
// visible to a user is actually redeemable, and vice versa.
package validity

import (
	"errors"
	"time"

	"github.com/stayrewards/coupon-engine/internal/model"
)

var (
	// ErrInactive means the template status is not active.
	ErrInactive = errors.New("coupon not active")
	// ErrWindowPassed means the template validity window has closed.
	ErrWindowPassed = errors.New("coupon window passed")
)

// RedeemableSQL is the WHERE fragment applied by every query that must
// agree with Redeemable. Expects the user_coupons alias "uc", the coupons
// alias "c" and $-placeholder offset handled by the caller; the only bind
// it introduces is the evaluation instant, referenced as the given
// placeholder three times.
//
// A NULL uc.expires_at defers entirely to the coupon window.
const RedeemableSQL = `uc.status = 'available'
  AND (uc.expires_at IS NULL OR uc.expires_at > %[1]s)
  AND c.valid_until > %[1]s
  AND c.status = 'active'`

// Redeemable reports whether the assignment could be redeemed at instant
// now. It checks exactly what RedeemableSQL checks and what the redemption
// state machine enforces step by step.
func Redeemable(uc *model.UserCoupon, c *model.Coupon, now time.Time) bool {
	if uc.Status != model.UserCouponAvailable {
		return false
	}
	if Expired(uc, c, now) {
		return false
	}
	return c.Status == model.CouponActive
}

// Expired reports whether the assignment's effective expiry has lapsed at
// instant now, under either of the two clocks: the instance-level custom
// expiry and the template-level valid_until.
func Expired(uc *model.UserCoupon, c *model.Coupon, now time.Time) bool {
	if uc.ExpiresAt != nil && !uc.ExpiresAt.After(now) {
		return true
	}
	return !c.ValidUntil.After(now)
}

// Grantable reports whether the template itself accepts new assignments at
// instant now: active status and an open validity window. Usage limits are
// checked separately under the assignment transaction.
func Grantable(c *model.Coupon, now time.Time) error {
	if c.Status != model.CouponActive {
		return ErrInactive
	}
	if !c.ValidUntil.After(now) {
		return ErrWindowPassed
	}
	return nil
}
