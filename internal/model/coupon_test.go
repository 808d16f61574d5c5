package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCouponStatus_CanTransitionTo(t *testing.T) {
	allowed := map[CouponStatus][]CouponStatus{
		CouponDraft:    {CouponActive, CouponArchived},
		CouponActive:   {CouponPaused, CouponArchived},
		CouponPaused:   {CouponActive, CouponArchived},
		CouponArchived: {},
	}
	all := []CouponStatus{CouponDraft, CouponActive, CouponPaused, CouponArchived}

	for from, targets := range allowed {
		ok := make(map[CouponStatus]bool, len(targets))
		for _, to := range targets {
			ok[to] = true
		}
		for _, to := range all {
			assert.Equal(t, ok[to], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestUserCoupon_EffectiveExpiryAgainst(t *testing.T) {
	validUntil := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)

	uc := &UserCoupon{}
	assert.True(t, uc.EffectiveExpiryAgainst(validUntil).Equal(validUntil), "no custom expiry defers to the coupon window")

	earlier := validUntil.AddDate(0, -1, 0)
	uc.ExpiresAt = &earlier
	assert.True(t, uc.EffectiveExpiryAgainst(validUntil).Equal(earlier), "a tighter custom expiry wins")

	later := validUntil.AddDate(0, 1, 0)
	uc.ExpiresAt = &later
	assert.True(t, uc.EffectiveExpiryAgainst(validUntil).Equal(validUntil), "a custom expiry never extends the window")
}

func TestUserCouponDetail_CouponReconstruction(t *testing.T) {
	validUntil := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	d := &UserCouponDetail{
		UserCoupon:       UserCoupon{CouponID: uuid.New()},
		CouponCode:       "SUMMER20",
		Kind:             KindPercentage,
		Value:            decimal.NewFromInt(20),
		CouponStatus:     CouponPaused,
		CouponValidUntil: validUntil,
	}

	c := d.Coupon()

	assert.Equal(t, d.CouponID, c.ID)
	assert.Equal(t, "SUMMER20", c.Code)
	assert.Equal(t, CouponPaused, c.Status, "the status the predicate evaluates is the template's, not the instance's")
	assert.True(t, c.ValidUntil.Equal(validUntil))
}
