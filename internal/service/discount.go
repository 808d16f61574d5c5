package service

import (
	"github.com/shopspring/decimal"

	"github.com/stayrewards/coupon-engine/internal/model"
)

// ComputeDiscount derives the discount a coupon grants against a spend.
// Percentage discounts are capped by the template's maximum discount when
// one is set; the final amount never goes below zero.
func ComputeDiscount(c *model.Coupon, originalAmount decimal.Decimal) (discount, final decimal.Decimal) {
	switch c.Kind {
	case model.KindPercentage:
		discount = originalAmount.Mul(c.Value).Div(hundred)
		if c.MaximumDiscount != nil && discount.GreaterThan(*c.MaximumDiscount) {
			discount = *c.MaximumDiscount
		}
	case model.KindFixedAmount:
		discount = c.Value
	}

	final = originalAmount.Sub(discount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	return discount, final
}
