package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stayrewards/coupon-engine/internal/model"
)

// AvailabilityServiceInterface defines the read projections the handler
// depends on.
type AvailabilityServiceInterface interface {
	GetAvailableCoupons(ctx context.Context, userID uuid.UUID) ([]*model.Coupon, error)
	GetCustomerCoupons(ctx context.Context, userID uuid.UUID) ([]*model.UserCouponDetail, error)
	GetCouponStats(ctx context.Context) (*model.CouponStats, error)
	GetRedemptionsByDay(ctx context.Context, days int) ([]*model.RedemptionsByDay, error)
	GetCouponAssignments(ctx context.Context, couponID uuid.UUID, page, limit int) ([]*model.UserCoupon, int64, error)
	GetCouponRedemptions(ctx context.Context, couponID uuid.UUID, page, limit int) ([]*model.UserCoupon, int64, error)
}

// AvailabilityHandler handles the customer-facing read endpoints and the
// admin analytics endpoints.
type AvailabilityHandler struct {
	service AvailabilityServiceInterface
}

// NewAvailabilityHandler creates a new AvailabilityHandler.
func NewAvailabilityHandler(svc AvailabilityServiceInterface) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// Available handles GET /api/coupons/available: active templates the
// caller could still be granted.
func (h *AvailabilityHandler) Available(c *fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid actor id"})
	}

	coupons, err := h.service.GetAvailableCoupons(c.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("failed to list available coupons")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.JSON(fiber.Map{"coupons": coupons})
}

// MyCoupons handles GET /api/coupons/my-coupons: the caller's redeemable
// wallet.
func (h *AvailabilityHandler) MyCoupons(c *fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid actor id"})
	}

	details, err := h.service.GetCustomerCoupons(c.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("failed to list customer coupons")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.JSON(fiber.Map{"coupons": details})
}

// Stats handles GET /api/coupons/analytics/stats.
func (h *AvailabilityHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.GetCouponStats(c.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to compute coupon stats")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.JSON(stats)
}

// CouponAssignments handles GET /api/coupons/:id/assignments?page=N&limit=M:
// the admin audit of every instance granted from one template.
func (h *AvailabilityHandler) CouponAssignments(c *fiber.Ctx) error {
	couponID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid coupon id"})
	}

	items, total, err := h.service.GetCouponAssignments(c.Context(), couponID,
		c.QueryInt("page", 1), c.QueryInt("limit", 0))
	if err != nil {
		log.Error().Err(err).Str("coupon_id", couponID.String()).Msg("failed to list coupon assignments")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.JSON(fiber.Map{"assignments": items, "total": total})
}

// CouponRedemptions handles GET /api/coupons/:id/redemptions?page=N&limit=M:
// the used instances of one template, most recent redemption first.
func (h *AvailabilityHandler) CouponRedemptions(c *fiber.Ctx) error {
	couponID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid coupon id"})
	}

	items, total, err := h.service.GetCouponRedemptions(c.Context(), couponID,
		c.QueryInt("page", 1), c.QueryInt("limit", 0))
	if err != nil {
		log.Error().Err(err).Str("coupon_id", couponID.String()).Msg("failed to list coupon redemptions")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.JSON(fiber.Map{"redemptions": items, "total": total})
}

// AnalyticsData handles GET /api/coupons/analytics/data?days=N.
func (h *AvailabilityHandler) AnalyticsData(c *fiber.Ctx) error {
	days := c.QueryInt("days", 30)

	points, err := h.service.GetRedemptionsByDay(c.Context(), days)
	if err != nil {
		log.Error().Err(err).Msg("failed to compute redemption series")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.JSON(fiber.Map{"data_points": points})
}
