package handler

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stayrewards/coupon-engine/internal/model"
)

// DistributionServiceInterface defines the assignment business logic the
// handler depends on.
type DistributionServiceInterface interface {
	BatchDistribute(ctx context.Context, couponID uuid.UUID, userIDs []uuid.UUID, assignedBy uuid.UUID, reason string, customExpiry *time.Time) []*model.AssignmentResult
}

// DistributionHandler handles HTTP requests for coupon distribution.
type DistributionHandler struct {
	service   DistributionServiceInterface
	validator *validator.Validate
}

// NewDistributionHandler creates a new DistributionHandler.
func NewDistributionHandler(svc DistributionServiceInterface, v *validator.Validate) *DistributionHandler {
	return &DistributionHandler{service: svc, validator: v}
}

// Distribute handles POST /api/coupons/distribute. A single user id is the
// one-element batch; results are reported per user and the call as a whole
// succeeds even when some grants are rejected.
func (h *DistributionHandler) Distribute(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid actor id"})
	}

	var req model.DistributeCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	results := h.service.BatchDistribute(c.Context(), req.CouponID, req.UserIDs, actor, req.AssignedReason, req.CustomExpiry)

	granted := 0
	for _, r := range results {
		if r.Error == "" {
			granted++
		}
	}
	log.Info().
		Str("coupon_id", req.CouponID.String()).
		Str("assigned_by", actor.String()).
		Int("requested", len(req.UserIDs)).
		Int("granted", granted).
		Msg("coupon distribution processed")

	return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{"results": results})
}
