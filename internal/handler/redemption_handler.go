package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/stayrewards/coupon-engine/internal/model"
	"github.com/stayrewards/coupon-engine/internal/service"
)

// RedemptionServiceInterface defines the redemption state machine
// operations the handler depends on.
type RedemptionServiceInterface interface {
	RedeemCoupon(ctx context.Context, token string, actor service.Actor, originalAmount decimal.Decimal) (*model.RedemptionResult, error)
	ValidateQRCode(ctx context.Context, token string) (*model.ValidationVerdict, error)
	RevokeUserCoupon(ctx context.Context, id, revokedBy uuid.UUID) error
}

// RedemptionHandler handles HTTP requests for QR validation and redemption.
type RedemptionHandler struct {
	service   RedemptionServiceInterface
	validator *validator.Validate
}

// NewRedemptionHandler creates a new RedemptionHandler.
func NewRedemptionHandler(svc RedemptionServiceInterface, v *validator.Validate) *RedemptionHandler {
	return &RedemptionHandler{service: svc, validator: v}
}

// Redeem handles POST /api/coupons/redeem.
func (h *RedemptionHandler) Redeem(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid actor id"})
	}

	var req model.RedeemCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}
	if !req.OriginalAmount.IsPositive() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: original_amount must be positive"})
	}

	result, err := h.service.RedeemCoupon(c.Context(), req.Token, service.Actor{ID: actor, Channel: req.Channel}, req.OriginalAmount)
	if err != nil {
		if _, ok := statusFor(err); !ok {
			log.Error().
				Err(err).
				Str("request_id", c.GetRespHeader("X-Request-ID")).
				Str("actor", actor.String()).
				Msg("failed to redeem coupon")
		}
		return rejectJSON(c, err)
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("user_coupon_id", result.UserCoupon.ID.String()).
		Str("actor", actor.String()).
		Msg("coupon redeemed")

	return c.JSON(result)
}

// Validate handles GET /api/coupons/validate/:token. Dry run: never
// mutates state, callable any number of times.
func (h *RedemptionHandler) Validate(c *fiber.Ctx) error {
	token := c.Params("token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: token is required"})
	}

	verdict, err := h.service.ValidateQRCode(c.Context(), token)
	if err != nil {
		log.Error().Err(err).Msg("failed to validate qr token")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.JSON(verdict)
}

// Revoke handles POST /api/coupons/user-coupons/:id/revoke.
func (h *RedemptionHandler) Revoke(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid actor id"})
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user coupon id"})
	}

	if err := h.service.RevokeUserCoupon(c.Context(), id, actor); err != nil {
		if _, ok := statusFor(err); !ok {
			log.Error().Err(err).Str("user_coupon_id", id.String()).Msg("failed to revoke user coupon")
		}
		return rejectJSON(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
