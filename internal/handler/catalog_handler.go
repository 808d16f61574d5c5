package handler

import (
	"context"
	"iter"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stayrewards/coupon-engine/internal/model"
)

// CatalogServiceInterface defines the catalog business logic the handler
// depends on.
type CatalogServiceInterface interface {
	CreateCoupon(ctx context.Context, req *model.CreateCouponRequest, createdBy uuid.UUID) (*model.Coupon, error)
	GetCoupon(ctx context.Context, id uuid.UUID) (*model.Coupon, error)
	ListActiveCoupons(ctx context.Context, asOf time.Time) iter.Seq2[*model.Coupon, error]
	UpdateStatus(ctx context.Context, id uuid.UUID, next model.CouponStatus) (*model.Coupon, error)
}

// CatalogHandler handles HTTP requests for coupon template administration.
type CatalogHandler struct {
	service   CatalogServiceInterface
	validator *validator.Validate
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(svc CatalogServiceInterface, v *validator.Validate) *CatalogHandler {
	return &CatalogHandler{service: svc, validator: v}
}

// actorID extracts the pre-authenticated actor identity. Authentication
// itself happens upstream; only the shape is checked here.
func actorID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Get("X-Actor-ID"))
}

// CreateCoupon handles POST /api/coupons.
func (h *CatalogHandler) CreateCoupon(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid actor id"})
	}

	var req model.CreateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	coupon, err := h.service.CreateCoupon(c.Context(), &req, actor)
	if err != nil {
		if _, ok := statusFor(err); !ok {
			log.Error().Err(err).Str("code", req.Code).Msg("failed to create coupon")
		}
		return rejectJSON(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(coupon)
}

// GetCoupon handles GET /api/coupons/:id.
func (h *CatalogHandler) GetCoupon(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid coupon id"})
	}

	coupon, err := h.service.GetCoupon(c.Context(), id)
	if err != nil {
		if _, ok := statusFor(err); !ok {
			log.Error().Err(err).Str("coupon_id", id.String()).Msg("failed to get coupon")
		}
		return rejectJSON(c, err)
	}
	return c.JSON(coupon)
}

// ListCoupons handles GET /api/coupons: active templates as of now.
func (h *CatalogHandler) ListCoupons(c *fiber.Ctx) error {
	coupons := []*model.Coupon{}
	for coupon, err := range h.service.ListActiveCoupons(c.Context(), time.Now().UTC()) {
		if err != nil {
			log.Error().Err(err).Msg("failed to list coupons")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
		}
		coupons = append(coupons, coupon)
	}
	return c.JSON(fiber.Map{"coupons": coupons})
}

// UpdateStatus handles PATCH /api/coupons/:id/status.
func (h *CatalogHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid coupon id"})
	}

	var req model.UpdateCouponStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	coupon, err := h.service.UpdateStatus(c.Context(), id, req.Status)
	if err != nil {
		if _, ok := statusFor(err); !ok {
			log.Error().Err(err).Str("coupon_id", id.String()).Msg("failed to update coupon status")
		}
		return rejectJSON(c, err)
	}
	return c.JSON(coupon)
}
