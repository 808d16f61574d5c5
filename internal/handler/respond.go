package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/stayrewards/coupon-engine/internal/service"
)

// statusFor maps a business rejection to its HTTP status. Unknown errors
// are infrastructure failures and become 500s at the call site.
func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, service.ErrCouponNotFound),
		errors.Is(err, service.ErrAssignmentNotFound):
		return fiber.StatusNotFound, true
	case errors.Is(err, service.ErrDuplicateCode),
		errors.Is(err, service.ErrAlreadyRedeemed):
		return fiber.StatusConflict, true
	case errors.Is(err, service.ErrInvalidDefinition),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrInvalidExpiry),
		errors.Is(err, service.ErrCouponInactive),
		errors.Is(err, service.ErrCouponExpired),
		errors.Is(err, service.ErrCouponExpiredAtRedemption),
		errors.Is(err, service.ErrAssignmentRevoked),
		errors.Is(err, service.ErrUsageLimitExceeded),
		errors.Is(err, service.ErrMinimumSpendNotMet):
		return fiber.StatusUnprocessableEntity, true
	case errors.Is(err, service.ErrInvalidToken):
		return fiber.StatusBadRequest, true
	default:
		return 0, false
	}
}

// rejectJSON writes a business rejection with its stable reason code, so
// presentation layers localize without re-deriving the rule.
func rejectJSON(c *fiber.Ctx, err error) error {
	status, ok := statusFor(err)
	if !ok {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"code":  service.ReasonCode(err),
	})
}

// formatValidationError converts validator errors to a stable message.
func formatValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := fe.Field()
			switch fe.Tag() {
			case "required":
				return "invalid request: " + field + " is required"
			case "notblank":
				return "invalid request: " + field + " cannot be blank"
			case "max":
				return "invalid request: " + field + " exceeds maximum"
			case "min":
				return "invalid request: " + field + " below minimum"
			case "oneof":
				return "invalid request: " + field + " has an unsupported value"
			default:
				return "invalid request: " + field + " is invalid"
			}
		}
	}
	return "invalid request"
}
