package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/stayrewards/coupon-engine/internal/model"
	"github.com/stayrewards/coupon-engine/internal/service"
	appvalidator "github.com/stayrewards/coupon-engine/internal/validator"
)

// mockRedemptionService is a mock implementation of RedemptionServiceInterface.
type mockRedemptionService struct {
	redeemFn   func(ctx context.Context, token string, actor service.Actor, originalAmount decimal.Decimal) (*model.RedemptionResult, error)
	validateFn func(ctx context.Context, token string) (*model.ValidationVerdict, error)
	revokeFn   func(ctx context.Context, id, revokedBy uuid.UUID) error
}

func (m *mockRedemptionService) RedeemCoupon(ctx context.Context, token string, actor service.Actor, originalAmount decimal.Decimal) (*model.RedemptionResult, error) {
	if m.redeemFn != nil {
		return m.redeemFn(ctx, token, actor, originalAmount)
	}
	return nil, service.ErrInvalidToken
}

func (m *mockRedemptionService) ValidateQRCode(ctx context.Context, token string) (*model.ValidationVerdict, error) {
	if m.validateFn != nil {
		return m.validateFn(ctx, token)
	}
	return &model.ValidationVerdict{Valid: false}, nil
}

func (m *mockRedemptionService) RevokeUserCoupon(ctx context.Context, id, revokedBy uuid.UUID) error {
	if m.revokeFn != nil {
		return m.revokeFn(ctx, id, revokedBy)
	}
	return nil
}

func setupRedemptionApp(mockSvc *mockRedemptionService) *fiber.App {
	app := fiber.New()
	h := NewRedemptionHandler(mockSvc, appvalidator.New())
	app.Post("/api/coupons/redeem", h.Redeem)
	app.Get("/api/coupons/validate/:token", h.Validate)
	app.Post("/api/coupons/user-coupons/:id/revoke", h.Revoke)
	return app
}

func TestRedemptionHandler_Redeem_Success(t *testing.T) {
	actor := uuid.New()
	mockSvc := &mockRedemptionService{
		redeemFn: func(ctx context.Context, token string, gotActor service.Actor, amount decimal.Decimal) (*model.RedemptionResult, error) {
			assert.Equal(t, "qr-token", token)
			assert.Equal(t, actor, gotActor.ID)
			assert.Equal(t, "pos", gotActor.Channel)
			assert.True(t, amount.Equal(decimal.NewFromInt(1000)))
			return &model.RedemptionResult{
				UserCoupon:     &model.UserCoupon{ID: uuid.New(), Status: model.UserCouponUsed},
				OriginalAmount: amount,
				DiscountAmount: decimal.NewFromInt(200),
				FinalAmount:    decimal.NewFromInt(800),
			}, nil
		},
	}
	app := setupRedemptionApp(mockSvc)

	body := `{"token": "qr-token", "original_amount": 1000, "channel": "pos"}`
	resp := postJSON(t, app, http.MethodPost, "/api/coupons/redeem", body, actor.String())

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	result := decodeJSON(t, resp)
	assert.Equal(t, "200", result["discount_amount"])
	assert.Equal(t, "800", result["final_amount"])
}

func TestRedemptionHandler_Redeem_MissingToken(t *testing.T) {
	app := setupRedemptionApp(&mockRedemptionService{})

	body := `{"original_amount": 1000}`
	resp := postJSON(t, app, http.MethodPost, "/api/coupons/redeem", body, uuid.NewString())

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid request: Token is required", decodeJSON(t, resp)["error"])
}

func TestRedemptionHandler_Redeem_NonPositiveAmount(t *testing.T) {
	app := setupRedemptionApp(&mockRedemptionService{
		redeemFn: func(ctx context.Context, token string, actor service.Actor, amount decimal.Decimal) (*model.RedemptionResult, error) {
			t.Fatal("service must not be reached for a non-positive amount")
			return nil, nil
		},
	})

	body := `{"token": "qr-token", "original_amount": -5}`
	resp := postJSON(t, app, http.MethodPost, "/api/coupons/redeem", body, uuid.NewString())

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRedemptionHandler_Redeem_InvalidToken(t *testing.T) {
	app := setupRedemptionApp(&mockRedemptionService{
		redeemFn: func(ctx context.Context, token string, actor service.Actor, amount decimal.Decimal) (*model.RedemptionResult, error) {
			return nil, service.ErrInvalidToken
		},
	})

	body := `{"token": "forged", "original_amount": 100}`
	resp := postJSON(t, app, http.MethodPost, "/api/coupons/redeem", body, uuid.NewString())

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_token", decodeJSON(t, resp)["code"])
}

func TestRedemptionHandler_Redeem_AlreadyRedeemed(t *testing.T) {
	app := setupRedemptionApp(&mockRedemptionService{
		redeemFn: func(ctx context.Context, token string, actor service.Actor, amount decimal.Decimal) (*model.RedemptionResult, error) {
			return nil, service.ErrAlreadyRedeemed
		},
	})

	body := `{"token": "qr-token", "original_amount": 100}`
	resp := postJSON(t, app, http.MethodPost, "/api/coupons/redeem", body, uuid.NewString())

	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_redeemed", decodeJSON(t, resp)["code"])
}

func TestRedemptionHandler_Redeem_MinimumSpendNotMet(t *testing.T) {
	app := setupRedemptionApp(&mockRedemptionService{
		redeemFn: func(ctx context.Context, token string, actor service.Actor, amount decimal.Decimal) (*model.RedemptionResult, error) {
			return nil, service.ErrMinimumSpendNotMet
		},
	})

	body := `{"token": "qr-token", "original_amount": 100}`
	resp := postJSON(t, app, http.MethodPost, "/api/coupons/redeem", body, uuid.NewString())

	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "minimum_spend_not_met", decodeJSON(t, resp)["code"])
}

func TestRedemptionHandler_Validate_Valid(t *testing.T) {
	app := setupRedemptionApp(&mockRedemptionService{
		validateFn: func(ctx context.Context, token string) (*model.ValidationVerdict, error) {
			assert.Equal(t, "qr-token", token)
			return &model.ValidationVerdict{Valid: true}, nil
		},
	})

	resp := postJSON(t, app, http.MethodGet, "/api/coupons/validate/qr-token", "", "")

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeJSON(t, resp)["valid"])
}

func TestRedemptionHandler_Validate_InvalidVerdictIsStill200(t *testing.T) {
	app := setupRedemptionApp(&mockRedemptionService{
		validateFn: func(ctx context.Context, token string) (*model.ValidationVerdict, error) {
			return &model.ValidationVerdict{Valid: false, Reason: "already_redeemed"}, nil
		},
	})

	resp := postJSON(t, app, http.MethodGet, "/api/coupons/validate/qr-token", "", "")

	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "a negative verdict is an answer, not an error")
	result := decodeJSON(t, resp)
	assert.Equal(t, false, result["valid"])
	assert.Equal(t, "already_redeemed", result["reason"])
}

func TestRedemptionHandler_Revoke_Success(t *testing.T) {
	id := uuid.New()
	revokedBy := uuid.New()
	var called bool
	app := setupRedemptionApp(&mockRedemptionService{
		revokeFn: func(ctx context.Context, gotID, gotBy uuid.UUID) error {
			called = true
			assert.Equal(t, id, gotID)
			assert.Equal(t, revokedBy, gotBy)
			return nil
		},
	})

	resp := postJSON(t, app, http.MethodPost, "/api/coupons/user-coupons/"+id.String()+"/revoke", "", revokedBy.String())

	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.True(t, called)
}

func TestRedemptionHandler_Revoke_NotFound(t *testing.T) {
	app := setupRedemptionApp(&mockRedemptionService{
		revokeFn: func(ctx context.Context, id, revokedBy uuid.UUID) error {
			return service.ErrAssignmentNotFound
		},
	})

	resp := postJSON(t, app, http.MethodPost, "/api/coupons/user-coupons/"+uuid.NewString()+"/revoke", "", uuid.NewString())

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "assignment_not_found", decodeJSON(t, resp)["code"])
}

func TestRedemptionHandler_Revoke_AlreadyUsed(t *testing.T) {
	app := setupRedemptionApp(&mockRedemptionService{
		revokeFn: func(ctx context.Context, id, revokedBy uuid.UUID) error {
			return service.ErrAlreadyRedeemed
		},
	})

	resp := postJSON(t, app, http.MethodPost, "/api/coupons/user-coupons/"+uuid.NewString()+"/revoke", "", uuid.NewString())

	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}
