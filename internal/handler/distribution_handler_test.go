package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayrewards/coupon-engine/internal/model"
	appvalidator "github.com/stayrewards/coupon-engine/internal/validator"
)

// mockDistributionService is a mock implementation of DistributionServiceInterface.
type mockDistributionService struct {
	distributeFn func(ctx context.Context, couponID uuid.UUID, userIDs []uuid.UUID, assignedBy uuid.UUID, reason string, customExpiry *time.Time) []*model.AssignmentResult
}

func (m *mockDistributionService) BatchDistribute(ctx context.Context, couponID uuid.UUID, userIDs []uuid.UUID, assignedBy uuid.UUID, reason string, customExpiry *time.Time) []*model.AssignmentResult {
	if m.distributeFn != nil {
		return m.distributeFn(ctx, couponID, userIDs, assignedBy, reason, customExpiry)
	}
	return nil
}

func setupDistributionApp(mockSvc *mockDistributionService) *fiber.App {
	app := fiber.New()
	h := NewDistributionHandler(mockSvc, appvalidator.New())
	app.Post("/api/coupons/distribute", h.Distribute)
	return app
}

func TestDistributionHandler_Distribute_MultiStatus(t *testing.T) {
	couponID := uuid.New()
	granted := uuid.New()
	rejected := uuid.New()

	mockSvc := &mockDistributionService{
		distributeFn: func(ctx context.Context, gotCoupon uuid.UUID, userIDs []uuid.UUID, assignedBy uuid.UUID, reason string, customExpiry *time.Time) []*model.AssignmentResult {
			assert.Equal(t, couponID, gotCoupon)
			assert.Equal(t, "summer campaign", reason)
			require.Len(t, userIDs, 2)
			return []*model.AssignmentResult{
				{UserID: granted, UserCoupon: &model.UserCoupon{ID: uuid.New()}, QRToken: "signed-token"},
				{UserID: rejected, Error: "usage_limit_exceeded"},
			}
		},
	}
	app := setupDistributionApp(mockSvc)

	body := fmt.Sprintf(`{"coupon_id": %q, "user_ids": [%q, %q], "assigned_reason": "summer campaign"}`,
		couponID, granted, rejected)
	resp := postJSON(t, app, http.MethodPost, "/api/coupons/distribute", body, uuid.NewString())

	assert.Equal(t, fiber.StatusMultiStatus, resp.StatusCode, "partial failure is the expected shape")
	result := decodeJSON(t, resp)
	results, ok := result["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 2)

	first := results[0].(map[string]any)
	assert.Equal(t, "signed-token", first["qr_token"])
	second := results[1].(map[string]any)
	assert.Equal(t, "usage_limit_exceeded", second["error"])
}

func TestDistributionHandler_Distribute_MissingCouponID(t *testing.T) {
	app := setupDistributionApp(&mockDistributionService{
		distributeFn: func(ctx context.Context, couponID uuid.UUID, userIDs []uuid.UUID, assignedBy uuid.UUID, reason string, customExpiry *time.Time) []*model.AssignmentResult {
			t.Fatal("service must not be reached without a coupon id")
			return nil
		},
	})

	body := fmt.Sprintf(`{"user_ids": [%q]}`, uuid.New())
	resp := postJSON(t, app, http.MethodPost, "/api/coupons/distribute", body, uuid.NewString())

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestDistributionHandler_Distribute_EmptyUserList(t *testing.T) {
	app := setupDistributionApp(&mockDistributionService{})

	body := fmt.Sprintf(`{"coupon_id": %q, "user_ids": []}`, uuid.New())
	resp := postJSON(t, app, http.MethodPost, "/api/coupons/distribute", body, uuid.NewString())

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid request: UserIDs below minimum", decodeJSON(t, resp)["error"])
}

func TestDistributionHandler_Distribute_BatchTooLarge(t *testing.T) {
	app := setupDistributionApp(&mockDistributionService{})

	ids := make([]string, 101)
	for i := range ids {
		ids[i] = fmt.Sprintf("%q", uuid.New())
	}
	body := fmt.Sprintf(`{"coupon_id": %q, "user_ids": [%s]}`, uuid.New(), strings.Join(ids, ","))
	resp := postJSON(t, app, http.MethodPost, "/api/coupons/distribute", body, uuid.NewString())

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid request: UserIDs exceeds maximum", decodeJSON(t, resp)["error"])
}

func TestDistributionHandler_Distribute_MissingActor(t *testing.T) {
	app := setupDistributionApp(&mockDistributionService{})

	body := fmt.Sprintf(`{"coupon_id": %q, "user_ids": [%q]}`, uuid.New(), uuid.New())
	resp := postJSON(t, app, http.MethodPost, "/api/coupons/distribute", body, "")

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid actor id", decodeJSON(t, resp)["error"])
}
