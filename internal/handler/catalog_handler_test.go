package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayrewards/coupon-engine/internal/model"
	"github.com/stayrewards/coupon-engine/internal/service"
	appvalidator "github.com/stayrewards/coupon-engine/internal/validator"
)

// mockCatalogService is a mock implementation of CatalogServiceInterface.
type mockCatalogService struct {
	createFn       func(ctx context.Context, req *model.CreateCouponRequest, createdBy uuid.UUID) (*model.Coupon, error)
	getFn          func(ctx context.Context, id uuid.UUID) (*model.Coupon, error)
	listFn         func(ctx context.Context, asOf time.Time) iter.Seq2[*model.Coupon, error]
	updateStatusFn func(ctx context.Context, id uuid.UUID, next model.CouponStatus) (*model.Coupon, error)
}

func (m *mockCatalogService) CreateCoupon(ctx context.Context, req *model.CreateCouponRequest, createdBy uuid.UUID) (*model.Coupon, error) {
	if m.createFn != nil {
		return m.createFn(ctx, req, createdBy)
	}
	return &model.Coupon{ID: uuid.New(), Code: req.Code, Status: model.CouponDraft}, nil
}

func (m *mockCatalogService) GetCoupon(ctx context.Context, id uuid.UUID) (*model.Coupon, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return &model.Coupon{ID: id}, nil
}

func (m *mockCatalogService) ListActiveCoupons(ctx context.Context, asOf time.Time) iter.Seq2[*model.Coupon, error] {
	if m.listFn != nil {
		return m.listFn(ctx, asOf)
	}
	return func(yield func(*model.Coupon, error) bool) {}
}

func (m *mockCatalogService) UpdateStatus(ctx context.Context, id uuid.UUID, next model.CouponStatus) (*model.Coupon, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, next)
	}
	return &model.Coupon{ID: id, Status: next}, nil
}

func setupCatalogApp(mockSvc *mockCatalogService) *fiber.App {
	app := fiber.New()
	h := NewCatalogHandler(mockSvc, appvalidator.New())
	app.Post("/api/coupons", h.CreateCoupon)
	app.Get("/api/coupons", h.ListCoupons)
	app.Get("/api/coupons/:id", h.GetCoupon)
	app.Patch("/api/coupons/:id/status", h.UpdateStatus)
	return app
}

const createBody = `{
	"code": "WELCOME10",
	"name": "Welcome discount",
	"kind": "percentage",
	"value": 10,
	"valid_from": "2026-06-01T00:00:00Z",
	"valid_until": "2026-12-31T00:00:00Z",
	"usage_limit": 1000,
	"usage_limit_per_user": 1
}`

func postJSON(t *testing.T, app *fiber.App, method, path, body string, actor string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func TestCatalogHandler_CreateCoupon_Success(t *testing.T) {
	actor := uuid.New()
	mockSvc := &mockCatalogService{
		createFn: func(ctx context.Context, req *model.CreateCouponRequest, createdBy uuid.UUID) (*model.Coupon, error) {
			assert.Equal(t, actor, createdBy)
			assert.Equal(t, "WELCOME10", req.Code)
			return &model.Coupon{ID: uuid.New(), Code: req.Code, Status: model.CouponDraft}, nil
		},
	}
	app := setupCatalogApp(mockSvc)

	resp := postJSON(t, app, http.MethodPost, "/api/coupons", createBody, actor.String())

	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	result := decodeJSON(t, resp)
	assert.Equal(t, "WELCOME10", result["code"])
	assert.Equal(t, "draft", result["status"])
}

func TestCatalogHandler_CreateCoupon_MissingActor(t *testing.T) {
	app := setupCatalogApp(&mockCatalogService{})

	resp := postJSON(t, app, http.MethodPost, "/api/coupons", createBody, "")

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid actor id", decodeJSON(t, resp)["error"])
}

func TestCatalogHandler_CreateCoupon_BlankCode(t *testing.T) {
	app := setupCatalogApp(&mockCatalogService{
		createFn: func(ctx context.Context, req *model.CreateCouponRequest, createdBy uuid.UUID) (*model.Coupon, error) {
			t.Fatal("service must not be reached for a blank code")
			return nil, nil
		},
	})

	body := `{"code": "   ", "name": "x", "kind": "percentage", "value": 10,
		"valid_from": "2026-06-01T00:00:00Z", "valid_until": "2026-12-31T00:00:00Z",
		"usage_limit": 1, "usage_limit_per_user": 1}`
	resp := postJSON(t, app, http.MethodPost, "/api/coupons", body, uuid.NewString())

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid request: Code cannot be blank", decodeJSON(t, resp)["error"])
}

func TestCatalogHandler_CreateCoupon_DuplicateCode(t *testing.T) {
	app := setupCatalogApp(&mockCatalogService{
		createFn: func(ctx context.Context, req *model.CreateCouponRequest, createdBy uuid.UUID) (*model.Coupon, error) {
			return nil, service.ErrDuplicateCode
		},
	})

	resp := postJSON(t, app, http.MethodPost, "/api/coupons", createBody, uuid.NewString())

	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	result := decodeJSON(t, resp)
	assert.Equal(t, "duplicate_code", result["code"])
}

func TestCatalogHandler_CreateCoupon_InvalidDefinition(t *testing.T) {
	app := setupCatalogApp(&mockCatalogService{
		createFn: func(ctx context.Context, req *model.CreateCouponRequest, createdBy uuid.UUID) (*model.Coupon, error) {
			return nil, service.ErrInvalidDefinition
		},
	})

	resp := postJSON(t, app, http.MethodPost, "/api/coupons", createBody, uuid.NewString())

	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "invalid_definition", decodeJSON(t, resp)["code"])
}

func TestCatalogHandler_GetCoupon_InvalidID(t *testing.T) {
	app := setupCatalogApp(&mockCatalogService{})

	resp := postJSON(t, app, http.MethodGet, "/api/coupons/not-a-uuid", "", uuid.NewString())

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCatalogHandler_GetCoupon_NotFound(t *testing.T) {
	app := setupCatalogApp(&mockCatalogService{
		getFn: func(ctx context.Context, id uuid.UUID) (*model.Coupon, error) {
			return nil, service.ErrCouponNotFound
		},
	})

	resp := postJSON(t, app, http.MethodGet, "/api/coupons/"+uuid.NewString(), "", "")

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "coupon_not_found", decodeJSON(t, resp)["code"])
}

func TestCatalogHandler_ListCoupons(t *testing.T) {
	app := setupCatalogApp(&mockCatalogService{
		listFn: func(ctx context.Context, asOf time.Time) iter.Seq2[*model.Coupon, error] {
			return func(yield func(*model.Coupon, error) bool) {
				yield(&model.Coupon{ID: uuid.New(), Code: "A"}, nil)
				yield(&model.Coupon{ID: uuid.New(), Code: "B"}, nil)
			}
		},
	})

	resp := postJSON(t, app, http.MethodGet, "/api/coupons", "", "")

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	result := decodeJSON(t, resp)
	coupons, ok := result["coupons"].([]any)
	require.True(t, ok)
	assert.Len(t, coupons, 2)
}

func TestCatalogHandler_UpdateStatus_Success(t *testing.T) {
	id := uuid.New()
	app := setupCatalogApp(&mockCatalogService{
		updateStatusFn: func(ctx context.Context, gotID uuid.UUID, next model.CouponStatus) (*model.Coupon, error) {
			assert.Equal(t, id, gotID)
			assert.Equal(t, model.CouponActive, next)
			return &model.Coupon{ID: gotID, Status: next}, nil
		},
	})

	resp := postJSON(t, app, http.MethodPatch, "/api/coupons/"+id.String()+"/status",
		`{"status": "active"}`, uuid.NewString())

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "active", decodeJSON(t, resp)["status"])
}

func TestCatalogHandler_UpdateStatus_UnsupportedValue(t *testing.T) {
	app := setupCatalogApp(&mockCatalogService{})

	resp := postJSON(t, app, http.MethodPatch, "/api/coupons/"+uuid.NewString()+"/status",
		`{"status": "deleted"}`, uuid.NewString())

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid request: Status has an unsupported value", decodeJSON(t, resp)["error"])
}

func TestCatalogHandler_UpdateStatus_InvalidTransition(t *testing.T) {
	app := setupCatalogApp(&mockCatalogService{
		updateStatusFn: func(ctx context.Context, id uuid.UUID, next model.CouponStatus) (*model.Coupon, error) {
			return nil, service.ErrInvalidTransition
		},
	})

	resp := postJSON(t, app, http.MethodPatch, "/api/coupons/"+uuid.NewString()+"/status",
		`{"status": "paused"}`, uuid.NewString())

	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "invalid_transition", decodeJSON(t, resp)["code"])
}
