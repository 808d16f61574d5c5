package service

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/stayrewards/coupon-engine/internal/model"
)

// CatalogRepositoryInterface defines the catalog data access used by the
// catalog service.
type CatalogRepositoryInterface interface {
	Insert(ctx context.Context, c *model.Coupon) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Coupon, error)
	ListActive(ctx context.Context, asOf time.Time) iter.Seq2[*model.Coupon, error]
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.CouponStatus) (bool, error)
}

// CatalogInvalidator is notified when a template changes, so cached copies
// are dropped. A nil invalidator is allowed.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context, couponID uuid.UUID)
}

// CatalogService owns coupon template definitions and their lifecycle.
type CatalogService struct {
	repo        CatalogRepositoryInterface
	invalidator CatalogInvalidator
	now         func() time.Time
}

// NewCatalogService creates a CatalogService. invalidator may be nil.
func NewCatalogService(repo CatalogRepositoryInterface, invalidator CatalogInvalidator) *CatalogService {
	return &CatalogService{repo: repo, invalidator: invalidator, now: time.Now}
}

var hundred = decimal.NewFromInt(100)

// validateDefinition enforces the template invariants: an open window,
// positive value, and a percentage bounded to (0, 100].
func validateDefinition(req *model.CreateCouponRequest) error {
	if !req.ValidFrom.Before(req.ValidUntil) {
		return fmt.Errorf("%w: valid_from must precede valid_until", ErrInvalidDefinition)
	}
	if !req.Value.IsPositive() {
		return fmt.Errorf("%w: value must be positive", ErrInvalidDefinition)
	}
	if req.Kind == model.KindPercentage && req.Value.GreaterThan(hundred) {
		return fmt.Errorf("%w: percentage value must not exceed 100", ErrInvalidDefinition)
	}
	if req.MinimumSpend != nil && req.MinimumSpend.IsNegative() {
		return fmt.Errorf("%w: minimum_spend must not be negative", ErrInvalidDefinition)
	}
	if req.MaximumDiscount != nil && !req.MaximumDiscount.IsPositive() {
		return fmt.Errorf("%w: maximum_discount must be positive", ErrInvalidDefinition)
	}
	return nil
}

// CreateCoupon validates and persists a new template. New coupons start as
// drafts and are activated through UpdateStatus.
// Returns ErrInvalidDefinition or ErrDuplicateCode on rejection.
func (s *CatalogService) CreateCoupon(ctx context.Context, req *model.CreateCouponRequest, createdBy uuid.UUID) (*model.Coupon, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty request", ErrInvalidDefinition)
	}
	if err := validateDefinition(req); err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = "THB"
	}

	now := s.now().UTC()
	coupon := &model.Coupon{
		ID:                uuid.New(),
		Code:              req.Code,
		Name:              req.Name,
		Description:       req.Description,
		Kind:              req.Kind,
		Value:             req.Value,
		Currency:          currency,
		MinimumSpend:      req.MinimumSpend,
		MaximumDiscount:   req.MaximumDiscount,
		ValidFrom:         req.ValidFrom,
		ValidUntil:        req.ValidUntil,
		UsageLimit:        req.UsageLimit,
		UsageLimitPerUser: req.UsageLimitPerUser,
		Status:            model.CouponDraft,
		CreatedBy:         createdBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Insert(ctx, coupon); err != nil {
		return nil, err
	}

	log.Info().
		Str("coupon_id", coupon.ID.String()).
		Str("code", coupon.Code).
		Str("created_by", createdBy.String()).
		Msg("coupon created")

	return coupon, nil
}

// GetCoupon retrieves a template by id.
// Returns ErrCouponNotFound if it doesn't exist.
func (s *CatalogService) GetCoupon(ctx context.Context, id uuid.UUID) (*model.Coupon, error) {
	coupon, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}
	return coupon, nil
}

// ListActiveCoupons yields active templates whose window contains asOf.
func (s *CatalogService) ListActiveCoupons(ctx context.Context, asOf time.Time) iter.Seq2[*model.Coupon, error] {
	return s.repo.ListActive(ctx, asOf)
}

// UpdateStatus applies a lifecycle transition. Archiving is the soft
// delete: templates referenced by assignments are never removed.
// Returns ErrCouponNotFound or ErrInvalidTransition on rejection.
func (s *CatalogService) UpdateStatus(ctx context.Context, id uuid.UUID, next model.CouponStatus) (*model.Coupon, error) {
	coupon, err := s.GetCoupon(ctx, id)
	if err != nil {
		return nil, err
	}

	if !coupon.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, coupon.Status, next)
	}

	ok, err := s.repo.UpdateStatus(ctx, id, coupon.Status, next)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if !ok {
		// Lost a race with another transition; the stored status moved on.
		return nil, fmt.Errorf("%w: coupon status changed concurrently", ErrInvalidTransition)
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, id)
	}

	log.Info().
		Str("coupon_id", id.String()).
		Str("from", string(coupon.Status)).
		Str("to", string(next)).
		Msg("coupon status updated")

	coupon.Status = next
	return coupon, nil
}
