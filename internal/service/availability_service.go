package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/stayrewards/coupon-engine/internal/model"
)

// AvailabilityCouponRepo is the discovery-side catalog access.
type AvailabilityCouponRepo interface {
	ListAssignable(ctx context.Context, userID uuid.UUID, asOf time.Time) ([]*model.Coupon, error)
}

// UserCouponReader is the wallet projection and admin listing access.
type UserCouponReader interface {
	ListRedeemableByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]*model.UserCouponDetail, error)
	ListByCoupon(ctx context.Context, couponID uuid.UUID, limit, offset int) ([]*model.UserCoupon, int64, error)
	ListRedeemedByCoupon(ctx context.Context, couponID uuid.UUID, limit, offset int) ([]*model.UserCoupon, int64, error)
}

// AnalyticsRepo aggregates over the audit and assignment tables.
type AnalyticsRepo interface {
	Stats(ctx context.Context) (*model.CouponStats, error)
	RedemptionsByDay(ctx context.Context, since time.Time) ([]*model.RedemptionsByDay, error)
}

// AvailabilityService is the read-only projection answering what a user can
// currently discover and use. It never mutates state and tolerates seeing
// either side of an in-flight transition.
type AvailabilityService struct {
	couponRepo AvailabilityCouponRepo
	ucRepo     UserCouponReader
	analytics  AnalyticsRepo
	codec      QREncoder
	now        func() time.Time
}

// NewAvailabilityService creates an AvailabilityService.
func NewAvailabilityService(couponRepo AvailabilityCouponRepo, ucRepo UserCouponReader, analytics AnalyticsRepo, codec QREncoder) *AvailabilityService {
	return &AvailabilityService{couponRepo: couponRepo, ucRepo: ucRepo, analytics: analytics, codec: codec, now: time.Now}
}

// GetAvailableCoupons lists active, in-window templates the user could
// still be granted under both usage caps. Discovery/browsing view.
func (s *AvailabilityService) GetAvailableCoupons(ctx context.Context, userID uuid.UUID) ([]*model.Coupon, error) {
	coupons, err := s.couponRepo.ListAssignable(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list available coupons: %w", err)
	}
	if coupons == nil {
		coupons = []*model.Coupon{}
	}
	return coupons, nil
}

// GetCustomerCoupons lists the user's redeemable wallet: assignment
// instances joined with coupon metadata, filtered by the same predicate
// the redemption state machine enforces. An instance shows up here if and
// only if redeeming it right now would succeed.
//
// Each entry carries the QR token the holder's device renders for
// scanning. Tokens are re-derived from the current signing key; signing
// with the original issue instant reproduces the token handed out at
// assignment time.
func (s *AvailabilityService) GetCustomerCoupons(ctx context.Context, userID uuid.UUID) ([]*model.UserCouponDetail, error) {
	details, err := s.ucRepo.ListRedeemableByUser(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list customer coupons: %w", err)
	}
	for _, d := range details {
		token, err := s.codec.Encode(d.ID, d.CouponID, d.UserID, d.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("encode wallet qr token: %w", err)
		}
		d.QRToken = token
	}
	return details, nil
}

const (
	defaultListingPageSize = 20
	maxListingPageSize     = 50
)

// GetCouponAssignments pages every assignment of a coupon, newest first,
// for the admin audit view. Returns the page and the unpaged total.
func (s *AvailabilityService) GetCouponAssignments(ctx context.Context, couponID uuid.UUID, page, limit int) ([]*model.UserCoupon, int64, error) {
	limit, offset := listingWindow(page, limit)
	items, total, err := s.ucRepo.ListByCoupon(ctx, couponID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list coupon assignments: %w", err)
	}
	return items, total, nil
}

// GetCouponRedemptions pages the used instances of a coupon ordered by
// redemption time, newest first.
func (s *AvailabilityService) GetCouponRedemptions(ctx context.Context, couponID uuid.UUID, page, limit int) ([]*model.UserCoupon, int64, error) {
	limit, offset := listingWindow(page, limit)
	items, total, err := s.ucRepo.ListRedeemedByCoupon(ctx, couponID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list coupon redemptions: %w", err)
	}
	return items, total, nil
}

func listingWindow(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit == 0 {
		limit = defaultListingPageSize
	}
	limit = lo.Clamp(limit, 1, maxListingPageSize)
	return limit, (page - 1) * limit
}

// GetCouponStats is the admin aggregate: catalog totals, assignment totals
// and the redemption rate.
func (s *AvailabilityService) GetCouponStats(ctx context.Context) (*model.CouponStats, error) {
	stats, err := s.analytics.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("coupon stats: %w", err)
	}
	return stats, nil
}

// GetRedemptionsByDay returns the per-day successful redemption series for
// the trailing number of days, capped at one year.
func (s *AvailabilityService) GetRedemptionsByDay(ctx context.Context, days int) ([]*model.RedemptionsByDay, error) {
	days = lo.Clamp(days, 1, 365)
	since := s.now().UTC().AddDate(0, 0, -days)

	points, err := s.analytics.RedemptionsByDay(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("redemptions by day: %w", err)
	}
	return points, nil
}
