// Package cache provides an optional redis read-through cache for coupon
// templates. Templates are immutable-by-convention apart from controlled
// status transitions, which invalidate the cached copy; assignment-path
// reads bypass the cache entirely because they need a locked row.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/stayrewards/coupon-engine/internal/model"
)

// CouponSource is the underlying store the cache fills from.
type CouponSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Coupon, error)
}

// CouponCache is a read-through template cache. A nil redis client turns
// it into a passthrough, so wiring stays the same with caching disabled.
type CouponCache struct {
	client *redis.Client
	source CouponSource
	ttl    time.Duration
}

// NewCouponCache creates a CouponCache. client may be nil.
func NewCouponCache(client *redis.Client, source CouponSource, ttl time.Duration) *CouponCache {
	return &CouponCache{client: client, source: source, ttl: ttl}
}

func cacheKey(id uuid.UUID) string {
	return "coupon:" + id.String()
}

// GetByID returns the cached template when present, falling back to the
// source. Cache failures degrade to a source read, never to an error.
func (c *CouponCache) GetByID(ctx context.Context, id uuid.UUID) (*model.Coupon, error) {
	if c.client == nil {
		return c.source.GetByID(ctx, id)
	}

	raw, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if err == nil {
		var coupon model.Coupon
		if err := json.Unmarshal(raw, &coupon); err == nil {
			return &coupon, nil
		}
		// Corrupt entry; drop it and fall through to the source.
		c.client.Del(ctx, cacheKey(id))
	} else if !errors.Is(err, redis.Nil) {
		log.Warn().Err(err).Str("coupon_id", id.String()).Msg("coupon cache read failed")
	}

	coupon, err := c.source.GetByID(ctx, id)
	if err != nil || coupon == nil {
		return coupon, err
	}

	if raw, err := json.Marshal(coupon); err == nil {
		if err := c.client.Set(ctx, cacheKey(id), raw, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("coupon_id", id.String()).Msg("coupon cache write failed")
		}
	}
	return coupon, nil
}

// Invalidate drops the cached copy after a lifecycle transition.
func (c *CouponCache) Invalidate(ctx context.Context, id uuid.UUID) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		log.Warn().Err(err).Str("coupon_id", id.String()).Msg("coupon cache invalidation failed")
	}
}
