package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// schema is idempotent DDL for the engine's three tables.
//
// The partial unique index on coupons.code enforces code uniqueness among
// non-archived coupons only: an archived code may be reused by a new
// template. user_coupons rows are never deleted; redemption_events is
// append-only.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS coupons (
		id                   UUID PRIMARY KEY,
		code                 TEXT NOT NULL,
		name                 TEXT NOT NULL,
		description          TEXT NOT NULL DEFAULT '',
		kind                 TEXT NOT NULL CHECK (kind IN ('percentage', 'fixed_amount')),
		value                NUMERIC(12,2) NOT NULL CHECK (value > 0),
		currency             TEXT NOT NULL DEFAULT 'THB',
		minimum_spend        NUMERIC(12,2),
		maximum_discount     NUMERIC(12,2),
		valid_from           TIMESTAMPTZ NOT NULL,
		valid_until          TIMESTAMPTZ NOT NULL,
		usage_limit          INTEGER NOT NULL CHECK (usage_limit >= 1),
		usage_limit_per_user INTEGER NOT NULL CHECK (usage_limit_per_user >= 1),
		status               TEXT NOT NULL DEFAULT 'draft'
		                     CHECK (status IN ('draft', 'active', 'paused', 'archived')),
		created_by           UUID NOT NULL,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (valid_from < valid_until)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS coupons_code_live_idx
		ON coupons (code) WHERE status <> 'archived'`,
	`CREATE TABLE IF NOT EXISTS user_coupons (
		id              UUID PRIMARY KEY,
		coupon_id       UUID NOT NULL REFERENCES coupons (id),
		user_id         UUID NOT NULL,
		status          TEXT NOT NULL DEFAULT 'available'
		                CHECK (status IN ('available', 'used', 'expired', 'revoked')),
		qr_nonce        TEXT NOT NULL,
		assigned_by     UUID NOT NULL,
		assigned_reason TEXT NOT NULL DEFAULT '',
		expires_at      TIMESTAMPTZ,
		used_at         TIMESTAMPTZ,
		used_by         UUID,
		used_channel    TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS user_coupons_user_idx ON user_coupons (user_id)`,
	`CREATE INDEX IF NOT EXISTS user_coupons_coupon_idx ON user_coupons (coupon_id)`,
	`CREATE TABLE IF NOT EXISTS redemption_events (
		id             UUID PRIMARY KEY,
		user_coupon_id UUID NOT NULL REFERENCES user_coupons (id),
		outcome        TEXT NOT NULL,
		actor          UUID NOT NULL,
		channel        TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS redemption_events_uc_idx ON redemption_events (user_coupon_id)`,
}

// Migrate applies the schema. Safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	log.Info().Msg("database schema up to date")
	return nil
}
