package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Schema statements are applied in order on every startup. The schema is
// forward-only: CREATE statements use IF NOT EXISTS, and ALTER TABLE ADD
// COLUMN on an existing column is treated as a no-op.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		telegram_user_id BIGINT UNIQUE NOT NULL,
		username TEXT,
		ton_wallet TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS channels (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		telegram_chat_id BIGINT,
		username TEXT UNIQUE NOT NULL,
		name TEXT,
		category TEXT,
		price_ton NUMERIC(20,9) NOT NULL DEFAULT 0,
		subscribers INT NOT NULL DEFAULT 0,
		verified BOOLEAN NOT NULL DEFAULT false,
		bot_is_admin BOOLEAN NOT NULL DEFAULT false,
		bot_can_post BOOLEAN NOT NULL DEFAULT false,
		owner_user_id UUID REFERENCES users(id),
		owner_ton_wallet TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS channel_admins (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		channel_id UUID NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role TEXT NOT NULL CHECK (role IN ('owner', 'manager', 'poster')),
		last_verified_at TIMESTAMPTZ,
		UNIQUE(channel_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS campaigns (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		advertiser_id UUID NOT NULL REFERENCES users(id),
		title TEXT NOT NULL,
		ad_text TEXT,
		budget_ton NUMERIC(20,9) NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS deals (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		campaign_id UUID REFERENCES campaigns(id),
		channel_id UUID NOT NULL REFERENCES channels(id),
		status TEXT NOT NULL DEFAULT 'pending',
		escrow_amount NUMERIC(20,9) NOT NULL,
		advertiser_wallet TEXT,
		channel_owner_wallet TEXT,
		message_id BIGINT,
		posted_at TIMESTAMPTZ,
		hold_hours INT NOT NULL DEFAULT 24,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS escrow_wallets (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		deal_id UUID UNIQUE NOT NULL REFERENCES deals(id),
		address TEXT NOT NULL,
		encrypted_mnemonic TEXT NOT NULL,
		wallet_version TEXT NOT NULL DEFAULT 'v4r2',
		balance NUMERIC(20,9) NOT NULL DEFAULT 0,
		last_checked_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS escrow_transactions (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		wallet_id UUID NOT NULL REFERENCES escrow_wallets(id),
		deal_id UUID NOT NULL REFERENCES deals(id),
		tx_hash TEXT UNIQUE NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('deposit', 'release', 'refund')),
		amount NUMERIC(20,9) NOT NULL DEFAULT 0,
		from_addr TEXT,
		to_addr TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS scheduled_posts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		deal_id UUID UNIQUE NOT NULL REFERENCES deals(id),
		channel_id UUID NOT NULL REFERENCES channels(id),
		ad_text TEXT NOT NULL,
		scheduled_time TIMESTAMPTZ NOT NULL,
		posted_at TIMESTAMPTZ,
		message_id BIGINT,
		hold_hours INT NOT NULL DEFAULT 24,
		release_at TIMESTAMPTZ,
		status TEXT NOT NULL DEFAULT 'scheduled',
		last_verified_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS audit_log (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		actor_user_id UUID,
		actor_type TEXT NOT NULL DEFAULT 'system',
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id UUID,
		meta JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_deals_status ON deals(status)`,
	`CREATE INDEX IF NOT EXISTS idx_deals_channel ON deals(channel_id)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_status_time ON scheduled_posts(status, scheduled_time)`,
	`CREATE INDEX IF NOT EXISTS idx_tx_deal ON escrow_transactions(deal_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id)`,

	// Columns added after the initial schema shipped. Safe to re-run.
	`ALTER TABLE channels ADD COLUMN owner_ton_wallet TEXT`,
	`ALTER TABLE deals ADD COLUMN hold_hours INT NOT NULL DEFAULT 24`,
	`ALTER TABLE scheduled_posts ADD COLUMN last_verified_at TIMESTAMPTZ`,
}

func Migrate(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			if isDuplicateObject(err) {
				continue
			}
			return err
		}
	}
	log.Info("schema migrations applied", zap.Int("statements", len(schemaStatements)))
	return nil
}

// isDuplicateObject reports whether err means the object being added
// already exists (duplicate column/object/table).
func isDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "42701", "42710", "42P07":
		return true
	}
	return strings.Contains(pgErr.Message, "already exists")
}
