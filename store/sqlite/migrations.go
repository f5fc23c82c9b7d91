package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the trialpay store (SQLite).
var Migrations = migrate.NewGroup("trialpay")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_trialpay_grace_periods",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS trialpay_grace_periods (
    id                 TEXT PRIMARY KEY,
    user_id            TEXT NOT NULL,
    tenant_id          TEXT NOT NULL,
    start_date         INTEGER NOT NULL,
    end_date           INTEGER NOT NULL,
    duration_days      INTEGER NOT NULL,
    status             TEXT NOT NULL DEFAULT 'active',
    source             TEXT NOT NULL,
    source_details     TEXT NOT NULL DEFAULT '{}',
    notifications_sent TEXT NOT NULL DEFAULT '[]',
    original_end_date  INTEGER,
    extension_history  TEXT NOT NULL DEFAULT '[]',
    converted_at       INTEGER,
    selected_plan_id   TEXT NOT NULL DEFAULT '',
    subscription_id    TEXT NOT NULL DEFAULT '',
    expired_at         INTEGER,
    cancelled_at       INTEGER,
    cancel_reason      TEXT NOT NULL DEFAULT '',
    metadata           TEXT NOT NULL DEFAULT '{}',
    created_at         INTEGER NOT NULL,
    updated_at         INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_trialpay_grace_periods_active_user
    ON trialpay_grace_periods (user_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_trialpay_grace_periods_status_end
    ON trialpay_grace_periods (status, end_date);
CREATE INDEX IF NOT EXISTS idx_trialpay_grace_periods_tenant
    ON trialpay_grace_periods (tenant_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS trialpay_grace_periods`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_trialpay_promo_codes",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS trialpay_promo_codes (
    id                  TEXT PRIMARY KEY,
    code                TEXT NOT NULL,
    description         TEXT NOT NULL DEFAULT '',
    discount_type       TEXT NOT NULL,
    percentage          REAL NOT NULL DEFAULT 0,
    amount              INTEGER NOT NULL DEFAULT 0,
    amount_currency     TEXT NOT NULL DEFAULT '',
    is_active           INTEGER NOT NULL DEFAULT 1,
    deactivation_reason TEXT NOT NULL DEFAULT '',
    valid_from          INTEGER NOT NULL,
    valid_until         INTEGER,
    max_uses            INTEGER NOT NULL DEFAULT 0,
    current_uses        INTEGER NOT NULL DEFAULT 0,
    max_uses_per_user   INTEGER NOT NULL DEFAULT 0,
    applicable_plans    TEXT NOT NULL DEFAULT '[]',
    minimum_amount      INTEGER NOT NULL DEFAULT 0,
    minimum_currency    TEXT NOT NULL DEFAULT '',
    new_users_only      INTEGER NOT NULL DEFAULT 0,
    tenant_id           TEXT NOT NULL DEFAULT '',
    created_by          TEXT NOT NULL DEFAULT '',
    metadata            TEXT NOT NULL DEFAULT '{}',
    created_at          INTEGER NOT NULL,
    updated_at          INTEGER NOT NULL,
    CHECK (current_uses >= 0 AND (max_uses = 0 OR current_uses <= max_uses))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_trialpay_promo_codes_code ON trialpay_promo_codes (code);
CREATE INDEX IF NOT EXISTS idx_trialpay_promo_codes_tenant ON trialpay_promo_codes (tenant_id, is_active);

CREATE TABLE IF NOT EXISTS trialpay_promo_code_usages (
    id                TEXT PRIMARY KEY,
    promo_code_id     TEXT NOT NULL,
    user_id           TEXT NOT NULL,
    tenant_id         TEXT NOT NULL DEFAULT '',
    subscription_id   TEXT NOT NULL DEFAULT '',
    discount_amount   INTEGER NOT NULL DEFAULT 0,
    discount_currency TEXT NOT NULL DEFAULT '',
    used_at           INTEGER NOT NULL,
    ip_address        TEXT NOT NULL DEFAULT '',
    user_agent        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_trialpay_promo_code_usages_code_user
    ON trialpay_promo_code_usages (promo_code_id, user_id);
CREATE INDEX IF NOT EXISTS idx_trialpay_promo_code_usages_subscription
    ON trialpay_promo_code_usages (subscription_id);

CREATE TABLE IF NOT EXISTS trialpay_validation_attempts (
    id           TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL,
    code         TEXT NOT NULL DEFAULT '',
    attempted_at INTEGER NOT NULL,
    ip_address   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_trialpay_validation_attempts_user_time
    ON trialpay_validation_attempts (user_id, attempted_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS trialpay_validation_attempts;
DROP TABLE IF EXISTS trialpay_promo_code_usages;
DROP TABLE IF EXISTS trialpay_promo_codes;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_trialpay_subscriptions",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS trialpay_subscriptions (
    id                   TEXT PRIMARY KEY,
    tenant_id            TEXT NOT NULL,
    user_id              TEXT NOT NULL DEFAULT '',
    plan_id              TEXT NOT NULL,
    status               TEXT NOT NULL,
    billing_cycle        TEXT NOT NULL DEFAULT 'monthly',
    currency             TEXT NOT NULL DEFAULT '',
    base_price           INTEGER NOT NULL DEFAULT 0,
    discount_amount      INTEGER NOT NULL DEFAULT 0,
    amount               INTEGER NOT NULL DEFAULT 0,
    grace_period_id      TEXT NOT NULL DEFAULT '',
    applied_promo_code   TEXT NOT NULL DEFAULT '',
    current_period_start INTEGER NOT NULL,
    current_period_end   INTEGER NOT NULL,
    canceled_at          INTEGER,
    cancel_reason        TEXT NOT NULL DEFAULT '',
    metadata             TEXT NOT NULL DEFAULT '{}',
    created_at           INTEGER NOT NULL,
    updated_at           INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trialpay_subscriptions_status_created
    ON trialpay_subscriptions (status, created_at);
CREATE INDEX IF NOT EXISTS idx_trialpay_subscriptions_tenant
    ON trialpay_subscriptions (tenant_id);
CREATE INDEX IF NOT EXISTS idx_trialpay_subscriptions_grace
    ON trialpay_subscriptions (grace_period_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS trialpay_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_trialpay_plans_and_tenants",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS trialpay_plans (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    slug           TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    price          INTEGER NOT NULL DEFAULT 0,
    currency       TEXT NOT NULL,
    billing_period TEXT NOT NULL DEFAULT 'monthly',
    status         TEXT NOT NULL DEFAULT 'active',
    trial_days     INTEGER NOT NULL DEFAULT 0,
    features       TEXT NOT NULL DEFAULT '[]',
    metadata       TEXT NOT NULL DEFAULT '{}',
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_trialpay_plans_slug ON trialpay_plans (slug);

CREATE TABLE IF NOT EXISTS trialpay_tenants (
    id             TEXT PRIMARY KEY,
    active_plan_id TEXT NOT NULL DEFAULT '',
    billing_status TEXT NOT NULL DEFAULT 'trialing',
    updated_at     INTEGER NOT NULL
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS trialpay_tenants;
DROP TABLE IF EXISTS trialpay_plans;
`)
				return err
			},
		},
	)
}
