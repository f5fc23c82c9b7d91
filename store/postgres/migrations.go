package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the trialpay store.
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
    start_date         TIMESTAMPTZ NOT NULL,
    end_date           TIMESTAMPTZ NOT NULL,
    duration_days      INT NOT NULL,
    status             TEXT NOT NULL DEFAULT 'active',
    source             TEXT NOT NULL,
    source_details     JSONB NOT NULL DEFAULT '{}',
    notifications_sent JSONB NOT NULL DEFAULT '[]',
    original_end_date  TIMESTAMPTZ,
    extension_history  JSONB NOT NULL DEFAULT '[]',
    converted_at       TIMESTAMPTZ,
    selected_plan_id   TEXT NOT NULL DEFAULT '',
    subscription_id    TEXT NOT NULL DEFAULT '',
    expired_at         TIMESTAMPTZ,
    cancelled_at       TIMESTAMPTZ,
    cancel_reason      TEXT NOT NULL DEFAULT '',
    metadata           JSONB NOT NULL DEFAULT '{}',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    percentage          NUMERIC(5,2) NOT NULL DEFAULT 0,
    amount              BIGINT NOT NULL DEFAULT 0,
    amount_currency     TEXT NOT NULL DEFAULT '',
    is_active           BOOLEAN NOT NULL DEFAULT TRUE,
    deactivation_reason TEXT NOT NULL DEFAULT '',
    valid_from          TIMESTAMPTZ NOT NULL,
    valid_until         TIMESTAMPTZ,
    max_uses            INT NOT NULL DEFAULT 0,
    current_uses        INT NOT NULL DEFAULT 0,
    max_uses_per_user   INT NOT NULL DEFAULT 0,
    applicable_plans    JSONB NOT NULL DEFAULT '[]',
    minimum_amount      BIGINT NOT NULL DEFAULT 0,
    minimum_currency    TEXT NOT NULL DEFAULT '',
    new_users_only      BOOLEAN NOT NULL DEFAULT FALSE,
    tenant_id           TEXT NOT NULL DEFAULT '',
    created_by          TEXT NOT NULL DEFAULT '',
    metadata            JSONB NOT NULL DEFAULT '{}',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT chk_trialpay_promo_codes_uses
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
    discount_amount   BIGINT NOT NULL DEFAULT 0,
    discount_currency TEXT NOT NULL DEFAULT '',
    used_at           TIMESTAMPTZ NOT NULL,
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
    attempted_at TIMESTAMPTZ NOT NULL,
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
    base_price           BIGINT NOT NULL DEFAULT 0,
    discount_amount      BIGINT NOT NULL DEFAULT 0,
    amount               BIGINT NOT NULL DEFAULT 0,
    grace_period_id      TEXT NOT NULL DEFAULT '',
    applied_promo_code   JSONB,
    current_period_start TIMESTAMPTZ NOT NULL,
    current_period_end   TIMESTAMPTZ NOT NULL,
    canceled_at          TIMESTAMPTZ,
    cancel_reason        TEXT NOT NULL DEFAULT '',
    metadata             JSONB NOT NULL DEFAULT '{}',
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    price          BIGINT NOT NULL DEFAULT 0,
    currency       TEXT NOT NULL,
    billing_period TEXT NOT NULL DEFAULT 'monthly',
    status         TEXT NOT NULL DEFAULT 'active',
    trial_days     INT NOT NULL DEFAULT 0,
    features       JSONB NOT NULL DEFAULT '[]',
    metadata       JSONB NOT NULL DEFAULT '{}',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_trialpay_plans_slug ON trialpay_plans (slug);

CREATE TABLE IF NOT EXISTS trialpay_tenants (
    id             TEXT PRIMARY KEY,
    active_plan_id TEXT NOT NULL DEFAULT '',
    billing_status TEXT NOT NULL DEFAULT 'trialing',
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
