// Package plugin provides lifecycle hooks for trialpay. A plugin implements
// Plugin plus any subset of the hook interfaces; the Registry discovers them
// once at registration time.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/promocode"
	"github.com/xraph/trialpay/subscription"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Grace period hooks
// ──────────────────────────────────────────────────

type OnGracePeriodCreated interface {
	Plugin
	OnGracePeriodCreated(ctx context.Context, g *graceperiod.GracePeriod) error
}

type OnGracePeriodExtended interface {
	Plugin
	OnGracePeriodExtended(ctx context.Context, g *graceperiod.GracePeriod, ext graceperiod.Extension) error
}

type OnGracePeriodCancelled interface {
	Plugin
	OnGracePeriodCancelled(ctx context.Context, g *graceperiod.GracePeriod) error
}

type OnGracePeriodExpired interface {
	Plugin
	OnGracePeriodExpired(ctx context.Context, g *graceperiod.GracePeriod) error
}

// OnGracePeriodConverted is called once a conversion is fully linked.
type OnGracePeriodConverted interface {
	Plugin
	OnGracePeriodConverted(ctx context.Context, g *graceperiod.GracePeriod, sub *subscription.Subscription) error
}

// OnNotificationSent is called after a reminder was dispatched and recorded.
type OnNotificationSent interface {
	Plugin
	OnNotificationSent(ctx context.Context, g *graceperiod.GracePeriod, t graceperiod.NotificationType) error
}

// ──────────────────────────────────────────────────
// Promo code hooks
// ──────────────────────────────────────────────────

// OnPromoCodeValidated is called for every validation, successful or not.
type OnPromoCodeValidated interface {
	Plugin
	OnPromoCodeValidated(ctx context.Context, code string, result *promocode.ValidationResult) error
}

type OnPromoCodeApplied interface {
	Plugin
	OnPromoCodeApplied(ctx context.Context, p *promocode.PromoCode, u *promocode.Usage) error
}

type OnPromoCodeRevoked interface {
	Plugin
	OnPromoCodeRevoked(ctx context.Context, p *promocode.PromoCode, u *promocode.Usage) error
}

// OnPromoCodeExhausted is called when an application uses the last slot.
type OnPromoCodeExhausted interface {
	Plugin
	OnPromoCodeExhausted(ctx context.Context, p *promocode.PromoCode) error
}

// OnPromoCodeDrift is called when reconciliation finds a counter that did
// not match the usage records.
type OnPromoCodeDrift interface {
	Plugin
	OnPromoCodeDrift(ctx context.Context, p *promocode.PromoCode, recorded, counted int) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionCanceled is called when reconciliation cancels an orphan.
type OnSubscriptionCanceled interface {
	Plugin
	OnSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription, reason string) error
}

// ──────────────────────────────────────────────────
// Sweep hooks
// ──────────────────────────────────────────────────

type OnSweepCompleted interface {
	Plugin
	OnSweepCompleted(ctx context.Context, sweep string, processed, failed int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Extension points
// ──────────────────────────────────────────────────

// PromoCodeValidator adds rules on top of the built-in checks. Returning a
// non-nil result rejects the code with that result.
type PromoCodeValidator interface {
	Plugin
	CheckPromoCode(ctx context.Context, p *promocode.PromoCode, uc promocode.UsageContext) *promocode.ValidationResult
}
