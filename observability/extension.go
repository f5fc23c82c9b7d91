// Package observability provides a metrics plugin for trialpay that records
// lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/plugin"
	"github.com/xraph/trialpay/promocode"
	"github.com/xraph/trialpay/subscription"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnGracePeriodCreated   = (*MetricsExtension)(nil)
	_ plugin.OnGracePeriodExtended  = (*MetricsExtension)(nil)
	_ plugin.OnGracePeriodCancelled = (*MetricsExtension)(nil)
	_ plugin.OnGracePeriodExpired   = (*MetricsExtension)(nil)
	_ plugin.OnGracePeriodConverted = (*MetricsExtension)(nil)
	_ plugin.OnNotificationSent     = (*MetricsExtension)(nil)
	_ plugin.OnPromoCodeValidated   = (*MetricsExtension)(nil)
	_ plugin.OnPromoCodeApplied     = (*MetricsExtension)(nil)
	_ plugin.OnPromoCodeRevoked     = (*MetricsExtension)(nil)
	_ plugin.OnPromoCodeExhausted   = (*MetricsExtension)(nil)
	_ plugin.OnPromoCodeDrift       = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCreated  = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCanceled = (*MetricsExtension)(nil)
	_ plugin.OnSweepCompleted       = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records lifecycle metrics. Register it as a trialpay
// plugin.
type MetricsExtension struct {
	factory MetricFactory

	// Grace period metrics
	GracePeriodCreated   Counter
	GracePeriodExtended  Counter
	GracePeriodCancelled Counter
	GracePeriodExpired   Counter
	GracePeriodConverted Counter
	ExtensionDays        Histogram
	NotificationsSent    Counter

	// Promo code metrics
	PromoValidations      Counter
	PromoRejections       Counter
	PromoRateLimited      Counter
	PromoApplied          Counter
	PromoRevoked          Counter
	PromoExhausted        Counter
	PromoDriftRepaired    Counter
	PromoDiscountCents    Histogram
	ConversionsWithPromo  Counter
	ConversionAmountCents Histogram

	// Subscription metrics
	SubscriptionCreated  Counter
	SubscriptionCanceled Counter

	// Sweep metrics
	SweepItemsProcessed Counter
	SweepItemsFailed    Counter
	SweepLatency        Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		GracePeriodCreated:   factory.Counter("trialpay.grace_period.created"),
		GracePeriodExtended:  factory.Counter("trialpay.grace_period.extended"),
		GracePeriodCancelled: factory.Counter("trialpay.grace_period.cancelled"),
		GracePeriodExpired:   factory.Counter("trialpay.grace_period.expired"),
		GracePeriodConverted: factory.Counter("trialpay.grace_period.converted"),
		ExtensionDays:        factory.Histogram("trialpay.grace_period.extension_days"),
		NotificationsSent:    factory.Counter("trialpay.notification.sent"),

		PromoValidations:      factory.Counter("trialpay.promo.validations"),
		PromoRejections:       factory.Counter("trialpay.promo.rejections"),
		PromoRateLimited:      factory.Counter("trialpay.promo.rate_limited"),
		PromoApplied:          factory.Counter("trialpay.promo.applied"),
		PromoRevoked:          factory.Counter("trialpay.promo.revoked"),
		PromoExhausted:        factory.Counter("trialpay.promo.exhausted"),
		PromoDriftRepaired:    factory.Counter("trialpay.promo.drift_repaired"),
		PromoDiscountCents:    factory.Histogram("trialpay.promo.discount_minor_units"),
		ConversionsWithPromo:  factory.Counter("trialpay.conversion.with_promo"),
		ConversionAmountCents: factory.Histogram("trialpay.conversion.amount_minor_units"),

		SubscriptionCreated:  factory.Counter("trialpay.subscription.created"),
		SubscriptionCanceled: factory.Counter("trialpay.subscription.canceled"),

		SweepItemsProcessed: factory.Counter("trialpay.sweep.items.processed"),
		SweepItemsFailed:    factory.Counter("trialpay.sweep.items.failed"),
		SweepLatency:        factory.Histogram("trialpay.sweep.latency_ms"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Grace period hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnGracePeriodCreated(_ context.Context, _ *graceperiod.GracePeriod) error {
	m.GracePeriodCreated.Inc()
	return nil
}

func (m *MetricsExtension) OnGracePeriodExtended(_ context.Context, _ *graceperiod.GracePeriod, ext graceperiod.Extension) error {
	m.GracePeriodExtended.Inc()
	m.ExtensionDays.Observe(float64(ext.AdditionalDays))
	return nil
}

func (m *MetricsExtension) OnGracePeriodCancelled(_ context.Context, _ *graceperiod.GracePeriod) error {
	m.GracePeriodCancelled.Inc()
	return nil
}

func (m *MetricsExtension) OnGracePeriodExpired(_ context.Context, _ *graceperiod.GracePeriod) error {
	m.GracePeriodExpired.Inc()
	return nil
}

// OnGracePeriodConverted implements plugin.OnGracePeriodConverted.
func (m *MetricsExtension) OnGracePeriodConverted(_ context.Context, _ *graceperiod.GracePeriod, sub *subscription.Subscription) error {
	m.GracePeriodConverted.Inc()
	m.ConversionAmountCents.Observe(float64(sub.Amount.Amount))
	if sub.AppliedPromoCode != nil {
		m.ConversionsWithPromo.Inc()
	}
	return nil
}

func (m *MetricsExtension) OnNotificationSent(_ context.Context, _ *graceperiod.GracePeriod, _ graceperiod.NotificationType) error {
	m.NotificationsSent.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Promo code hooks
// ──────────────────────────────────────────────────

// OnPromoCodeValidated implements plugin.OnPromoCodeValidated.
func (m *MetricsExtension) OnPromoCodeValidated(_ context.Context, _ string, res *promocode.ValidationResult) error {
	m.PromoValidations.Inc()
	if res == nil || res.Valid {
		return nil
	}
	if res.ErrorCode == promocode.CodeRateLimitExceeded {
		m.PromoRateLimited.Inc()
		return nil
	}
	m.PromoRejections.Inc()
	return nil
}

func (m *MetricsExtension) OnPromoCodeApplied(_ context.Context, _ *promocode.PromoCode, u *promocode.Usage) error {
	m.PromoApplied.Inc()
	m.PromoDiscountCents.Observe(float64(u.DiscountApplied.Amount))
	return nil
}

func (m *MetricsExtension) OnPromoCodeRevoked(_ context.Context, _ *promocode.PromoCode, _ *promocode.Usage) error {
	m.PromoRevoked.Inc()
	return nil
}

func (m *MetricsExtension) OnPromoCodeExhausted(_ context.Context, _ *promocode.PromoCode) error {
	m.PromoExhausted.Inc()
	return nil
}

func (m *MetricsExtension) OnPromoCodeDrift(_ context.Context, _ *promocode.PromoCode, _, _ int) error {
	m.PromoDriftRepaired.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnSubscriptionCreated(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCreated.Inc()
	return nil
}

func (m *MetricsExtension) OnSubscriptionCanceled(_ context.Context, _ *subscription.Subscription, _ string) error {
	m.SubscriptionCanceled.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Sweep hooks
// ──────────────────────────────────────────────────

// OnSweepCompleted implements plugin.OnSweepCompleted.
func (m *MetricsExtension) OnSweepCompleted(_ context.Context, _ string, processed, failed int, elapsed time.Duration) error {
	m.SweepItemsProcessed.Add(float64(processed))
	m.SweepItemsFailed.Add(float64(failed))
	m.SweepLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}
