// Package audithook bridges trialpay lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import any
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/plugin"
	"github.com/xraph/trialpay/promocode"
	"github.com/xraph/trialpay/subscription"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnGracePeriodCreated   = (*Extension)(nil)
	_ plugin.OnGracePeriodExtended  = (*Extension)(nil)
	_ plugin.OnGracePeriodCancelled = (*Extension)(nil)
	_ plugin.OnGracePeriodExpired   = (*Extension)(nil)
	_ plugin.OnGracePeriodConverted = (*Extension)(nil)
	_ plugin.OnNotificationSent     = (*Extension)(nil)
	_ plugin.OnPromoCodeValidated   = (*Extension)(nil)
	_ plugin.OnPromoCodeApplied     = (*Extension)(nil)
	_ plugin.OnPromoCodeRevoked     = (*Extension)(nil)
	_ plugin.OnPromoCodeExhausted   = (*Extension)(nil)
	_ plugin.OnPromoCodeDrift       = (*Extension)(nil)
	_ plugin.OnSubscriptionCreated  = (*Extension)(nil)
	_ plugin.OnSubscriptionCanceled = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges trialpay lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Grace period hooks
// ──────────────────────────────────────────────────

// OnGracePeriodCreated implements plugin.OnGracePeriodCreated.
func (e *Extension) OnGracePeriodCreated(ctx context.Context, g *graceperiod.GracePeriod) error {
	return e.record(ctx, ActionGracePeriodCreated, SeverityInfo, OutcomeSuccess,
		ResourceGracePeriod, g.ID.String(), CategoryTrial, nil,
		"user_id", g.UserID,
		"tenant_id", g.TenantID,
		"source", string(g.Source),
		"duration_days", g.DurationDays,
		"end_date", g.EndDate,
	)
}

// OnGracePeriodExtended implements plugin.OnGracePeriodExtended.
func (e *Extension) OnGracePeriodExtended(ctx context.Context, g *graceperiod.GracePeriod, ext graceperiod.Extension) error {
	return e.record(ctx, ActionGracePeriodExtended, SeverityInfo, OutcomeSuccess,
		ResourceGracePeriod, g.ID.String(), CategoryTrial, nil,
		"user_id", g.UserID,
		"extended_by", ext.ExtendedBy,
		"additional_days", ext.AdditionalDays,
		"previous_end_date", ext.PreviousEndDate,
		"new_end_date", ext.NewEndDate,
		"reason", ext.Reason,
	)
}

// OnGracePeriodCancelled implements plugin.OnGracePeriodCancelled.
func (e *Extension) OnGracePeriodCancelled(ctx context.Context, g *graceperiod.GracePeriod) error {
	return e.record(ctx, ActionGracePeriodCancelled, SeverityInfo, OutcomeSuccess,
		ResourceGracePeriod, g.ID.String(), CategoryTrial, nil,
		"user_id", g.UserID,
		"reason", g.CancelReason,
	)
}

// OnGracePeriodExpired implements plugin.OnGracePeriodExpired.
func (e *Extension) OnGracePeriodExpired(ctx context.Context, g *graceperiod.GracePeriod) error {
	return e.record(ctx, ActionGracePeriodExpired, SeverityInfo, OutcomeSuccess,
		ResourceGracePeriod, g.ID.String(), CategoryTrial, nil,
		"user_id", g.UserID,
		"end_date", g.EndDate,
	)
}

// OnGracePeriodConverted implements plugin.OnGracePeriodConverted.
func (e *Extension) OnGracePeriodConverted(ctx context.Context, g *graceperiod.GracePeriod, sub *subscription.Subscription) error {
	kv := []any{
		"user_id", g.UserID,
		"tenant_id", g.TenantID,
		"plan_id", sub.PlanID.String(),
		"subscription_id", sub.ID.String(),
		"amount", sub.Amount.String(),
	}
	if sub.AppliedPromoCode != nil {
		kv = append(kv, "promo_code", sub.AppliedPromoCode.Code)
	}
	return e.record(ctx, ActionGracePeriodConverted, SeverityInfo, OutcomeSuccess,
		ResourceGracePeriod, g.ID.String(), CategoryTrial, nil, kv...)
}

// OnNotificationSent implements plugin.OnNotificationSent.
func (e *Extension) OnNotificationSent(ctx context.Context, g *graceperiod.GracePeriod, t graceperiod.NotificationType) error {
	return e.record(ctx, ActionNotificationSent, SeverityInfo, OutcomeSuccess,
		ResourceGracePeriod, g.ID.String(), CategoryTrial, nil,
		"user_id", g.UserID,
		"notification", string(t),
	)
}

// ──────────────────────────────────────────────────
// Promo code hooks
// ──────────────────────────────────────────────────

// OnPromoCodeValidated implements plugin.OnPromoCodeValidated. Only
// rejections are audited; throttled users are flagged as abuse.
func (e *Extension) OnPromoCodeValidated(ctx context.Context, code string, res *promocode.ValidationResult) error {
	if res == nil || res.Valid {
		return nil
	}
	if res.ErrorCode == promocode.CodeRateLimitExceeded {
		return e.record(ctx, ActionPromoCodeThrottled, SeverityWarning, OutcomeFailure,
			ResourcePromoCode, "", CategoryAbuse, nil,
			"code", code,
			"retry_after", res.RetryAfter.String(),
		)
	}
	resourceID := ""
	if res.PromoCode != nil {
		resourceID = res.PromoCode.ID.String()
	}
	return e.record(ctx, ActionPromoCodeRejected, SeverityInfo, OutcomeFailure,
		ResourcePromoCode, resourceID, CategoryPromotion, nil,
		"code", code,
		"error_code", string(res.ErrorCode),
	)
}

// OnPromoCodeApplied implements plugin.OnPromoCodeApplied.
func (e *Extension) OnPromoCodeApplied(ctx context.Context, p *promocode.PromoCode, u *promocode.Usage) error {
	return e.record(ctx, ActionPromoCodeApplied, SeverityInfo, OutcomeSuccess,
		ResourcePromoCode, p.ID.String(), CategoryPromotion, nil,
		"code", p.Code,
		"usage_id", u.ID.String(),
		"user_id", u.UserID,
		"subscription_id", u.SubscriptionID.String(),
		"discount", u.DiscountApplied.String(),
		"current_uses", p.CurrentUses,
	)
}

// OnPromoCodeRevoked implements plugin.OnPromoCodeRevoked.
func (e *Extension) OnPromoCodeRevoked(ctx context.Context, p *promocode.PromoCode, u *promocode.Usage) error {
	return e.record(ctx, ActionPromoCodeRevoked, SeverityWarning, OutcomeSuccess,
		ResourcePromoCode, p.ID.String(), CategoryPromotion, nil,
		"code", p.Code,
		"usage_id", u.ID.String(),
		"user_id", u.UserID,
		"current_uses", p.CurrentUses,
	)
}

// OnPromoCodeExhausted implements plugin.OnPromoCodeExhausted.
func (e *Extension) OnPromoCodeExhausted(ctx context.Context, p *promocode.PromoCode) error {
	return e.record(ctx, ActionPromoCodeExhausted, SeverityInfo, OutcomeSuccess,
		ResourcePromoCode, p.ID.String(), CategoryPromotion, nil,
		"code", p.Code,
		"max_uses", p.MaxUses,
	)
}

// OnPromoCodeDrift implements plugin.OnPromoCodeDrift.
func (e *Extension) OnPromoCodeDrift(ctx context.Context, p *promocode.PromoCode, recorded, counted int) error {
	return e.record(ctx, ActionPromoCodeDrift, SeverityError, OutcomePartial,
		ResourcePromoCode, p.ID.String(), CategoryIntegrity, nil,
		"code", p.Code,
		"recorded", recorded,
		"counted", counted,
	)
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (e *Extension) OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"tenant_id", sub.TenantID,
		"plan_id", sub.PlanID.String(),
		"amount", sub.Amount.String(),
	)
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (e *Extension) OnSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription, reason string) error {
	return e.record(ctx, ActionSubscriptionCanceled, SeverityWarning, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"tenant_id", sub.TenantID,
		"grace_period_id", sub.GracePeriodID.String(),
		"reason", reason,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
