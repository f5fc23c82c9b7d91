package trialpay

import (
	"context"
	"errors"

	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/plan"
	"github.com/xraph/trialpay/promocode"
	"github.com/xraph/trialpay/subscription"
	"github.com/xraph/trialpay/tenant"
	"github.com/xraph/trialpay/types"
)

// ConvertGracePeriod turns an active grace period into a paid subscription
// on planID, optionally discounted by promoCode (empty for none).
//
// The subscription is written first in status incomplete, then the grace
// period is converted with a conditional write. Of two concurrent
// conversions exactly one wins; the loser removes its subscription and gets
// an invalid-state error, also when it lost on the promo code's usage cap
// rather than on the grace period itself. A failure after the grace period was converted is
// reported as ErrConversionIncomplete and finished by ReconcileSubscriptions.
func (e *Engine) ConvertGracePeriod(ctx context.Context, graceID id.GracePeriodID, planID id.PlanID, promoCode string) (*subscription.Subscription, error) {
	g, err := e.GetGracePeriod(ctx, graceID)
	if err != nil {
		return nil, err
	}
	if g.Status != graceperiod.StatusActive {
		return nil, ErrGracePeriodNotActive.with("grace period is already in terminal state %s", g.Status)
	}

	p, err := query(ctx, e, func(ctx context.Context) (*plan.Plan, error) {
		return e.catalog.GetPlan(ctx, planID)
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrPlanNotFound.with("plan %s not found", planID)
		}
		return nil, err
	}
	if !p.IsPurchasable() {
		return nil, ErrPlanNotPurchasable.with("plan %s is %s", p.Slug, p.Status)
	}

	now := e.now()
	sub := &subscription.Subscription{
		Entity:             types.NewEntity(now),
		ID:                 id.NewSubscriptionID(),
		TenantID:           g.TenantID,
		UserID:             g.UserID,
		PlanID:             p.ID,
		Status:             subscription.StatusIncomplete,
		BillingCycle:       p.BillingPeriod,
		BasePrice:          p.Price,
		DiscountAmount:     types.Zero(p.Price.Currency),
		Amount:             p.Price,
		GracePeriodID:      g.ID,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   p.BillingPeriod.Next(now),
	}

	apply := ApplyInput{
		Code:           promoCode,
		UserID:         g.UserID,
		TenantID:       g.TenantID,
		SubscriptionID: sub.ID,
		PlanID:         p.ID,
		Amount:         p.Price,
		IsNewUser:      g.Source == graceperiod.SourceNewRegistration,
	}

	// Price the code without side effects; the usage is recorded only once
	// the subscription exists.
	if promoCode != "" {
		pc, err := e.lookupPromoCode(ctx, promocode.Normalize(promoCode), g.TenantID)
		if err != nil {
			return nil, err
		}
		res := pc.CanBeUsedBy(apply.usageContext(), now)
		if !res.Valid {
			return nil, e.conversionRace(ctx, g, sub.ID, rejection(&res))
		}
		priceSubscription(sub, &res)
	}

	if err := e.exec(ctx, func(ctx context.Context) error {
		return e.store.CreateSubscription(ctx, sub)
	}); err != nil {
		return nil, err
	}

	var usage *promocode.Usage
	if promoCode != "" {
		usage, err = e.applyPromoCode(ctx, apply, false)
		if err != nil {
			e.discardSubscription(ctx, sub)
			return nil, e.conversionRace(ctx, g, sub.ID, err)
		}
	}

	t := graceperiod.Transition{
		From:           []graceperiod.Status{graceperiod.StatusActive},
		To:             graceperiod.StatusConverted,
		At:             now,
		PlanID:         p.ID,
		SubscriptionID: sub.ID,
	}
	if err := e.exec(ctx, func(ctx context.Context) error {
		return e.store.TransitionGracePeriod(ctx, g.ID, t)
	}); err != nil {
		if !errors.Is(err, ErrPreconditionFailed) {
			// Outcome unknown: leave the incomplete subscription for
			// reconciliation to finish or cancel.
			return nil, ErrConversionIncomplete.wrap(err)
		}
		if usage != nil {
			if rerr := e.RevokePromoCode(ctx, usage.ID); rerr != nil {
				e.logger.Warn("failed to revoke promo code of lost conversion",
					"usage_id", usage.ID.String(),
					"error", rerr,
				)
			}
		}
		e.discardSubscription(ctx, sub)

		status := graceperiod.Status("unknown")
		if cur, gerr := e.GetGracePeriod(ctx, g.ID); gerr == nil {
			status = cur.Status
		}
		return nil, ErrGracePeriodNotActive.with("grace period is already in terminal state %s", status)
	}
	t.Apply(g)

	if err := e.finishConversion(ctx, g, sub); err != nil {
		return nil, ErrConversionIncomplete.wrap(err)
	}
	return sub, nil
}

// finishConversion activates sub and repoints the tenant once g records the
// conversion. It is idempotent so reconciliation can repeat it.
func (e *Engine) finishConversion(ctx context.Context, g *graceperiod.GracePeriod, sub *subscription.Subscription) error {
	now := e.now()
	if err := e.exec(ctx, func(ctx context.Context) error {
		return e.store.TransitionSubscription(ctx, sub.ID, subscription.StatusIncomplete, subscription.StatusActive, now, "")
	}); err != nil {
		if !errors.Is(err, ErrPreconditionFailed) {
			return err
		}
		cur, gerr := e.GetSubscription(ctx, sub.ID)
		if gerr != nil {
			return gerr
		}
		if cur.Status != subscription.StatusActive {
			return ErrInvalidState.with("subscription %s is %s", sub.ID, cur.Status)
		}
	}
	sub.Status = subscription.StatusActive
	sub.UpdatedAt = now

	if err := e.exec(ctx, func(ctx context.Context) error {
		return e.tenants.SetActivePlan(ctx, sub.TenantID, sub.PlanID, tenant.BillingActive)
	}); err != nil {
		return err
	}

	e.logger.Info("grace period converted",
		"grace_period_id", g.ID.String(),
		"subscription_id", sub.ID.String(),
		"plan_id", sub.PlanID.String(),
		"amount", sub.Amount.String(),
	)
	e.plugins.EmitSubscriptionCreated(ctx, sub)
	e.plugins.EmitGracePeriodConverted(ctx, g, sub)
	return nil
}

// conversionRace reports a promo code failure as an invalid-state error when
// another conversion of g has already won or holds a usage of its code.
// Otherwise, and for store failures, cause is returned unchanged.
func (e *Engine) conversionRace(ctx context.Context, g *graceperiod.GracePeriod, own id.SubscriptionID, cause error) error {
	if errors.Is(cause, ErrUnavailable) {
		return cause
	}
	cur, err := e.GetGracePeriod(ctx, g.ID)
	if err != nil {
		return cause
	}
	if cur.Status != graceperiod.StatusActive {
		return ErrGracePeriodNotActive.with("grace period is already in terminal state %s", cur.Status)
	}

	subs, err := e.ListSubscriptions(ctx, subscription.ListOpts{GracePeriodID: g.ID})
	if err != nil {
		return cause
	}
	for _, other := range subs {
		if other.ID.Equal(own) || other.Status == subscription.StatusCanceled {
			continue
		}
		if ok, err := e.promoUsageRecorded(ctx, other); err == nil && ok {
			return ErrGracePeriodNotActive.with("grace period %s is already being converted", g.ID)
		}
	}
	return cause
}

// discardSubscription removes a subscription that never got linked. A
// failure leaves it for ReconcileSubscriptions.
func (e *Engine) discardSubscription(ctx context.Context, sub *subscription.Subscription) {
	if err := e.exec(ctx, func(ctx context.Context) error {
		return e.store.DeleteIncompleteSubscription(ctx, sub.ID)
	}); err != nil && !IsNotFound(err) {
		e.logger.Warn("failed to discard incomplete subscription",
			"subscription_id", sub.ID.String(),
			"error", err,
		)
	}
}
