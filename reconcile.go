package trialpay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/promocode"
	"github.com/xraph/trialpay/subscription"
)

// Drift is one promo code whose counter disagreed with its usage records.
type Drift struct {
	PromoCodeID id.PromoCodeID
	Code        string
	Recorded    int
	Counted     int
}

// ReconcileReport summarizes a ReconcilePromoCodes run.
type ReconcileReport struct {
	Checked int
	Drifted []Drift
	Errors  []ItemError
	Elapsed time.Duration
}

// ReconcilePromoCodes recomputes CurrentUses from the usage records and
// repairs the activation state to match. With all false only codes marked
// suspect by a failed compensation are checked.
func (e *Engine) ReconcilePromoCodes(ctx context.Context, all bool) *ReconcileReport {
	start := e.clock.Now()
	rep := &ReconcileReport{}

	check := func(promoID id.PromoCodeID) {
		rep.Checked++
		drift, err := e.reconcilePromoCode(ctx, promoID)
		if err != nil {
			e.markSuspect(promoID)
			rep.Errors = append(rep.Errors, ItemError{ID: promoID.String(), Err: err})
			return
		}
		if drift != nil {
			rep.Drifted = append(rep.Drifted, *drift)
		}
	}

	if all {
		// A full pass covers every suspect too.
		e.takeSuspects()
		opts := promocode.ListOpts{Limit: e.batchSize}
		for {
			page, err := e.ListPromoCodes(ctx, opts)
			if err != nil {
				rep.Errors = append(rep.Errors, ItemError{Err: fmt.Errorf("list promo codes: %w", err)})
				break
			}
			for _, p := range page {
				check(p.ID)
			}
			if len(page) < opts.Limit {
				break
			}
			opts.Offset += len(page)
		}
	} else {
		for _, promoID := range e.takeSuspects() {
			check(promoID)
		}
	}

	rep.Elapsed = e.clock.Since(start)
	e.logger.Info("promo codes reconciled",
		"checked", rep.Checked,
		"drifted", len(rep.Drifted),
		"failed", len(rep.Errors),
	)
	return rep
}

func (e *Engine) reconcilePromoCode(ctx context.Context, promoID id.PromoCodeID) (*Drift, error) {
	p, err := e.GetPromoCode(ctx, promoID)
	if err != nil {
		return nil, err
	}
	counted, err := query(ctx, e, func(ctx context.Context) (int, error) {
		return e.store.CountPromoCodeUsages(ctx, promoID, "")
	})
	if err != nil {
		return nil, err
	}

	now := e.now()
	state := promocode.ActivationFor(p, counted, now)
	if counted == p.CurrentUses && state.Active == p.IsActive && state.Reason == p.DeactivationReason {
		return nil, nil
	}

	if err := e.exec(ctx, func(ctx context.Context) error {
		return e.store.SetPromoCodeUses(ctx, promoID, counted, state, now)
	}); err != nil {
		return nil, err
	}

	if counted == p.CurrentUses {
		return nil, nil
	}

	e.logger.Warn("promo code usage counter drifted",
		"promo_code_id", promoID.String(),
		"code", p.Code,
		"recorded", p.CurrentUses,
		"counted", counted,
	)
	e.plugins.EmitPromoCodeDrift(ctx, p, p.CurrentUses, counted)
	return &Drift{PromoCodeID: promoID, Code: p.Code, Recorded: p.CurrentUses, Counted: counted}, nil
}

// ReconcileSubscriptions resolves incomplete subscriptions older than the
// orphan age, left behind by conversions that failed midway:
//
//   - grace period converted to this subscription: activate it and repoint
//     the tenant;
//   - grace period still active: finish the conversion;
//   - anything else: cancel the subscription and revoke its promo usages.
func (e *Engine) ReconcileSubscriptions(ctx context.Context) *SweepResult {
	start := e.clock.Now()
	res := &SweepResult{Name: SweepReconcileSubscriptions}
	cutoff := e.now().Add(-e.orphanAge)

	// Resolved subscriptions leave the incomplete filter, so only the ones
	// that stay behind advance the offset.
	opts := subscription.ListOpts{
		Status:        subscription.StatusIncomplete,
		CreatedBefore: &cutoff,
		Limit:         e.batchSize,
	}
	for {
		if err := ctx.Err(); err != nil {
			res.fail("", err)
			break
		}
		page, err := e.ListSubscriptions(ctx, opts)
		if err != nil {
			res.fail("", fmt.Errorf("list subscriptions: %w", err))
			break
		}
		for _, sub := range page {
			if err := e.resolveOrphan(ctx, sub); err != nil {
				res.fail(sub.ID.String(), err)
				if e.stillIncomplete(ctx, sub.ID) {
					opts.Offset++
				}
				continue
			}
			res.Processed++
		}
		if len(page) < opts.Limit {
			break
		}
	}

	return e.sweepDone(ctx, res, start)
}

func (e *Engine) resolveOrphan(ctx context.Context, sub *subscription.Subscription) error {
	if sub.GracePeriodID.IsNil() {
		return e.cancelOrphan(ctx, sub, "incomplete subscription without grace period")
	}

	g, err := e.GetGracePeriod(ctx, sub.GracePeriodID)
	if err != nil {
		if IsNotFound(err) {
			return e.cancelOrphan(ctx, sub, "grace period not found")
		}
		return err
	}

	switch {
	case g.Status == graceperiod.StatusConverted && g.SubscriptionID.Equal(sub.ID):
		return e.finishConversion(ctx, g, sub)

	case g.Status == graceperiod.StatusActive:
		ok, err := e.promoUsageRecorded(ctx, sub)
		if err != nil {
			return err
		}
		if !ok {
			return e.cancelOrphan(ctx, sub, "promo code usage missing")
		}

		t := graceperiod.Transition{
			From:           []graceperiod.Status{graceperiod.StatusActive},
			To:             graceperiod.StatusConverted,
			At:             e.now(),
			PlanID:         sub.PlanID,
			SubscriptionID: sub.ID,
		}
		if err := e.exec(ctx, func(ctx context.Context) error {
			return e.store.TransitionGracePeriod(ctx, g.ID, t)
		}); err != nil {
			if errors.Is(err, ErrPreconditionFailed) {
				return e.cancelOrphan(ctx, sub, "grace period converted elsewhere")
			}
			return err
		}
		t.Apply(g)
		return e.finishConversion(ctx, g, sub)
	}

	return e.cancelOrphan(ctx, sub, fmt.Sprintf("grace period is %s", g.Status))
}

// stillIncomplete reports whether a subscription that failed to resolve is
// still in the incomplete filter. Read failures count as incomplete so the
// pass always advances.
func (e *Engine) stillIncomplete(ctx context.Context, subID id.SubscriptionID) bool {
	cur, err := e.GetSubscription(ctx, subID)
	if err != nil {
		return !IsNotFound(err)
	}
	return cur.Status == subscription.StatusIncomplete
}

// promoUsageRecorded reports whether a subscription priced with a promo code
// has its usage record. Subscriptions without a code always pass.
func (e *Engine) promoUsageRecorded(ctx context.Context, sub *subscription.Subscription) (bool, error) {
	if sub.AppliedPromoCode == nil {
		return true, nil
	}
	usages, err := e.ListPromoCodeUsages(ctx, promocode.UsageListOpts{
		PromoCodeID:    sub.AppliedPromoCode.ID,
		SubscriptionID: sub.ID,
		Limit:          1,
	})
	if err != nil {
		return false, err
	}
	return len(usages) > 0, nil
}

func (e *Engine) cancelOrphan(ctx context.Context, sub *subscription.Subscription, reason string) error {
	now := e.now()
	if err := e.exec(ctx, func(ctx context.Context) error {
		return e.store.TransitionSubscription(ctx, sub.ID, subscription.StatusIncomplete, subscription.StatusCanceled, now, reason)
	}); err != nil {
		if errors.Is(err, ErrPreconditionFailed) {
			return nil
		}
		return err
	}
	sub.Status = subscription.StatusCanceled
	sub.CanceledAt = &now
	sub.CancelReason = reason

	if err := e.revokeSubscriptionUsages(ctx, sub.ID); err != nil {
		return fmt.Errorf("revoke promo usages: %w", err)
	}

	e.logger.Warn("orphaned subscription cancelled",
		"subscription_id", sub.ID.String(),
		"grace_period_id", sub.GracePeriodID.String(),
		"reason", reason,
	)
	e.plugins.EmitSubscriptionCanceled(ctx, sub, reason)
	return nil
}
