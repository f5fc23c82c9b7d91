package trialpay_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/trialpay"
	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/plan"
	"github.com/xraph/trialpay/promocode"
	"github.com/xraph/trialpay/subscription"
	"github.com/xraph/trialpay/tenant"
	"github.com/xraph/trialpay/types"
)

func TestReconcilePromoCodes_RepairsDrift(t *testing.T) {
	h := newHarness(t)
	p := h.percentCode(t, "DRIFT", 10, 2)
	_, err := h.ApplyPromoCode(h.ctx, trialpay.ApplyInput{Code: "DRIFT", UserID: "u1", Amount: trialpay.USD(1000)})
	require.NoError(t, err)

	// A crash between the counter write and the usage delete.
	exhausted := promocode.Activation{Active: false, Reason: promocode.DeactivationExhausted}
	require.NoError(t, h.store.SetPromoCodeUses(h.ctx, p.ID, 2, exhausted, epoch))

	rep := h.ReconcilePromoCodes(h.ctx, true)
	require.Empty(t, rep.Errors)
	assert.Equal(t, 1, rep.Checked)
	require.Len(t, rep.Drifted, 1)
	assert.Equal(t, trialpay.Drift{PromoCodeID: p.ID, Code: "DRIFT", Recorded: 2, Counted: 1}, rep.Drifted[0])

	got, err := h.GetPromoCode(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentUses)
	assert.True(t, got.IsActive)

	again := h.ReconcilePromoCodes(h.ctx, true)
	assert.Empty(t, again.Drifted)
}

func TestReconcilePromoCodes_KeepsManualDeactivation(t *testing.T) {
	h := newHarness(t)
	p := h.percentCode(t, "PAUSED", 10, 0)
	require.NoError(t, h.DeactivatePromoCode(h.ctx, p.ID))
	manual := promocode.Activation{Active: false, Reason: promocode.DeactivationManual}
	require.NoError(t, h.store.SetPromoCodeUses(h.ctx, p.ID, 4, manual, epoch))

	rep := h.ReconcilePromoCodes(h.ctx, true)
	require.Len(t, rep.Drifted, 1)

	got, err := h.GetPromoCode(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.CurrentUses)
	assert.False(t, got.IsActive)
	assert.Equal(t, promocode.DeactivationManual, got.DeactivationReason)
}

func TestReconcilePromoCodes_SuspectsOnly(t *testing.T) {
	h := newHarness(t)
	p := h.percentCode(t, "QUIET", 10, 0)
	require.NoError(t, h.store.SetPromoCodeUses(h.ctx, p.ID, 3, promocode.Activation{Active: true}, epoch))

	rep := h.ReconcilePromoCodes(h.ctx, false)
	assert.Zero(t, rep.Checked, "nothing was marked suspect")
	assert.Zero(t, h.SuspectPromoCodes())
}

// orphan writes an incomplete subscription the way a conversion that died
// after its first write leaves it.
func (h *harness) orphan(t *testing.T, g *graceperiod.GracePeriod, p *plan.Plan) *subscription.Subscription {
	t.Helper()
	now := h.clock.Now()
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
	require.NoError(t, h.store.CreateSubscription(h.ctx, sub))
	return sub
}

func (h *harness) subscriptionStatus(t *testing.T, subID id.SubscriptionID) subscription.Status {
	t.Helper()
	sub, err := h.GetSubscription(h.ctx, subID)
	require.NoError(t, err)
	return sub.Status
}

func TestReconcileSubscriptions(t *testing.T) {
	h := newHarness(t)
	p := h.plan(t, "pro", 2900)
	code := h.percentCode(t, "ORPHAN10", 10, 0)

	// Grace period already points at the subscription.
	linkedGrace := h.grace(t, "linked", 14)
	linked := h.orphan(t, linkedGrace, p)
	require.NoError(t, h.store.TransitionGracePeriod(h.ctx, linkedGrace.ID, graceperiod.Transition{
		From:           []graceperiod.Status{graceperiod.StatusActive},
		To:             graceperiod.StatusConverted,
		At:             epoch,
		PlanID:         p.ID,
		SubscriptionID: linked.ID,
	}))

	// Grace period never got converted.
	pendingGrace := h.grace(t, "pending", 14)
	pending := h.orphan(t, pendingGrace, p)

	// Grace period was cancelled meanwhile; its promo usage must be revoked.
	goneGrace := h.grace(t, "gone", 14)
	gone := h.orphan(t, goneGrace, p)
	_, err := h.ApplyPromoCode(h.ctx, trialpay.ApplyInput{
		Code: "ORPHAN10", UserID: "gone", TenantID: goneGrace.TenantID, SubscriptionID: gone.ID, Amount: p.Price,
	})
	require.NoError(t, err)
	_, err = h.CancelGracePeriod(h.ctx, goneGrace.ID, "user left")
	require.NoError(t, err)

	// Priced with a code whose usage was never recorded.
	unpaidGrace := h.grace(t, "unpaid", 14)
	unpaid := h.orphan(t, unpaidGrace, p)
	unpaid.AppliedPromoCode = &subscription.AppliedPromoCode{ID: code.ID, Code: code.Code}
	require.NoError(t, h.store.DeleteIncompleteSubscription(h.ctx, unpaid.ID))
	require.NoError(t, h.store.CreateSubscription(h.ctx, unpaid))

	h.clock.Advance(20 * time.Minute)

	// Too young to be an orphan.
	freshGrace := h.grace(t, "fresh", 14)
	fresh := h.orphan(t, freshGrace, p)

	res := h.ReconcileSubscriptions(h.ctx)
	require.NoError(t, res.Err())
	assert.Equal(t, trialpay.SweepReconcileSubscriptions, res.Name)
	assert.Equal(t, 4, res.Processed)

	assert.Equal(t, subscription.StatusActive, h.subscriptionStatus(t, linked.ID))
	ten, err := h.GetTenant(h.ctx, linkedGrace.TenantID)
	require.NoError(t, err)
	assert.Equal(t, tenant.BillingActive, ten.BillingStatus)

	assert.Equal(t, subscription.StatusActive, h.subscriptionStatus(t, pending.ID))
	g := h.reload(t, pendingGrace)
	assert.Equal(t, graceperiod.StatusConverted, g.Status)
	assert.Equal(t, pending.ID, g.SubscriptionID)

	cancelled, err := h.GetSubscription(h.ctx, gone.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, cancelled.Status)
	assert.Equal(t, "grace period is cancelled", cancelled.CancelReason)
	got, err := h.GetPromoCode(h.ctx, code.ID)
	require.NoError(t, err)
	assert.Zero(t, got.CurrentUses)

	assert.Equal(t, subscription.StatusCanceled, h.subscriptionStatus(t, unpaid.ID))
	assert.Equal(t, graceperiod.StatusActive, h.reload(t, unpaidGrace).Status)

	assert.Equal(t, subscription.StatusIncomplete, h.subscriptionStatus(t, fresh.ID))

	again := h.ReconcileSubscriptions(h.ctx)
	assert.Zero(t, again.Processed)
}

func TestReconcileSubscriptions_FailedRevokeDoesNotSkip(t *testing.T) {
	h, fs := newFaultHarness(t, trialpay.WithSweepBatchSize(1))
	p := h.plan(t, "pro", 2900)
	h.percentCode(t, "LEFT10", 10, 0)

	var orphans []*subscription.Subscription
	for _, user := range []string{"a", "b"} {
		g := h.grace(t, user, 14)
		sub := h.orphan(t, g, p)
		_, err := h.ApplyPromoCode(h.ctx, trialpay.ApplyInput{
			Code: "LEFT10", UserID: user, TenantID: g.TenantID, SubscriptionID: sub.ID, Amount: p.Price,
		})
		require.NoError(t, err)
		_, err = h.CancelGracePeriod(h.ctx, g.ID, "user left")
		require.NoError(t, err)
		orphans = append(orphans, sub)
	}

	fs.failUsageDeletes(errors.New("disk I/O error"))
	h.clock.Advance(20 * time.Minute)

	res := h.ReconcileSubscriptions(h.ctx)
	assert.Equal(t, 2, res.Failed())
	for _, sub := range orphans {
		assert.Equal(t, subscription.StatusCanceled, h.subscriptionStatus(t, sub.ID))
	}
}

type sweepRecorder struct {
	mu    sync.Mutex
	names []string
}

func (r *sweepRecorder) Name() string { return "sweep-recorder" }

func (r *sweepRecorder) OnSweepCompleted(_ context.Context, sweep string, _, _ int, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, sweep)
	return nil
}

func (r *sweepRecorder) saw(sweep string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.names {
		if n == sweep {
			return true
		}
	}
	return false
}

func TestBackgroundSweeps(t *testing.T) {
	rec := &sweepRecorder{}
	h := newHarness(t,
		trialpay.WithSweepInterval(time.Minute),
		trialpay.WithReconcileInterval(5*time.Minute),
		trialpay.WithPlugin(rec),
	)
	g := h.grace(t, "u1", 1)
	h.percentCode(t, "PING", 10, 0)
	_, err := h.ValidatePromoCode(h.ctx, "PING", promocode.UsageContext{UserID: "u1", Amount: trialpay.USD(100)})
	require.NoError(t, err)

	h.clock.Advance(2 * day)
	require.NoError(t, h.Start(h.ctx))
	t.Cleanup(func() { require.NoError(t, h.Stop()) })

	require.Eventually(t, func() bool {
		h.clock.Advance(time.Minute)
		if !rec.saw(trialpay.SweepReconcileSubscriptions) {
			return false
		}
		left, err := h.store.CountValidationAttempts(h.ctx, "u1", time.Time{})
		return err == nil && left == 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.True(t, rec.saw(trialpay.SweepExpiry))
	assert.True(t, rec.saw(trialpay.SweepReminders))
	assert.Equal(t, graceperiod.StatusExpired, h.reload(t, g).Status)
	assert.Contains(t, h.out.types(), graceperiod.NotificationExpired)
}
