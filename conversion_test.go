package trialpay_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/trialpay"
	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/promocode"
	"github.com/xraph/trialpay/subscription"
	"github.com/xraph/trialpay/tenant"
)

func TestConvertGracePeriod(t *testing.T) {
	h := newHarness(t)
	g := h.grace(t, "u1", 14)
	p := h.plan(t, "pro", 2900)

	h.clock.Advance(3 * day)
	sub, err := h.ConvertGracePeriod(h.ctx, g.ID, p.ID, "")
	require.NoError(t, err)

	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, "u1", sub.UserID)
	assert.Equal(t, g.TenantID, sub.TenantID)
	assert.Equal(t, int64(2900), sub.Amount.Amount)
	assert.Zero(t, sub.DiscountAmount.Amount)
	assert.Nil(t, sub.AppliedPromoCode)
	assert.True(t, sub.CurrentPeriodStart.Equal(epoch.Add(3*day)))

	stored := h.reload(t, g)
	assert.Equal(t, graceperiod.StatusConverted, stored.Status)
	assert.Equal(t, sub.ID, stored.SubscriptionID)
	assert.Equal(t, p.ID, stored.SelectedPlanID)
	require.NotNil(t, stored.ConvertedAt)

	ten, err := h.GetTenant(h.ctx, g.TenantID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, ten.ActivePlanID)
	assert.Equal(t, tenant.BillingActive, ten.BillingStatus)

	persisted, err := h.GetSubscription(h.ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, persisted.Status)
}

func TestConvertGracePeriod_WithPromoCode(t *testing.T) {
	h := newHarness(t)
	g := h.grace(t, "u1", 14)
	p := h.plan(t, "pro", 2900)
	code := h.percentCode(t, "LAUNCH20", 20, 10)

	sub, err := h.ConvertGracePeriod(h.ctx, g.ID, p.ID, "launch20")
	require.NoError(t, err)

	assert.Equal(t, int64(2900), sub.BasePrice.Amount)
	assert.Equal(t, int64(580), sub.DiscountAmount.Amount)
	assert.Equal(t, int64(2320), sub.Amount.Amount)
	require.NotNil(t, sub.AppliedPromoCode)
	assert.Equal(t, "LAUNCH20", sub.AppliedPromoCode.Code)
	assert.Equal(t, 20.0, sub.AppliedPromoCode.Value)

	usages, err := h.ListPromoCodeUsages(h.ctx, promocode.UsageListOpts{SubscriptionID: sub.ID})
	require.NoError(t, err)
	require.Len(t, usages, 1)
	assert.Equal(t, code.ID, usages[0].PromoCodeID)
	assert.Equal(t, int64(580), usages[0].DiscountApplied.Amount)

	got, err := h.GetPromoCode(h.ctx, code.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentUses)
}

func TestConvertGracePeriod_RejectedPromoCodeLeavesNothing(t *testing.T) {
	h := newHarness(t)
	g := h.grace(t, "u1", 14)
	p := h.plan(t, "pro", 2900)
	h.percentCode(t, "ONLYONE", 20, 1)

	_, err := h.ApplyPromoCode(h.ctx, trialpay.ApplyInput{Code: "ONLYONE", UserID: "someone-else", Amount: trialpay.USD(1000)})
	require.NoError(t, err)

	_, err = h.ConvertGracePeriod(h.ctx, g.ID, p.ID, "ONLYONE")
	require.ErrorIs(t, err, trialpay.ErrPromoCodeExhausted)

	_, err = h.ConvertGracePeriod(h.ctx, g.ID, p.ID, "NOSUCHCODE")
	require.ErrorIs(t, err, trialpay.ErrPromoCodeNotFound)

	assert.Equal(t, graceperiod.StatusActive, h.reload(t, g).Status)
	subs, err := h.ListSubscriptions(h.ctx, subscription.ListOpts{GracePeriodID: g.ID})
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestConvertGracePeriod_ExactlyOnce(t *testing.T) {
	const callers = 8
	h := newHarness(t)
	g := h.grace(t, "u1", 14)
	p := h.plan(t, "pro", 2900)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		won      []*subscription.Subscription
		rejected int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := h.ConvertGracePeriod(context.Background(), g.ID, p.ID, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won = append(won, sub)
			case trialpay.IsInvalidState(err):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Len(t, won, 1)
	assert.Equal(t, callers-1, rejected)

	subs, err := h.ListSubscriptions(h.ctx, subscription.ListOpts{GracePeriodID: g.ID})
	require.NoError(t, err)
	require.Len(t, subs, 1, "losing conversions remove their subscription")
	assert.Equal(t, won[0].ID, subs[0].ID)
	assert.Equal(t, won[0].ID, h.reload(t, g).SubscriptionID)
}

func TestConvertGracePeriod_ExactlyOnceWithPromoCode(t *testing.T) {
	const callers = 6

	tests := []struct {
		name    string
		maxUses int
	}{
		{"unlimited code", 0},
		{"single use code", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			g := h.grace(t, "u1", 14)
			p := h.plan(t, "pro", 2900)
			code := h.percentCode(t, "RACE10", 10, tt.maxUses)

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				won      int
				rejected int
			)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := h.ConvertGracePeriod(context.Background(), g.ID, p.ID, "RACE10")
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						won++
					case trialpay.IsInvalidState(err):
						rejected++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, won)
			assert.Equal(t, callers-1, rejected)
			assert.Equal(t, graceperiod.StatusConverted, h.reload(t, g).Status)

			got, err := h.GetPromoCode(h.ctx, code.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, got.CurrentUses, "losers revoke their usage")

			usages, err := h.ListPromoCodeUsages(h.ctx, promocode.UsageListOpts{PromoCodeID: code.ID})
			require.NoError(t, err)
			assert.Len(t, usages, 1)
		})
	}
}

func TestConvertGracePeriod_AfterValidationBudgetSpent(t *testing.T) {
	h := newHarness(t, trialpay.WithMaxValidationAttempts(3))
	g := h.grace(t, "u1", 14)
	p := h.plan(t, "pro", 2900)
	h.percentCode(t, "FINALLY", 10, 0)

	uc := promocode.UsageContext{UserID: "u1", PlanID: p.ID, Amount: p.Price}
	for _, c := range []string{"NOPE1", "NOPE2", "NOPE3", "FINALLY"} {
		_, err := h.ValidatePromoCode(h.ctx, c, uc)
		require.NoError(t, err)
	}
	res, err := h.ValidatePromoCode(h.ctx, "FINALLY", uc)
	require.NoError(t, err)
	require.Equal(t, promocode.CodeRateLimitExceeded, res.ErrorCode)

	sub, err := h.ConvertGracePeriod(h.ctx, g.ID, p.ID, "FINALLY")
	require.NoError(t, err)
	assert.Equal(t, int64(2610), sub.Amount.Amount)
}

func TestConvertGracePeriod_StoreTimeout(t *testing.T) {
	tests := []struct {
		name  string
		lands bool
		grace graceperiod.Status
	}{
		{"transition landed", true, graceperiod.StatusConverted},
		{"transition lost", false, graceperiod.StatusActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, fs := newFaultHarness(t)
			g := h.grace(t, "u1", 14)
			p := h.plan(t, "pro", 2900)

			fs.failTransitions(context.DeadlineExceeded, tt.lands)
			sub, err := h.ConvertGracePeriod(h.ctx, g.ID, p.ID, "")
			require.Error(t, err)
			assert.Nil(t, sub)
			assert.True(t, trialpay.IsRetryable(err))
			assert.Equal(t, "CONVERSION_INCOMPLETE", trialpay.CodeOf(err))
			assert.ErrorIs(t, err, trialpay.ErrStoreTimeout)

			subs, err := h.ListSubscriptions(h.ctx, subscription.ListOpts{GracePeriodID: g.ID})
			require.NoError(t, err)
			require.Len(t, subs, 1)
			assert.Equal(t, subscription.StatusIncomplete, subs[0].Status)
			assert.Equal(t, tt.grace, h.reload(t, g).Status)

			fs.failTransitions(nil, false)
			h.clock.Advance(trialpay.DefaultOrphanAge + time.Minute)
			res := h.ReconcileSubscriptions(h.ctx)
			require.NoError(t, res.Err())
			assert.Equal(t, 1, res.Processed)

			assert.Equal(t, subscription.StatusActive, h.subscriptionStatus(t, subs[0].ID))
			cur := h.reload(t, g)
			assert.Equal(t, graceperiod.StatusConverted, cur.Status)
			assert.Equal(t, subs[0].ID, cur.SubscriptionID)

			ten, err := h.GetTenant(h.ctx, g.TenantID)
			require.NoError(t, err)
			assert.Equal(t, tenant.BillingActive, ten.BillingStatus)
		})
	}
}

func TestConvertGracePeriod_Rejects(t *testing.T) {
	h := newHarness(t)
	p := h.plan(t, "pro", 2900)
	legacy := h.plan(t, "legacy", 900)
	require.NoError(t, h.ArchivePlan(h.ctx, legacy.ID))

	g := h.grace(t, "u1", 14)

	_, err := h.ConvertGracePeriod(h.ctx, g.ID, legacy.ID, "")
	require.ErrorIs(t, err, trialpay.ErrPlanNotPurchasable)

	_, err = h.ConvertGracePeriod(h.ctx, g.ID, id.NewPlanID(), "")
	require.ErrorIs(t, err, trialpay.ErrPlanNotFound)

	_, err = h.ConvertGracePeriod(h.ctx, id.NewGracePeriodID(), p.ID, "")
	require.ErrorIs(t, err, trialpay.ErrGracePeriodNotFound)

	expired := h.grace(t, "u2", 1)
	h.clock.Advance(2 * day)
	h.RunExpirySweep(h.ctx)

	_, err = h.ConvertGracePeriod(h.ctx, expired.ID, p.ID, "")
	require.ErrorIs(t, err, trialpay.ErrGracePeriodNotActive)
}
