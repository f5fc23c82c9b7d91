package trialpay_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/trialpay"
	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/promocode"
)

func TestCreatePromoCode_Normalizes(t *testing.T) {
	h := newHarness(t)
	p := h.percentCode(t, "  spring25 ", 25, 0)

	assert.Equal(t, "SPRING25", p.Code)
	assert.True(t, p.IsActive)
	assert.Zero(t, p.CurrentUses)
	assert.True(t, p.ValidFrom.Equal(epoch))

	got, err := h.GetPromoCodeByCode(h.ctx, "Spring25")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestCreatePromoCode_Rejects(t *testing.T) {
	h := newHarness(t)
	h.percentCode(t, "SPRING25", 25, 0)

	err := h.CreatePromoCode(h.ctx, &promocode.PromoCode{
		Code: "spring25", DiscountType: promocode.DiscountPercentage, Percentage: 10,
	})
	require.ErrorIs(t, err, trialpay.ErrDuplicatePromoCode)

	bad := []*promocode.PromoCode{
		{Code: "AB", DiscountType: promocode.DiscountPercentage, Percentage: 10},
		{Code: "HAS SPACE", DiscountType: promocode.DiscountPercentage, Percentage: 10},
		{Code: "TOOMUCH", DiscountType: promocode.DiscountPercentage, Percentage: 101},
		{Code: "FREEBIE", DiscountType: promocode.DiscountFixedAmount},
		{Code: "NEGATIVE", DiscountType: promocode.DiscountPercentage, Percentage: 10, MaxUses: -1},
	}
	for _, p := range bad {
		err := h.CreatePromoCode(h.ctx, p)
		assert.ErrorIs(t, err, trialpay.ErrInvalidPromoCode, p.Code)
	}
}

func TestValidatePromoCode(t *testing.T) {
	h := newHarness(t, trialpay.WithMaxValidationAttempts(100))
	pro := h.plan(t, "pro", 10000)
	basic := h.plan(t, "basic", 1000)
	until := epoch.Add(30 * day)

	codes := []*promocode.PromoCode{
		{Code: "HALF", DiscountType: promocode.DiscountPercentage, Percentage: 50},
		{Code: "TENOFF", DiscountType: promocode.DiscountFixedAmount, Amount: trialpay.USD(1000)},
		{Code: "BIGOFF", DiscountType: promocode.DiscountFixedAmount, Amount: trialpay.USD(50000)},
		{Code: "EUROS", DiscountType: promocode.DiscountFixedAmount, Amount: trialpay.EUR(500)},
		{Code: "PROONLY", DiscountType: promocode.DiscountPercentage, Percentage: 10, ApplicablePlans: []id.PlanID{pro.ID}},
		{Code: "WELCOME", DiscountType: promocode.DiscountPercentage, Percentage: 10, NewUsersOnly: true},
		{Code: "BIGSPEND", DiscountType: promocode.DiscountPercentage, Percentage: 10, MinimumAmount: trialpay.USD(5000)},
		{Code: "LATER", DiscountType: promocode.DiscountPercentage, Percentage: 10, ValidFrom: epoch.Add(day)},
		{Code: "MONTH", DiscountType: promocode.DiscountPercentage, Percentage: 10, ValidUntil: &until},
		{Code: "ACME", DiscountType: promocode.DiscountPercentage, Percentage: 10, TenantID: "acme"},
	}
	for _, p := range codes {
		require.NoError(t, h.CreatePromoCode(h.ctx, p))
	}

	uc := func(planID id.PlanID, amount trialpay.Money) promocode.UsageContext {
		return promocode.UsageContext{UserID: "u1", TenantID: "t1", PlanID: planID, Amount: amount}
	}

	tests := []struct {
		name     string
		code     string
		uc       promocode.UsageContext
		valid    bool
		errCode  promocode.ErrorCode
		discount int64
		final    int64
	}{
		{"percentage", "half", uc(pro.ID, pro.Price), true, "", 5000, 5000},
		{"fixed", "TENOFF", uc(pro.ID, pro.Price), true, "", 1000, 9000},
		{"fixed is clamped", "BIGOFF", uc(basic.ID, basic.Price), true, "", 1000, 0},
		{"unknown", "NOPE", uc(pro.ID, pro.Price), false, promocode.CodeNotFound, 0, 0},
		{"malformed", "x", uc(pro.ID, pro.Price), false, promocode.CodeNotFound, 0, 0},
		{"currency", "EUROS", uc(pro.ID, pro.Price), false, promocode.CodeCurrencyMismatch, 0, 0},
		{"plan", "PROONLY", uc(basic.ID, basic.Price), false, promocode.CodePlanNotEligible, 0, 0},
		{"plan ok", "PROONLY", uc(pro.ID, pro.Price), true, "", 1000, 9000},
		{"new users", "WELCOME", uc(pro.ID, pro.Price), false, promocode.CodeNewUsersOnly, 0, 0},
		{"minimum", "BIGSPEND", uc(basic.ID, basic.Price), false, promocode.CodeMinimumAmountNotMet, 0, 0},
		{"not yet valid", "LATER", uc(pro.ID, pro.Price), false, promocode.CodeNotYetValid, 0, 0},
		{"window open", "MONTH", uc(pro.ID, pro.Price), true, "", 1000, 9000},
		{"foreign tenant", "ACME", uc(pro.ID, pro.Price), false, promocode.CodeNotFound, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.ValidatePromoCode(h.ctx, tt.code, tt.uc)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.errCode, res.ErrorCode)
			if tt.valid {
				assert.Equal(t, tt.discount, res.DiscountAmount.Amount)
				assert.Equal(t, tt.final, res.FinalAmount.Amount)
			}
		})
	}
}

func TestValidatePromoCode_Expired(t *testing.T) {
	h := newHarness(t)
	until := epoch.Add(day)
	require.NoError(t, h.CreatePromoCode(h.ctx, &promocode.PromoCode{
		Code: "SHORT", DiscountType: promocode.DiscountPercentage, Percentage: 10, ValidUntil: &until,
	}))

	h.clock.Advance(2 * day)
	res, err := h.ValidatePromoCode(h.ctx, "SHORT", promocode.UsageContext{UserID: "u1", Amount: trialpay.USD(1000)})
	require.NoError(t, err)
	assert.Equal(t, promocode.CodeExpired, res.ErrorCode)
}

func TestValidatePromoCode_RateLimit(t *testing.T) {
	h := newHarness(t, trialpay.WithMaxValidationAttempts(3))
	h.percentCode(t, "HALF", 50, 0)
	uc := promocode.UsageContext{UserID: "u1", Amount: trialpay.USD(1000)}

	for i := 0; i < 3; i++ {
		res, err := h.ValidatePromoCode(h.ctx, "HALF", uc)
		require.NoError(t, err)
		require.True(t, res.Valid, "attempt %d", i+1)
		h.clock.Advance(time.Minute)
	}

	res, err := h.ValidatePromoCode(h.ctx, "HALF", uc)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, promocode.CodeRateLimitExceeded, res.ErrorCode)
	assert.Equal(t, time.Hour, res.RetryAfter)

	// Other users are not affected.
	res, err = h.ValidatePromoCode(h.ctx, "HALF", promocode.UsageContext{UserID: "u2", Amount: trialpay.USD(1000)})
	require.NoError(t, err)
	assert.True(t, res.Valid)

	h.clock.Advance(time.Hour - 3*time.Minute)
	res, err = h.ValidatePromoCode(h.ctx, "HALF", uc)
	require.NoError(t, err)
	assert.Equal(t, promocode.CodeRateLimitExceeded, res.ErrorCode, "rejected attempts count too")

	h.clock.Advance(2 * time.Hour)
	res, err = h.ValidatePromoCode(h.ctx, "HALF", uc)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestValidatePromoCode_ConcurrentAttemptsNeverUndercount(t *testing.T) {
	h := newHarness(t, trialpay.WithMaxValidationAttempts(5))
	h.percentCode(t, "HALF", 50, 0)
	uc := promocode.UsageContext{UserID: "u1", Amount: trialpay.USD(1000)}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		valid int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.ValidatePromoCode(context.Background(), "HALF", uc)
			if err != nil || !res.Valid {
				return
			}
			mu.Lock()
			valid++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, valid, 5)
}

func TestValidatePromoCode_RequiresUser(t *testing.T) {
	h := newHarness(t)
	_, err := h.ValidatePromoCode(h.ctx, "HALF", promocode.UsageContext{})
	require.ErrorIs(t, err, trialpay.ErrInvalidInput)
}

func TestValidatePromoCode_PerUserLimit(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.CreatePromoCode(h.ctx, &promocode.PromoCode{
		Code: "ONCE", DiscountType: promocode.DiscountPercentage, Percentage: 20, MaxUsesPerUser: 1,
	}))
	in := trialpay.ApplyInput{Code: "ONCE", UserID: "u1", TenantID: "t1", Amount: trialpay.USD(1000)}

	_, err := h.ApplyPromoCode(h.ctx, in)
	require.NoError(t, err)

	res, err := h.ValidatePromoCode(h.ctx, "ONCE", promocode.UsageContext{UserID: "u1", Amount: trialpay.USD(1000)})
	require.NoError(t, err)
	assert.Equal(t, promocode.CodeUserLimitExceeded, res.ErrorCode)

	_, err = h.ApplyPromoCode(h.ctx, in)
	require.ErrorIs(t, err, trialpay.ErrUserLimitExceeded)
	assert.True(t, trialpay.IsExhausted(err))

	in.UserID = "u2"
	_, err = h.ApplyPromoCode(h.ctx, in)
	require.NoError(t, err)
}

func TestApplyPromoCode_ExhaustsAtCap(t *testing.T) {
	h := newHarness(t)
	p := h.percentCode(t, "TWICE", 10, 2)

	for _, user := range []string{"u1", "u2"} {
		_, err := h.ApplyPromoCode(h.ctx, trialpay.ApplyInput{Code: "TWICE", UserID: user, Amount: trialpay.USD(1000)})
		require.NoError(t, err)
	}

	got, err := h.GetPromoCode(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentUses)
	assert.False(t, got.IsActive)
	assert.Equal(t, promocode.DeactivationExhausted, got.DeactivationReason)

	_, err = h.ApplyPromoCode(h.ctx, trialpay.ApplyInput{Code: "TWICE", UserID: "u3", Amount: trialpay.USD(1000)})
	require.ErrorIs(t, err, trialpay.ErrPromoCodeExhausted)
	assert.Equal(t, "CODE_EXHAUSTED", trialpay.CodeOf(err))
}

func TestApplyPromoCode_RaceForLastSlot(t *testing.T) {
	const (
		maxUses = 3
		callers = 12
	)
	h := newHarness(t, trialpay.WithMaxValidationAttempts(100))
	p := h.percentCode(t, "LIMITED", 10, maxUses)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		applied   int
		exhausted int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.ApplyPromoCode(context.Background(), trialpay.ApplyInput{
				Code:   "LIMITED",
				UserID: "racer-" + string(rune('a'+i)),
				Amount: trialpay.USD(1000),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied++
			case trialpay.IsExhausted(err):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, maxUses, applied)
	assert.Equal(t, callers-maxUses, exhausted)

	got, err := h.GetPromoCode(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, maxUses, got.CurrentUses)

	usages, err := h.ListPromoCodeUsages(h.ctx, promocode.UsageListOpts{PromoCodeID: p.ID})
	require.NoError(t, err)
	assert.Len(t, usages, maxUses, "losers leave no usage behind")
}

func TestRevokePromoCode_Reactivates(t *testing.T) {
	h := newHarness(t)
	p := h.percentCode(t, "SINGLE", 10, 1)

	u, err := h.ApplyPromoCode(h.ctx, trialpay.ApplyInput{Code: "SINGLE", UserID: "u1", Amount: trialpay.USD(1000)})
	require.NoError(t, err)

	got, err := h.GetPromoCode(h.ctx, p.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	require.NoError(t, h.RevokePromoCode(h.ctx, u.ID))

	got, err = h.GetPromoCode(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.CurrentUses)
	assert.True(t, got.IsActive)
	assert.Equal(t, promocode.DeactivationNone, got.DeactivationReason)

	err = h.RevokePromoCode(h.ctx, u.ID)
	require.ErrorIs(t, err, trialpay.ErrPromoCodeUsageNotFound)
}

func TestRevokePromoCode_ManualDeactivationSticks(t *testing.T) {
	h := newHarness(t)
	p := h.percentCode(t, "MANUAL", 10, 0)

	u, err := h.ApplyPromoCode(h.ctx, trialpay.ApplyInput{Code: "MANUAL", UserID: "u1", Amount: trialpay.USD(1000)})
	require.NoError(t, err)
	require.NoError(t, h.DeactivatePromoCode(h.ctx, p.ID))
	require.NoError(t, h.RevokePromoCode(h.ctx, u.ID))

	got, err := h.GetPromoCode(h.ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, promocode.DeactivationManual, got.DeactivationReason)

	res, err := h.ValidatePromoCode(h.ctx, "MANUAL", promocode.UsageContext{UserID: "u2", Amount: trialpay.USD(1000)})
	require.NoError(t, err)
	assert.Equal(t, promocode.CodeInactive, res.ErrorCode)
}

func TestRevokePromoCode_ExpiredWindowStaysInactive(t *testing.T) {
	h := newHarness(t)
	until := epoch.Add(day)
	p := &promocode.PromoCode{
		Code: "BRIEF", DiscountType: promocode.DiscountPercentage, Percentage: 10, MaxUses: 1, ValidUntil: &until,
	}
	require.NoError(t, h.CreatePromoCode(h.ctx, p))

	u, err := h.ApplyPromoCode(h.ctx, trialpay.ApplyInput{Code: "BRIEF", UserID: "u1", Amount: trialpay.USD(1000)})
	require.NoError(t, err)

	h.clock.Advance(2 * day)
	require.NoError(t, h.RevokePromoCode(h.ctx, u.ID))

	got, err := h.GetPromoCode(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.CurrentUses)
	assert.False(t, got.IsActive)
}

func TestApplyPromoCode_SingleUseCode(t *testing.T) {
	h := newHarness(t)
	p := h.percentCode(t, "SAVE20", 20, 1)

	u, err := h.ApplyPromoCode(h.ctx, trialpay.ApplyInput{Code: "SAVE20", UserID: "u1", Amount: trialpay.USD(100)})
	require.NoError(t, err)
	assert.Equal(t, int64(20), u.DiscountApplied.Amount)

	got, err := h.GetPromoCode(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentUses)
	assert.False(t, got.IsActive)

	res, err := h.ValidatePromoCode(h.ctx, "SAVE20", promocode.UsageContext{UserID: "u2", Amount: trialpay.USD(100)})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, promocode.CodeExhausted, res.ErrorCode)
}
