package trialpay_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/trialpay"
	"github.com/xraph/trialpay/graceperiod"
)

func TestCreateGracePeriod_SourceDefaults(t *testing.T) {
	tests := []struct {
		source graceperiod.Source
		days   int
	}{
		{trialpay.SourceNewRegistration, 14},
		{trialpay.SourcePlanMigration, 7},
		{trialpay.SourceAdminGranted, 30},
		{trialpay.SourcePromoCode, 30},
	}

	for _, tt := range tests {
		t.Run(string(tt.source), func(t *testing.T) {
			h := newHarness(t)
			g, err := h.CreateGracePeriod(h.ctx, trialpay.CreateGracePeriodInput{
				UserID:   "u1",
				TenantID: "t1",
				Source:   tt.source,
			})
			require.NoError(t, err)

			assert.Equal(t, tt.days, g.DurationDays)
			assert.Equal(t, graceperiod.StatusActive, g.Status)
			assert.True(t, g.StartDate.Equal(epoch))
			assert.True(t, g.EndDate.Equal(epoch.Add(time.Duration(tt.days)*day)))
			assert.Empty(t, g.NotificationsSent)
			assert.Nil(t, g.OriginalEndDate)
		})
	}
}

func TestCreateGracePeriod_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   trialpay.CreateGracePeriodInput
		code string
	}{
		{"missing user", trialpay.CreateGracePeriodInput{TenantID: "t1", Source: trialpay.SourceAdminGranted}, "INVALID_INPUT"},
		{"unknown source", trialpay.CreateGracePeriodInput{UserID: "u1", TenantID: "t1", Source: "referral"}, "INVALID_SOURCE"},
		{"too long", trialpay.CreateGracePeriodInput{UserID: "u1", TenantID: "t1", Source: trialpay.SourceAdminGranted, DurationDays: 366}, "INVALID_DURATION"},
		{"negative", trialpay.CreateGracePeriodInput{UserID: "u1", TenantID: "t1", Source: trialpay.SourceAdminGranted, DurationDays: -3}, "INVALID_DURATION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.CreateGracePeriod(h.ctx, tt.in)
			require.Error(t, err)
			assert.True(t, trialpay.IsValidation(err))
			assert.Equal(t, tt.code, trialpay.CodeOf(err))
		})
	}
}

func TestCreateGracePeriod_OneActivePerUser(t *testing.T) {
	h := newHarness(t)
	first := h.grace(t, "u1", 14)

	_, err := h.CreateGracePeriod(h.ctx, trialpay.CreateGracePeriodInput{
		UserID: "u1", TenantID: "t1", Source: trialpay.SourceAdminGranted,
	})
	require.ErrorIs(t, err, trialpay.ErrActiveGracePeriodExists)
	assert.True(t, trialpay.IsConflict(err))

	_, err = h.CancelGracePeriod(h.ctx, first.ID, "support request")
	require.NoError(t, err)

	second := h.grace(t, "u1", 10)
	active, err := h.GetActiveGracePeriod(h.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
}

func TestExtendGracePeriod(t *testing.T) {
	h := newHarness(t)
	g := h.grace(t, "u1", 14)
	originalEnd := g.EndDate

	g, err := h.ExtendGracePeriod(h.ctx, g.ID, 7, "admin-1", "sales call")
	require.NoError(t, err)
	assert.True(t, g.EndDate.Equal(originalEnd.Add(7*day)))
	assert.Equal(t, 21, g.DurationDays)
	require.NotNil(t, g.OriginalEndDate)
	assert.True(t, g.OriginalEndDate.Equal(originalEnd))

	_, err = h.ExtendGracePeriod(h.ctx, g.ID, 3, "admin-2", "")
	require.NoError(t, err)

	stored := h.reload(t, g)
	assert.True(t, stored.EndDate.Equal(originalEnd.Add(10*day)))
	assert.True(t, stored.OriginalEndDate.Equal(originalEnd), "original end date is kept from the first extension")
	require.Len(t, stored.ExtensionHistory, 2)
	assert.Equal(t, "admin-1", stored.ExtensionHistory[0].ExtendedBy)
	assert.True(t, stored.ExtensionHistory[1].PreviousEndDate.Equal(originalEnd.Add(7*day)))
}

func TestExtendGracePeriod_Limits(t *testing.T) {
	h := newHarness(t)
	g := h.grace(t, "u1", 300)

	for _, days := range []int{0, -1, 366} {
		_, err := h.ExtendGracePeriod(h.ctx, g.ID, days, "admin", "")
		assert.ErrorIs(t, err, trialpay.ErrInvalidDuration, "days=%d", days)
	}

	_, err := h.ExtendGracePeriod(h.ctx, g.ID, 66, "admin", "")
	require.ErrorIs(t, err, trialpay.ErrInvalidDuration)

	_, err = h.ExtendGracePeriod(h.ctx, g.ID, 65, "admin", "")
	require.NoError(t, err)
}

func TestExtendGracePeriod_NotActive(t *testing.T) {
	h := newHarness(t)
	g := h.grace(t, "u1", 14)
	_, err := h.CancelGracePeriod(h.ctx, g.ID, "")
	require.NoError(t, err)

	_, err = h.ExtendGracePeriod(h.ctx, g.ID, 7, "admin", "")
	require.ErrorIs(t, err, trialpay.ErrGracePeriodNotActive)
	assert.True(t, trialpay.IsInvalidState(err))
}

func TestCancelGracePeriod(t *testing.T) {
	h := newHarness(t)
	g := h.grace(t, "u1", 14)

	h.clock.Advance(time.Hour)
	g, err := h.CancelGracePeriod(h.ctx, g.ID, "user request")
	require.NoError(t, err)
	assert.Equal(t, graceperiod.StatusCancelled, g.Status)
	require.NotNil(t, g.CancelledAt)
	assert.True(t, g.CancelledAt.Equal(epoch.Add(time.Hour)))

	g, err = h.CancelGracePeriod(h.ctx, g.ID, "duplicate account")
	require.NoError(t, err)
	assert.Equal(t, "duplicate account", h.reload(t, g).CancelReason)
}

func TestCancelGracePeriod_Expired(t *testing.T) {
	h := newHarness(t)
	g := h.grace(t, "u1", 1)
	h.clock.Advance(2 * day)

	_, err := h.ExpireGracePeriod(h.ctx, g.ID)
	require.NoError(t, err)

	g, err = h.CancelGracePeriod(h.ctx, g.ID, "cleanup")
	require.NoError(t, err)
	assert.Equal(t, graceperiod.StatusCancelled, g.Status)
}

func TestCancelGracePeriod_Converted(t *testing.T) {
	h := newHarness(t)
	g := h.grace(t, "u1", 14)
	p := h.plan(t, "pro", 2900)
	_, err := h.ConvertGracePeriod(h.ctx, g.ID, p.ID, "")
	require.NoError(t, err)

	_, err = h.CancelGracePeriod(h.ctx, g.ID, "")
	require.ErrorIs(t, err, trialpay.ErrGracePeriodConverted)
	assert.Equal(t, graceperiod.StatusConverted, h.reload(t, g).Status)
}

func TestExpireGracePeriod_LeavesTerminalAlone(t *testing.T) {
	h := newHarness(t)
	g := h.grace(t, "u1", 14)
	_, err := h.CancelGracePeriod(h.ctx, g.ID, "")
	require.NoError(t, err)

	g, err = h.ExpireGracePeriod(h.ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, graceperiod.StatusCancelled, g.Status)
	assert.Nil(t, g.ExpiredAt)
}

func TestGetGracePeriod_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.GetActiveGracePeriod(h.ctx, "nobody")
	require.ErrorIs(t, err, trialpay.ErrGracePeriodNotFound)
	assert.True(t, trialpay.IsNotFound(err))
}
