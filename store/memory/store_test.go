package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/trialpay"
	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/promocode"
	"github.com/xraph/trialpay/store/memory"
	"github.com/xraph/trialpay/subscription"
	"github.com/xraph/trialpay/types"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newGrace(user string) *graceperiod.GracePeriod {
	return &graceperiod.GracePeriod{
		Entity:       types.NewEntity(t0),
		ID:           id.NewGracePeriodID(),
		UserID:       user,
		TenantID:     "t-" + user,
		StartDate:    t0,
		EndDate:      t0.AddDate(0, 0, 14),
		DurationDays: 14,
		Status:       graceperiod.StatusActive,
		Source:       graceperiod.SourceNewRegistration,
	}
}

func TestGracePeriod_OneActivePerUser(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	first := newGrace("u1")
	require.NoError(t, s.CreateGracePeriod(ctx, first))
	err := s.CreateGracePeriod(ctx, newGrace("u1"))
	assert.True(t, trialpay.IsConflict(err))

	require.NoError(t, s.TransitionGracePeriod(ctx, first.ID, graceperiod.Transition{
		From: []graceperiod.Status{graceperiod.StatusActive},
		To:   graceperiod.StatusExpired,
		At:   t0,
	}))
	require.NoError(t, s.CreateGracePeriod(ctx, newGrace("u1")))
}

func TestGracePeriod_ConditionalWrites(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	g := newGrace("u1")
	require.NoError(t, s.CreateGracePeriod(ctx, g))

	stale := graceperiod.Extension{
		ExtendedAt: t0, AdditionalDays: 1,
		PreviousEndDate: g.EndDate.Add(time.Hour), NewEndDate: g.EndDate.AddDate(0, 0, 1),
	}
	require.ErrorIs(t, s.ExtendGracePeriod(ctx, g.ID, stale), trialpay.ErrPreconditionFailed)

	n := graceperiod.Notification{Type: graceperiod.NotificationReminder7d, SentAt: t0}
	require.NoError(t, s.AddGracePeriodNotification(ctx, g.ID, n))
	require.ErrorIs(t, s.AddGracePeriodNotification(ctx, g.ID, n), trialpay.ErrPreconditionFailed)

	convert := graceperiod.Transition{
		From: []graceperiod.Status{graceperiod.StatusActive},
		To:   graceperiod.StatusConverted,
		At:   t0,
	}
	require.NoError(t, s.TransitionGracePeriod(ctx, g.ID, convert))
	require.ErrorIs(t, s.TransitionGracePeriod(ctx, g.ID, convert), trialpay.ErrPreconditionFailed)
}

func TestGracePeriod_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	g := newGrace("u1")
	require.NoError(t, s.CreateGracePeriod(ctx, g))

	got, err := s.GetGracePeriod(ctx, g.ID)
	require.NoError(t, err)
	got.Status = graceperiod.StatusCancelled

	again, err := s.GetGracePeriod(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, graceperiod.StatusActive, again.Status)
}

func TestPromoCode_IncrementStopsAtCap(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := &promocode.PromoCode{
		Entity: types.NewEntity(t0), ID: id.NewPromoCodeID(), Code: "CAP2",
		DiscountType: promocode.DiscountPercentage, Percentage: 10, IsActive: true, MaxUses: 2,
	}
	require.NoError(t, s.CreatePromoCode(ctx, p))

	got, err := s.IncrementPromoCodeUses(ctx, p.ID, t0)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	got, err = s.IncrementPromoCodeUses(ctx, p.ID, t0)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, promocode.DeactivationExhausted, got.DeactivationReason)

	_, err = s.IncrementPromoCodeUses(ctx, p.ID, t0)
	require.ErrorIs(t, err, trialpay.ErrPreconditionFailed)

	got, err = s.DecrementPromoCodeUses(ctx, p.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentUses)
}

func TestValidationAttempts(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordValidationAttempt(ctx, &promocode.ValidationAttempt{
			ID: id.NewValidationAttemptID(), UserID: "u1", Code: "X", AttemptedAt: t0.Add(time.Duration(i) * time.Minute),
		}))
	}

	n, err := s.CountValidationAttempts(ctx, "u1", t0)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "the window excludes its lower bound")

	pruned, err := s.PruneValidationAttempts(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	n, err = s.CountValidationAttempts(ctx, "u1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSubscription_DeleteOnlyIncomplete(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	sub := &subscription.Subscription{
		Entity: types.NewEntity(t0), ID: id.NewSubscriptionID(), TenantID: "t1",
		Status: subscription.StatusIncomplete,
	}
	require.NoError(t, s.CreateSubscription(ctx, sub))
	require.NoError(t, s.TransitionSubscription(ctx, sub.ID, subscription.StatusIncomplete, subscription.StatusActive, t0, ""))

	err := s.DeleteIncompleteSubscription(ctx, sub.ID)
	require.ErrorIs(t, err, trialpay.ErrPreconditionFailed)

	err = s.TransitionSubscription(ctx, sub.ID, subscription.StatusIncomplete, subscription.StatusCanceled, t0, "late")
	require.ErrorIs(t, err, trialpay.ErrPreconditionFailed)
}
