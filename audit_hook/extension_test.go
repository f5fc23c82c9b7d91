package audithook_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audithook "github.com/xraph/trialpay/audit_hook"
	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/promocode"
	"github.com/xraph/trialpay/subscription"
	"github.com/xraph/trialpay/types"
)

type capture struct {
	events []*audithook.AuditEvent
}

func (c *capture) recorder() audithook.RecorderFunc {
	return func(_ context.Context, e *audithook.AuditEvent) error {
		c.events = append(c.events, e)
		return nil
	}
}

func TestExtension_GracePeriodConverted(t *testing.T) {
	c := &capture{}
	ext := audithook.New(c.recorder())

	g := &graceperiod.GracePeriod{ID: id.NewGracePeriodID(), UserID: "u1", TenantID: "t1"}
	sub := &subscription.Subscription{
		ID:               id.NewSubscriptionID(),
		PlanID:           id.NewPlanID(),
		Amount:           types.USD(1999),
		AppliedPromoCode: &subscription.AppliedPromoCode{Code: "SPRING"},
	}

	require.NoError(t, ext.OnGracePeriodConverted(context.Background(), g, sub))
	require.Len(t, c.events, 1)

	evt := c.events[0]
	assert.Equal(t, audithook.ActionGracePeriodConverted, evt.Action)
	assert.Equal(t, audithook.ResourceGracePeriod, evt.Resource)
	assert.Equal(t, g.ID.String(), evt.ResourceID)
	assert.Equal(t, audithook.OutcomeSuccess, evt.Outcome)
	assert.Equal(t, "SPRING", evt.Metadata["promo_code"])
	assert.Equal(t, sub.ID.String(), evt.Metadata["subscription_id"])
}

func TestExtension_PromoValidation(t *testing.T) {
	tests := []struct {
		name     string
		result   *promocode.ValidationResult
		action   string
		category string
	}{
		{"valid is not audited", &promocode.ValidationResult{Valid: true}, "", ""},
		{"throttled", &promocode.ValidationResult{ErrorCode: promocode.CodeRateLimitExceeded}, audithook.ActionPromoCodeThrottled, audithook.CategoryAbuse},
		{"rejected", &promocode.ValidationResult{ErrorCode: promocode.CodeExhausted}, audithook.ActionPromoCodeRejected, audithook.CategoryPromotion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &capture{}
			ext := audithook.New(c.recorder())

			require.NoError(t, ext.OnPromoCodeValidated(context.Background(), "SPRING", tt.result))
			if tt.action == "" {
				assert.Empty(t, c.events)
				return
			}
			require.Len(t, c.events, 1)
			assert.Equal(t, tt.action, c.events[0].Action)
			assert.Equal(t, tt.category, c.events[0].Category)
			assert.Equal(t, audithook.OutcomeFailure, c.events[0].Outcome)
		})
	}
}

func TestExtension_EnabledActions(t *testing.T) {
	c := &capture{}
	ext := audithook.New(c.recorder(), audithook.WithEnabledActions(audithook.ActionPromoCodeDrift))
	ctx := context.Background()
	p := &promocode.PromoCode{ID: id.NewPromoCodeID(), Code: "SPRING"}

	require.NoError(t, ext.OnPromoCodeExhausted(ctx, p))
	require.NoError(t, ext.OnPromoCodeDrift(ctx, p, 5, 3))

	require.Len(t, c.events, 1)
	assert.Equal(t, audithook.ActionPromoCodeDrift, c.events[0].Action)
	assert.Equal(t, 5, c.events[0].Metadata["recorded"])
	assert.Equal(t, 3, c.events[0].Metadata["counted"])
}

func TestExtension_DisabledActions(t *testing.T) {
	c := &capture{}
	ext := audithook.New(c.recorder(), audithook.WithDisabledActions(audithook.ActionNotificationSent))
	ctx := context.Background()
	g := &graceperiod.GracePeriod{ID: id.NewGracePeriodID(), UserID: "u1"}

	require.NoError(t, ext.OnNotificationSent(ctx, g, graceperiod.NotificationReminder3d))
	require.NoError(t, ext.OnGracePeriodExpired(ctx, g))

	require.Len(t, c.events, 1)
	assert.Equal(t, audithook.ActionGracePeriodExpired, c.events[0].Action)
}

func TestExtension_RecorderErrorIsSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	}))
	g := &graceperiod.GracePeriod{ID: id.NewGracePeriodID()}

	assert.NoError(t, ext.OnGracePeriodCancelled(context.Background(), g))
}
