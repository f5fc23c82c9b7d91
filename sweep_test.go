package trialpay_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/trialpay"
	"github.com/xraph/trialpay/graceperiod"
)

func TestRunExpirySweep(t *testing.T) {
	h := newHarness(t)
	short := h.grace(t, "u1", 2)
	long := h.grace(t, "u2", 14)
	cancelled := h.grace(t, "u3", 2)
	_, err := h.CancelGracePeriod(h.ctx, cancelled.ID, "")
	require.NoError(t, err)

	h.clock.Advance(2 * day)
	res := h.RunExpirySweep(h.ctx)
	require.NoError(t, res.Err())
	assert.Equal(t, trialpay.SweepExpiry, res.Name)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Notified)

	g := h.reload(t, short)
	assert.Equal(t, graceperiod.StatusExpired, g.Status)
	require.NotNil(t, g.ExpiredAt)
	assert.True(t, g.ExpiredAt.Equal(epoch.Add(2*day)))
	assert.True(t, g.HasNotification(graceperiod.NotificationExpired))

	assert.Equal(t, graceperiod.StatusActive, h.reload(t, long).Status)
	assert.Equal(t, graceperiod.StatusCancelled, h.reload(t, cancelled).Status)
	assert.Equal(t, []graceperiod.NotificationType{graceperiod.NotificationExpired}, h.out.types())

	again := h.RunExpirySweep(h.ctx)
	assert.Zero(t, again.Processed)
	assert.Zero(t, again.Notified)
	assert.Len(t, h.out.types(), 1)
}

func TestRunExpirySweep_RetriesFailedNotification(t *testing.T) {
	h := newHarness(t)
	g := h.grace(t, "u1", 1)
	h.out.failWith(errTransport)

	h.clock.Advance(day)
	res := h.RunExpirySweep(h.ctx)
	assert.Equal(t, 1, res.Processed)
	assert.Zero(t, res.Notified)
	require.Equal(t, 1, res.Failed())
	assert.True(t, errors.Is(res.Err(), errTransport))

	stored := h.reload(t, g)
	assert.Equal(t, graceperiod.StatusExpired, stored.Status, "expiry does not wait for delivery")
	assert.False(t, stored.HasNotification(graceperiod.NotificationExpired))

	h.out.failWith(nil)
	res = h.RunExpirySweep(h.ctx)
	require.NoError(t, res.Err())
	assert.Zero(t, res.Processed)
	assert.Equal(t, 1, res.Notified)
	assert.True(t, h.reload(t, g).HasNotification(graceperiod.NotificationExpired))
}

func TestRunReminderSweep_Schedule(t *testing.T) {
	h := newHarness(t)
	g := h.grace(t, "u1", 14)

	steps := []struct {
		at   time.Duration
		want []graceperiod.NotificationType
	}{
		{0, nil},
		{6 * day, nil},
		{7 * day, []graceperiod.NotificationType{graceperiod.NotificationReminder7d}},
		{10 * day, []graceperiod.NotificationType{graceperiod.NotificationReminder7d}},
		{11 * day, []graceperiod.NotificationType{graceperiod.NotificationReminder7d, graceperiod.NotificationReminder3d}},
		{13 * day, []graceperiod.NotificationType{
			graceperiod.NotificationReminder7d, graceperiod.NotificationReminder3d, graceperiod.NotificationReminder1d,
		}},
		{13*day + 12*time.Hour, []graceperiod.NotificationType{
			graceperiod.NotificationReminder7d, graceperiod.NotificationReminder3d, graceperiod.NotificationReminder1d,
		}},
		{14 * day, []graceperiod.NotificationType{
			graceperiod.NotificationReminder7d, graceperiod.NotificationReminder3d, graceperiod.NotificationReminder1d,
		}},
	}

	for _, step := range steps {
		h.clock.Advance(epoch.Add(step.at).Sub(h.clock.Now()))
		res := h.RunReminderSweep(h.ctx)
		require.NoError(t, res.Err())
		assert.Equal(t, step.want, nilIfEmpty(h.out.types()), "at %s", step.at)
	}

	assert.Len(t, h.reload(t, g).NotificationsSent, 3)
}

func TestRunReminderSweep_ShortTrialSkipsEarlierReminders(t *testing.T) {
	h := newHarness(t)
	h.grace(t, "u1", 2)

	res := h.RunReminderSweep(h.ctx)
	require.NoError(t, res.Err())
	assert.Equal(t, 1, res.Notified)
	assert.Equal(t, []graceperiod.NotificationType{graceperiod.NotificationReminder3d}, h.out.types())
}

func TestRunReminderSweep_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.grace(t, "u1", 7)
	h.grace(t, "u2", 3)

	first := h.RunReminderSweep(h.ctx)
	second := h.RunReminderSweep(h.ctx)

	assert.Equal(t, 2, first.Notified)
	assert.Zero(t, second.Notified)
	assert.ElementsMatch(t, []graceperiod.NotificationType{
		graceperiod.NotificationReminder7d, graceperiod.NotificationReminder3d,
	}, h.out.types())
}

func TestRunReminderSweep_TransportFailureIsRetried(t *testing.T) {
	h := newHarness(t)
	g := h.grace(t, "u1", 7)
	h.out.failWith(errTransport)

	res := h.RunReminderSweep(h.ctx)
	assert.Zero(t, res.Notified)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, g.ID.String(), res.Errors[0].ID)
	assert.Empty(t, h.reload(t, g).NotificationsSent)

	h.out.failWith(nil)
	res = h.RunReminderSweep(h.ctx)
	require.NoError(t, res.Err())
	assert.Equal(t, 1, res.Notified)
}

func TestRunReminderSweep_Pages(t *testing.T) {
	h := newHarness(t, trialpay.WithSweepBatchSize(2))
	for _, u := range []string{"a", "b", "c", "d", "e"} {
		h.grace(t, u, 5)
	}

	res := h.RunReminderSweep(h.ctx)
	require.NoError(t, res.Err())
	assert.Equal(t, 5, res.Notified)
}

func TestRunExpirySweep_Pages(t *testing.T) {
	h := newHarness(t, trialpay.WithSweepBatchSize(2))
	for _, u := range []string{"a", "b", "c", "d", "e"} {
		h.grace(t, u, 1)
	}
	h.clock.Advance(day)

	res := h.RunExpirySweep(h.ctx)
	require.NoError(t, res.Err())
	assert.Equal(t, 5, res.Processed)
	assert.Equal(t, 5, res.Notified)
}

func nilIfEmpty[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return s
}
