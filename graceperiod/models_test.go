package graceperiod

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func window(days int) *GracePeriod {
	return &GracePeriod{
		StartDate:    start,
		EndDate:      start.AddDate(0, 0, days),
		DurationDays: days,
		Status:       StatusActive,
	}
}

func TestDaysRemaining(t *testing.T) {
	g := window(14)

	tests := []struct {
		at   time.Time
		want int
	}{
		{start, 14},
		{start.Add(time.Minute), 14},
		{start.AddDate(0, 0, 13), 1},
		{start.AddDate(0, 0, 13).Add(23 * time.Hour), 1},
		{g.EndDate, 0},
		{g.EndDate.Add(48 * time.Hour), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, g.DaysRemaining(tt.at), tt.at)
	}

	assert.Equal(t, 1, g.HoursRemaining(g.EndDate.Add(-time.Second)))
}

func TestProgressPercentage(t *testing.T) {
	g := window(10)
	assert.InDelta(t, 0, g.ProgressPercentage(start.Add(-time.Hour)), 0.001)
	assert.InDelta(t, 50, g.ProgressPercentage(start.AddDate(0, 0, 5)), 0.001)
	assert.InDelta(t, 100, g.ProgressPercentage(start.AddDate(0, 0, 30)), 0.001)
}

func TestIsActiveIsExpired(t *testing.T) {
	g := window(3)
	assert.True(t, g.IsActive(start))
	assert.False(t, g.IsExpired(start))

	assert.False(t, g.IsActive(g.EndDate))
	assert.True(t, g.IsExpired(g.EndDate), "an active period past its end reads as expired")

	g.Status = StatusConverted
	assert.False(t, g.IsExpired(g.EndDate.Add(time.Hour)))
}

func TestShouldSendNotification_Windows(t *testing.T) {
	g := window(14)

	tests := []struct {
		daysLeft float64
		want     NotificationType
		ok       bool
	}{
		{14, "", false},
		{7.5, "", false},
		{7, NotificationReminder7d, true},
		{3.5, NotificationReminder7d, true},
		{3, NotificationReminder3d, true},
		{1.5, NotificationReminder3d, true},
		{1, NotificationReminder1d, true},
		{0.01, NotificationReminder1d, true},
		{0, NotificationExpired, true},
		{-2, NotificationExpired, true},
	}
	for _, tt := range tests {
		at := g.EndDate.Add(-time.Duration(tt.daysLeft * float64(24*time.Hour)))
		got, ok := g.NextNotificationDue(at)
		assert.Equal(t, tt.ok, ok, "days left %.2f", tt.daysLeft)
		assert.Equal(t, tt.want, got, "days left %.2f", tt.daysLeft)
	}
}

func TestShouldSendNotification_AtMostOnce(t *testing.T) {
	g := window(14)
	at := g.EndDate.AddDate(0, 0, -5)
	require.True(t, g.ShouldSendNotification(NotificationReminder7d, at))

	g.NotificationsSent = append(g.NotificationsSent, Notification{Type: NotificationReminder7d, SentAt: at})
	assert.False(t, g.ShouldSendNotification(NotificationReminder7d, at))
	_, ok := g.NextNotificationDue(at)
	assert.False(t, ok)
}

func TestShouldSendNotification_ConvertedNeverExpires(t *testing.T) {
	g := window(1)
	g.Status = StatusConverted
	assert.False(t, g.ShouldSendNotification(NotificationExpired, g.EndDate.Add(time.Hour)))
}

func TestSourceDefaults(t *testing.T) {
	days, ok := SourceNewRegistration.DefaultDurationDays()
	assert.True(t, ok)
	assert.Equal(t, 14, days)

	assert.False(t, Source("referral").Valid())
	assert.True(t, SourcePromoCode.Valid())
}

func TestTransition(t *testing.T) {
	at := start.Add(time.Hour)
	tr := Transition{
		From:   []Status{StatusActive, StatusExpired},
		To:     StatusCancelled,
		At:     at,
		Reason: "requested",
	}
	assert.True(t, tr.Allows(StatusExpired))
	assert.False(t, tr.Allows(StatusConverted))

	g := window(5)
	tr.Apply(g)
	assert.Equal(t, StatusCancelled, g.Status)
	require.NotNil(t, g.CancelledAt)
	assert.True(t, g.CancelledAt.Equal(at))
	assert.Equal(t, "requested", g.CancelReason)
	assert.True(t, g.UpdatedAt.Equal(at))
}

func TestApplyExtension(t *testing.T) {
	g := window(14)
	first := g.EndDate

	ApplyExtension(g, Extension{
		ExtendedBy: "admin", ExtendedAt: start, AdditionalDays: 7,
		PreviousEndDate: first, NewEndDate: first.AddDate(0, 0, 7),
	})
	ApplyExtension(g, Extension{
		ExtendedBy: "admin", ExtendedAt: start, AdditionalDays: 2,
		PreviousEndDate: first.AddDate(0, 0, 7), NewEndDate: first.AddDate(0, 0, 9),
	})

	assert.Equal(t, 23, g.DurationDays)
	assert.True(t, g.EndDate.Equal(first.AddDate(0, 0, 9)))
	require.NotNil(t, g.OriginalEndDate)
	assert.True(t, g.OriginalEndDate.Equal(first))
	assert.Len(t, g.ExtensionHistory, 2)
}

func TestClone(t *testing.T) {
	g := window(3)
	g.NotificationsSent = []Notification{{Type: NotificationReminder3d}}
	g.Metadata = map[string]string{"k": "v"}

	c := g.Clone()
	c.NotificationsSent[0].Type = NotificationReminder1d
	c.Metadata["k"] = "changed"

	assert.Equal(t, NotificationReminder3d, g.NotificationsSent[0].Type)
	assert.Equal(t, "v", g.Metadata["k"])
}

func TestListOptsMatches(t *testing.T) {
	g := window(3)
	g.UserID = "u1"
	end := g.EndDate

	assert.True(t, ListOpts{UserID: "u1", Status: StatusActive, EndingAtOrBefore: &end}.Matches(g))
	assert.False(t, ListOpts{UserID: "u2"}.Matches(g))

	before := end.Add(-time.Second)
	assert.False(t, ListOpts{EndingAtOrBefore: &before}.Matches(g))

	g.NotificationsSent = []Notification{{Type: NotificationExpired}}
	assert.False(t, ListOpts{WithoutNotification: NotificationExpired}.Matches(g))
}
