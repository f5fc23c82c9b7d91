// Package graceperiod defines the grace period entity: a time-boxed trial
// window for one user within a tenant, and the pure queries derived from it.
package graceperiod

import (
	"math"
	"time"

	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/types"
)

// Duration bounds in days.
const (
	MinDurationDays = 1
	MaxDurationDays = 365
)

// Status is the lifecycle state of a grace period.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusConverted Status = "converted"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition except cancel may happen.
func (s Status) IsTerminal() bool {
	return s != StatusActive
}

// Source records why a grace period was granted.
type Source string

const (
	SourceNewRegistration Source = "new_registration"
	SourcePlanMigration   Source = "plan_migration"
	SourceAdminGranted    Source = "admin_granted"
	SourcePromoCode       Source = "promo_code"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	_, ok := s.DefaultDurationDays()
	return ok
}

// DefaultDurationDays is the trial length used when the caller does not
// pass one. The second result is false for unknown sources.
func (s Source) DefaultDurationDays() (int, bool) {
	switch s {
	case SourceNewRegistration:
		return 14, true
	case SourcePlanMigration:
		return 7, true
	case SourceAdminGranted:
		return 30, true
	case SourcePromoCode:
		return 30, true
	}
	return 0, false
}

// NotificationType names one of the lifecycle reminders.
type NotificationType string

const (
	NotificationReminder7d NotificationType = "reminder_7d"
	NotificationReminder3d NotificationType = "reminder_3d"
	NotificationReminder1d NotificationType = "reminder_1d"
	NotificationExpired    NotificationType = "expired"
)

// NotificationPriority is the order in which due notifications are evaluated.
var NotificationPriority = []NotificationType{
	NotificationReminder7d,
	NotificationReminder3d,
	NotificationReminder1d,
	NotificationExpired,
}

// Channels flags which transports carried a notification.
type Channels struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
	InApp bool `json:"in_app"`
}

// Notification records one sent reminder.
type Notification struct {
	Type     NotificationType `json:"type"`
	SentAt   time.Time        `json:"sent_at"`
	Channels Channels         `json:"channels"`
}

// Extension records one in-place extension.
type Extension struct {
	ExtendedBy      string    `json:"extended_by"`
	ExtendedAt      time.Time `json:"extended_at"`
	AdditionalDays  int       `json:"additional_days"`
	PreviousEndDate time.Time `json:"previous_end_date"`
	NewEndDate      time.Time `json:"new_end_date"`
	Reason          string    `json:"reason,omitempty"`
}

// GracePeriod is a trial window for one (user, tenant) pair.
type GracePeriod struct {
	types.Entity

	ID                id.GracePeriodID  `json:"id"`
	UserID            string            `json:"user_id"`
	TenantID          string            `json:"tenant_id"`
	StartDate         time.Time         `json:"start_date"`
	EndDate           time.Time         `json:"end_date"`
	DurationDays      int               `json:"duration_days"`
	Status            Status            `json:"status"`
	Source            Source            `json:"source"`
	SourceDetails     map[string]string `json:"source_details,omitempty"`
	NotificationsSent []Notification    `json:"notifications_sent"`
	OriginalEndDate   *time.Time        `json:"original_end_date,omitempty"`
	ExtensionHistory  []Extension       `json:"extension_history"`
	ConvertedAt       *time.Time        `json:"converted_at,omitempty"`
	SelectedPlanID    id.PlanID         `json:"selected_plan_id,omitzero"`
	SubscriptionID    id.SubscriptionID `json:"subscription_id,omitzero"`
	ExpiredAt         *time.Time        `json:"expired_at,omitempty"`
	CancelledAt       *time.Time        `json:"cancelled_at,omitempty"`
	CancelReason      string            `json:"cancel_reason,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy so callers can hand out snapshots.
func (g *GracePeriod) Clone() *GracePeriod {
	if g == nil {
		return nil
	}
	c := *g
	c.SourceDetails = cloneMap(g.SourceDetails)
	c.Metadata = cloneMap(g.Metadata)
	c.NotificationsSent = append([]Notification(nil), g.NotificationsSent...)
	c.ExtensionHistory = append([]Extension(nil), g.ExtensionHistory...)
	c.OriginalEndDate = cloneTime(g.OriginalEndDate)
	c.ConvertedAt = cloneTime(g.ConvertedAt)
	c.ExpiredAt = cloneTime(g.ExpiredAt)
	c.CancelledAt = cloneTime(g.CancelledAt)
	return &c
}

// IsActive reports whether the period is active and has not run out.
func (g *GracePeriod) IsActive(now time.Time) bool {
	return g.Status == StatusActive && now.Before(g.EndDate)
}

// IsExpired reports whether the period was expired or has run out unconverted.
func (g *GracePeriod) IsExpired(now time.Time) bool {
	if g.Status == StatusExpired {
		return true
	}
	return g.Status == StatusActive && !now.Before(g.EndDate)
}

// DaysRemaining is the number of started days left, never negative.
func (g *GracePeriod) DaysRemaining(now time.Time) int {
	return ceilUnits(g.EndDate.Sub(now), 24*time.Hour)
}

// HoursRemaining is the number of started hours left, never negative.
func (g *GracePeriod) HoursRemaining(now time.Time) int {
	return ceilUnits(g.EndDate.Sub(now), time.Hour)
}

// ProgressPercentage is the elapsed share of the window, clamped to 0..100.
func (g *GracePeriod) ProgressPercentage(now time.Time) float64 {
	total := g.EndDate.Sub(g.StartDate)
	if total <= 0 {
		return 100
	}
	pct := float64(now.Sub(g.StartDate)) / float64(total) * 100
	return math.Min(100, math.Max(0, pct))
}

// HasNotification reports whether a notification of type t was recorded.
func (g *GracePeriod) HasNotification(t NotificationType) bool {
	for _, n := range g.NotificationsSent {
		if n.Type == t {
			return true
		}
	}
	return false
}

// ShouldSendNotification reports whether t is due at now and not yet sent.
// The reminder windows are half-open and mutually exclusive.
func (g *GracePeriod) ShouldSendNotification(t NotificationType, now time.Time) bool {
	if g.HasNotification(t) {
		return false
	}
	days := g.DaysRemaining(now)
	switch t {
	case NotificationReminder7d:
		return days > 3 && days <= 7
	case NotificationReminder3d:
		return days > 1 && days <= 3
	case NotificationReminder1d:
		return days > 0 && days <= 1
	case NotificationExpired:
		return !now.Before(g.EndDate) && g.Status != StatusConverted
	}
	return false
}

// NextNotificationDue returns the first due notification in priority order.
func (g *GracePeriod) NextNotificationDue(now time.Time) (NotificationType, bool) {
	for _, t := range NotificationPriority {
		if g.ShouldSendNotification(t, now) {
			return t, true
		}
	}
	return "", false
}

func ceilUnits(d, unit time.Duration) int {
	if d <= 0 {
		return 0
	}
	n := d / unit
	if d%unit != 0 {
		n++
	}
	return int(n)
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
