package graceperiod

import (
	"context"
	"time"

	"github.com/xraph/trialpay/id"
)

// Store persists grace periods. There is no general update:
// every mutation is a conditional transition that the backend applies as a
// single-document atomic write.
type Store interface {
	// CreateGracePeriod inserts g. It fails with an already-exists error when
	// the user already holds an active grace period.
	CreateGracePeriod(ctx context.Context, g *GracePeriod) error
	GetGracePeriod(ctx context.Context, graceID id.GracePeriodID) (*GracePeriod, error)
	GetActiveGracePeriod(ctx context.Context, userID string) (*GracePeriod, error)
	ListGracePeriods(ctx context.Context, opts ListOpts) ([]*GracePeriod, error)

	// ExtendGracePeriod applies ext only while the period is active and its
	// end date still equals ext.PreviousEndDate.
	ExtendGracePeriod(ctx context.Context, graceID id.GracePeriodID, ext Extension) error

	// TransitionGracePeriod moves the period to t.To only while its current
	// status is one of t.From.
	TransitionGracePeriod(ctx context.Context, graceID id.GracePeriodID, t Transition) error

	// AddGracePeriodNotification appends n only if no notification of the
	// same type was recorded yet.
	AddGracePeriodNotification(ctx context.Context, graceID id.GracePeriodID, n Notification) error
}

// Transition is the patch applied by TransitionGracePeriod.
type Transition struct {
	From []Status
	To   Status
	At   time.Time

	// Set for conversions.
	PlanID         id.PlanID
	SubscriptionID id.SubscriptionID

	// Set for cancellations.
	Reason string
}

// Allows reports whether a period in status s may take this transition.
func (t Transition) Allows(s Status) bool {
	for _, f := range t.From {
		if f == s {
			return true
		}
	}
	return false
}

// Apply mutates g the way a backend must. Backends without a native patch
// (the memory store) call it under their lock.
func (t Transition) Apply(g *GracePeriod) {
	at := t.At.UTC()
	g.Status = t.To
	g.UpdatedAt = at
	switch t.To {
	case StatusConverted:
		g.ConvertedAt = &at
		g.SelectedPlanID = t.PlanID
		g.SubscriptionID = t.SubscriptionID
	case StatusCancelled:
		g.CancelledAt = &at
		g.CancelReason = t.Reason
	case StatusExpired:
		g.ExpiredAt = &at
	case StatusActive:
	}
}

// ApplyExtension mutates g for ext.
func ApplyExtension(g *GracePeriod, ext Extension) {
	if g.OriginalEndDate == nil {
		orig := g.EndDate
		g.OriginalEndDate = &orig
	}
	g.EndDate = ext.NewEndDate
	g.DurationDays += ext.AdditionalDays
	g.ExtensionHistory = append(g.ExtensionHistory, ext)
	g.UpdatedAt = ext.ExtendedAt
}

// ListOpts filters and pages grace period listings.
type ListOpts struct {
	UserID   string
	TenantID string
	Status   Status
	Source   Source

	// EndingAtOrBefore keeps periods whose end date is <= this instant.
	EndingAtOrBefore *time.Time

	// WithoutNotification keeps periods that have no notification of this type.
	WithoutNotification NotificationType

	// AfterID turns the listing into an id-ordered cursor scan.
	AfterID id.GracePeriodID

	Limit  int
	Offset int
}

// Matches reports whether g satisfies the filters (not the paging).
func (o ListOpts) Matches(g *GracePeriod) bool {
	switch {
	case o.UserID != "" && g.UserID != o.UserID:
		return false
	case o.TenantID != "" && g.TenantID != o.TenantID:
		return false
	case o.Status != "" && g.Status != o.Status:
		return false
	case o.Source != "" && g.Source != o.Source:
		return false
	case o.EndingAtOrBefore != nil && g.EndDate.After(*o.EndingAtOrBefore):
		return false
	case o.WithoutNotification != "" && g.HasNotification(o.WithoutNotification):
		return false
	case !o.AfterID.IsNil() && g.ID.String() <= o.AfterID.String():
		return false
	}
	return true
}
