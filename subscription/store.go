package subscription

import (
	"context"
	"time"

	"github.com/xraph/trialpay/id"
)

type Store interface {
	CreateSubscription(ctx context.Context, s *Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	ListSubscriptions(ctx context.Context, opts ListOpts) ([]*Subscription, error)

	// TransitionSubscription sets status to, only while the current status is
	// from. Cancellations record at and reason.
	TransitionSubscription(ctx context.Context, subID id.SubscriptionID, from, to Status, at time.Time, reason string) error

	// DeleteIncompleteSubscription removes a subscription that never left
	// StatusIncomplete. Any other status is a precondition failure.
	DeleteIncompleteSubscription(ctx context.Context, subID id.SubscriptionID) error
}

type ListOpts struct {
	TenantID      string
	Status        Status
	GracePeriodID id.GracePeriodID

	// CreatedBefore keeps subscriptions created strictly before this instant.
	CreatedBefore *time.Time

	Limit  int
	Offset int
}

func (o ListOpts) Matches(s *Subscription) bool {
	switch {
	case o.TenantID != "" && s.TenantID != o.TenantID:
		return false
	case o.Status != "" && s.Status != o.Status:
		return false
	case !o.GracePeriodID.IsNil() && !s.GracePeriodID.Equal(o.GracePeriodID):
		return false
	case o.CreatedBefore != nil && !s.CreatedAt.Before(*o.CreatedBefore):
		return false
	}
	return true
}
