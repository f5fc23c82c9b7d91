package memory

import (
	"context"
	"time"

	"github.com/xraph/trialpay"
	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/subscription"
)

// Subscription Store implementation
func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return trialpay.ErrAlreadyExists
	}
	s.subscriptions[sub.ID.String()] = sub.Clone()
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		return sub.Clone(), nil
	}
	return nil, trialpay.ErrSubscriptionNotFound
}

func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*subscription.Subscription
	for _, k := range sortedKeys(s.subscriptions) {
		if sub := s.subscriptions[k]; opts.Matches(sub) {
			result = append(result, sub.Clone())
		}
	}
	return paginate(result, opts.Limit, opts.Offset), nil
}

func (s *Store) TransitionSubscription(_ context.Context, subID id.SubscriptionID, from, to subscription.Status, at time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return trialpay.ErrSubscriptionNotFound
	}
	if sub.Status != from {
		return trialpay.ErrPreconditionFailed
	}
	sub.Status = to
	sub.UpdatedAt = at
	if to == subscription.StatusCanceled {
		canceledAt := at
		sub.CanceledAt = &canceledAt
		sub.CancelReason = reason
	}
	return nil
}

func (s *Store) DeleteIncompleteSubscription(_ context.Context, subID id.SubscriptionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return trialpay.ErrSubscriptionNotFound
	}
	if sub.Status != subscription.StatusIncomplete {
		return trialpay.ErrPreconditionFailed
	}
	delete(s.subscriptions, subID.String())
	return nil
}
