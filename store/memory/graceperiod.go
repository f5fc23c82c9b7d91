package memory

import (
	"context"

	"github.com/xraph/trialpay"
	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/id"
)

func (s *Store) CreateGracePeriod(_ context.Context, g *graceperiod.GracePeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.gracePeriods[g.ID.String()]; exists {
		return trialpay.ErrAlreadyExists
	}
	if g.Status == graceperiod.StatusActive {
		for _, other := range s.gracePeriods {
			if other.UserID == g.UserID && other.Status == graceperiod.StatusActive {
				return trialpay.ErrAlreadyExists
			}
		}
	}
	s.gracePeriods[g.ID.String()] = g.Clone()
	return nil
}

func (s *Store) GetGracePeriod(_ context.Context, graceID id.GracePeriodID) (*graceperiod.GracePeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if g, ok := s.gracePeriods[graceID.String()]; ok {
		return g.Clone(), nil
	}
	return nil, trialpay.ErrGracePeriodNotFound
}

func (s *Store) GetActiveGracePeriod(_ context.Context, userID string) (*graceperiod.GracePeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.gracePeriods {
		if g.UserID == userID && g.Status == graceperiod.StatusActive {
			return g.Clone(), nil
		}
	}
	return nil, trialpay.ErrGracePeriodNotFound
}

func (s *Store) ListGracePeriods(_ context.Context, opts graceperiod.ListOpts) ([]*graceperiod.GracePeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*graceperiod.GracePeriod
	for _, k := range sortedKeys(s.gracePeriods) {
		if g := s.gracePeriods[k]; opts.Matches(g) {
			result = append(result, g.Clone())
		}
	}
	return paginate(result, opts.Limit, opts.Offset), nil
}

func (s *Store) ExtendGracePeriod(_ context.Context, graceID id.GracePeriodID, ext graceperiod.Extension) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.gracePeriods[graceID.String()]
	if !ok {
		return trialpay.ErrGracePeriodNotFound
	}
	if g.Status != graceperiod.StatusActive || !g.EndDate.Equal(ext.PreviousEndDate) {
		return trialpay.ErrPreconditionFailed
	}
	graceperiod.ApplyExtension(g, ext)
	return nil
}

func (s *Store) TransitionGracePeriod(_ context.Context, graceID id.GracePeriodID, t graceperiod.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.gracePeriods[graceID.String()]
	if !ok {
		return trialpay.ErrGracePeriodNotFound
	}
	if !t.Allows(g.Status) {
		return trialpay.ErrPreconditionFailed
	}
	t.Apply(g)
	return nil
}

func (s *Store) AddGracePeriodNotification(_ context.Context, graceID id.GracePeriodID, n graceperiod.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.gracePeriods[graceID.String()]
	if !ok {
		return trialpay.ErrGracePeriodNotFound
	}
	if g.HasNotification(n.Type) {
		return trialpay.ErrPreconditionFailed
	}
	g.NotificationsSent = append(g.NotificationsSent, n)
	g.UpdatedAt = n.SentAt
	return nil
}
