package memory

import (
	"context"
	"time"

	"github.com/xraph/trialpay"
	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/promocode"
)

func (s *Store) CreatePromoCode(_ context.Context, p *promocode.PromoCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.promoCodes[p.ID.String()]; exists {
		return trialpay.ErrAlreadyExists
	}
	for _, other := range s.promoCodes {
		if other.Code == p.Code {
			return trialpay.ErrAlreadyExists
		}
	}
	s.promoCodes[p.ID.String()] = p.Clone()
	return nil
}

func (s *Store) GetPromoCode(_ context.Context, promoID id.PromoCodeID) (*promocode.PromoCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.promoCodes[promoID.String()]; ok {
		return p.Clone(), nil
	}
	return nil, trialpay.ErrPromoCodeNotFound
}

func (s *Store) GetPromoCodeByCode(_ context.Context, code string) (*promocode.PromoCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.promoCodes {
		if p.Code == code {
			return p.Clone(), nil
		}
	}
	return nil, trialpay.ErrPromoCodeNotFound
}

func (s *Store) ListPromoCodes(_ context.Context, opts promocode.ListOpts) ([]*promocode.PromoCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*promocode.PromoCode
	for _, k := range sortedKeys(s.promoCodes) {
		p := s.promoCodes[k]
		if opts.TenantID != "" && p.TenantID != opts.TenantID {
			continue
		}
		if opts.ActiveOnly && !p.IsActive {
			continue
		}
		result = append(result, p.Clone())
	}
	return paginate(result, opts.Limit, opts.Offset), nil
}

func (s *Store) IncrementPromoCodeUses(_ context.Context, promoID id.PromoCodeID, at time.Time) (*promocode.PromoCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.promoCodes[promoID.String()]
	if !ok {
		return nil, trialpay.ErrPromoCodeNotFound
	}
	if p.IsExhausted() {
		return nil, trialpay.ErrPreconditionFailed
	}
	p.CurrentUses++
	if p.IsExhausted() {
		p.IsActive = false
		p.DeactivationReason = promocode.DeactivationExhausted
	}
	p.UpdatedAt = at
	return p.Clone(), nil
}

func (s *Store) DecrementPromoCodeUses(_ context.Context, promoID id.PromoCodeID, at time.Time) (*promocode.PromoCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.promoCodes[promoID.String()]
	if !ok {
		return nil, trialpay.ErrPromoCodeNotFound
	}
	if p.CurrentUses > 0 {
		p.CurrentUses--
	}
	p.UpdatedAt = at
	return p.Clone(), nil
}

func (s *Store) SetPromoCodeUses(_ context.Context, promoID id.PromoCodeID, uses int, state promocode.Activation, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.promoCodes[promoID.String()]
	if !ok {
		return trialpay.ErrPromoCodeNotFound
	}
	p.CurrentUses = uses
	p.IsActive = state.Active
	p.DeactivationReason = state.Reason
	p.UpdatedAt = at
	return nil
}

func (s *Store) SetPromoCodeActivation(_ context.Context, promoID id.PromoCodeID, state promocode.Activation, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.promoCodes[promoID.String()]
	if !ok {
		return trialpay.ErrPromoCodeNotFound
	}
	p.IsActive = state.Active
	p.DeactivationReason = state.Reason
	p.UpdatedAt = at
	return nil
}

func (s *Store) CreatePromoCodeUsage(_ context.Context, u *promocode.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usages[u.ID.String()]; exists {
		return trialpay.ErrAlreadyExists
	}
	c := *u
	s.usages[u.ID.String()] = &c
	return nil
}

func (s *Store) GetPromoCodeUsage(_ context.Context, usageID id.PromoCodeUsageID) (*promocode.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, ok := s.usages[usageID.String()]; ok {
		c := *u
		return &c, nil
	}
	return nil, trialpay.ErrPromoCodeUsageNotFound
}

func (s *Store) DeletePromoCodeUsage(_ context.Context, usageID id.PromoCodeUsageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usages[usageID.String()]; !ok {
		return trialpay.ErrPromoCodeUsageNotFound
	}
	delete(s.usages, usageID.String())
	return nil
}

func (s *Store) ListPromoCodeUsages(_ context.Context, opts promocode.UsageListOpts) ([]*promocode.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*promocode.Usage
	for _, k := range sortedKeys(s.usages) {
		u := s.usages[k]
		if !opts.PromoCodeID.IsNil() && !u.PromoCodeID.Equal(opts.PromoCodeID) {
			continue
		}
		if opts.UserID != "" && u.UserID != opts.UserID {
			continue
		}
		if !opts.SubscriptionID.IsNil() && !u.SubscriptionID.Equal(opts.SubscriptionID) {
			continue
		}
		c := *u
		result = append(result, &c)
	}
	return paginate(result, opts.Limit, opts.Offset), nil
}

func (s *Store) CountPromoCodeUsages(_ context.Context, promoID id.PromoCodeID, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, u := range s.usages {
		if u.PromoCodeID.Equal(promoID) && (userID == "" || u.UserID == userID) {
			n++
		}
	}
	return n, nil
}

// RecordValidationAttempt appends to the user's attempt log and drops
// entries past the retention window.
func (s *Store) RecordValidationAttempt(_ context.Context, a *promocode.ValidationAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := a.AttemptedAt.Add(-attemptRetention)
	kept := s.attempts[a.UserID][:0]
	for _, t := range s.attempts[a.UserID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.attempts[a.UserID] = append(kept, a.AttemptedAt)
	return nil
}

// CountValidationAttempts counts attempts strictly after since.
func (s *Store) CountValidationAttempts(_ context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, t := range s.attempts[userID] {
		if t.After(since) {
			n++
		}
	}
	return n, nil
}

// PruneValidationAttempts drops attempts at or before before.
func (s *Store) PruneValidationAttempts(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int64
	for userID, times := range s.attempts {
		kept := times[:0]
		for _, t := range times {
			if t.After(before) {
				kept = append(kept, t)
			} else {
				pruned++
			}
		}
		if len(kept) == 0 {
			delete(s.attempts, userID)
			continue
		}
		s.attempts[userID] = kept
	}
	return pruned, nil
}
