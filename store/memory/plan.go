package memory

import (
	"context"
	"time"

	"github.com/xraph/trialpay"
	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/plan"
	"github.com/xraph/trialpay/tenant"
)

// Plan Store implementation
func (s *Store) CreatePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[p.ID.String()]; exists {
		return trialpay.ErrAlreadyExists
	}
	for _, other := range s.plans {
		if other.Slug == p.Slug {
			return trialpay.ErrAlreadyExists
		}
	}
	s.plans[p.ID.String()] = p.Clone()
	return nil
}

func (s *Store) GetPlan(_ context.Context, planID id.PlanID) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.plans[planID.String()]; ok {
		return p.Clone(), nil
	}
	return nil, trialpay.ErrPlanNotFound
}

func (s *Store) GetPlanBySlug(_ context.Context, slug string) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.plans {
		if p.Slug == slug {
			return p.Clone(), nil
		}
	}
	return nil, trialpay.ErrPlanNotFound
}

func (s *Store) ListPlans(_ context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*plan.Plan
	for _, k := range sortedKeys(s.plans) {
		p := s.plans[k]
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		result = append(result, p.Clone())
	}
	return paginate(result, opts.Limit, opts.Offset), nil
}

func (s *Store) ArchivePlan(_ context.Context, planID id.PlanID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plans[planID.String()]
	if !ok {
		return trialpay.ErrPlanNotFound
	}
	p.Status = plan.StatusArchived
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Tenant Store implementation
func (s *Store) SetActivePlan(_ context.Context, tenantID string, planID id.PlanID, status tenant.BillingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tenants[tenantID] = &tenant.Tenant{
		ID:            tenantID,
		ActivePlanID:  planID,
		BillingStatus: status,
		UpdatedAt:     time.Now().UTC(),
	}
	return nil
}

func (s *Store) GetTenant(_ context.Context, tenantID string) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tenants[tenantID]; ok {
		c := *t
		return &c, nil
	}
	return nil, trialpay.ErrTenantNotFound
}
