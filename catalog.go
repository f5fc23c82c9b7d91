package trialpay

import (
	"context"
	"errors"
	"strings"

	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/plan"
	"github.com/xraph/trialpay/subscription"
	"github.com/xraph/trialpay/tenant"
	"github.com/xraph/trialpay/types"
)

// ──────────────────────────────────────────────────
// Plan Management
// ──────────────────────────────────────────────────

// CreatePlan creates a new billing plan.
func (e *Engine) CreatePlan(ctx context.Context, p *plan.Plan) error {
	p.Slug = strings.ToLower(strings.TrimSpace(p.Slug))
	if p.Name == "" || p.Slug == "" {
		return ErrInvalidInput.with("plan name and slug are required")
	}
	if p.Price.Amount < 0 || p.Price.Currency == "" {
		return ErrInvalidInput.with("plan price needs a non-negative amount and a currency")
	}
	p.Price = types.NewMoney(p.Price.Amount, p.Price.Currency)
	if p.BillingPeriod == "" {
		p.BillingPeriod = plan.PeriodMonthly
	}
	if p.Status == "" {
		p.Status = plan.StatusActive
	}
	if p.ID.IsNil() {
		p.ID = id.NewPlanID()
	}
	p.Entity = types.NewEntity(e.now())

	if err := e.exec(ctx, func(ctx context.Context) error {
		return e.store.CreatePlan(ctx, p)
	}); err != nil {
		if errors.Is(err, ErrConflict) {
			return ErrDuplicatePlan.with("plan slug %s already exists", p.Slug)
		}
		return err
	}
	return nil
}

// GetPlan retrieves a plan by ID.
func (e *Engine) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	p, err := query(ctx, e, func(ctx context.Context) (*plan.Plan, error) {
		return e.store.GetPlan(ctx, planID)
	})
	if IsNotFound(err) {
		return nil, ErrPlanNotFound.with("plan %s not found", planID)
	}
	return p, err
}

// GetPlanBySlug retrieves a plan by slug.
func (e *Engine) GetPlanBySlug(ctx context.Context, slug string) (*plan.Plan, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	p, err := query(ctx, e, func(ctx context.Context) (*plan.Plan, error) {
		return e.store.GetPlanBySlug(ctx, slug)
	})
	if IsNotFound(err) {
		return nil, ErrPlanNotFound.with("plan %s not found", slug)
	}
	return p, err
}

// ListPlans lists plans.
func (e *Engine) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	return query(ctx, e, func(ctx context.Context) ([]*plan.Plan, error) {
		return e.store.ListPlans(ctx, opts)
	})
}

// ArchivePlan stops a plan from being purchased. Existing subscriptions are
// unaffected.
func (e *Engine) ArchivePlan(ctx context.Context, planID id.PlanID) error {
	err := e.exec(ctx, func(ctx context.Context) error {
		return e.store.ArchivePlan(ctx, planID)
	})
	if IsNotFound(err) {
		return ErrPlanNotFound.with("plan %s not found", planID)
	}
	return err
}

// ──────────────────────────────────────────────────
// Subscriptions and tenants
// ──────────────────────────────────────────────────

// GetSubscription retrieves a subscription by ID.
func (e *Engine) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s, err := query(ctx, e, func(ctx context.Context) (*subscription.Subscription, error) {
		return e.store.GetSubscription(ctx, subID)
	})
	if IsNotFound(err) {
		return nil, ErrSubscriptionNotFound.with("subscription %s not found", subID)
	}
	return s, err
}

// ListSubscriptions lists subscriptions.
func (e *Engine) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	return query(ctx, e, func(ctx context.Context) ([]*subscription.Subscription, error) {
		return e.store.ListSubscriptions(ctx, opts)
	})
}

// GetTenant retrieves a tenant's billing pointer.
func (e *Engine) GetTenant(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	t, err := query(ctx, e, func(ctx context.Context) (*tenant.Tenant, error) {
		return e.store.GetTenant(ctx, tenantID)
	})
	if IsNotFound(err) {
		return nil, ErrTenantNotFound.with("tenant %s not found", tenantID)
	}
	return t, err
}
