// Package tenant holds the billing pointer of a tenant: which plan it is on
// and whether that plan is paid.
package tenant

import (
	"context"
	"time"

	"github.com/xraph/trialpay/id"
)

type BillingStatus string

const (
	BillingTrialing BillingStatus = "trialing"
	BillingActive   BillingStatus = "active"
	BillingPastDue  BillingStatus = "past_due"
	BillingCanceled BillingStatus = "canceled"
)

type Tenant struct {
	ID            string        `json:"id"`
	ActivePlanID  id.PlanID     `json:"active_plan_id,omitzero"`
	BillingStatus BillingStatus `json:"billing_status"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Repository is the tenant side of a conversion.
type Repository interface {
	// SetActivePlan upserts the tenant's plan pointer.
	SetActivePlan(ctx context.Context, tenantID string, planID id.PlanID, status BillingStatus) error
}

type Store interface {
	Repository
	GetTenant(ctx context.Context, tenantID string) (*Tenant, error)
}
