package plan

import (
	"context"

	"github.com/xraph/trialpay/id"
)

// Catalog is the read side the conversion flow depends on.
type Catalog interface {
	GetPlan(ctx context.Context, planID id.PlanID) (*Plan, error)
}

type Store interface {
	Catalog
	CreatePlan(ctx context.Context, p *Plan) error
	GetPlanBySlug(ctx context.Context, slug string) (*Plan, error)
	ListPlans(ctx context.Context, opts ListOpts) ([]*Plan, error)
	ArchivePlan(ctx context.Context, planID id.PlanID) error
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
