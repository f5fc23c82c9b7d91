// Package store defines the unified persistence contract for trialpay.
// Backends live in sub-packages: memory, postgres, sqlite and mongo.
package store

import (
	"context"

	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/plan"
	"github.com/xraph/trialpay/promocode"
	"github.com/xraph/trialpay/subscription"
	"github.com/xraph/trialpay/tenant"
)

// Store is the unified storage interface. Entity method names carry the
// entity in their name so the package interfaces can be embedded directly.
type Store interface {
	graceperiod.Store
	promocode.Store
	promocode.AttemptLog
	subscription.Store
	plan.Store
	tenant.Store

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
