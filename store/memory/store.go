// Package memory provides an in-memory store.Store. It is meant for tests
// and single-process development; every conditional write is checked and
// applied under one mutex.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/plan"
	"github.com/xraph/trialpay/promocode"
	"github.com/xraph/trialpay/store"
	"github.com/xraph/trialpay/subscription"
	"github.com/xraph/trialpay/tenant"
)

var _ store.Store = (*Store)(nil)

// attemptRetention bounds how long validation attempts are kept.
const attemptRetention = 24 * time.Hour

type Store struct {
	mu sync.RWMutex

	gracePeriods  map[string]*graceperiod.GracePeriod
	promoCodes    map[string]*promocode.PromoCode
	usages        map[string]*promocode.Usage
	attempts      map[string][]time.Time
	subscriptions map[string]*subscription.Subscription
	plans         map[string]*plan.Plan
	tenants       map[string]*tenant.Tenant
}

func New() *Store {
	return &Store{
		gracePeriods:  make(map[string]*graceperiod.GracePeriod),
		promoCodes:    make(map[string]*promocode.PromoCode),
		usages:        make(map[string]*promocode.Usage),
		attempts:      make(map[string][]time.Time),
		subscriptions: make(map[string]*subscription.Subscription),
		plans:         make(map[string]*plan.Plan),
		tenants:       make(map[string]*tenant.Tenant),
	}
}

func (s *Store) Migrate(_ context.Context) error { return nil }
func (s *Store) Ping(_ context.Context) error    { return nil }
func (s *Store) Close() error                    { return nil }

// sortedKeys returns the map keys in ascending order. Keys are TypeIDs, so
// this is id order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// paginate applies offset and limit (0 = no limit).
func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
