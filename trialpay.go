package trialpay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/notify"
	"github.com/xraph/trialpay/plan"
	"github.com/xraph/trialpay/plugin"
	"github.com/xraph/trialpay/promocode"
	"github.com/xraph/trialpay/store"
	"github.com/xraph/trialpay/tenant"
)

// Defaults used by New.
const (
	DefaultMaxValidationAttempts = 10
	DefaultValidationWindow      = time.Hour
	DefaultStoreTimeout          = 5 * time.Second
	DefaultSweepBatchSize        = 100
	DefaultOrphanAge             = 15 * time.Minute
	DefaultReconcileInterval     = time.Hour
)

// Engine is the trial-to-paid lifecycle engine. It is safe for concurrent
// use; all coordination happens through conditional writes in the store.
type Engine struct {
	store    store.Store
	attempts promocode.AttemptLog
	catalog  plan.Catalog
	tenants  tenant.Repository
	notifier notify.Sender
	plugins  *plugin.Registry
	logger   *slog.Logger
	clock    clockwork.Clock

	// Configuration
	maxValidationAttempts int
	validationWindow      time.Duration
	storeTimeout          time.Duration
	sweepInterval         time.Duration
	reconcileInterval     time.Duration
	batchSize             int
	orphanAge             time.Duration
	autoMigrate           bool

	// Promo codes whose counter may have drifted after a failed compensation.
	suspectMu sync.Mutex
	suspect   map[string]id.PromoCodeID

	// Background workers
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an Engine on top of s. The store also serves as attempt log,
// plan catalog and tenant repository unless options replace them.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:                 s,
		attempts:              s,
		catalog:               s,
		tenants:               s,
		plugins:               plugin.NewRegistry(),
		logger:                slog.Default(),
		clock:                 clockwork.NewRealClock(),
		maxValidationAttempts: DefaultMaxValidationAttempts,
		validationWindow:      DefaultValidationWindow,
		storeTimeout:          DefaultStoreTimeout,
		reconcileInterval:     DefaultReconcileInterval,
		batchSize:             DefaultSweepBatchSize,
		orphanAge:             DefaultOrphanAge,
		autoMigrate:           true,
		suspect:               make(map[string]id.PromoCodeID),
		stopChan:              make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.notifier == nil {
		e.notifier = notify.LogSender{Logger: e.logger}
	}

	return e
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithClock replaces the wall clock. Tests pass a clockwork.FakeClock.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithNotifier sets the notification transport.
func WithNotifier(n notify.Sender) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithAttemptLog moves the rate limiter's attempt log off the main store,
// for example onto redis.
func WithAttemptLog(l promocode.AttemptLog) Option {
	return func(e *Engine) {
		e.attempts = l
	}
}

// WithPlanCatalog sets the catalog conversions read plans from.
func WithPlanCatalog(c plan.Catalog) Option {
	return func(e *Engine) {
		e.catalog = c
	}
}

// WithTenantRepository sets where conversions repoint the tenant's plan.
func WithTenantRepository(r tenant.Repository) Option {
	return func(e *Engine) {
		e.tenants = r
	}
}

// WithMaxValidationAttempts sets how many promo code validations a user may
// make per rolling window.
func WithMaxValidationAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxValidationAttempts = n
		}
	}
}

// WithValidationWindow sets the rate limiter's rolling window.
func WithValidationWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.validationWindow = d
		}
	}
}

// WithStoreTimeout bounds every store call. Zero disables the bound.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.storeTimeout = d
	}
}

// WithSweepInterval enables the background loop that runs the expiry and
// reminder sweeps every d. Zero (the default) leaves sweeps to the caller.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.sweepInterval = d
	}
}

// WithReconcileInterval sets how often the background loop reconciles promo
// counters and orphaned subscriptions. Zero disables it.
func WithReconcileInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.reconcileInterval = d
	}
}

// WithSweepBatchSize sets the page size used by sweeps and reconciliation.
func WithSweepBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithOrphanAge sets how old an incomplete subscription must be before
// ReconcileSubscriptions touches it.
func WithOrphanAge(d time.Duration) Option {
	return func(e *Engine) {
		e.orphanAge = d
	}
}

// WithAutoMigrate controls whether Start runs the store migrations.
func WithAutoMigrate(enabled bool) Option {
	return func(e *Engine) {
		e.autoMigrate = enabled
	}
}

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Start migrates the store, initializes plugins and, when a sweep interval
// is configured, starts the background sweep loop.
func (e *Engine) Start(ctx context.Context) error {
	if e.autoMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	e.plugins.EmitInit(ctx, e)

	if e.sweepInterval > 0 {
		e.wg.Add(1)
		go e.sweepWorker(context.WithoutCancel(ctx))
	}

	e.logger.Info("trialpay started",
		"sweep_interval", e.sweepInterval,
		"reconcile_interval", e.reconcileInterval,
		"max_validation_attempts", e.maxValidationAttempts,
		"store_timeout", e.storeTimeout,
	)

	return nil
}

// Stop halts the background loop, notifies plugins and closes the store.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()

	e.plugins.EmitShutdown(context.Background())

	return e.store.Close()
}

// sweepWorker runs the sweeps on every tick. Sweeps run one after another,
// never concurrently with themselves.
func (e *Engine) sweepWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := e.clock.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	lastReconcile := e.now()

	for {
		select {
		case <-e.stopChan:
			return

		case <-ticker.Chan():
			e.runScheduled(ctx, &lastReconcile)
		}
	}
}

func (e *Engine) runScheduled(ctx context.Context, lastReconcile *time.Time) {
	if res := e.RunExpirySweep(ctx); res.Failed() > 0 {
		e.logger.Warn("expiry sweep finished with errors", "failed", res.Failed(), "error", res.Err())
	}
	if res := e.RunReminderSweep(ctx); res.Failed() > 0 {
		e.logger.Warn("reminder sweep finished with errors", "failed", res.Failed(), "error", res.Err())
	}

	now := e.now()
	if e.reconcileInterval <= 0 || now.Sub(*lastReconcile) < e.reconcileInterval {
		return
	}
	*lastReconcile = now

	if rep := e.ReconcilePromoCodes(ctx, false); len(rep.Errors) > 0 {
		e.logger.Warn("promo code reconciliation finished with errors", "failed", len(rep.Errors))
	}
	if res := e.ReconcileSubscriptions(ctx); res.Failed() > 0 {
		e.logger.Warn("subscription reconciliation finished with errors", "failed", res.Failed(), "error", res.Err())
	}
	e.pruneAttempts(ctx, now)
}

// pruneAttempts drops validation attempts that can no longer count against
// any window.
func (e *Engine) pruneAttempts(ctx context.Context, now time.Time) {
	pruner, ok := e.attempts.(promocode.AttemptPruner)
	if !ok {
		return
	}
	n, err := query(ctx, e, func(ctx context.Context) (int64, error) {
		return pruner.PruneValidationAttempts(ctx, now.Add(-e.validationWindow))
	})
	if err != nil {
		e.logger.Warn("failed to prune validation attempts", "error", err)
		return
	}
	if n > 0 {
		e.logger.Debug("validation attempts pruned", "count", n)
	}
}

// now is the engine's notion of the current instant, truncated to what
// every backend can store losslessly so conditional matches on timestamps
// survive a round trip.
func (e *Engine) now() time.Time {
	return e.clock.Now().UTC().Truncate(time.Millisecond)
}

// ──────────────────────────────────────────────────
// Store call helpers
// ──────────────────────────────────────────────────

func (e *Engine) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.storeTimeout)
}

// exec runs a store write under the store timeout and classifies its error.
func (e *Engine) exec(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	return storeError(fn(ctx))
}

// query is exec for calls that return a value.
func query[T any](ctx context.Context, e *Engine, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	v, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, storeError(err)
	}
	return v, nil
}
