package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/promocode"
	"github.com/xraph/trialpay/subscription"
)

// DefaultHookTimeout bounds a single hook invocation.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook interfaces are discovered once in Register and cached per type.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                 []OnInit
	onShutdown             []OnShutdown
	onGracePeriodCreated   []OnGracePeriodCreated
	onGracePeriodExtended  []OnGracePeriodExtended
	onGracePeriodCancelled []OnGracePeriodCancelled
	onGracePeriodExpired   []OnGracePeriodExpired
	onGracePeriodConverted []OnGracePeriodConverted
	onNotificationSent     []OnNotificationSent
	onPromoCodeValidated   []OnPromoCodeValidated
	onPromoCodeApplied     []OnPromoCodeApplied
	onPromoCodeRevoked     []OnPromoCodeRevoked
	onPromoCodeExhausted   []OnPromoCodeExhausted
	onPromoCodeDrift       []OnPromoCodeDrift
	onSubscriptionCreated  []OnSubscriptionCreated
	onSubscriptionCanceled []OnSubscriptionCanceled
	onSweepCompleted       []OnSweepCompleted
	promoCodeValidators    []PromoCodeValidator
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnGracePeriodCreated); ok {
		r.onGracePeriodCreated = append(r.onGracePeriodCreated, v)
	}
	if v, ok := p.(OnGracePeriodExtended); ok {
		r.onGracePeriodExtended = append(r.onGracePeriodExtended, v)
	}
	if v, ok := p.(OnGracePeriodCancelled); ok {
		r.onGracePeriodCancelled = append(r.onGracePeriodCancelled, v)
	}
	if v, ok := p.(OnGracePeriodExpired); ok {
		r.onGracePeriodExpired = append(r.onGracePeriodExpired, v)
	}
	if v, ok := p.(OnGracePeriodConverted); ok {
		r.onGracePeriodConverted = append(r.onGracePeriodConverted, v)
	}
	if v, ok := p.(OnNotificationSent); ok {
		r.onNotificationSent = append(r.onNotificationSent, v)
	}
	if v, ok := p.(OnPromoCodeValidated); ok {
		r.onPromoCodeValidated = append(r.onPromoCodeValidated, v)
	}
	if v, ok := p.(OnPromoCodeApplied); ok {
		r.onPromoCodeApplied = append(r.onPromoCodeApplied, v)
	}
	if v, ok := p.(OnPromoCodeRevoked); ok {
		r.onPromoCodeRevoked = append(r.onPromoCodeRevoked, v)
	}
	if v, ok := p.(OnPromoCodeExhausted); ok {
		r.onPromoCodeExhausted = append(r.onPromoCodeExhausted, v)
	}
	if v, ok := p.(OnPromoCodeDrift); ok {
		r.onPromoCodeDrift = append(r.onPromoCodeDrift, v)
	}
	if v, ok := p.(OnSubscriptionCreated); ok {
		r.onSubscriptionCreated = append(r.onSubscriptionCreated, v)
	}
	if v, ok := p.(OnSubscriptionCanceled); ok {
		r.onSubscriptionCanceled = append(r.onSubscriptionCanceled, v)
	}
	if v, ok := p.(OnSweepCompleted); ok {
		r.onSweepCompleted = append(r.onSweepCompleted, v)
	}
	if v, ok := p.(PromoCodeValidator); ok {
		r.promoCodeValidators = append(r.promoCodeValidators, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnGracePeriodCreated)(nil)).Elem(), "OnGracePeriodCreated")
	checkInterface(reflect.TypeOf((*OnGracePeriodExtended)(nil)).Elem(), "OnGracePeriodExtended")
	checkInterface(reflect.TypeOf((*OnGracePeriodCancelled)(nil)).Elem(), "OnGracePeriodCancelled")
	checkInterface(reflect.TypeOf((*OnGracePeriodExpired)(nil)).Elem(), "OnGracePeriodExpired")
	checkInterface(reflect.TypeOf((*OnGracePeriodConverted)(nil)).Elem(), "OnGracePeriodConverted")
	checkInterface(reflect.TypeOf((*OnNotificationSent)(nil)).Elem(), "OnNotificationSent")
	checkInterface(reflect.TypeOf((*OnPromoCodeValidated)(nil)).Elem(), "OnPromoCodeValidated")
	checkInterface(reflect.TypeOf((*OnPromoCodeApplied)(nil)).Elem(), "OnPromoCodeApplied")
	checkInterface(reflect.TypeOf((*OnPromoCodeRevoked)(nil)).Elem(), "OnPromoCodeRevoked")
	checkInterface(reflect.TypeOf((*OnPromoCodeExhausted)(nil)).Elem(), "OnPromoCodeExhausted")
	checkInterface(reflect.TypeOf((*OnPromoCodeDrift)(nil)).Elem(), "OnPromoCodeDrift")
	checkInterface(reflect.TypeOf((*OnSubscriptionCreated)(nil)).Elem(), "OnSubscriptionCreated")
	checkInterface(reflect.TypeOf((*OnSubscriptionCanceled)(nil)).Elem(), "OnSubscriptionCanceled")
	checkInterface(reflect.TypeOf((*OnSweepCompleted)(nil)).Elem(), "OnSweepCompleted")
	checkInterface(reflect.TypeOf((*PromoCodeValidator)(nil)).Elem(), "PromoCodeValidator")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit runs call for every cached plugin of one hook type. Failures are
// logged and never propagate to the caller.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, plugins []T, call func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return call(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// snapshot copies a cached slice under the read lock.
func snapshot[T any](r *Registry, list *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *list
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", snapshot(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", snapshot(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

func (r *Registry) EmitGracePeriodCreated(ctx context.Context, g *graceperiod.GracePeriod) {
	emit(ctx, r, "OnGracePeriodCreated", snapshot(r, &r.onGracePeriodCreated), func(p OnGracePeriodCreated) error {
		return p.OnGracePeriodCreated(ctx, g)
	})
}

func (r *Registry) EmitGracePeriodExtended(ctx context.Context, g *graceperiod.GracePeriod, ext graceperiod.Extension) {
	emit(ctx, r, "OnGracePeriodExtended", snapshot(r, &r.onGracePeriodExtended), func(p OnGracePeriodExtended) error {
		return p.OnGracePeriodExtended(ctx, g, ext)
	})
}

func (r *Registry) EmitGracePeriodCancelled(ctx context.Context, g *graceperiod.GracePeriod) {
	emit(ctx, r, "OnGracePeriodCancelled", snapshot(r, &r.onGracePeriodCancelled), func(p OnGracePeriodCancelled) error {
		return p.OnGracePeriodCancelled(ctx, g)
	})
}

func (r *Registry) EmitGracePeriodExpired(ctx context.Context, g *graceperiod.GracePeriod) {
	emit(ctx, r, "OnGracePeriodExpired", snapshot(r, &r.onGracePeriodExpired), func(p OnGracePeriodExpired) error {
		return p.OnGracePeriodExpired(ctx, g)
	})
}

func (r *Registry) EmitGracePeriodConverted(ctx context.Context, g *graceperiod.GracePeriod, sub *subscription.Subscription) {
	emit(ctx, r, "OnGracePeriodConverted", snapshot(r, &r.onGracePeriodConverted), func(p OnGracePeriodConverted) error {
		return p.OnGracePeriodConverted(ctx, g, sub)
	})
}

func (r *Registry) EmitNotificationSent(ctx context.Context, g *graceperiod.GracePeriod, t graceperiod.NotificationType) {
	emit(ctx, r, "OnNotificationSent", snapshot(r, &r.onNotificationSent), func(p OnNotificationSent) error {
		return p.OnNotificationSent(ctx, g, t)
	})
}

func (r *Registry) EmitPromoCodeValidated(ctx context.Context, code string, result *promocode.ValidationResult) {
	emit(ctx, r, "OnPromoCodeValidated", snapshot(r, &r.onPromoCodeValidated), func(p OnPromoCodeValidated) error {
		return p.OnPromoCodeValidated(ctx, code, result)
	})
}

func (r *Registry) EmitPromoCodeApplied(ctx context.Context, pc *promocode.PromoCode, u *promocode.Usage) {
	emit(ctx, r, "OnPromoCodeApplied", snapshot(r, &r.onPromoCodeApplied), func(p OnPromoCodeApplied) error {
		return p.OnPromoCodeApplied(ctx, pc, u)
	})
}

func (r *Registry) EmitPromoCodeRevoked(ctx context.Context, pc *promocode.PromoCode, u *promocode.Usage) {
	emit(ctx, r, "OnPromoCodeRevoked", snapshot(r, &r.onPromoCodeRevoked), func(p OnPromoCodeRevoked) error {
		return p.OnPromoCodeRevoked(ctx, pc, u)
	})
}

func (r *Registry) EmitPromoCodeExhausted(ctx context.Context, pc *promocode.PromoCode) {
	emit(ctx, r, "OnPromoCodeExhausted", snapshot(r, &r.onPromoCodeExhausted), func(p OnPromoCodeExhausted) error {
		return p.OnPromoCodeExhausted(ctx, pc)
	})
}

func (r *Registry) EmitPromoCodeDrift(ctx context.Context, pc *promocode.PromoCode, recorded, counted int) {
	emit(ctx, r, "OnPromoCodeDrift", snapshot(r, &r.onPromoCodeDrift), func(p OnPromoCodeDrift) error {
		return p.OnPromoCodeDrift(ctx, pc, recorded, counted)
	})
}

func (r *Registry) EmitSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) {
	emit(ctx, r, "OnSubscriptionCreated", snapshot(r, &r.onSubscriptionCreated), func(p OnSubscriptionCreated) error {
		return p.OnSubscriptionCreated(ctx, sub)
	})
}

func (r *Registry) EmitSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription, reason string) {
	emit(ctx, r, "OnSubscriptionCanceled", snapshot(r, &r.onSubscriptionCanceled), func(p OnSubscriptionCanceled) error {
		return p.OnSubscriptionCanceled(ctx, sub, reason)
	})
}

func (r *Registry) EmitSweepCompleted(ctx context.Context, sweep string, processed, failed int, elapsed time.Duration) {
	emit(ctx, r, "OnSweepCompleted", snapshot(r, &r.onSweepCompleted), func(p OnSweepCompleted) error {
		return p.OnSweepCompleted(ctx, sweep, processed, failed, elapsed)
	})
}

// CheckPromoCode runs every PromoCodeValidator in registration order and
// returns the first rejection. A validator that times out does not reject.
func (r *Registry) CheckPromoCode(ctx context.Context, p *promocode.PromoCode, uc promocode.UsageContext) *promocode.ValidationResult {
	for _, v := range snapshot(r, &r.promoCodeValidators) {
		var res *promocode.ValidationResult
		if err := r.callWithTimeout(ctx, v.Name(), func() error {
			res = v.CheckPromoCode(ctx, p, uc)
			return nil
		}); err != nil {
			r.logger.Warn("plugin CheckPromoCode failed",
				"plugin", v.Name(),
				"error", err,
			)
			continue
		}
		if res != nil && !res.Valid {
			return res
		}
	}
	return nil
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the trial pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
