package extension

import (
	"time"

	"github.com/xraph/trialpay"
	"github.com/xraph/trialpay/plugin"
	"github.com/xraph/trialpay/store"
)

// Option configures the trialpay Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a trialpay.Option through to the underlying engine.
func WithEngineOption(opt trialpay.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a trialpay plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, trialpay.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithSweepInterval sets how often the background sweeps run.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.SweepInterval = d }
}

// WithReconcileInterval sets how often reconciliation runs.
func WithReconcileInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.ReconcileInterval = d }
}

// WithMaxValidationAttempts sets the promo validation rate limit.
func WithMaxValidationAttempts(n int) Option {
	return func(e *Extension) { e.config.MaxValidationAttempts = n }
}

// WithRedisURL moves the validation attempt log to Redis.
func WithRedisURL(url string) Option {
	return func(e *Extension) { e.config.RedisURL = url }
}
