package extension

import "time"

// Config holds the trialpay extension configuration.
// Fields can be set programmatically via Option functions, loaded from
// YAML configuration files (under "extensions.trialpay" or "trialpay" keys),
// and finally overridden by TRIALPAY_* environment variables.
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate" env:"TRIALPAY_DISABLE_MIGRATE"`

	// SweepInterval is how often the expiry and reminder sweeps run
	// (default: 5m).
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval" yaml:"sweep_interval" env:"TRIALPAY_SWEEP_INTERVAL"`

	// ReconcileInterval is how often promo counters and orphaned
	// subscriptions are reconciled (default: 1h).
	ReconcileInterval time.Duration `json:"reconcile_interval" mapstructure:"reconcile_interval" yaml:"reconcile_interval" env:"TRIALPAY_RECONCILE_INTERVAL"`

	// SweepBatchSize is the page size used by sweeps (default: 100).
	SweepBatchSize int `json:"sweep_batch_size" mapstructure:"sweep_batch_size" yaml:"sweep_batch_size" env:"TRIALPAY_SWEEP_BATCH_SIZE"`

	// OrphanAge is how old an incomplete subscription must be before it is
	// reconciled (default: 15m).
	OrphanAge time.Duration `json:"orphan_age" mapstructure:"orphan_age" yaml:"orphan_age" env:"TRIALPAY_ORPHAN_AGE"`

	// MaxValidationAttempts is the per-user promo validation limit inside
	// ValidationWindow (default: 10).
	MaxValidationAttempts int `json:"max_validation_attempts" mapstructure:"max_validation_attempts" yaml:"max_validation_attempts" env:"TRIALPAY_MAX_VALIDATION_ATTEMPTS"`

	// ValidationWindow is the rate-limit window (default: 1h).
	ValidationWindow time.Duration `json:"validation_window" mapstructure:"validation_window" yaml:"validation_window" env:"TRIALPAY_VALIDATION_WINDOW"`

	// StoreTimeout bounds every store call (default: 5s).
	StoreTimeout time.Duration `json:"store_timeout" mapstructure:"store_timeout" yaml:"store_timeout" env:"TRIALPAY_STORE_TIMEOUT"`

	// RedisURL, when set, moves the validation attempt log to Redis so
	// several instances share one rate limit. The remaining connection
	// settings come from the TRIALPAY_REDIS_* variables.
	RedisURL string `json:"redis_url" mapstructure:"redis_url" yaml:"redis_url" env:"TRIALPAY_REDIS_URL"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SweepInterval:         5 * time.Minute,
		ReconcileInterval:     time.Hour,
		SweepBatchSize:        100,
		OrphanAge:             15 * time.Minute,
		MaxValidationAttempts: 10,
		ValidationWindow:      time.Hour,
		StoreTimeout:          5 * time.Second,
	}
}
