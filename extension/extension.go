// Package extension provides the Forge extension adapter for trialpay.
//
// It implements the forge.Extension interface to integrate the trialpay
// engine into a Forge application with DI registration and lifecycle
// management. The engine's background sweeps start and stop with the app.
//
// Configuration can be provided programmatically via Option functions,
// via YAML configuration files under "extensions.trialpay" or "trialpay"
// keys, and via TRIALPAY_* environment variables, which win over both.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/trialpay"
	attemptredis "github.com/xraph/trialpay/attemptlog/redis"
	"github.com/xraph/trialpay/store"
	"github.com/xraph/trialpay/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "trialpay"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Trial-to-paid billing lifecycle engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the trialpay engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *trialpay.Engine
	store      store.Store
	attempts   *attemptredis.Log
	engineOpts []trialpay.Option
}

// New creates a new trialpay Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *trialpay.Engine { return e.engine }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	if e.config.RedisURL != "" {
		log, err := e.connectAttemptLog(context.Background())
		if err != nil {
			return err
		}
		e.attempts = log
	}

	e.engine = trialpay.New(e.store, e.buildEngineOpts()...)

	return vessel.Provide(fapp.Container(), func() (*trialpay.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("trialpay: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	var errs []error
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.attempts != nil {
		if err := e.attempts.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("trialpay: store not initialized")
	}
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if e.attempts != nil {
		return e.attempts.Ping(ctx)
	}
	return nil
}

// buildEngineOpts constructs trialpay.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []trialpay.Option {
	opts := make([]trialpay.Option, 0, len(e.engineOpts)+10)

	opts = append(opts,
		trialpay.WithAutoMigrate(!e.config.DisableMigrate),
		trialpay.WithSweepInterval(e.config.SweepInterval),
		trialpay.WithReconcileInterval(e.config.ReconcileInterval),
		trialpay.WithSweepBatchSize(e.config.SweepBatchSize),
		trialpay.WithOrphanAge(e.config.OrphanAge),
		trialpay.WithMaxValidationAttempts(e.config.MaxValidationAttempts),
		trialpay.WithValidationWindow(e.config.ValidationWindow),
		trialpay.WithStoreTimeout(e.config.StoreTimeout),
	)
	if e.attempts != nil {
		opts = append(opts, trialpay.WithAttemptLog(e.attempts))
	}

	// Pass-through options go last so they win.
	opts = append(opts, e.engineOpts...)

	return opts
}

// connectAttemptLog reads the TRIALPAY_REDIS_* settings and dials Redis.
func (e *Extension) connectAttemptLog(ctx context.Context) (*attemptredis.Log, error) {
	var cfg attemptredis.Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("trialpay: parse redis config: %w", err)
	}
	cfg.ConnectionURL = e.config.RedisURL

	log, err := attemptredis.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("trialpay: connect attempt log: %w", err)
	}
	e.Logger().Info("trialpay: validation attempts stored in redis",
		forge.F("key_prefix", cfg.KeyPrefix),
		forge.F("retention", cfg.Retention),
	)
	return log, nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources,
// then applies environment overrides.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("trialpay: configuration is required but not found in config files; " +
				"ensure 'extensions.trialpay' or 'trialpay' key exists in your config")
		}
		e.config = programmaticConfig
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	if err := env.Parse(&e.config); err != nil {
		return fmt.Errorf("trialpay: parse environment: %w", err)
	}
	e.config = mergeWithDefaults(e.config)

	e.Logger().Debug("trialpay: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("sweep_interval", e.config.SweepInterval),
		forge.F("reconcile_interval", e.config.ReconcileInterval),
		forge.F("sweep_batch_size", e.config.SweepBatchSize),
		forge.F("max_validation_attempts", e.config.MaxValidationAttempts),
		forge.F("redis_attempt_log", e.config.RedisURL != ""),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.trialpay", "trialpay"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("trialpay: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("trialpay: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.ReconcileInterval == 0 {
		cfg.ReconcileInterval = defaults.ReconcileInterval
	}
	if cfg.SweepBatchSize == 0 {
		cfg.SweepBatchSize = defaults.SweepBatchSize
	}
	if cfg.OrphanAge == 0 {
		cfg.OrphanAge = defaults.OrphanAge
	}
	if cfg.MaxValidationAttempts == 0 {
		cfg.MaxValidationAttempts = defaults.MaxValidationAttempts
	}
	if cfg.ValidationWindow == 0 {
		cfg.ValidationWindow = defaults.ValidationWindow
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = defaults.StoreTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if yamlConfig.RedisURL == "" {
		yamlConfig.RedisURL = programmaticConfig.RedisURL
	}
	if yamlConfig.SweepInterval == 0 {
		yamlConfig.SweepInterval = programmaticConfig.SweepInterval
	}
	if yamlConfig.ReconcileInterval == 0 {
		yamlConfig.ReconcileInterval = programmaticConfig.ReconcileInterval
	}
	if yamlConfig.SweepBatchSize == 0 {
		yamlConfig.SweepBatchSize = programmaticConfig.SweepBatchSize
	}
	if yamlConfig.OrphanAge == 0 {
		yamlConfig.OrphanAge = programmaticConfig.OrphanAge
	}
	if yamlConfig.MaxValidationAttempts == 0 {
		yamlConfig.MaxValidationAttempts = programmaticConfig.MaxValidationAttempts
	}
	if yamlConfig.ValidationWindow == 0 {
		yamlConfig.ValidationWindow = programmaticConfig.ValidationWindow
	}
	if yamlConfig.StoreTimeout == 0 {
		yamlConfig.StoreTimeout = programmaticConfig.StoreTimeout
	}
	return yamlConfig
}
