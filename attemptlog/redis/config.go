package redis

import "time"

// Config configures the Redis connection and key layout of the attempt log.
type Config struct {
	ConnectionURL  string        `env:"TRIALPAY_REDIS_URL"             envDefault:"redis://localhost:6379/0"` // redis://:password@host:6379/0
	RetryAttempts  int           `env:"TRIALPAY_REDIS_RETRY_ATTEMPTS"  envDefault:"3"`
	RetryInterval  time.Duration `env:"TRIALPAY_REDIS_RETRY_INTERVAL"  envDefault:"2s"`
	ConnectTimeout time.Duration `env:"TRIALPAY_REDIS_CONNECT_TIMEOUT" envDefault:"30s"`

	// KeyPrefix namespaces the per-user sorted sets.
	KeyPrefix string `env:"TRIALPAY_REDIS_KEY_PREFIX" envDefault:"trialpay:attempts:"`

	// Retention is how long attempts are kept. It must cover the rate-limit
	// window.
	Retention time.Duration `env:"TRIALPAY_REDIS_ATTEMPT_RETENTION" envDefault:"24h"`
}
