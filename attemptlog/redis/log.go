// Package redis is a promo code validation attempt log backed by Redis
// sorted sets, for deployments where several engine instances must share
// one rate limit.
//
// Each user gets a sorted set scored by attempt time in unix milliseconds.
// Recording trims entries older than the retention and refreshes the key's
// TTL in the same transaction, so idle users cost nothing.
package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/trialpay/promocode"
)

var (
	ErrFailedToParseConnString = errors.New("trialpay/redis: failed to parse redis connection string")
	ErrNotReady                = errors.New("trialpay/redis: redis did not become ready within the given time period")
	ErrHealthcheckFailed       = errors.New("trialpay/redis: healthcheck failed")
)

const defaultRetention = 24 * time.Hour

// compile-time interface check
var _ promocode.AttemptLog = (*Log)(nil)

// Log implements promocode.AttemptLog.
type Log struct {
	client    goredis.UniversalClient
	prefix    string
	retention time.Duration
}

// New wraps an existing client.
func New(client goredis.UniversalClient, cfg Config) *Log {
	l := &Log{
		client:    client,
		prefix:    cfg.KeyPrefix,
		retention: cfg.Retention,
	}
	if l.prefix == "" {
		l.prefix = "trialpay:attempts:"
	}
	if l.retention <= 0 {
		l.retention = defaultRetention
	}
	return l
}

// Connect dials Redis, retrying until it answers a ping, and returns a Log
// over the connection.
func Connect(ctx context.Context, cfg Config) (*Log, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opts, err := goredis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseConnString, err)
	}

	attempts := max(cfg.RetryAttempts, 1)
	for range attempts {
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err == nil {
			return New(client, cfg), nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, ErrNotReady
}

func (l *Log) key(userID string) string {
	return l.prefix + userID
}

// RecordValidationAttempt adds the attempt to the user's set.
func (l *Log) RecordValidationAttempt(ctx context.Context, a *promocode.ValidationAttempt) error {
	key := l.key(a.UserID)
	at := a.AttemptedAt.UnixMilli()
	cutoff := a.AttemptedAt.Add(-l.retention).UnixMilli()

	_, err := l.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, key, goredis.Z{Score: float64(at), Member: a.ID.String()})
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
		pipe.Expire(ctx, key, l.retention)
		return nil
	})
	return err
}

// CountValidationAttempts counts attempts strictly after since.
func (l *Log) CountValidationAttempts(ctx context.Context, userID string, since time.Time) (int, error) {
	n, err := l.client.ZCount(ctx, l.key(userID), "("+strconv.FormatInt(since.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Ping reports whether Redis is reachable.
func (l *Log) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}

// Close closes the underlying client.
func (l *Log) Close() error {
	return l.client.Close()
}
