package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/trialpay/attemptlog/redis"
	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/promocode"
)

func connect(t *testing.T) *redis.Log {
	t.Helper()
	url := os.Getenv("TRIALPAY_TEST_REDIS_URL")
	if url == "" {
		t.Skip("TRIALPAY_TEST_REDIS_URL not set")
	}
	l, err := redis.Connect(context.Background(), redis.Config{
		ConnectionURL:  url,
		RetryAttempts:  1,
		ConnectTimeout: 5 * time.Second,
		KeyPrefix:      "trialpay:test:" + id.New(id.PrefixValidationAttempt).String() + ":",
		Retention:      time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func attempt(userID string, at time.Time) *promocode.ValidationAttempt {
	return &promocode.ValidationAttempt{
		ID:          id.New(id.PrefixValidationAttempt),
		UserID:      userID,
		Code:        "WELCOME",
		AttemptedAt: at,
	}
}

func TestLog_CountsInsideWindow(t *testing.T) {
	l := connect(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	for _, ago := range []time.Duration{50 * time.Minute, 10 * time.Minute, time.Minute} {
		require.NoError(t, l.RecordValidationAttempt(ctx, attempt("user-1", now.Add(-ago))))
	}
	require.NoError(t, l.RecordValidationAttempt(ctx, attempt("user-2", now)))

	n, err := l.CountValidationAttempts(ctx, "user-1", now.Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = l.CountValidationAttempts(ctx, "user-1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestLog_SinceIsExclusive(t *testing.T) {
	l := connect(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, l.RecordValidationAttempt(ctx, attempt("user-1", now)))

	n, err := l.CountValidationAttempts(ctx, "user-1", now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLog_TrimsPastRetention(t *testing.T) {
	l := connect(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, l.RecordValidationAttempt(ctx, attempt("user-1", now.Add(-2*time.Hour))))
	require.NoError(t, l.RecordValidationAttempt(ctx, attempt("user-1", now)))

	n, err := l.CountValidationAttempts(ctx, "user-1", now.Add(-3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConnect_BadURL(t *testing.T) {
	_, err := redis.Connect(context.Background(), redis.Config{
		ConnectionURL:  "not-a-url",
		ConnectTimeout: time.Second,
	})
	require.ErrorIs(t, err, redis.ErrFailedToParseConnString)
}
