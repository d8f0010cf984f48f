package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/billbook/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSyncLimiterDisabled(t *testing.T) {
	limiter, err := NewSyncLimiter(config.Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, limiter)

	res, err := limiter.AllowBatch(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	token, ok, err := limiter.TryLockMutation(context.Background(), "1", "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)
	assert.NoError(t, limiter.ReleaseMutation(context.Background(), "1", "k", token))
}

func TestNewSyncLimiterRequiresRedis(t *testing.T) {
	cfg := config.Config{}
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, SyncBatchRate: 1, SyncBatchBurst: 1}
	_, err := NewSyncLimiter(cfg, nil)
	assert.Error(t, err)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, time.Second, bucketTTL(0, 0))
	assert.Equal(t, 8*time.Second, bucketTTL(5, 20))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}

func TestDecide(t *testing.T) {
	d, err := decide([]any{int64(1), "3.75"}, 1, 5)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 5, d.Limit)
	assert.Equal(t, 3, d.Remaining)
	assert.Zero(t, d.RetryAfter)

	d, err = decide([]any{int64(0), "0.5"}, 2, 5)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 250*time.Millisecond, d.RetryAfter)

	_, err = decide([]any{int64(1)}, 1, 1)
	assert.Error(t, err)
	_, err = decide([]any{"1", "2"}, 1, 1)
	assert.Error(t, err)
	_, err = decide([]any{int64(1), "lots"}, 1, 1)
	assert.Error(t, err)
}

func TestMutationLockKey(t *testing.T) {
	key, err := mutationLockKey(" 42 ", "abc ")
	require.NoError(t, err)
	assert.Equal(t, "sync:mutation:lock:42:abc", key)

	_, err = mutationLockKey("42", " ")
	assert.Error(t, err)
}
