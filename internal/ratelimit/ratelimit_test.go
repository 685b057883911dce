package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/orderdesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCheckoutLimiterDisabledWithoutRedis(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{CheckoutPerMinute: 10, CheckoutBurst: 5}}
	limiter := NewCheckoutLimiter(cfg, NewTokenBucket(nil), zap.NewNop())

	assert.False(t, limiter.Enabled())
	for i := 0; i < 20; i++ {
		allowed, wait, err := limiter.AllowCheckout(context.Background(), 7)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Zero(t, wait)
	}
}

func TestNilLockerAlwaysAcquires(t *testing.T) {
	var locker *Locker
	token, ok, err := locker.TryLock(context.Background(), "scheduler:stale", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)
	assert.NoError(t, locker.Release(context.Background(), "scheduler:stale", token))
}

func TestTokenBucketRejectsBadArguments(t *testing.T) {
	var bucket *TokenBucket
	_, err := bucket.Allow(context.Background(), "k", 1, 1)
	assert.Error(t, err)
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, time.Second, defaultBucketTTL(0, 5))
	assert.Equal(t, 20*time.Second, defaultBucketTTL(0.5, 5))
}

func TestCastHelpers(t *testing.T) {
	assert.Equal(t, int64(3), castToInt(int64(3)))
	assert.Equal(t, int64(2), castToInt(2.9))
	assert.Equal(t, int64(0), castToInt("x"))
	assert.Equal(t, 1.5, castToFloat("1.5"))
	assert.Equal(t, float64(4), castToFloat(int64(4)))
}
