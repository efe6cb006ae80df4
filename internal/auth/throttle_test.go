package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"webmail/backend/internal/storage/redis"
)

func newTestThrottle(t *testing.T, limit int, window time.Duration) (*Throttle, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), zap.NewNop())
	return NewThrottle(rdb, limit, window), mr
}

func TestThrottleAllowsUnderLimit(t *testing.T) {
	throttle, _ := newTestThrottle(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := throttle.Allow(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d should be allowed", i+1)
	}

	ok, err := throttle.Allow(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, ok, "attempt beyond the limit must be blocked")
}

func TestThrottleIsPerEmail(t *testing.T) {
	throttle, _ := newTestThrottle(t, 1, time.Minute)
	ctx := context.Background()

	ok, err := throttle.Allow(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = throttle.Allow(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.True(t, ok, "a different email has its own counter")
}

func TestThrottleWindowExpiry(t *testing.T) {
	throttle, mr := newTestThrottle(t, 1, time.Minute)
	ctx := context.Background()

	ok, err := throttle.Allow(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = throttle.Allow(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(time.Minute + time.Second)

	ok, err = throttle.Allow(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, ok, "counter resets after the window passes")
}

func TestThrottleReset(t *testing.T) {
	throttle, _ := newTestThrottle(t, 1, time.Minute)
	ctx := context.Background()

	_, err := throttle.Allow(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NoError(t, throttle.Reset(ctx, "alice@example.com"))

	ok, err := throttle.Allow(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
}
