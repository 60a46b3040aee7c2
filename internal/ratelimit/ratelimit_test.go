package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestLimiter(limit int, window time.Duration) *Limiter {
	return New(nil, limit, window, zerolog.Nop())
}

func TestAllow_PermitsUpToLimit(t *testing.T) {
	l := newTestLimiter(3, time.Minute)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "user-1", now)
		assert.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := l.Allow(ctx, "user-1", now)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestAllow_WindowSlidesCallsOut(t *testing.T) {
	l := newTestLimiter(2, time.Minute)
	ctx := context.Background()
	start := time.Now()

	ok, _ := l.Allow(ctx, "user-2", start)
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "user-2", start)
	assert.True(t, ok)

	ok, _ = l.Allow(ctx, "user-2", start.Add(30*time.Second))
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "user-2", start.Add(90*time.Second))
	assert.True(t, ok)
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l := newTestLimiter(1, time.Minute)
	ctx := context.Background()
	now := time.Now()

	ok, _ := l.Allow(ctx, "user-a", now)
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "user-b", now)
	assert.True(t, ok)

	ok, _ = l.Allow(ctx, "user-a", now)
	assert.False(t, ok)
}
