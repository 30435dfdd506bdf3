package ratelimit

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWithoutRedisEverythingPasses(t *testing.T) {
	l := New(nil, zap.NewNop())
	for i := 0; i < 50; i++ {
		d := l.Allow(context.Background(), UploadVideo, "user")
		assert.True(t, d.Allowed)
	}
	assert.NoError(t, l.Reset(context.Background(), UploadVideo, "user"))

	var nilLimiter *Limiter
	assert.True(t, nilLimiter.Allow(context.Background(), Discover, "user").Allowed)
}

func TestQuotaTable(t *testing.T) {
	assert.Equal(t, 10, Limits[CreateMemory])
	assert.Equal(t, 100, Limits[Discover])
	assert.Equal(t, 20, Limits[UploadImage])
	assert.Equal(t, 10, Limits[UploadAudio])
	assert.Equal(t, 5, Limits[UploadVideo])
}

func TestRedisQuota(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	l := New(rdb, zap.NewNop())
	ctx := context.Background()
	subject := uuid.NewString()
	t.Cleanup(func() { _ = l.Reset(ctx, UploadVideo, subject) })

	for i := 0; i < Limits[UploadVideo]; i++ {
		d := l.Allow(ctx, UploadVideo, subject)
		require.True(t, d.Allowed, "request %d", i)
	}
	d := l.Allow(ctx, UploadVideo, subject)
	assert.False(t, d.Allowed)
	assert.Positive(t, d.RetryAfter)

	// другие действия считаются отдельно
	assert.True(t, l.Allow(ctx, UploadImage, subject).Allowed)
}
