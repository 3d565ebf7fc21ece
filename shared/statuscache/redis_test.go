package statuscache

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T) *Cache {
	t.Helper()

	addr := os.Getenv("CHICKENIFY_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available at %s: %v", addr, err)
	}

	prefix := "test:" + t.Name() + ":"
	t.Cleanup(func() {
		keys, _ := client.Keys(context.Background(), prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(context.Background(), keys...)
		}
		client.Close()
	})

	return NewWithClient(client, Config{KeyPrefix: prefix, TTL: time.Minute}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCache_PutGet(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()

	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := cache.Put(ctx, Status{
		JobID:       11,
		UserID:      4,
		Status:      "done",
		OutputURL:   "https://chickenify.s3.us-east-1.amazonaws.com/outputs/4/11.wav",
		DurationSec: 187.5,
		UpdatedAt:   updated,
	})
	require.NoError(t, err)

	got, err := cache.Get(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.JobID)
	assert.Equal(t, int64(4), got.UserID)
	assert.Equal(t, "done", got.Status)
	assert.Equal(t, 187.5, got.DurationSec)
	assert.True(t, updated.Equal(got.UpdatedAt))
}

func TestCache_Miss(t *testing.T) {
	cache := setupTestCache(t)

	_, err := cache.Get(context.Background(), 999)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCache_Key(t *testing.T) {
	c := NewWithClient(nil, Config{KeyPrefix: "chk:"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, "chk:job:status:5", c.key(5))
	assert.Equal(t, 24*time.Hour, c.ttl)
}
