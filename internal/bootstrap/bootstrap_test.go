package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/cuongbtq/chickenify/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectStoreConfig(t *testing.T) {
	got := ObjectStoreConfig(&config.StorageConfig{
		Bucket:       "chickenify",
		Region:       "eu-west-1",
		AccessKey:    "AKIA",
		SecretKey:    "secret",
		Endpoint:     "http://minio:9000",
		UsePathStyle: true,
		PublicRead:   true,
	})

	assert.Equal(t, "chickenify", got.Bucket)
	assert.Equal(t, "eu-west-1", got.Region)
	assert.Equal(t, "http://minio:9000", got.Endpoint)
	assert.True(t, got.UsePathStyle)
	assert.True(t, got.Configured())
}

func TestInitStatusCache_Disabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cache, err := InitStatusCache(context.Background(), &config.RedisConfig{Enabled: false, Addr: "localhost:6379"}, logger)
	require.NoError(t, err)
	assert.Nil(t, cache)
}

func TestInitLogger(t *testing.T) {
	l, err := InitLogger(&config.LoggingConfig{Level: "debug", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	defer l.Close()

	assert.NotNil(t, l.Logger)
}
