// Package statuscache keeps the latest known job status in Redis so status
// polling does not hit PostgreSQL.
package statuscache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when no status is cached for a job
var ErrMiss = errors.New("status not cached")

// Config holds Redis connection settings
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// Status is the cached view of a job
type Status struct {
	JobID       int64
	UserID      int64
	Status      string
	OutputURL   string
	DurationSec float64
	Error       string
	UpdatedAt   time.Time
}

// Cache stores job statuses as Redis hashes
type Cache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// New connects to Redis and verifies the connection
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis",
		slog.String("addr", cfg.Addr),
		slog.Int("db", cfg.DB),
	)

	return NewWithClient(client, cfg, logger), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client redis.UniversalClient, cfg Config, logger *slog.Logger) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *Cache) key(jobID int64) string {
	return fmt.Sprintf("%sjob:status:%d", c.prefix, jobID)
}

// Put writes the status hash and refreshes its TTL
func (c *Cache) Put(ctx context.Context, s Status) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}

	key := c.key(s.JobID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"user_id":      s.UserID,
		"status":       s.Status,
		"output_url":   s.OutputURL,
		"duration_sec": strconv.FormatFloat(s.DurationSec, 'f', -1, 64),
		"error":        s.Error,
		"updated_at":   s.UpdatedAt.Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, c.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache job status: %w", err)
	}
	return nil
}

// Get reads the cached status of a job
func (c *Cache) Get(ctx context.Context, jobID int64) (*Status, error) {
	fields, err := c.client.HGetAll(ctx, c.key(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job status: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrMiss
	}

	s := &Status{
		JobID:     jobID,
		Status:    fields["status"],
		OutputURL: fields["output_url"],
		Error:     fields["error"],
	}
	if v, err := strconv.ParseInt(fields["user_id"], 10, 64); err == nil {
		s.UserID = v
	}
	if v, err := strconv.ParseFloat(fields["duration_sec"], 64); err == nil {
		s.DurationSec = v
	}
	if v, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		s.UpdatedAt = v
	}
	return s, nil
}

// Close closes the Redis client
func (c *Cache) Close() error {
	return c.client.Close()
}
