// Package cache provides an optional Redis-backed cache fronting job
// status lookups. It also holds per-date-pair duplicate-detection
// helpers, which the HTTP handlers do not call.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/etmap/rawdata/internal/models"
)

// Cache provides Redis-based caching for job status lookups. It is
// never used for Coverage Report data, which must always reflect the
// current on-disk state.
type Cache struct {
	client *redis.Client
}

// Default TTLs. StatusTTL is intentionally short: jobs are actively
// transitioning for most of their lifetime, and a short TTL bounds how
// stale a polling client's view can get without needing explicit
// invalidation on every state change.
const (
	StatusTTL = 5 * time.Second
	DedupTTL  = 5 * time.Minute
)

// New creates a Redis cache client from url. An empty url is treated
// as "no cache configured" by the caller; if New is nevertheless given
// an empty url, it falls back to ETMAP_REDIS_URL from the environment
// and attempts to connect to that.
func New(url string) (*Cache, error) {
	if url == "" {
		url = os.Getenv("ETMAP_REDIS_URL")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: connect to redis: %w", err)
	}

	isUpstash := strings.Contains(url, "upstash.io")
	provider := "Redis"
	if isUpstash {
		provider = "Upstash Redis"
	}
	slog.Info("cache connection established", "provider", provider, "host", opt.Addr)

	return &Cache{client: client}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

func statusKey(requestID string) string {
	return fmt.Sprintf("etmap:status:%s", requestID)
}

func dedupKey(dateFrom, dateTo string) string {
	return fmt.Sprintf("etmap:dedup:%s:%s", dateFrom, dateTo)
}

// GetStatus retrieves a cached status view, or nil on a cache miss.
func (c *Cache) GetStatus(ctx context.Context, requestID string) (*models.StatusView, error) {
	data, err := c.client.Get(ctx, statusKey(requestID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get status: %w", err)
	}
	var view models.StatusView
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, fmt.Errorf("cache: unmarshal status: %w", err)
	}
	return &view, nil
}

// SetStatus caches a status view with StatusTTL.
func (c *Cache) SetStatus(ctx context.Context, view *models.StatusView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("cache: marshal status: %w", err)
	}
	if err := c.client.Set(ctx, statusKey(view.RequestID), data, StatusTTL).Err(); err != nil {
		return fmt.Errorf("cache: set status: %w", err)
	}
	return nil
}

// InvalidateStatus removes a cached status view, used whenever the
// orchestrator transitions a job so pollers don't read a stale value
// for up to StatusTTL.
func (c *Cache) InvalidateStatus(ctx context.Context, requestID string) error {
	return c.client.Del(ctx, statusKey(requestID)).Err()
}

// GetDedupHit returns a cached existing-job request id for a
// (date_from, date_to) pair's short-lived dedup window, or "" on miss.
func (c *Cache) GetDedupHit(ctx context.Context, dateFrom, dateTo string) (string, error) {
	v, err := c.client.Get(ctx, dedupKey(dateFrom, dateTo)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache: get dedup: %w", err)
	}
	return v, nil
}

// SetDedupHit records the request id most recently created or matched
// for this date pair.
func (c *Cache) SetDedupHit(ctx context.Context, dateFrom, dateTo, requestID string) error {
	if err := c.client.Set(ctx, dedupKey(dateFrom, dateTo), requestID, DedupTTL).Err(); err != nil {
		return fmt.Errorf("cache: set dedup: %w", err)
	}
	return nil
}
