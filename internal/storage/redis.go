package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("streamingservice-storage")

const (
	// ProgressTTL is the time-to-live for progress samples and dirty markers (24 hours)
	ProgressTTL = 24 * time.Hour

	// DefaultTTL is the time-to-live for catalog cache entries (5 minutes)
	DefaultTTL = 5 * time.Minute

	// opTimeout bounds every cache operation so a degraded Redis cannot
	// stall request handling.
	opTimeout = 2 * time.Second
)

// Cache wraps Redis as a best-effort cache tier. Every operation degrades
// to a miss or not-ok on backend failure; the cache is never a correctness
// dependency. If Redis is unreachable at construction the cache starts
// disabled and the service runs on the durable store alone.
type Cache struct {
	client  *redis.Client
	enabled bool
	logger  *slog.Logger
}

// NewCache connects to Redis and probes it. A failed probe is logged, not
// fatal.
func NewCache(addr, password string, db int, logger *slog.Logger) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  opTimeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})

	c := &Cache{
		client: client,
		logger: logger.With(slog.String("component", "cache")),
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		c.logger.Warn("redis unavailable, running without cache", slog.String("error", err.Error()))
		return c
	}

	c.enabled = true
	c.logger.Info("redis cache connected", slog.String("addr", addr))
	return c
}

// Enabled reports whether the backing store was reachable at startup.
func (c *Cache) Enabled() bool { return c.enabled }

// Close closes the Redis connection.
func (c *Cache) Close() error { return c.client.Close() }

// GetJSON fetches a key and unmarshals it into v. Returns false on miss,
// backend failure, or undecodable payload.
func (c *Cache) GetJSON(ctx context.Context, key string, v any) bool {
	if !c.enabled {
		return false
	}

	ctx, span := tracer.Start(ctx, "redis.get",
		trace.WithAttributes(attribute.String("cache.key", key)),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return false
	} else if err != nil {
		span.RecordError(err)
		c.logger.Error("cache get failed", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}

	if err := json.Unmarshal(data, v); err != nil {
		span.RecordError(err)
		c.logger.Error("cache entry undecodable", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	return true
}

// Set stores a JSON-encoded value under key with the given TTL. Returns
// false on backend failure.
func (c *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) bool {
	if !c.enabled {
		return false
	}

	ctx, span := tracer.Start(ctx, "redis.set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_seconds", int64(ttl.Seconds())),
		),
	)
	defer span.End()

	data, err := json.Marshal(v)
	if err != nil {
		span.RecordError(err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		span.RecordError(err)
		c.logger.Error("cache set failed", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}
	return true
}

// Delete removes a single key. Returns false on backend failure.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	if !c.enabled {
		return false
	}

	ctx, span := tracer.Start(ctx, "redis.delete",
		trace.WithAttributes(attribute.String("cache.key", key)),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.Del(ctx, key).Err(); err != nil {
		span.RecordError(err)
		c.logger.Error("cache delete failed", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}
	return true
}

// DeletePattern removes all keys matching a glob pattern and returns how
// many were deleted. Scans instead of KEYS so large keyspaces do not block
// Redis.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) int {
	if !c.enabled {
		return 0
	}

	ctx, span := tracer.Start(ctx, "redis.delete_pattern",
		trace.WithAttributes(attribute.String("cache.pattern", pattern)),
	)
	defer span.End()

	keys, err := c.scanKeys(ctx, pattern)
	if err != nil {
		span.RecordError(err)
		c.logger.Error("cache scan failed", slog.String("pattern", pattern), slog.String("error", err.Error()))
		return 0
	}
	if len(keys) == 0 {
		return 0
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	deleted, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		span.RecordError(err)
		c.logger.Error("cache pattern delete failed", slog.String("pattern", pattern), slog.String("error", err.Error()))
		return 0
	}

	span.SetAttributes(attribute.Int64("cache.deleted", deleted))
	return int(deleted)
}

// DirtyKeys enumerates all dirty progress markers for the sync worker.
func (c *Cache) DirtyKeys(ctx context.Context) ([]string, error) {
	if !c.enabled {
		return nil, nil
	}
	return c.scanKeys(ctx, DirtyKeyPattern)
}

func (c *Cache) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// InvalidateCourse drops every cache entry related to a course.
func (c *Cache) InvalidateCourse(ctx context.Context, courseID string) {
	for _, pattern := range coursePatterns(courseID) {
		c.DeletePattern(ctx, pattern)
	}
}

// InvalidateLesson drops every cache entry related to a lesson.
// courseID may be empty when unknown.
func (c *Cache) InvalidateLesson(ctx context.Context, lessonID, courseID string) {
	for _, pattern := range lessonPatterns(lessonID, courseID) {
		c.DeletePattern(ctx, pattern)
	}
}

// InvalidateFile drops every cache entry related to a file.
// lessonID may be empty when unknown.
func (c *Cache) InvalidateFile(ctx context.Context, fileID, lessonID string) {
	for _, pattern := range filePatterns(fileID, lessonID) {
		c.DeletePattern(ctx, pattern)
	}
}

// InvalidateUserProgress drops a user's cached progress views.
func (c *Cache) InvalidateUserProgress(ctx context.Context, userID, fileID, courseID string) {
	for _, pattern := range userProgressPatterns(userID, fileID, courseID) {
		c.DeletePattern(ctx, pattern)
	}
}

// CacheStats is a snapshot of cache health for the stats endpoint.
type CacheStats struct {
	Enabled   bool    `json:"enabled"`
	TotalKeys int64   `json:"total_keys,omitempty"`
	Hits      int64   `json:"hits,omitempty"`
	Misses    int64   `json:"misses,omitempty"`
	HitRate   float64 `json:"hit_rate,omitempty"`
}

// Stats reports keyspace size and hit/miss counters from Redis.
func (c *Cache) Stats(ctx context.Context) CacheStats {
	if !c.enabled {
		return CacheStats{Enabled: false}
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	stats := CacheStats{Enabled: true}
	if n, err := c.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = n
	}

	info, err := c.client.Info(ctx, "stats").Result()
	if err != nil {
		c.logger.Error("cache stats failed", slog.String("error", err.Error()))
		return stats
	}

	stats.Hits = parseInfoInt(info, "keyspace_hits")
	stats.Misses = parseInfoInt(info, "keyspace_misses")
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats
}

// parseInfoInt pulls a single integer field out of a redis INFO section.
func parseInfoInt(info, field string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if v, found := strings.CutPrefix(line, field+":"); found {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return 0
			}
			return n
		}
	}
	return 0
}
