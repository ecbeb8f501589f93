// Package dedup remembers which once-per-period announcements have already
// gone out, so a restart or a second replica does not repeat them.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "wallet-telemetry:"

// DefaultTTL keeps a monthly key well past the month it guards.
const DefaultTTL = 62 * 24 * time.Hour

// Deduplicator checks and records whether an announcement has been sent.
type Deduplicator struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a Deduplicator backed by Redis.
func New(redisURL, password string, logger *slog.Logger) (*Deduplicator, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Deduplicator{rdb: rdb, ttl: DefaultTTL, logger: logger}, nil
}

// Close shuts down the Redis connection.
func (d *Deduplicator) Close() error {
	return d.rdb.Close()
}

// MonthKey is the key guarding the announcement of a calendar month, e.g.
// "earnings:2024-02".
func MonthKey(kind string, year int, month time.Month) string {
	return fmt.Sprintf("%s:%04d-%02d", kind, year, int(month))
}

// AlreadySent reports whether key was recorded. It fails open: when Redis
// cannot answer, the announcement is allowed through.
func (d *Deduplicator) AlreadySent(ctx context.Context, key string) bool {
	exists, err := d.rdb.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		d.logger.Warn("dedup lookup failed, allowing send", "key", key, "error", err)
		return false
	}
	return exists > 0
}

// Record marks key as sent for the configured TTL.
func (d *Deduplicator) Record(ctx context.Context, key string) {
	if err := d.rdb.Set(ctx, keyPrefix+key, "1", d.ttl).Err(); err != nil {
		d.logger.Warn("dedup record failed", "key", key, "error", err)
	}
}

// Clear removes a dedup key so the announcement can go out again.
func (d *Deduplicator) Clear(ctx context.Context, key string) {
	d.rdb.Del(ctx, keyPrefix+key) //nolint:errcheck
}
