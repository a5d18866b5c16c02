// Package cache holds the Redis-backed caches of the service.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"camguard.dev/internal/tenancy"
)

const detectionPrefix = "camguard:tenant-host:"

// NewRedisClient connects to Redis and verifies the connection with a short
// ping.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// kv is the subset of the Redis API the caches use.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// DetectionCache stores tenant detections per host, including "no tenant"
// results, for a fixed TTL.
type DetectionCache struct {
	rdb kv
	ttl time.Duration
}

var _ tenancy.DetectionCache = (*DetectionCache)(nil)

// NewDetectionCache wraps rdb.
func NewDetectionCache(rdb kv, ttl time.Duration) *DetectionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DetectionCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached detection for host.
func (c *DetectionCache) Get(ctx context.Context, host string) (tenancy.Detection, bool, error) {
	bs, err := c.rdb.Get(ctx, detectionPrefix+host).Bytes()
	if errors.Is(err, redis.Nil) {
		return tenancy.Detection{}, false, nil
	}
	if err != nil {
		return tenancy.Detection{}, false, err
	}
	var d tenancy.Detection
	if err := json.Unmarshal(bs, &d); err != nil {
		return tenancy.Detection{}, false, fmt.Errorf("decode detection: %w", err)
	}
	return d, true, nil
}

// Set caches d for host.
func (c *DetectionCache) Set(ctx context.Context, host string, d tenancy.Detection) error {
	bs, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, detectionPrefix+host, bs, c.ttl).Err()
}

// Delete drops the cached detections of hosts.
func (c *DetectionCache) Delete(ctx context.Context, hosts ...string) error {
	if len(hosts) == 0 {
		return nil
	}
	keys := make([]string, len(hosts))
	for i, h := range hosts {
		keys[i] = detectionPrefix + h
	}
	return c.rdb.Del(ctx, keys...).Err()
}
