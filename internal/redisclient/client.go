package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client wraps Redis as the settings/key-value store behind every persisted
// singleton: auth tokens, rule sets, sync state, the rate-limit window and
// the sync lease.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetJSON loads a settings key into dest. Returns false when the key is absent.
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.rdb.Get(ctx, fmt.Sprintf("settings:%s", key)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("settings get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("settings decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores a settings key.
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("settings encode %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, fmt.Sprintf("settings:%s", key), raw, 0).Err(); err != nil {
		return fmt.Errorf("settings set %s: %w", key, err)
	}
	return nil
}

// AcquireLease takes the named lease if it is free. The TTL doubles as the
// stale-lock recovery window: a crashed owner's lease simply expires.
func (c *Client) AcquireLease(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lease:%s", name), "1", ttl).Result()
}

// RenewLease extends a held lease; the heartbeat of a live run.
func (c *Client) RenewLease(ctx context.Context, name string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, fmt.Sprintf("lease:%s", name), ttl).Err()
}

// ReleaseLease frees the named lease.
func (c *Client) ReleaseLease(ctx context.Context, name string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lease:%s", name)).Err()
}

// --- rate-limit window, a sorted set of request timestamps ---

const windowKey = "ratelimit:window"

// RecordRequest appends a request timestamp to the window.
func (c *Client) RecordRequest(ctx context.Context, at time.Time) error {
	member := strconv.FormatInt(at.UnixNano(), 10)
	return c.rdb.ZAdd(ctx, windowKey, &redis.Z{
		Score:  float64(at.UnixNano()),
		Member: member,
	}).Err()
}

// CountSince returns how many requests were recorded at or after the cutoff.
func (c *Client) CountSince(ctx context.Context, cutoff time.Time) (int, error) {
	min := strconv.FormatInt(cutoff.UnixNano(), 10)
	n, err := c.rdb.ZCount(ctx, windowKey, min, "+inf").Result()
	return int(n), err
}

// OldestSince returns the oldest request timestamp at or after the cutoff.
// The boolean is false when the window is empty past the cutoff.
func (c *Client) OldestSince(ctx context.Context, cutoff time.Time) (time.Time, bool, error) {
	min := strconv.FormatInt(cutoff.UnixNano(), 10)
	zs, err := c.rdb.ZRangeByScoreWithScores(ctx, windowKey, &redis.ZRangeBy{
		Min: min, Max: "+inf", Count: 1,
	}).Result()
	if err != nil || len(zs) == 0 {
		return time.Time{}, false, err
	}
	return time.Unix(0, int64(zs[0].Score)), true, nil
}

// Prune drops window entries older than the cutoff.
func (c *Client) Prune(ctx context.Context, cutoff time.Time) error {
	max := strconv.FormatInt(cutoff.UnixNano()-1, 10)
	return c.rdb.ZRemRangeByScore(ctx, windowKey, "-inf", max).Err()
}
