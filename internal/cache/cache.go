// Package cache provides a Redis-backed read-through cache for Request
// status lookups.
//
// On read: Redis is checked first. A cached entry is only trusted when its
// status is terminal (completed or failed) — those rows never transition
// again, so the cached copy can never go stale. A cache hit for a
// non-terminal status is treated as a miss: the entry is dropped and the
// caller falls back to the Ledger, which preserves the Ledger-first
// ordering property (spec §8) that status reads must not violate.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"research-pipeline/internal/models"
)

const (
	requestKeyPrefix = "request:"
	requestTTL       = 1 * time.Hour
)

// ErrNotFound is returned when a key does not exist in the cache.
var ErrNotFound = errors.New("cache: key not found")

// Client wraps the Redis client and exposes domain-level operations.
type Client struct {
	rdb *redis.Client
}

// New creates a Redis client and verifies the connection with a PING.
func New(addr string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Client{rdb: rdb}, nil
}

// Close shuts down the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// SetRequest overwrites the cached projection for a Request. The status
// read path calls it to back-fill the row it just read from the Ledger;
// status transitions do not write to the cache.
func (c *Client) SetRequest(ctx context.Context, req *models.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, requestKeyPrefix+req.ID, data, requestTTL).Err()
}

// GetRequest fetches a Request projection by ID from Redis.
// Returns ErrNotFound when the key does not exist or has expired, in which
// case the caller falls back to the Ledger and should repopulate the cache.
func (c *Client) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	data, err := c.rdb.Get(ctx, requestKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var req models.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Invalidate drops the cached projection for a Request. The status read
// path calls it when it finds a cached entry whose status is not terminal.
func (c *Client) Invalidate(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, requestKeyPrefix+id).Err()
}
