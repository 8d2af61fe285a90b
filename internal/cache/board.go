// Package cache provides the Redis-backed board cache: the unfiltered issue
// list of an organization, invalidated on every mutation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"trackboard/api/internal/store"
)

type BoardCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewBoardCache connects to Redis and returns a board cache.
func NewBoardCache(redisURL string, ttl time.Duration) (*BoardCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewBoardCacheWithClient(client, ttl), nil
}

// NewBoardCacheWithClient creates a cache from an existing Redis client.
func NewBoardCacheWithClient(client *redis.Client, ttl time.Duration) *BoardCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &BoardCache{
		client: client,
		prefix: "board:",
		ttl:    ttl,
	}
}

func (c *BoardCache) key(orgID string) string {
	return c.prefix + orgID
}

// GetBoard returns the cached board for an organization, or nil on a miss.
func (c *BoardCache) GetBoard(ctx context.Context, orgID string) (*store.IssuePage, error) {
	jsonData, err := c.client.Get(ctx, c.key(orgID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get board cache: %w", err)
	}

	var page store.IssuePage
	if err := json.Unmarshal([]byte(jsonData), &page); err != nil {
		return nil, fmt.Errorf("unmarshal board cache: %w", err)
	}
	return &page, nil
}

// SetBoard stores the board for an organization with the configured TTL.
func (c *BoardCache) SetBoard(ctx context.Context, orgID string, page store.IssuePage) error {
	jsonData, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("marshal board cache: %w", err)
	}
	if err := c.client.Set(ctx, c.key(orgID), jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("set board cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached board for an organization.
func (c *BoardCache) Invalidate(ctx context.Context, orgID string) error {
	if err := c.client.Del(ctx, c.key(orgID)).Err(); err != nil {
		return fmt.Errorf("invalidate board cache: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *BoardCache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *BoardCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
