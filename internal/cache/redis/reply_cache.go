// Package redis implements the reply cache over Redis. Entries are exact
// matches on the assembled request, stored as JSON with a TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minbak/hearth/internal/domain"
	"github.com/minbak/hearth/internal/observability"
)

// ReplyCache implements domain.ReplyCache using Redis.
type ReplyCache struct {
	client *redis.Client
}

// NewReplyCache creates a Redis-backed reply cache and verifies the
// connection.
func NewReplyCache(ctx context.Context, client *redis.Client) (*ReplyCache, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &ReplyCache{client: client}, nil
}

// Get retrieves a cached reply. Returns domain.ErrCacheMiss when absent.
func (c *ReplyCache) Get(ctx context.Context, key string) (*domain.CachedReply, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrCacheMiss
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var reply domain.CachedReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		observability.FromContext(ctx).Warn("dropping undecodable cache entry",
			observability.String("cache_key", key),
			observability.Error(err),
		)
		_ = c.client.Del(ctx, key).Err()
		return nil, domain.ErrCacheMiss
	}

	return &reply, nil
}

// Set stores a reply with a TTL.
func (c *ReplyCache) Set(ctx context.Context, key string, reply *domain.CachedReply, ttl time.Duration) error {
	if reply == nil {
		return errors.New("reply cannot be nil")
	}

	raw, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("marshal cached reply: %w", err)
	}

	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
