// Package cache provides the unread-count cache for the notification ledger.
// The count is read on every page load in the original UI, so it is the one
// notification read worth keeping off the database.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds staleness when an invalidation is lost.
const DefaultTTL = time.Minute

// UnreadCounts caches per-recipient unread counts.
type UnreadCounts interface {
	Get(ctx context.Context, recipientEmail string) (int, bool)
	Set(ctx context.Context, recipientEmail string, count int)
	Invalidate(ctx context.Context, recipientEmail string)
}

// Redis backs UnreadCounts with a Redis instance. All operations are
// best-effort: a Redis failure degrades to a database read, never an error.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, ttl: DefaultTTL}
}

func key(recipientEmail string) string {
	return fmt.Sprintf("certledger:unread:%s", recipientEmail)
}

func (c *Redis) Get(ctx context.Context, recipientEmail string) (int, bool) {
	value, err := c.client.Get(ctx, key(recipientEmail)).Result()
	if err != nil {
		return 0, false
	}
	count, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return count, true
}

func (c *Redis) Set(ctx context.Context, recipientEmail string, count int) {
	c.client.Set(ctx, key(recipientEmail), strconv.Itoa(count), c.ttl)
}

func (c *Redis) Invalidate(ctx context.Context, recipientEmail string) {
	c.client.Del(ctx, key(recipientEmail))
}
