//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certledger/internal/notification/cache"
	"certledger/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *cache.Redis
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.cache = cache.NewRedis(s.redis.Client)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestRoundTrip() {
	ctx := context.Background()

	_, ok := s.cache.Get(ctx, "jane@example.com")
	s.False(ok)

	s.cache.Set(ctx, "jane@example.com", 3)
	count, ok := s.cache.Get(ctx, "jane@example.com")
	s.True(ok)
	s.Equal(3, count)

	// Recipients are keyed independently.
	_, ok = s.cache.Get(ctx, "other@example.com")
	s.False(ok)
}

func (s *RedisCacheSuite) TestInvalidate() {
	ctx := context.Background()
	s.cache.Set(ctx, "jane@example.com", 3)

	s.cache.Invalidate(ctx, "jane@example.com")
	_, ok := s.cache.Get(ctx, "jane@example.com")
	s.False(ok)

	// Invalidating a cold key is harmless.
	s.cache.Invalidate(ctx, "jane@example.com")
}

func (s *RedisCacheSuite) TestEntriesExpire() {
	ctx := context.Background()
	s.cache.Set(ctx, "jane@example.com", 3)

	ttl, err := s.redis.Client.TTL(ctx, "certledger:unread:jane@example.com").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, cache.DefaultTTL)
}
