package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type RedisCacheSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	now    time.Time
	cache  *RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.cache = NewRedisCache(s.client, 5*time.Minute, func() time.Time { return s.now })
}

func (s *RedisCacheSuite) TearDownTest() {
	_ = s.client.Close()
}

func (s *RedisCacheSuite) TestRoundTrip() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Put(ctx, "notch", true, s.now))

	e, ok, err := s.cache.Get(ctx, "notch")
	s.Require().NoError(err)
	s.True(ok)
	s.True(e.Verdict)
	s.True(e.WrittenAt.Equal(s.now))
	s.Equal(5*time.Minute, s.mr.TTL(redisKeyPrefix+"notch"))
}

func (s *RedisCacheSuite) TestMiss() {
	_, ok, err := s.cache.Get(context.Background(), "ghost")
	s.NoError(err)
	s.False(ok)
}

func (s *RedisCacheSuite) TestRedisExpiry() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Put(ctx, "steve", false, s.now))
	s.mr.FastForward(5*time.Minute + time.Second)

	_, ok, err := s.cache.Get(ctx, "steve")
	s.NoError(err)
	s.False(ok)
}

func (s *RedisCacheSuite) TestAgeCheckMatchesMemoryStore() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Put(ctx, "alex", true, s.now.Add(-5*time.Minute)))

	_, ok, err := s.cache.Get(ctx, "alex")
	s.NoError(err)
	s.False(ok, "entry written a full TTL ago is stale even if redis still holds it")
}

func (s *RedisCacheSuite) TestCorruptValue() {
	ctx := context.Background()
	s.Require().NoError(s.mr.Set(redisKeyPrefix+"bad", "not-json"))

	_, ok, err := s.cache.Get(ctx, "bad")
	s.Error(err)
	s.False(ok)
}

func (s *RedisCacheSuite) TestUnavailable() {
	s.mr.Close()
	_, ok, err := s.cache.Get(context.Background(), "anyone")
	s.Error(err)
	s.False(ok)
	s.Error(s.cache.Put(context.Background(), "anyone", true, s.now))
}
