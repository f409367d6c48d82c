package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type InMemoryCacheSuite struct {
	suite.Suite
	now   time.Time
	ttl   time.Duration
	cache *InMemoryCache
}

func TestInMemoryCacheSuite(t *testing.T) {
	suite.Run(t, new(InMemoryCacheSuite))
}

func (s *InMemoryCacheSuite) SetupTest() {
	s.now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.ttl = 5 * time.Minute
	s.cache = NewInMemoryCache(s.ttl, WithClock(func() time.Time { return s.now }))
}

func (s *InMemoryCacheSuite) TestGetPut() {
	ctx := context.Background()

	s.Run("miss on empty cache", func() {
		_, ok, err := s.cache.Get(ctx, "nobody")
		s.NoError(err)
		s.False(ok)
	})

	s.Run("fresh entry is returned", func() {
		s.Require().NoError(s.cache.Put(ctx, "notch", true, s.now))
		s.now = s.now.Add(s.ttl - time.Second)

		e, ok, err := s.cache.Get(ctx, "notch")
		s.NoError(err)
		s.True(ok)
		s.True(e.Verdict)
		s.Equal("notch", e.Key)
	})

	s.Run("entry at exactly the TTL is absent", func() {
		written := s.now
		s.Require().NoError(s.cache.Put(ctx, "steve", false, written))
		s.now = written.Add(s.ttl)

		_, ok, err := s.cache.Get(ctx, "steve")
		s.NoError(err)
		s.False(ok)
	})

	s.Run("stale entry is reported absent but kept", func() {
		written := s.now
		s.Require().NoError(s.cache.Put(ctx, "alex", true, written))
		s.now = written.Add(s.ttl + time.Second)

		_, ok, _ := s.cache.Get(ctx, "alex")
		s.False(ok)
		s.Equal(3, s.cache.Len())
	})
}

func (s *InMemoryCacheSuite) TestPutOverwrites() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Put(ctx, "jeb_", true, s.now))
	s.Require().NoError(s.cache.Put(ctx, "jeb_", false, s.now))

	e, ok, _ := s.cache.Get(ctx, "jeb_")
	s.True(ok)
	s.False(e.Verdict)
	s.Equal(1, s.cache.Len())
}

func (s *InMemoryCacheSuite) TestSweep() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Put(ctx, "old", true, s.now.Add(-s.ttl)))
	s.Require().NoError(s.cache.Put(ctx, "new", true, s.now))

	s.Equal(1, s.cache.Sweep(s.now))
	s.Equal(1, s.cache.Len())

	_, ok, _ := s.cache.Get(ctx, "new")
	s.True(ok, "sweep never removes fresh entries")
}

func (s *InMemoryCacheSuite) TestRunSweeperStopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.cache.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("sweeper did not stop")
	}
}

func (s *InMemoryCacheSuite) TestConcurrentAccess() {
	ctx := context.Background()
	cache := NewInMemoryCache(time.Minute)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = cache.Put(ctx, fmt.Sprintf("player%d", i%5), i%2 == 0, time.Now())
		}()
		go func() {
			defer wg.Done()
			_, _, _ = cache.Get(ctx, fmt.Sprintf("player%d", i%5))
		}()
	}
	wg.Wait()
	s.Equal(5, cache.Len())
}

func TestKey(t *testing.T) {
	if Key("NoTcH") != "notch" {
		t.Fatalf("expected lowercased key, got %q", Key("NoTcH"))
	}
}
