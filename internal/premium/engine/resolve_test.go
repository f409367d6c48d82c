package engine

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"premiumblocker/internal/premium/authority"
	"premiumblocker/internal/premium/cache"
)

// End-to-end resolution against a fake identity authority over HTTP.

func fakeAuthority(t *testing.T, registered map[string]string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		name := strings.TrimPrefix(r.URL.Path, "/users/profiles/minecraft/")
		id, ok := registered[strings.ToLower(name)]
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"` + name + `","id":"` + id + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newLiveEngine(t *testing.T, baseURL string, logger *slog.Logger) *Engine {
	t.Helper()
	client, err := authority.New(baseURL+"/users/profiles/minecraft", 200*time.Millisecond, authority.WithLogger(logger))
	require.NoError(t, err)
	e, err := New(cache.NewInMemoryCache(5*time.Minute), client, Policy{
		Enabled:          true,
		KickMessage:      kickMessage,
		APIEnabled:       true,
		HeuristicEnabled: true,
		Coalesce:         true,
		CacheFailOpen:    true,
	}, WithLogger(logger))
	require.NoError(t, err)
	return e
}

func TestResolveEndToEnd(t *testing.T) {
	var hits atomic.Int32
	srv := fakeAuthority(t, map[string]string{"notch": "069a79f444e94726a5befca90e38aaf5"}, &hits)
	e := newLiveEngine(t, srv.URL, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	t.Run("registered username is denied with the kick message", func(t *testing.T) {
		v := e.Resolve(ctx, preAuth("Notch"))
		assert.Equal(t, ActionDeny, v.Action)
		assert.Equal(t, kickMessage, v.Message)
	})

	t.Run("unregistered username is allowed", func(t *testing.T) {
		v := e.Resolve(ctx, preAuth("TotallyCracked"))
		assert.Equal(t, ActionAllow, v.Action)
	})

	t.Run("repeat within TTL does not call the authority", func(t *testing.T) {
		before := hits.Load()
		v := e.Resolve(ctx, preAuth("notch"))
		assert.Equal(t, ActionDeny, v.Action)
		assert.Equal(t, before, hits.Load())
	})
}

func TestResolveDuringTotalOutage(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	e := newLiveEngine(t, srv.URL, logger)

	names := []string{"Notch", "jeb_", "Dinnerbone", "Grumm"}
	for _, name := range names {
		v := e.Resolve(context.Background(), preAuth(name))
		assert.Equal(t, ActionAllow, v.Action, name)
		assert.Equal(t, SourceFailOpen, v.Outcome.Source, name)
	}
	assert.Equal(t, len(names), strings.Count(buf.String(), "authority lookup failed"))
}

func TestResolveRepeatDuringOutageCallsAuthorityOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	e := newLiveEngine(t, srv.URL, slog.New(slog.DiscardHandler))

	first := e.Resolve(context.Background(), preAuth("Notch"))
	assert.Equal(t, ActionAllow, first.Action)
	assert.Equal(t, SourceFailOpen, first.Outcome.Source)

	second := e.Resolve(context.Background(), preAuth("Notch"))
	assert.Equal(t, ActionAllow, second.Action)
	assert.Equal(t, SourceCache, second.Outcome.Source)
	assert.Equal(t, int32(1), hits.Load())
}

func TestResolveAuthorityTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	e := newLiveEngine(t, srv.URL, slog.New(slog.DiscardHandler))

	start := time.Now()
	v := e.Resolve(context.Background(), preAuth("Notch"))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, ActionAllow, v.Action)
	assert.Equal(t, SourceFailOpen, v.Outcome.Source)
}
