package clgeoip

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	calls atomic.Int32
	loc   Location
	err   error
}

func (s *stubProvider) Lookup(ctx context.Context, ip string) (Location, error) {
	s.calls.Add(1)
	return s.loc, s.err
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]Entry
	ttls map[string]time.Duration
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string]Entry{}, ttls: map[string]time.Duration{}}
}

func (m *mapCache) Get(_ context.Context, key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	return e, ok
}

func (m *mapCache) Set(_ context.Context, key string, entry Entry, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = entry
	m.ttls[key] = ttl
}

func TestIsLocal(t *testing.T) {
	for _, ip := range []string{"127.0.0.1", "::1", "192.168.1.20", "10.0.0.3", "172.16.4.4", "localhost", "0.0.0.0", "fe80::1"} {
		assert.True(t, IsLocal(ip), ip)
	}
	for _, ip := range []string{"8.8.8.8", "2001:4860:4860::8888", "unknown", ""} {
		assert.False(t, IsLocal(ip), ip)
	}
}

func TestResolveLocalNeverCallsProvider(t *testing.T) {
	provider := &stubProvider{loc: Location{City: "Paris"}}
	cache := newMapCache()
	r := NewResolver(provider, cache, Options{})

	loc, err := r.Resolve(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, LocalLocation, loc)
	assert.Equal(t, int32(0), provider.calls.Load())
	assert.Empty(t, cache.data)
}

func TestResolveInvalidIP(t *testing.T) {
	provider := &stubProvider{}
	r := NewResolver(provider, newMapCache(), Options{})

	_, err := r.Resolve(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrInvalidIP)
	assert.Equal(t, int32(0), provider.calls.Load())
}

func TestResolveCachesSuccess(t *testing.T) {
	provider := &stubProvider{loc: Location{City: "Paris", Country: "France"}}
	cache := newMapCache()
	r := NewResolver(provider, cache, Options{CacheTTL: 6 * time.Hour})

	for i := 0; i < 3; i++ {
		loc, err := r.Resolve(context.Background(), "8.8.8.8")
		require.NoError(t, err)
		assert.Equal(t, "Paris", loc.City)
	}
	assert.Equal(t, int32(1), provider.calls.Load())
	assert.Equal(t, 6*time.Hour, cache.ttls["geoip:8.8.8.8"])
}

func TestResolveCachesFailureWithShortTTL(t *testing.T) {
	provider := &stubProvider{err: ErrRateLimited}
	cache := newMapCache()
	r := NewResolver(provider, cache, Options{CacheTTL: time.Hour, FailureTTL: time.Minute})

	_, err := r.Resolve(context.Background(), "8.8.4.4")
	assert.ErrorIs(t, err, ErrRateLimited)

	_, err = r.Resolve(context.Background(), "8.8.4.4")
	assert.ErrorIs(t, err, ErrCachedFailure)

	assert.Equal(t, int32(1), provider.calls.Load())
	assert.Equal(t, time.Minute, cache.ttls["geoip:8.8.4.4"])
	assert.True(t, cache.data["geoip:8.8.4.4"].Failed)
}

func TestResolveWithoutProvider(t *testing.T) {
	r := NewResolver(nil, newMapCache(), Options{})
	_, err := r.Resolve(context.Background(), "8.8.8.8")
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestIPAPIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/1.2.3.4/json/":
			w.Write([]byte(`{"city":"Lyon","region":"ARA","country_name":"France","latitude":45.75,"longitude":4.85,"org":"ACME"}`))
		case "/5.6.7.8/json/":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/9.9.9.9/json/":
			w.Write([]byte(`{"error":true,"reason":"RateLimited"}`))
		case "/4.4.4.4/json/":
			w.Write([]byte(`{"error":true,"reason":"Reserved IP Address"}`))
		default:
			w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	p := NewIPAPIProvider(srv.URL+"/", time.Second)
	ctx := context.Background()

	loc, err := p.Lookup(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, Location{City: "Lyon", Region: "ARA", Country: "France", Lat: 45.75, Lng: 4.85, Org: "ACME"}, loc)

	_, err = p.Lookup(ctx, "5.6.7.8")
	assert.ErrorIs(t, err, ErrRateLimited)

	_, err = p.Lookup(ctx, "9.9.9.9")
	assert.ErrorIs(t, err, ErrRateLimited)

	_, err = p.Lookup(ctx, "4.4.4.4")
	assert.ErrorIs(t, err, ErrLookupFailed)
}

func TestIPAPIProviderMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"city":`))
	}))
	defer srv.Close()

	_, err := NewIPAPIProvider(srv.URL, time.Second).Lookup(context.Background(), "1.1.1.1")
	assert.True(t, errors.Is(err, ErrLookupFailed))
}

func TestIPAPIProviderTimeoutFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{"city":"Slow"}`))
	}))
	defer srv.Close()

	r := NewResolver(NewIPAPIProvider(srv.URL, time.Second), newMapCache(), Options{Timeout: 50 * time.Millisecond})
	start := time.Now()
	loc, err := r.Resolve(context.Background(), "1.1.1.1")
	assert.Error(t, err)
	assert.True(t, loc.IsEmpty())
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestMemoryCache(t *testing.T) {
	c, err := NewMemoryCache(100)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, ok := c.Get(ctx, "geoip:1.1.1.1")
	assert.False(t, ok)

	c.Set(ctx, "geoip:1.1.1.1", Entry{Location: Location{City: "Sydney"}}, time.Hour)
	entry, ok := c.Get(ctx, "geoip:1.1.1.1")
	require.True(t, ok)
	assert.Equal(t, "Sydney", entry.Location.City)
}
