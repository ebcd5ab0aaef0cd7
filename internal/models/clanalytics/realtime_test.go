package clanalytics

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealtimeKeys(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	// 23h30 UTC est déjà le lendemain à Paris
	now := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-01", realtimeDay(now, time.UTC))
	assert.Equal(t, "2026-03-02", realtimeDay(now, paris))

	assert.Equal(t, "analytics:daily:2026-03-02", realtimeViewsKey("2026-03-02"))
	assert.Equal(t, "analytics:visitors:2026-03-02", realtimeVisitorsKey("2026-03-02"))
}

// setupTestRedis utilise le serveur désigné par PORTFOLIO_TEST_REDIS
func setupTestRedis(t *testing.T) *redis.Client {
	addr := os.Getenv("PORTFOLIO_TEST_REDIS")
	if addr == "" {
		t.Skip("PORTFOLIO_TEST_REDIS non défini")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		t.Skipf("redis indisponible sur %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRealtimeCountersWithRedis(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()

	db := setupTestDB(t)
	clock := &fakeClock{now: time.Date(2031, 7, 14, 12, 0, 0, 0, time.UTC)}
	day := realtimeDay(clock.Now(), time.UTC)
	keys := []string{realtimeViewsKey(day), realtimeVisitorsKey(day)}
	require.NoError(t, rdb.Del(ctx, keys...).Err())
	t.Cleanup(func() { rdb.Del(context.Background(), keys...) })

	tracker := NewTracker(db, nil, rdb, TrackerOptions{Location: time.UTC, Now: clock.Now})
	svc := NewAnalyticsService(db, rdb, ServiceOptions{Location: time.UTC, Now: clock.Now})

	for _, h := range []Hit{hit("s1", "/"), hit("s1", "/blog"), hit("s2", "/")} {
		_, err := tracker.Track(ctx, h)
		require.NoError(t, err)
	}

	stats, err := svc.GetRealtimeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, day, stats["date"])
	assert.Equal(t, int64(3), stats["today_page_views"])
	assert.Equal(t, int64(2), stats["today_unique_visitors"])

	for _, key := range keys {
		ttl, err := rdb.TTL(ctx, key).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, 30*24*time.Hour, key)
		assert.LessOrEqual(t, ttl, realtimeTTL, key)
	}
}

func TestRealtimeEmptyDayWithRedis(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()

	now := time.Date(2031, 7, 15, 12, 0, 0, 0, time.UTC)
	day := realtimeDay(now, time.UTC)
	require.NoError(t, rdb.Del(ctx, realtimeViewsKey(day), realtimeVisitorsKey(day)).Err())

	svc := NewAnalyticsService(setupTestDB(t), rdb, ServiceOptions{
		Location: time.UTC,
		Now:      func() time.Time { return now },
	})
	stats, err := svc.GetRealtimeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats["today_page_views"])
	assert.Equal(t, int64(0), stats["today_unique_visitors"])
}
