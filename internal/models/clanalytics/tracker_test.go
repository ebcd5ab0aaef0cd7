package clanalytics

import (
	"context"
	"errors"
	"fmt"
	"portfolio/internal/models/clgeoip"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubGeo struct {
	mu    sync.Mutex
	known map[string]clgeoip.Location
	calls int
}

func (g *stubGeo) Resolve(_ context.Context, ip string) (clgeoip.Location, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if loc, ok := g.known[ip]; ok {
		return loc, nil
	}
	return clgeoip.Location{}, clgeoip.ErrLookupFailed
}

func (g *stubGeo) learn(ip string, loc clgeoip.Location) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.known[ip] = loc
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// une seule connexion, sinon chaque connexion ouvre sa propre base :memory:
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&Visitor{}, &PageView{}))
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func newTestTracker(t *testing.T, geo GeoResolver) (*Tracker, *gorm.DB, *fakeClock) {
	db := setupTestDB(t)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewTracker(db, geo, nil, TrackerOptions{
		MinUpdate: DefaultMinUpdate,
		Location:  time.UTC,
		Now:       clock.Now,
	})
	return tracker, db, clock
}

func hit(session, path string) Hit {
	return Hit{
		SessionKey: session,
		IP:         "8.8.8.8",
		UserAgent:  "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
		Path:       path,
		StatusCode: 200,
	}
}

func countPageViews(t *testing.T, db *gorm.DB) int64 {
	var n int64
	require.NoError(t, db.Model(&PageView{}).Count(&n).Error)
	return n
}

func loadVisitor(t *testing.T, db *gorm.DB, session string) Visitor {
	var v Visitor
	require.NoError(t, db.Where("session_key = ?", session).Take(&v).Error)
	return v
}

func TestTrackNewVisitor(t *testing.T) {
	geo := &stubGeo{known: map[string]clgeoip.Location{"8.8.8.8": {City: "Mountain View", Country: "United States"}}}
	tracker, db, clock := newTestTracker(t, geo)

	res, err := tracker.Track(context.Background(), hit("s1", "/"))
	require.NoError(t, err)
	assert.True(t, res.Created)

	v := loadVisitor(t, db, "s1")
	assert.Equal(t, 1, v.Visits)
	assert.True(t, v.Online)
	assert.True(t, v.FirstSeen.Equal(clock.Now()))
	assert.True(t, v.LastSeen.Equal(clock.Now()))
	assert.Equal(t, DeviceDesktop, v.DeviceType)
	require.NotNil(t, v.Location)
	assert.Equal(t, "Mountain View", v.Location.City)
	assert.Equal(t, int64(1), countPageViews(t, db))

	var pv PageView
	require.NoError(t, db.First(&pv).Error)
	assert.Equal(t, v.ID, pv.VisitorID)
	assert.Equal(t, "GET", pv.Method)
	assert.Equal(t, 200, pv.StatusCode)
}

func TestTrackRejectsEmptySession(t *testing.T) {
	tracker, db, _ := newTestTracker(t, nil)
	_, err := tracker.Track(context.Background(), hit("", "/"))
	assert.Error(t, err)
	assert.Equal(t, int64(0), countPageViews(t, db))
}

func TestTrackDebounce(t *testing.T) {
	tracker, db, clock := newTestTracker(t, nil)
	ctx := context.Background()
	first := clock.Now()

	res, err := tracker.Track(ctx, hit("s1", "/"))
	require.NoError(t, err)
	require.True(t, res.Created)

	for i := 0; i < 9; i++ {
		clock.Advance(3 * time.Second)
		res, err := tracker.Track(ctx, hit("s1", fmt.Sprintf("/p%d", i)))
		require.NoError(t, err)
		assert.True(t, res.Debounced, "hit %d", i)
	}

	v := loadVisitor(t, db, "s1")
	assert.True(t, v.LastSeen.Equal(first))
	assert.Equal(t, 1, v.Visits)
	assert.Equal(t, int64(10), countPageViews(t, db))

	// 27s écoulées, la suivante dépasse 30s
	clock.Advance(4 * time.Second)
	res, err = tracker.Track(ctx, hit("s1", "/later"))
	require.NoError(t, err)
	assert.True(t, res.Updated)

	v = loadVisitor(t, db, "s1")
	assert.True(t, v.LastSeen.Equal(clock.Now()))
	assert.Equal(t, int64(11), countPageViews(t, db))
}

func TestTrackMidnightIncrementsVisitsOnce(t *testing.T) {
	tracker, db, clock := newTestTracker(t, nil)
	ctx := context.Background()
	clock.now = time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)

	_, err := tracker.Track(ctx, hit("s1", "/"))
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	res, err := tracker.Track(ctx, hit("s1", "/blog"))
	require.NoError(t, err)
	require.True(t, res.Updated)
	assert.Equal(t, 2, loadVisitor(t, db, "s1").Visits)

	clock.Advance(10 * time.Minute)
	_, err = tracker.Track(ctx, hit("s1", "/contact"))
	require.NoError(t, err)
	assert.Equal(t, 2, loadVisitor(t, db, "s1").Visits)
}

func TestTrackIPChurnAndLocationFill(t *testing.T) {
	geo := &stubGeo{known: map[string]clgeoip.Location{}}
	tracker, db, clock := newTestTracker(t, geo)
	ctx := context.Background()

	_, err := tracker.Track(ctx, hit("s1", "/"))
	require.NoError(t, err)
	v := loadVisitor(t, db, "s1")
	assert.Nil(t, v.Location)
	assert.Equal(t, "8.8.8.8", v.RemoteIP)

	geo.learn("1.1.1.1", clgeoip.Location{City: "Sydney", Country: "Australia"})
	clock.Advance(time.Minute)
	h := hit("s1", "/blog")
	h.IP = "1.1.1.1"
	res, err := tracker.Track(ctx, h)
	require.NoError(t, err)
	assert.True(t, res.Updated)

	v = loadVisitor(t, db, "s1")
	assert.Equal(t, "1.1.1.1", v.RemoteIP)
	require.NotNil(t, v.Location)
	assert.Equal(t, "Sydney", v.Location.City)

	var visitors int64
	require.NoError(t, db.Model(&Visitor{}).Count(&visitors).Error)
	assert.Equal(t, int64(1), visitors)

	// position connue: plus d'appel au résolveur
	calls := geo.calls
	clock.Advance(time.Minute)
	_, err = tracker.Track(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, calls, geo.calls)
}

func TestTrackRevivesOfflineVisitor(t *testing.T) {
	tracker, db, clock := newTestTracker(t, nil)
	ctx := context.Background()

	_, err := tracker.Track(ctx, hit("s1", "/"))
	require.NoError(t, err)
	require.NoError(t, db.Model(&Visitor{}).Where("session_key = ?", "s1").Update("online", false).Error)

	clock.Advance(10 * time.Minute)
	_, err = tracker.Track(ctx, hit("s1", "/"))
	require.NoError(t, err)
	assert.True(t, loadVisitor(t, db, "s1").Online)
}

func TestTrackTruncatesLongFields(t *testing.T) {
	tracker, db, _ := newTestTracker(t, nil)
	h := hit("s1", "/"+strings.Repeat("a", 400))
	h.Referrer = "https://example.com/" + strings.Repeat("r", 600)

	_, err := tracker.Track(context.Background(), h)
	require.NoError(t, err)

	var pv PageView
	require.NoError(t, db.First(&pv).Error)
	assert.Len(t, pv.Path, 255)
	assert.Len(t, pv.Referrer, 500)
}

func TestTrackTruncatesOnRuneBoundary(t *testing.T) {
	tracker, db, _ := newTestTracker(t, nil)
	_, err := tracker.Track(context.Background(), hit("s1", "/"+strings.Repeat("a", 253)+"ééé"))
	require.NoError(t, err)

	var pv PageView
	require.NoError(t, db.First(&pv).Error)
	assert.True(t, utf8.ValidString(pv.Path))
	assert.Equal(t, 255, utf8.RuneCountInString(pv.Path))
	assert.Equal(t, "/"+strings.Repeat("a", 253)+"é", pv.Path)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", truncate("héllo", 10))
	assert.Equal(t, "hé", truncate("héllo", 2))
	assert.Equal(t, "ab", truncate("a\xffb", 5))
	assert.Equal(t, "", truncate("", 3))
}

func TestTrackGeoFailureNeverFails(t *testing.T) {
	geo := &stubGeo{known: map[string]clgeoip.Location{}}
	tracker, _, _ := newTestTracker(t, geo)

	res, err := tracker.Track(context.Background(), hit("s1", "/"))
	require.NoError(t, err)
	assert.False(t, errors.Is(err, clgeoip.ErrLookupFailed))
	assert.Nil(t, res.Visitor.Location)
}
