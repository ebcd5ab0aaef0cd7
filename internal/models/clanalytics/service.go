package clanalytics

import (
	"context"
	"errors"
	"fmt"
	"portfolio/internal/clmetrics"
	"portfolio/internal/models/cllog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	DefaultTopPages = 5
	dailyWindow     = 7
	recentPageViews = 10
)

type ServiceOptions struct {
	ActiveWindow  time.Duration
	TopPages      int
	RetentionDays int
	Location      *time.Location
	Now           func() time.Time
}

type AnalyticsService struct {
	db           *gorm.DB
	redis        *redis.Client
	cron         *cron.Cron
	activeWindow time.Duration
	topPages     int
	retention    int
	loc          *time.Location
	now          func() time.Time
	logger       zerolog.Logger
}

func NewAnalyticsService(db *gorm.DB, redisClient *redis.Client, opts ServiceOptions) *AnalyticsService {
	if opts.ActiveWindow <= 0 {
		opts.ActiveWindow = DefaultActiveWindow
	}
	if opts.TopPages <= 0 {
		opts.TopPages = DefaultTopPages
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AnalyticsService{
		db:           db,
		redis:        redisClient,
		activeWindow: opts.ActiveWindow,
		topPages:     opts.TopPages,
		retention:    opts.RetentionDays,
		loc:          opts.Location,
		now:          opts.Now,
		logger:       cllog.Component("analytics"),
	}
}

// Dashboard est recalculé à chaque appel, rien n'est mis en cache
type Dashboard struct {
	TotalVisitors  int64           `json:"total_visitors"`
	OnlineVisitors int64           `json:"online_visitors"`
	ActiveToday    int64           `json:"active_last_24h"`
	TotalPageViews int64           `json:"total_page_views"`
	DailyStats     []DailyStat     `json:"daily_stats"`
	TopPages       []PageStat      `json:"top_pages"`
	TopReferrers   []ReferrerStat  `json:"top_referrers"`
	Devices        []DeviceStat    `json:"devices"`
	Online         []OnlineVisitor `json:"online"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

type PageStat struct {
	Path  string `json:"path"`
	Views int64  `json:"views"`
}

type ReferrerStat struct {
	Referrer string `json:"referrer"`
	Count    int64  `json:"count"`
}

type DeviceStat struct {
	DeviceType string `json:"device_type"`
	Count      int64  `json:"count"`
}

type DailyStat struct {
	Date      string `json:"date"`
	PageViews int64  `json:"page_views"`
}

// OnlineVisitor associe un visiteur en ligne à la dernière page consultée
type OnlineVisitor struct {
	Visitor
	CurrentPage string `json:"current_page"`
}

// VisitorPage est une page de la liste paginée des visiteurs
type VisitorPage struct {
	Visitors []Visitor `json:"visitors"`
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
}

// ExpireStale passe hors ligne les visiteurs inactifs depuis activeWindow.
// Rejouer l'appel avec le même instant ne modifie rien.
func (as *AnalyticsService) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-as.activeWindow).UTC()
	result := as.db.WithContext(ctx).Model(&Visitor{}).
		Where("online = ? AND last_seen < ?", true, cutoff).
		Update("online", false)
	if result.Error != nil {
		return 0, fmt.Errorf("expire stale visitors: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		clmetrics.VisitorsExpired.Add(float64(result.RowsAffected))
		as.logger.Debug().Int64("count", result.RowsAffected).Msg("visiteurs passés hors ligne")
	}
	return result.RowsAffected, nil
}

// GetDashboard balaie les visiteurs périmés puis calcule les statistiques
func (as *AnalyticsService) GetDashboard(ctx context.Context) (*Dashboard, error) {
	now := as.now()
	if _, err := as.ExpireStale(ctx, now); err != nil {
		return nil, err
	}
	db := as.db.WithContext(ctx)
	d := &Dashboard{GeneratedAt: now}

	if err := db.Model(&Visitor{}).Count(&d.TotalVisitors).Error; err != nil {
		return nil, fmt.Errorf("count visitors: %w", err)
	}
	if err := db.Model(&Visitor{}).Where("online = ?", true).Count(&d.OnlineVisitors).Error; err != nil {
		return nil, fmt.Errorf("count online visitors: %w", err)
	}
	if err := db.Model(&Visitor{}).Where("last_seen >= ?", now.Add(-24*time.Hour).UTC()).Count(&d.ActiveToday).Error; err != nil {
		return nil, fmt.Errorf("count active visitors: %w", err)
	}
	if err := db.Model(&PageView{}).Count(&d.TotalPageViews).Error; err != nil {
		return nil, fmt.Errorf("count page views: %w", err)
	}

	daily, err := as.dailyStats(ctx, now)
	if err != nil {
		return nil, err
	}
	d.DailyStats = daily

	// à égalité, la page vue en premier passe devant
	d.TopPages = []PageStat{}
	err = db.Model(&PageView{}).
		Select("path, COUNT(*) as views, MIN(id) as first_id").
		Group("path").
		Order("views DESC, first_id ASC").
		Limit(as.topPages).
		Scan(&d.TopPages).Error
	if err != nil {
		return nil, fmt.Errorf("top pages: %w", err)
	}

	d.TopReferrers = []ReferrerStat{}
	err = db.Model(&PageView{}).
		Select("referrer, COUNT(*) as count, MIN(id) as first_id").
		Where("referrer <> ''").
		Group("referrer").
		Order("count DESC, first_id ASC").
		Limit(as.topPages).
		Scan(&d.TopReferrers).Error
	if err != nil {
		return nil, fmt.Errorf("top referrers: %w", err)
	}

	d.Devices = []DeviceStat{}
	err = db.Model(&Visitor{}).
		Select("device_type, COUNT(*) as count").
		Group("device_type").
		Order("count DESC, device_type ASC").
		Scan(&d.Devices).Error
	if err != nil {
		return nil, fmt.Errorf("device breakdown: %w", err)
	}

	online, err := as.onlineVisitors(ctx)
	if err != nil {
		return nil, err
	}
	d.Online = online

	return d, nil
}

// dailyStats compte les vues par jour calendaire, du plus ancien au plus
// récent, jours vides compris
func (as *AnalyticsService) dailyStats(ctx context.Context, now time.Time) ([]DailyStat, error) {
	local := now.In(as.loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, as.loc)

	stats := make([]DailyStat, 0, dailyWindow)
	for i := dailyWindow - 1; i >= 0; i-- {
		start := today.AddDate(0, 0, -i)
		end := start.AddDate(0, 0, 1)
		var count int64
		err := as.db.WithContext(ctx).Model(&PageView{}).
			Where("created_at >= ? AND created_at < ?", start.UTC(), end.UTC()).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("daily stats %s: %w", start.Format("2006-01-02"), err)
		}
		stats = append(stats, DailyStat{Date: start.Format("2006-01-02"), PageViews: count})
	}
	return stats, nil
}

func (as *AnalyticsService) onlineVisitors(ctx context.Context) ([]OnlineVisitor, error) {
	db := as.db.WithContext(ctx)

	var visitors []Visitor
	if err := db.Where("online = ?", true).Order("last_seen DESC").Find(&visitors).Error; err != nil {
		return nil, fmt.Errorf("online visitors: %w", err)
	}
	result := make([]OnlineVisitor, 0, len(visitors))
	if len(visitors) == 0 {
		return result, nil
	}

	ids := make([]uint, 0, len(visitors))
	for _, v := range visitors {
		ids = append(ids, v.ID)
	}

	var latest []PageView
	err := db.Where("id IN (?)",
		db.Model(&PageView{}).Select("MAX(id)").Where("visitor_id IN ?", ids).Group("visitor_id"),
	).Find(&latest).Error
	if err != nil {
		return nil, fmt.Errorf("current pages: %w", err)
	}
	current := make(map[uint]string, len(latest))
	for _, pv := range latest {
		current[pv.VisitorID] = pv.Path
	}

	for _, v := range visitors {
		result = append(result, OnlineVisitor{Visitor: v, CurrentPage: current[v.ID]})
	}
	return result, nil
}

// ListVisitors renvoie les visiteurs par dernière activité décroissante avec
// leurs vues de page les plus récentes
func (as *AnalyticsService) ListVisitors(ctx context.Context, page, limit int) (*VisitorPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	db := as.db.WithContext(ctx)

	out := &VisitorPage{Page: page, Limit: limit, Visitors: []Visitor{}}
	if err := db.Model(&Visitor{}).Count(&out.Total).Error; err != nil {
		return nil, fmt.Errorf("count visitors: %w", err)
	}

	err := db.
		Preload("PageViews", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("id DESC")
		}).
		Order("last_seen DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&out.Visitors).Error
	if err != nil {
		return nil, fmt.Errorf("list visitors: %w", err)
	}
	for i := range out.Visitors {
		if len(out.Visitors[i].PageViews) > recentPageViews {
			out.Visitors[i].PageViews = out.Visitors[i].PageViews[:recentPageViews]
		}
	}
	return out, nil
}

// GetRealtimeStats lit les compteurs du jour tenus par le tracker dans Redis
func (as *AnalyticsService) GetRealtimeStats(ctx context.Context) (map[string]any, error) {
	if as.redis == nil {
		return nil, errors.New("redis non configuré")
	}
	today := realtimeDay(as.now(), as.loc)

	pageViews, err := as.redis.HGet(ctx, realtimeViewsKey(today), "page_views").Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	uniqueVisitors, err := as.redis.SCard(ctx, realtimeVisitorsKey(today)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	return map[string]any{
		"date":                  today,
		"today_page_views":      pageViews,
		"today_unique_visitors": uniqueVisitors,
	}, nil
}

// Purge supprime les visiteurs absents depuis plus de retention jours et
// leurs vues de page
func (as *AnalyticsService) Purge(ctx context.Context, now time.Time) (int64, error) {
	if as.retention <= 0 {
		return 0, nil
	}
	cutoff := now.AddDate(0, 0, -as.retention).UTC()

	var deleted int64
	err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Model(&Visitor{}).Select("id").Where("last_seen < ?", cutoff)
		if err := tx.Where("visitor_id IN (?)", stale).Delete(&PageView{}).Error; err != nil {
			return err
		}
		result := tx.Where("last_seen < ?", cutoff).Delete(&Visitor{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge visitors: %w", err)
	}
	return deleted, nil
}

// StartRetention planifie la purge tous les jours à 2h. Sans rétention
// configurée rien n'est planifié.
func (as *AnalyticsService) StartRetention() error {
	if as.retention <= 0 || as.cron != nil {
		return nil
	}
	c := cron.New(cron.WithLocation(as.loc))
	_, err := c.AddFunc("0 2 * * *", func() {
		n, err := as.Purge(context.Background(), as.now())
		if err != nil {
			as.logger.Error().Err(err).Msg("purge analytics échouée")
			return
		}
		as.logger.Info().Int64("visitors", n).Msg("purge analytics terminée")
	})
	if err != nil {
		return fmt.Errorf("planification purge: %w", err)
	}
	c.Start()
	as.cron = c
	return nil
}

func (as *AnalyticsService) Stop() {
	if as.cron != nil {
		<-as.cron.Stop().Done()
	}
}
