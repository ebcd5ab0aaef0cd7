package clanalytics

import (
	"context"
	"errors"
	"fmt"
	"portfolio/internal/clmetrics"
	"portfolio/internal/models/clgeoip"
	"portfolio/internal/models/cllog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// GeoResolver est la partie du résolveur GeoIP utilisée par le tracker
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) (clgeoip.Location, error)
}

// Hit décrit une requête à enregistrer
type Hit struct {
	SessionKey string
	IP         string
	UserAgent  string
	Path       string
	Method     string
	Referrer   string
	StatusCode int
}

// Result décrit ce que Track a fait du visiteur
type Result struct {
	Visitor   Visitor
	Created   bool
	Updated   bool
	Debounced bool
}

type TrackerOptions struct {
	MinUpdate time.Duration
	Location  *time.Location
	Now       func() time.Time
}

type Tracker struct {
	db        *gorm.DB
	geo       GeoResolver
	redis     *redis.Client
	minUpdate time.Duration
	loc       *time.Location
	now       func() time.Time
	logger    zerolog.Logger
}

// NewTracker construit le tracker. geo et rdb peuvent être nil.
func NewTracker(db *gorm.DB, geo GeoResolver, rdb *redis.Client, opts TrackerOptions) *Tracker {
	if opts.MinUpdate <= 0 {
		opts.MinUpdate = DefaultMinUpdate
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		db:        db,
		geo:       geo,
		redis:     rdb,
		minUpdate: opts.MinUpdate,
		loc:       opts.Location,
		now:       opts.Now,
		logger:    cllog.Component("tracker"),
	}
}

// Track crée ou met à jour le visiteur de hit.SessionKey puis journalise la
// vue de page. Au plus une écriture visiteur et une écriture page view.
func (t *Tracker) Track(ctx context.Context, hit Hit) (Result, error) {
	if hit.SessionKey == "" {
		return Result{}, errors.New("tracker: empty session key")
	}
	if hit.Method == "" {
		hit.Method = "GET"
	}
	// stockage en UTC: les comparaisons sqlite portent sur le texte
	now := t.now().UTC()
	db := t.db.WithContext(ctx)

	var res Result
	var visitor Visitor
	err := db.Where("session_key = ?", hit.SessionKey).Take(&visitor).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		visitor, err = t.create(ctx, hit, now)
		switch {
		case errors.Is(err, gorm.ErrDuplicatedKey):
			// une requête concurrente de la même session a créé le visiteur
			if err := db.Where("session_key = ?", hit.SessionKey).Take(&visitor).Error; err != nil {
				return Result{}, fmt.Errorf("lookup visitor: %w", err)
			}
			res.Debounced = true
		case err != nil:
			return Result{}, err
		default:
			res.Created = true
		}
	case err != nil:
		return Result{}, fmt.Errorf("lookup visitor: %w", err)
	case ShouldUpdate(visitor.LastSeen, now, t.minUpdate):
		if err := t.refresh(ctx, &visitor, hit, now); err != nil {
			return Result{}, err
		}
		res.Updated = true
	default:
		res.Debounced = true
	}
	res.Visitor = visitor

	pageView := PageView{
		VisitorID:  visitor.ID,
		Path:       truncate(hit.Path, 255),
		Method:     hit.Method,
		Referrer:   truncate(hit.Referrer, 500),
		StatusCode: hit.StatusCode,
		CreatedAt:  now,
	}
	if err := db.Create(&pageView).Error; err != nil {
		return res, fmt.Errorf("record page view: %w", err)
	}

	t.bumpRealtime(ctx, visitor.SessionKey, now)
	switch {
	case res.Created:
		clmetrics.TrackerHits.WithLabelValues("created").Inc()
	case res.Updated:
		clmetrics.TrackerHits.WithLabelValues("updated").Inc()
	default:
		clmetrics.TrackerHits.WithLabelValues("debounced").Inc()
	}
	return res, nil
}

func (t *Tracker) create(ctx context.Context, hit Hit, now time.Time) (Visitor, error) {
	visitor := Visitor{
		SessionKey: hit.SessionKey,
		RemoteIP:   hit.IP,
		UserAgent:  hit.UserAgent,
		DeviceType: DeviceType(hit.UserAgent),
		Location:   t.locate(ctx, hit.IP),
		FirstSeen:  now,
		LastSeen:   now,
		Online:     true,
		Visits:     1,
	}
	if err := t.db.WithContext(ctx).Create(&visitor).Error; err != nil {
		return Visitor{}, fmt.Errorf("create visitor: %w", err)
	}
	t.logger.Debug().Uint("visitor", visitor.ID).Str("ip", hit.IP).Msg("nouveau visiteur")
	return visitor, nil
}

func (t *Tracker) refresh(ctx context.Context, visitor *Visitor, hit Hit, now time.Time) error {
	columns := []string{"last_seen", "online"}

	if IsNewDay(visitor.LastSeen, now, t.loc) {
		visitor.Visits++
		columns = append(columns, "visits")
	}
	if hit.IP != "" && visitor.RemoteIP != hit.IP {
		visitor.RemoteIP = hit.IP
		columns = append(columns, "remote_ip")
	}
	if !visitor.HasLocation() {
		if loc := t.locate(ctx, visitor.RemoteIP); loc != nil {
			visitor.Location = loc
			columns = append(columns, "location")
		}
	}
	visitor.LastSeen = now
	visitor.Online = true

	// Select limite l'UPDATE aux colonnes modifiées, serializer json compris
	if err := t.db.WithContext(ctx).Model(visitor).Select(columns).Updates(visitor).Error; err != nil {
		return fmt.Errorf("update visitor %d: %w", visitor.ID, err)
	}
	return nil
}

// locate ne renvoie jamais d'erreur: un échec GeoIP laisse la position vide
func (t *Tracker) locate(ctx context.Context, ip string) *clgeoip.Location {
	if t.geo == nil || ip == "" {
		return nil
	}
	loc, err := t.geo.Resolve(ctx, ip)
	if err != nil || loc.IsEmpty() {
		if err != nil && !errors.Is(err, clgeoip.ErrCachedFailure) {
			t.logger.Debug().Err(err).Str("ip", ip).Msg("géolocalisation indisponible")
		}
		return nil
	}
	return &loc
}

// bumpRealtime alimente les compteurs du jour dans Redis, sans jamais échouer
func (t *Tracker) bumpRealtime(ctx context.Context, sessionKey string, now time.Time) {
	if t.redis == nil {
		return
	}
	day := realtimeDay(now, t.loc)
	pipe := t.redis.Pipeline()
	pipe.HIncrBy(ctx, realtimeViewsKey(day), "page_views", 1)
	pipe.Expire(ctx, realtimeViewsKey(day), realtimeTTL)
	pipe.SAdd(ctx, realtimeVisitorsKey(day), sessionKey)
	pipe.Expire(ctx, realtimeVisitorsKey(day), realtimeTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn().Err(err).Msg("compteurs temps réel indisponibles")
	}
}

// les compteurs d'un jour sont gardés un mois
const realtimeTTL = 31 * 24 * time.Hour

// realtimeDay est le jour calendaire des compteurs, dans le fuseau configuré
func realtimeDay(now time.Time, loc *time.Location) string {
	return now.In(loc).Format("2006-01-02")
}

func realtimeViewsKey(day string) string {
	return "analytics:daily:" + day
}

func realtimeVisitorsKey(day string) string {
	return "analytics:visitors:" + day
}

// truncate garde au plus n caractères, sans jamais couper un caractère
// multi-octets. Les octets invalides sont retirés.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
