package clgeoip

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"portfolio/internal/clmetrics"
	"portfolio/internal/models/cllog"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrInvalidIP     = errors.New("geoip: invalid ip address")
	ErrRateLimited   = errors.New("geoip: provider rate limited")
	ErrLookupFailed  = errors.New("geoip: lookup failed")
	ErrCachedFailure = errors.New("geoip: recent lookup failure cached")
	ErrNoProvider    = errors.New("geoip: no provider configured")
)

// Location est la géolocalisation approximative d'une adresse IP
type Location struct {
	City    string  `json:"city,omitempty"`
	Region  string  `json:"region,omitempty"`
	Country string  `json:"country,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
	Org     string  `json:"org,omitempty"`
}

func (l Location) IsEmpty() bool {
	return l == Location{}
}

// LocalLocation est renvoyée pour les adresses privées et de bouclage
var LocalLocation = Location{
	City:    "Localhost",
	Country: "Local Dev",
	Lat:     23.5937,
	Lng:     78.9629,
}

// Entry est la valeur stockée dans le cache; Failed marque un échec récent
type Entry struct {
	Location Location `json:"location"`
	Failed   bool     `json:"failed,omitempty"`
}

type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration)
}

type Provider interface {
	Lookup(ctx context.Context, ip string) (Location, error)
}

type Options struct {
	Timeout    time.Duration
	CacheTTL   time.Duration
	FailureTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 3 * time.Second
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 24 * time.Hour
	}
	if o.FailureTTL <= 0 {
		o.FailureTTL = 5 * time.Minute
	}
	return o
}

type Resolver struct {
	provider Provider
	cache    Cache
	opts     Options
	logger   zerolog.Logger
}

func NewResolver(provider Provider, cache Cache, opts Options) *Resolver {
	return &Resolver{
		provider: provider,
		cache:    cache,
		opts:     opts.withDefaults(),
		logger:   cllog.Component("geoip"),
	}
}

// IsLocal indique si l'adresse n'a pas de position publique
func IsLocal(ip string) bool {
	if ip == "localhost" {
		return true
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified()
}

// Resolve géolocalise ip. Les adresses locales ne déclenchent ni cache ni
// appel réseau; les succès sont gardés CacheTTL, les échecs FailureTTL.
func (r *Resolver) Resolve(ctx context.Context, ip string) (Location, error) {
	ip = strings.TrimSpace(ip)
	if IsLocal(ip) {
		clmetrics.GeoIPLookups.WithLabelValues("local").Inc()
		return LocalLocation, nil
	}
	if _, err := netip.ParseAddr(ip); err != nil {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}

	key := "geoip:" + ip
	if r.cache != nil {
		if entry, ok := r.cache.Get(ctx, key); ok {
			if entry.Failed {
				clmetrics.GeoIPLookups.WithLabelValues("cached_failure").Inc()
				return Location{}, ErrCachedFailure
			}
			clmetrics.GeoIPLookups.WithLabelValues("hit").Inc()
			return entry.Location, nil
		}
	}

	if r.provider == nil {
		return Location{}, ErrNoProvider
	}

	clmetrics.GeoIPLookups.WithLabelValues("miss").Inc()
	lookupCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	loc, err := r.provider.Lookup(lookupCtx, ip)
	if err != nil {
		clmetrics.GeoIPLookups.WithLabelValues("error").Inc()
		r.logger.Warn().Err(err).Str("ip", ip).Msg("geoip lookup failed")
		if r.cache != nil {
			r.cache.Set(ctx, key, Entry{Failed: true}, r.opts.FailureTTL)
		}
		return Location{}, err
	}

	if r.cache != nil {
		r.cache.Set(ctx, key, Entry{Location: loc}, r.opts.CacheTTL)
	}
	return loc, nil
}
