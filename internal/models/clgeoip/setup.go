package clgeoip

import (
	"fmt"
	"portfolio/internal/models/clconfig"

	"github.com/redis/go-redis/v9"
)

// NewFromConfig assemble le fournisseur et le cache décrits par la
// configuration. Le cache Redis est préféré quand un client est fourni.
func NewFromConfig(cfg clconfig.GeoIPConfig, rdb *redis.Client) (*Resolver, func(), error) {
	var provider Provider
	closers := []func(){}

	switch cfg.Provider {
	case "ipapi", "":
		provider = NewIPAPIProvider(cfg.URL, cfg.Timeout)
	case "maxmind":
		mm, err := OpenMaxMind(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		provider = mm
		closers = append(closers, func() { mm.Close() })
	case "none":
	default:
		return nil, nil, fmt.Errorf("geoip.provider inconnu: %s", cfg.Provider)
	}

	var cache Cache
	if rdb != nil {
		cache = NewRedisCache(rdb)
	} else {
		mem, err := NewMemoryCache(10000)
		if err != nil {
			return nil, nil, err
		}
		cache = mem
		closers = append(closers, mem.Close)
	}

	resolver := NewResolver(provider, cache, Options{
		Timeout:    cfg.Timeout,
		CacheTTL:   cfg.CacheTTL,
		FailureTTL: cfg.FailureTTL,
	})

	return resolver, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}
