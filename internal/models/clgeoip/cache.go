package clgeoip

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// MemoryCache garde les résolutions en mémoire du processus
type MemoryCache struct {
	cache *ristretto.Cache[string, Entry]
}

func NewMemoryCache(maxEntries int64) (*MemoryCache, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, Entry]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryCache{cache: cache}, nil
}

func (m *MemoryCache) Get(_ context.Context, key string) (Entry, bool) {
	return m.cache.Get(key)
}

func (m *MemoryCache) Set(_ context.Context, key string, entry Entry, ttl time.Duration) {
	m.cache.SetWithTTL(key, entry, 1, ttl)
	m.cache.Wait()
}

func (m *MemoryCache) Close() {
	m.cache.Close()
}

// RedisCache partage les résolutions entre instances
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string) (Entry, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("geoip cache read failed")
		}
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("geoip cache entry unreadable")
		return Entry{}, false
	}
	return entry, true
}

func (r *RedisCache) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("geoip cache write failed")
	}
}
