package clredis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// NewClient ouvre la connexion Redis et vérifie qu'elle répond. Une adresse
// vide renvoie nil: les fonctions qui en dépendent se replient sur la mémoire.
func NewClient(ctx context.Context, addr string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connexion redis %s: %w", addr, err)
	}
	log.Info().Str("addr", addr).Int("db", db).Msg("Redis connecté")
	return client, nil
}

// CaptchaStore implémente base64Captcha.Store sur Redis
type CaptchaStore struct {
	client     *redis.Client
	expiration time.Duration
}

func NewCaptchaStore(client *redis.Client) *CaptchaStore {
	return &CaptchaStore{
		client:     client,
		expiration: 5 * time.Minute,
	}
}

func (r *CaptchaStore) Set(id string, value string) error {
	return r.client.Set(context.Background(), captchaKey(id), value, r.expiration).Err()
}

func (r *CaptchaStore) Get(id string, clear bool) string {
	ctx := context.Background()
	key := captchaKey(id)
	if clear {
		val, err := r.client.GetDel(ctx, key).Result()
		if err != nil && err != redis.Nil {
			log.Warn().Err(err).Msg("lecture captcha")
		}
		return val
	}
	val, _ := r.client.Get(ctx, key).Result()
	return val
}

func (r *CaptchaStore) Verify(id, answer string, clear bool) bool {
	v := r.Get(id, clear)
	return v != "" && v == answer
}

func captchaKey(id string) string {
	return "captcha:" + id
}
