package clgeoip

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"
)

// IPAPIProvider interroge une API HTTP au format ipapi.co (GET <base>/<ip>/json/)
type IPAPIProvider struct {
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[Location]
}

type ipapiResponse struct {
	City        string  `json:"city"`
	Region      string  `json:"region"`
	CountryName string  `json:"country_name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Org         string  `json:"org"`
	Error       bool    `json:"error"`
	Reason      string  `json:"reason"`
}

// NewIPAPIProvider construit le client HTTP. Le disjoncteur s'ouvre après
// 5 échecs consécutifs et retente au bout d'une minute.
func NewIPAPIProvider(baseURL string, timeout time.Duration) *IPAPIProvider {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[Location](gobreaker.Settings{
		Name:        "geoip-ipapi",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("geoip circuit breaker state change")
		},
	})

	return &IPAPIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		cb:      cb,
	}
}

func (p *IPAPIProvider) Lookup(ctx context.Context, ip string) (Location, error) {
	return p.cb.Execute(func() (Location, error) {
		return p.fetch(ctx, ip)
	})
}

func (p *IPAPIProvider) fetch(ctx context.Context, ip string) (Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/json/", p.baseURL, ip), nil)
	if err != nil {
		return Location{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Location{}, ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Location{}, fmt.Errorf("%w: status %d", ErrLookupFailed, resp.StatusCode)
	}

	var payload ipapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Location{}, fmt.Errorf("%w: malformed payload: %v", ErrLookupFailed, err)
	}
	if payload.Error {
		if strings.EqualFold(payload.Reason, "RateLimited") {
			return Location{}, ErrRateLimited
		}
		return Location{}, fmt.Errorf("%w: %s", ErrLookupFailed, payload.Reason)
	}

	return Location{
		City:    payload.City,
		Region:  payload.Region,
		Country: payload.CountryName,
		Lat:     payload.Latitude,
		Lng:     payload.Longitude,
		Org:     payload.Org,
	}, nil
}
