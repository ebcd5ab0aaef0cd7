package clmetrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_http_requests_total",
		Help: "HTTP requests by method and status code",
	}, []string{"method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portfolio_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	TrackerHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_tracker_hits_total",
		Help: "Tracked page views by visitor outcome (created, updated, debounced)",
	}, []string{"result"})

	GeoIPLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_geoip_lookups_total",
		Help: "GeoIP resolutions by outcome (local, hit, miss, error, cached_failure)",
	}, []string{"outcome"})

	VisitorsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portfolio_visitors_expired_total",
		Help: "Visitors flipped offline by the dashboard sweep",
	})
)

// Middleware compte les requêtes HTTP traitées par gin
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		method := c.Request.Method
		HTTPRequests.WithLabelValues(method, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
}

// StartServer expose /metrics sur une adresse séparée du site
func StartServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	return srv
}
