package handlers_status

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	Operational = "Operational"
	Degraded    = "Degraded"
	pingTimeout = 2 * time.Second
)

type Service struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type Status struct {
	Status   string    `json:"status"`
	Database string    `json:"database"`
	Latency  string    `json:"latency"`
	Version  string    `json:"version"`
	Commit   string    `json:"commit"`
	Uptime   string    `json:"uptime"`
	Services []Service `json:"services"`
}

type StatusHandler struct {
	db       *gorm.DB
	redis    *redis.Client
	version  string
	commit   string
	tracking bool
	started  time.Time
}

// NewStatusHandler redis peut être nil, le cache est alors signalé désactivé
func NewStatusHandler(db *gorm.DB, rdb *redis.Client, version, buildID string, tracking bool) *StatusHandler {
	commit := buildID
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return &StatusHandler{
		db:       db,
		redis:    rdb,
		version:  version,
		commit:   commit,
		tracking: tracking,
		started:  time.Now(),
	}
}

// Status mesure la latence de la base. Une base injoignable donne Degraded,
// la réponse reste 200 pour la page de statut publique.
func (sh *StatusHandler) Status(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	start := time.Now()
	database := Operational
	if err := sh.pingDatabase(ctx); err != nil {
		log.Warn().Err(err).Msg("base de données injoignable")
		database = Degraded
	}
	latency := time.Since(start)

	services := []Service{{Name: "Database", Status: database}}
	switch {
	case sh.redis == nil:
		services = append(services, Service{Name: "Cache", Status: "disabled"})
	case sh.redis.Ping(ctx).Err() != nil:
		services = append(services, Service{Name: "Cache", Status: Degraded})
	default:
		services = append(services, Service{Name: "Cache", Status: Operational})
	}
	tracking := "disabled"
	if sh.tracking {
		tracking = Operational
	}
	services = append(services, Service{Name: "Visitor Tracking", Status: tracking})

	c.JSON(http.StatusOK, Status{
		Status:   database,
		Database: database,
		Latency:  fmt.Sprintf("%.2fms", float64(latency.Microseconds())/1000),
		Version:  sh.version,
		Commit:   sh.commit,
		Uptime:   time.Since(sh.started).Truncate(time.Second).String(),
		Services: services,
	})
}

func (sh *StatusHandler) pingDatabase(ctx context.Context) error {
	sqlDB, err := sh.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
