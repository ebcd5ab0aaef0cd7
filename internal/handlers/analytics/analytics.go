package handlers_analytics

import (
	"context"
	"net/http"
	"portfolio/internal/clmiddleware"
	"portfolio/internal/models/clanalytics"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Recorder enregistre un hit; implémenté par clanalytics.Tracker
type Recorder interface {
	Track(ctx context.Context, hit clanalytics.Hit) (clanalytics.Result, error)
}

// Reader expose les agrégats du tableau de bord
type Reader interface {
	GetDashboard(ctx context.Context) (*clanalytics.Dashboard, error)
	ListVisitors(ctx context.Context, page, limit int) (*clanalytics.VisitorPage, error)
	GetRealtimeStats(ctx context.Context) (map[string]any, error)
}

type AnalyticsHandler struct {
	service  Reader
	tracker  Recorder
	excluded []string
}

// NewAnalyticsHandler applique aux chemins reçus les mêmes exclusions que le
// middleware de suivi.
func NewAnalyticsHandler(service Reader, tracker Recorder, extraExcluded []string) *AnalyticsHandler {
	return &AnalyticsHandler{
		service:  service,
		tracker:  tracker,
		excluded: clmiddleware.ExcludedPrefixes(extraExcluded),
	}
}

type TrackRequest struct {
	Path      string `json:"path" binding:"required"`
	Referrer  string `json:"referrer"`
	UserAgent string `json:"user_agent"`
}

// Track enregistre une vue envoyée par le client (pages rendues côté navigateur)
func (ah *AnalyticsHandler) Track(c *gin.Context) {
	var req TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides"})
		return
	}

	// l'administration et les ressources ne comptent pas comme des visites
	if clmiddleware.IsExcluded(ah.excluded, req.Path) {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	key, err := clmiddleware.VisitorKey(c)
	if err != nil {
		log.Error().Err(err).Msg("session visiteur indisponible")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur session"})
		return
	}

	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = c.Request.UserAgent()
	}

	ctx, cancel := clmiddleware.TrackContext(c.Request.Context())
	defer cancel()

	res, err := ah.tracker.Track(ctx, clanalytics.Hit{
		SessionKey: key,
		IP:         clmiddleware.ClientIP(c),
		UserAgent:  userAgent,
		Path:       req.Path,
		Method:     http.MethodGet,
		Referrer:   req.Referrer,
	})
	if err != nil {
		// le suivi ne doit jamais casser la navigation
		log.Warn().Err(err).Str("path", req.Path).Msg("suivi échoué")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if res.Debounced {
		c.JSON(http.StatusOK, gin.H{"status": "rate-limited"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "tracked"})
}

// Dashboard retourne les statistiques agrégées après expiration des visiteurs inactifs
func (ah *AnalyticsHandler) Dashboard(c *gin.Context) {
	stats, err := ah.service.GetDashboard(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("tableau de bord indisponible")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve analytics",
		})
		return
	}

	c.Header("X-Render-Time", clmiddleware.GetRenderTime(c))
	c.JSON(http.StatusOK, stats)
}

// Visitors retourne la liste paginée des visiteurs
func (ah *AnalyticsHandler) Visitors(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}

	visitors, err := ah.service.ListVisitors(c.Request.Context(), page, limit)
	if err != nil {
		log.Error().Err(err).Msg("liste des visiteurs indisponible")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve visitors",
		})
		return
	}

	c.JSON(http.StatusOK, visitors)
}

// Realtime retourne les statistiques en temps réel
func (ah *AnalyticsHandler) Realtime(c *gin.Context) {
	stats, err := ah.service.GetRealtimeStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to retrieve realtime stats",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}
