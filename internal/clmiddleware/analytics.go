package clmiddleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"portfolio/internal/models/clanalytics"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	VisitorKeySession = "visitor_key"
	UnknownIP         = "unknown"
	trackTimeout      = 10 * time.Second
	trustedProxiesKey = "trustedProxies"
)

// DefaultExcludedPrefixes ne sont jamais suivis
var DefaultExcludedPrefixes = []string{"/admin", "/static", "/files", "/api/", "/metrics", "/favicon.ico"}

// HitRecorder enregistre une requête, implémenté par clanalytics.Tracker
type HitRecorder interface {
	Track(ctx context.Context, hit clanalytics.Hit) (clanalytics.Result, error)
}

type AnalyticsMiddleware struct {
	recorder HitRecorder
	excluded []string
}

func NewAnalyticsMiddleware(recorder HitRecorder, extraExcluded []string) *AnalyticsMiddleware {
	return &AnalyticsMiddleware{
		recorder: recorder,
		excluded: ExcludedPrefixes(extraExcluded),
	}
}

// ExcludedPrefixes ajoute les préfixes configurés à DefaultExcludedPrefixes
func ExcludedPrefixes(extra []string) []string {
	excluded := append([]string{}, DefaultExcludedPrefixes...)
	for _, p := range extra {
		if p = strings.TrimSpace(p); p != "" {
			excluded = append(excluded, p)
		}
	}
	return excluded
}

// IsExcluded indique si le chemin commence par l'un des préfixes
func IsExcluded(prefixes []string, path string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Excluded indique si le chemin échappe au suivi
func (am *AnalyticsMiddleware) Excluded(path string) bool {
	return IsExcluded(am.excluded, path)
}

// Middleware garantit une clé visiteur en session avant le handler puis
// enregistre la requête avec son code retour.
func (am *AnalyticsMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if am.Excluded(c.Request.URL.Path) || method == http.MethodOptions || method == http.MethodHead {
			c.Next()
			return
		}

		key, err := VisitorKey(c)
		if err != nil {
			log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("session visiteur indisponible")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Session indisponible"})
			return
		}

		c.Next()

		am.Record(c.Request.Context(), clanalytics.Hit{
			SessionKey: key,
			IP:         ClientIP(c),
			UserAgent:  c.Request.UserAgent(),
			Path:       c.Request.URL.Path,
			Method:     method,
			Referrer:   c.Request.Referer(),
			StatusCode: c.Writer.Status(),
		})
	}
}

// Record enregistre le hit une fois le handler terminé. Les erreurs sont
// journalisées, jamais remontées au client.
func (am *AnalyticsMiddleware) Record(ctx context.Context, hit clanalytics.Hit) {
	ctx, cancel := TrackContext(ctx)
	defer cancel()
	if _, err := am.recorder.Track(ctx, hit); err != nil {
		log.Warn().Err(err).Str("path", hit.Path).Msg("enregistrement visite échoué")
	}
}

// TrackContext détache le suivi de la requête: un client qui coupe la
// connexion n'interrompt pas la géolocalisation en cours.
func TrackContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), trackTimeout)
}

// VisitorKey lit la clé visiteur de la session, ou en crée une et sauvegarde
// la session avant que la réponse ne parte.
func VisitorKey(c *gin.Context) (string, error) {
	session := sessions.Default(c)
	if key, ok := session.Get(VisitorKeySession).(string); ok && key != "" {
		return key, nil
	}

	key := uuid.NewString()
	session.Set(VisitorKeySession, key)
	if err := session.Save(); err != nil {
		return "", err
	}
	return key, nil
}

// ClientIP prend la première entrée de X-Forwarded-For, puis X-Real-IP, puis
// l'adresse de connexion. Avec des proxies de confiance, gin fait ce choix
// lui-même. Toute valeur illisible donne UnknownIP.
func ClientIP(c *gin.Context) string {
	if c.GetBool(trustedProxiesKey) {
		return normalizeIP(c.ClientIP())
	}
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return normalizeIP(first)
	}
	if realIP := c.GetHeader("X-Real-IP"); realIP != "" {
		return normalizeIP(realIP)
	}
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		host = c.Request.RemoteAddr
	}
	return normalizeIP(host)
}

func normalizeIP(raw string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return UnknownIP
	}
	return addr.Unmap().String()
}
