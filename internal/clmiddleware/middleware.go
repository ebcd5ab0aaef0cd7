package clmiddleware

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"portfolio/internal/clmetrics"
	"portfolio/internal/models/clconfig"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// InitMiddleware installe la chaîne commune. Le suivi des visiteurs est
// ajouté à part car il dépend des sessions.
func InitMiddleware(r *gin.Engine, cfg *clconfig.Config) {
	// adresse client résolue par gin derrière un proxy de confiance
	if cfg.TrustedProxies != nil || cfg.TrustedPlatform != "" {
		r.Use(TrustProxies())
	}

	// logger
	r.Use(Logger())
	r.Use(Recovery())

	// prometheus
	r.Use(clmetrics.Middleware())

	// use Compression, with gzip
	r.Use(gzip.Gzip(gzip.BestSpeed))

	// Configuration des sessions
	r.Use(NewSession(cfg.Session, cfg.Production))

	// Calculate time elapsed
	r.Use(RenderTime())

	// CORS
	r.Use(CORS(cfg.CORS.Origins))
}

// CORS sans origine configurée répond "*" sans cookie. Avec des origines,
// seule une origine connue est renvoyée, avec les credentials, pour que le
// navigateur transmette la session du visiteur.
func CORS(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed[o] = true
		}
	}

	return func(c *gin.Context) {
		if len(allowed) == 0 {
			c.Header("Access-Control-Allow-Origin", "*")
		} else {
			c.Header("Vary", "Origin")
			if origin := c.GetHeader("Origin"); allowed[origin] {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// TrustProxies signale à ClientIP que l'adresse doit venir de gin, qui ne
// lit X-Forwarded-For que depuis les proxies de confiance.
func TrustProxies() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(trustedProxiesKey, true)
		c.Next()
	}
}

// NewLimiter limite le nombre de requêtes par IP sur la période donnée
func NewLimiter(limit int64, period time.Duration) gin.HandlerFunc {
	rate := limiter.Rate{
		Period: period,
		Limit:  limit,
	}
	mstore := memory.NewStore()
	instance := limiter.New(mstore, rate)
	return ginlimiter.NewMiddleware(instance)
}

// NewSession crée le store cookie. Sans secret configuré une clé aléatoire
// est générée et les sessions ne survivent pas au redémarrage.
func NewSession(cfg clconfig.SessionConfig, production bool) gin.HandlerFunc {
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		log.Warn().Msg("session.secret absent, clé aléatoire utilisée")
		secret = generateSecretKey()
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 86400 * 365
	}
	name := cfg.Name
	if name == "" {
		name = "portfolio"
	}

	sameSite, secure := sameSiteMode(cfg.SameSite, production)

	store := cookie.NewStore(secret)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	})
	return sessions.Sessions(name, store)
}

// sameSiteMode traduit session.samesite. Les navigateurs refusent
// SameSite=None sans Secure.
func sameSiteMode(value string, production bool) (http.SameSite, bool) {
	switch strings.ToLower(value) {
	case "none":
		return http.SameSiteNoneMode, true
	case "strict":
		return http.SameSiteStrictMode, production
	default:
		return http.SameSiteLaxMode, production
	}
}

// AuthRequired protège les routes d'administration
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if session.Get("user_id") == nil {
			if wantsJSON(c) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Non autorisé"})
				return
			}
			c.Redirect(http.StatusFound, "/")
			c.Abort()
			return
		}
		c.Next()
	}
}

func wantsJSON(c *gin.Context) bool {
	return strings.HasPrefix(c.Request.URL.Path, "/api/") ||
		strings.HasPrefix(c.Request.URL.Path, "/admin/api/") ||
		strings.Contains(c.GetHeader("Accept"), "application/json") ||
		c.ContentType() == "application/json"
}

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		// Traiter la requête
		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		var logEvent *zerolog.Event
		switch {
		case statusCode == 404:
			logEvent = log.Debug()
		case statusCode >= 500:
			logEvent = log.Error()
		case statusCode >= 400:
			logEvent = log.Warn()
		default:
			logEvent = log.Info()
		}

		logEvent.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("ip", ClientIP(c)).
			Str("user_agent", c.Request.UserAgent()).
			Int("body_size", c.Writer.Size()).
			Msg("HTTP Request")

		for _, err := range c.Errors {
			log.Error().
				Err(err.Err).
				Str("type", strconv.FormatUint(uint64(err.Type), 10)).
				Msg("Request error")
		}
	}
}

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("path", c.Request.URL.Path).
					Str("method", c.Request.Method).
					Msg("Panic recovered")

				c.AbortWithStatus(500)
			}
		}()
		c.Next()
	}
}

func RenderTime() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("requestStart", time.Now())
		c.Next()
	}
}

// GetRenderTime renvoie la durée écoulée depuis le début de la requête
func GetRenderTime(c *gin.Context) string {
	start, ok := c.Get("requestStart")
	if !ok {
		return ""
	}
	return formatDuration(time.Since(start.(time.Time)))
}

// Générer une clé secrète aléatoire
func generateSecretKey() []byte {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	if err != nil {
		log.Fatal().Err(err).Msg("Erreur génération clé secrète")
	}
	return key
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
