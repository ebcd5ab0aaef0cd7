package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"portfolio/internal/clmetrics"
	"portfolio/internal/clmiddleware"
	handlers_admin "portfolio/internal/handlers/admin"
	handlers_analytics "portfolio/internal/handlers/analytics"
	handlers_blog "portfolio/internal/handlers/blog"
	handlers_rss "portfolio/internal/handlers/rss"
	handlers_static "portfolio/internal/handlers/static"
	handlers_status "portfolio/internal/handlers/status"
	"portfolio/internal/models/clconfig"
	"portfolio/internal/models/clcontact"
	"portfolio/internal/models/cllog"
	"portfolio/internal/models/clmarkdown"
	"portfolio/internal/models/clportfolio"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const VERSION string = "1.0.0"

var BuildID string

func parseCommandLineArgs() (configFile string, shouldCreateExample bool, versionDisplay bool, err error) {
	var config = flag.String("config", "", "Fichier de configuration YAML")
	var example = flag.Bool("example", false, "Créer un fichier de configuration exemple")
	var version = flag.Bool("version", false, "version du produit")
	flag.Parse()

	if *version {
		return "", false, true, nil
	}

	if *example {
		return *config, true, false, nil
	}

	if *config == "" {
		return "", false, false, fmt.Errorf("fichier de configuration requis")
	}

	return *config, false, false, nil
}

func initConfiguration() *clconfig.Config {
	configFile, shouldCreateExample, versionDisplay, err := parseCommandLineArgs()
	if err != nil {
		fmt.Println("Usage:")
		fmt.Println("  portfolio -config portfolio.yaml")
		fmt.Println("  portfolio -example  (pour créer un fichier exemple)")
		fmt.Println("  portfolio -version  (affiche la version)")
		os.Exit(1)
	}

	if versionDisplay {
		fmt.Println(VERSION)
		os.Exit(0)
	}

	clconfig.CreateExample(shouldCreateExample, configFile)

	// Load and validate configuration
	conf, err := clconfig.LoadAndValidate(configFile)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	return conf
}

func newServer(conf *clconfig.Config) *gin.Engine {
	if conf.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	if conf.TrustedProxies != nil {
		if err := r.SetTrustedProxies(conf.TrustedProxies); err != nil {
			log.Warn().Err(err).Msg("trustedproxies invalide")
		}
	}
	if conf.TrustedPlatform != "" {
		switch conf.TrustedPlatform {
		case "cloudflare":
			r.TrustedPlatform = gin.PlatformCloudflare
		case "google":
			r.TrustedPlatform = gin.PlatformGoogleAppEngine
		case "flyio":
			r.TrustedPlatform = gin.PlatformFlyIO
		default:
			r.TrustedPlatform = conf.TrustedPlatform
		}
	}

	return r
}

// setRoutes installe le suivi des visiteurs puis branche les handlers. Le
// suivi doit passer après les sessions, donc après InitMiddleware.
func setRoutes(r *gin.Engine, p *clportfolio.Portfolio) {
	conf := p.Configuration

	if conf.Analytics.Enabled {
		am := clmiddleware.NewAnalyticsMiddleware(p.Tracker, conf.Analytics.ExcludePrefix)
		r.Use(am.Middleware())
	}

	// middleware rate limiter
	loginLimiter := clmiddleware.NewLimiter(5, time.Minute)
	contactLimiter := clmiddleware.NewLimiter(5, time.Minute)

	analytics := handlers_analytics.NewAnalyticsHandler(p.Analytics, p.Tracker, conf.Analytics.ExcludePrefix)
	admin := handlers_admin.NewAdminHandler(conf.User, filepath.Join(conf.StaticPath, "uploads"), "/static/uploads")
	blog := handlers_blog.NewBlogHandler(p.Db)
	rss := handlers_rss.NewRSSHandler(p.Db, conf.Site, conf.StaticPath, VERSION)
	contact := clcontact.NewHandler(p.Db, p.Captcha)
	status := handlers_status.NewStatusHandler(p.Db, p.Redis, VERSION, BuildID, conf.Analytics.Enabled)
	files := handlers_static.NewMinified(os.DirFS(filepath.Join(conf.StaticPath, "files")), "/files")

	//default
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Page non trouvée"})
	})

	// Route statiques
	r.Static("/static/", conf.StaticPath)
	r.GET("/files/*filepath", files.Serve)

	// Routes d'authentification
	r.POST("/admin/login", loginLimiter, admin.Login)
	r.POST("/admin/logout", admin.Logout)

	// API publiques
	api := r.Group("/api")
	{
		if conf.Analytics.Enabled {
			api.POST("/analytics/track", analytics.Track)
		}
		api.GET("/status", status.Status)
		api.GET("/blog", blog.List)
		api.GET("/blog/:slug", blog.Get)
		api.GET("/contact/captcha", p.Captcha.CaptchaHandler(conf.Production))
		api.POST("/contact", contactLimiter, contact.Submit)
	}

	// API d'administration protégées
	stats := r.Group("/api/analytics")
	stats.Use(clmiddleware.AuthRequired())
	{
		stats.GET("/dashboard", analytics.Dashboard)
		stats.GET("/visitors", analytics.Visitors)
		stats.GET("/realtime", analytics.Realtime)
	}

	adminAPI := r.Group("/admin/api")
	adminAPI.Use(clmiddleware.AuthRequired())
	{
		adminAPI.POST("/upload", admin.Upload)

		adminAPI.GET("/blog", blog.AdminList)
		adminAPI.GET("/blog/:slug", blog.AdminGet)
		adminAPI.POST("/blog", blog.Create)
		adminAPI.PUT("/blog/:slug", blog.Update)
		adminAPI.DELETE("/blog/:slug", blog.Delete)

		adminAPI.GET("/contact", contact.List)
		adminAPI.PUT("/contact/:id/read", contact.MarkRead)
		adminAPI.DELETE("/contact/:id", contact.Delete)
		adminAPI.POST("/contact/bulk-delete", contact.BulkDelete)
	}

	// Flux RSS
	r.GET("/rss.xml", rss.Feed)
	r.GET("/rss.xml/:tag", rss.Feed)
}

// startServer bloque jusqu'au signal d'arrêt puis laisse 10s aux requêtes en cours
func startServer(ctx context.Context, r *gin.Engine, conf *clconfig.Config) error {
	var metrics *http.Server
	if conf.Listen.Metrics != "" {
		log.Info().Msgf("Metrics disponible sur http://%s/metrics", conf.Listen.Metrics)
		metrics = clmetrics.StartServer(conf.Listen.Metrics)
	}

	srv := &http.Server{
		Addr:              conf.Listen.Website,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("Website démarré sur http://%s", conf.Listen.Website)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("Arrêt demandé")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if metrics != nil {
		metrics.Shutdown(shutdownCtx)
	}
	return srv.Shutdown(shutdownCtx)
}

func main() {
	if BuildID == "" {
		BuildID = VERSION
	}

	conf := initConfiguration()
	cllog.InitLogger(conf.Logger, conf.Production)
	clconfig.DisplayConfiguration(conf, BuildID)
	clmarkdown.InitMarkdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := clportfolio.Init(ctx, conf, VERSION)
	if err != nil {
		log.Fatal().Err(err).Msg("Erreur initialisation")
	}
	defer p.Close()

	r := newServer(conf)
	clmiddleware.InitMiddleware(r, conf)
	setRoutes(r, p)

	if err := startServer(ctx, r, conf); err != nil {
		log.Error().Err(err).Msg("Erreur serveur")
	}
}
