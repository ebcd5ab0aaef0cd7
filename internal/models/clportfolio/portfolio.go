package clportfolio

import (
	"context"
	"fmt"
	"portfolio/internal/clredis"
	"portfolio/internal/gormzerologger"
	"portfolio/internal/models/clanalytics"
	"portfolio/internal/models/clcaptchas"
	"portfolio/internal/models/clconfig"
	"portfolio/internal/models/clcontact"
	"portfolio/internal/models/clgeoip"
	"portfolio/internal/models/clposts"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Portfolio regroupe les dépendances partagées par les handlers
type Portfolio struct {
	Db            *gorm.DB
	Redis         *redis.Client
	Configuration *clconfig.Config
	Captcha       *clcaptchas.Captchas
	Geo           *clgeoip.Resolver
	Tracker       *clanalytics.Tracker
	Analytics     *clanalytics.AnalyticsService
	Version       string

	closeGeo func()
}

// Init ouvre la base, Redis et construit le suivi des visiteurs
func Init(ctx context.Context, config *clconfig.Config, version string) (*Portfolio, error) {
	p := &Portfolio{
		Configuration: config,
		Version:       version,
	}

	db, err := OpenDatabase(config.Database, gormzerologger.LevelFor(config.Logger.Level, config.Production))
	if err != nil {
		return nil, err
	}
	p.Db = db

	// Redis est optionnel: sans adresse, caches et captchas restent en mémoire
	p.Redis, err = clredis.NewClient(ctx, config.Database.Redis.Addr, config.Database.Redis.Db)
	if err != nil {
		return nil, err
	}

	p.Captcha = clcaptchas.New(p.Redis)

	if err := p.initAnalytics(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// OpenDatabase ouvre sqlite ou mysql et migre les tables
func OpenDatabase(cfg clconfig.DatabaseConfig, logLevel string) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: gormzerologger.New(logLevel),
		// gorm.ErrDuplicatedKey sur les créations concurrentes d'un visiteur
		TranslateError: true,
	}

	var db *gorm.DB
	var err error
	switch cfg.Db {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.Path), gormConfig)
	case "mysql":
		db, err = gorm.Open(mysql.Open(cfg.Dsn), gormConfig)
	default:
		err = fmt.Errorf("le type de database doit etre sqlite ou mysql")
	}
	if err != nil {
		return nil, fmt.Errorf("erreur connexion base de données: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate crée ou met à jour toutes les tables de l'application
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&clanalytics.Visitor{},
		&clanalytics.PageView{},
		&clposts.Post{},
		&clcontact.Message{},
	)
	if err != nil {
		return fmt.Errorf("erreur migration: %w", err)
	}
	return nil
}

func (p *Portfolio) initAnalytics() error {
	cfg := p.Configuration.Analytics
	loc := cfg.Location()

	var geo clanalytics.GeoResolver
	if cfg.Enabled {
		resolver, closer, err := clgeoip.NewFromConfig(p.Configuration.GeoIP, p.Redis)
		if err != nil {
			return err
		}
		p.Geo = resolver
		p.closeGeo = closer
		geo = resolver
	}

	p.Tracker = clanalytics.NewTracker(p.Db, geo, p.Redis, clanalytics.TrackerOptions{
		MinUpdate: cfg.MinUpdate,
		Location:  loc,
	})
	p.Analytics = clanalytics.NewAnalyticsService(p.Db, p.Redis, clanalytics.ServiceOptions{
		ActiveWindow:  cfg.ActiveWindow,
		TopPages:      cfg.TopPages,
		RetentionDays: cfg.RetentionDays,
		Location:      loc,
	})

	if cfg.Enabled {
		if err := p.Analytics.StartRetention(); err != nil {
			return err
		}
	}
	return nil
}

// Close libère les ressources dans l'ordre inverse de leur ouverture
func (p *Portfolio) Close() {
	if p.Analytics != nil {
		p.Analytics.Stop()
	}
	if p.closeGeo != nil {
		p.closeGeo()
	}
	if p.Redis != nil {
		if err := p.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("fermeture redis")
		}
	}
	if p.Db != nil {
		if sqlDB, err := p.Db.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
