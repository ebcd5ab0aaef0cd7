package clconfig

import (
	"fmt"
	"log/syslog"
	"os"
	"strings"
	"time"

	"github.com/andskur/argon2-hashing"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	TrustedProxies  []string        `yaml:"trustedproxies"`
	TrustedPlatform string          `yaml:"trustedplatform"`
	Database        DatabaseConfig  `yaml:"database"`
	StaticPath      string          `yaml:"staticpath"`
	User            UserConfig      `yaml:"user"`
	Production      bool            `yaml:"production"`
	Listen          ListenConfig    `yaml:"listen"`
	Logger          LoggerConfig    `yaml:"logger"`
	Session         SessionConfig   `yaml:"session"`
	CORS            CORSConfig      `yaml:"cors"`
	Site            SiteConfig      `yaml:"site"`
	Analytics       AnalyticsConfig `yaml:"analytics"`
	GeoIP           GeoIPConfig     `yaml:"geoip"`
}

type AnalyticsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	MinUpdate     time.Duration `yaml:"minupdate"`
	ActiveWindow  time.Duration `yaml:"activewindow"`
	TopPages      int           `yaml:"toppages"`
	RetentionDays int           `yaml:"retentiondays"`
	Timezone      string        `yaml:"timezone"`
	ExcludePrefix []string      `yaml:"excludeprefix"`
}

type GeoIPConfig struct {
	// Provider vaut "ipapi", "maxmind" ou "none"
	Provider   string        `yaml:"provider"`
	URL        string        `yaml:"url"`
	Database   string        `yaml:"database"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheTTL   time.Duration `yaml:"cachettl"`
	FailureTTL time.Duration `yaml:"failurettl"`
}

type SessionConfig struct {
	Name   string `yaml:"name"`
	Secret string `yaml:"secret"`
	MaxAge int    `yaml:"maxage"`
	// SameSite vaut "lax", "strict" ou "none" (cookie Secure imposé)
	SameSite string `yaml:"samesite"`
}

// CORSConfig liste les origines du frontend autorisées à envoyer le cookie
// de session. Vide, l'API reste ouverte à toutes les origines sans cookie.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

type SiteConfig struct {
	SiteName    string `yaml:"sitename"`
	Description string `yaml:"description"`
	BaseURL     string `yaml:"baseurl"`
	Author      string `yaml:"author"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
	Db   int    `yaml:"db"`
}

type LoggerConfig struct {
	Level  string             `yaml:"level"`
	File   LoggerFileConfig   `yaml:"file"`
	Syslog LoggerSyslogConfig `yaml:"syslog"`
}

type LoggerFileConfig struct {
	Enable     bool   `yaml:"enable"`
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxsize"`
	MaxBackups int    `yaml:"maxbackups"`
	MaxAge     int    `yaml:"maxage"`
	Compress   bool   `yaml:"compress"`
}

type LoggerSyslogConfig struct {
	Enable   bool            `yaml:"enable"`
	Protocol string          `yaml:"protocol"`
	Address  string          `yaml:"address"`
	Tag      string          `yaml:"tag"`
	Priority syslog.Priority `yaml:"priority"`
}

type ListenConfig struct {
	Website string `yaml:"website"`
	Metrics string `yaml:"metrics"`
}

type UserConfig struct {
	Login string `yaml:"login"`
	Pass  string `yaml:"pass"`
	Hash  string `yaml:"hash"`
}

type DatabaseConfig struct {
	Redis RedisConfig `yaml:"redis"`
	Db    string      `yaml:"db"`
	Path  string      `yaml:"path"`
	Dsn   string      `yaml:"dsn"`
}

func CreateExampleConfig(filename string) (string, error) {
	example := &Config{
		Database: DatabaseConfig{
			Db:   "sqlite",
			Path: "./portfolio.db",
		},
		Analytics: AnalyticsConfig{
			Enabled:      true,
			MinUpdate:    30 * time.Second,
			ActiveWindow: 5 * time.Minute,
			TopPages:     5,
		},
		GeoIP: GeoIPConfig{
			Provider:   "ipapi",
			URL:        "https://ipapi.co",
			Timeout:    3 * time.Second,
			CacheTTL:   24 * time.Hour,
			FailureTTL: 5 * time.Minute,
		},
		Session: SessionConfig{
			Name:     "portfolio",
			MaxAge:   86400 * 365,
			SameSite: "lax",
		},
		CORS: CORSConfig{
			Origins: []string{"http://localhost:5173"},
		},
		Site: SiteConfig{
			SiteName:    "Mon Portfolio",
			Description: "Blog et projets",
			BaseURL:     "http://localhost:8080",
			Author:      "Admin",
		},
		User: UserConfig{
			Login: "admin",
			Pass:  "admin1234",
		},
		StaticPath: "./static",
		Production: false,
		Logger: LoggerConfig{
			Level: "info",
		},
		Listen: ListenConfig{
			Website: "0.0.0.0:8080",
			Metrics: "127.0.0.1:8090",
		},
	}

	if filename == "/etc/" {
		example.Listen.Website = "127.0.0.1:8000"
		example.Production = true
		example.Database.Path = "/var/lib/portfolio/sqlite.db"
		example.StaticPath = "/var/lib/portfolio/static"
		example.Logger.File = LoggerFileConfig{
			Enable:     true,
			Path:       "/var/log/portfolio/portfolio.log",
			MaxSize:    100,
			MaxBackups: 30,
			MaxAge:     7,
			Compress:   true,
		}
		filename = "/etc/portfolio/config.yaml"
	}

	return filename, WriteConfigYaml(filename, example)
}

func WriteConfigYaml(filename string, conf *Config) error {
	data, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}

// Charger la configuration YAML
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("impossible de lire le fichier %s: %v", filename, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("erreur de parsing YAML: %v", err)
	}

	return &config, nil
}

// LoadAndValidate charge le fichier, applique les valeurs par défaut et
// remplace le mot de passe en clair par son hash argon2.
func LoadAndValidate(configFile string) (*Config, error) {
	conf, err := LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("erreur chargement config: %w", err)
	}

	if conf.Database.Db == "" {
		return nil, fmt.Errorf("database.db ne peut pas être vide")
	}
	if conf.Database.Db == "sqlite" && conf.Database.Path == "" {
		return nil, fmt.Errorf("database.path ne peut pas être vide")
	}
	if conf.Database.Db == "mysql" && conf.Database.Dsn == "" {
		return nil, fmt.Errorf("database.dsn ne peut pas être vide")
	}

	if conf.Listen.Website == "" {
		conf.Listen.Website = "localhost:8080"
	}
	if strings.HasPrefix(conf.Listen.Website, ":") {
		conf.Listen.Website = "localhost" + conf.Listen.Website
	}

	conf.ApplyDefaults()

	switch conf.Session.SameSite {
	case "lax", "strict", "none":
	default:
		return nil, fmt.Errorf("session.samesite invalide: %q", conf.Session.SameSite)
	}

	if conf.User.Pass != "" {
		if len(conf.User.Pass) < 8 {
			return nil, fmt.Errorf("le mot de passe doit contenir au moins 8 caractères")
		}

		hash, err := argon2.GenerateFromPassword([]byte(conf.User.Pass), argon2.DefaultParams)
		if err != nil {
			return nil, err
		}
		conf.User.Hash = string(hash)
		conf.User.Pass = ""
		if err := WriteConfigYaml(configFile, conf); err != nil {
			return nil, err
		}
	}

	return conf, nil
}

// ApplyDefaults complète les durées et limites absentes du fichier
func (c *Config) ApplyDefaults() {
	if c.Analytics.MinUpdate <= 0 {
		c.Analytics.MinUpdate = 30 * time.Second
	}
	if c.Analytics.ActiveWindow <= 0 {
		c.Analytics.ActiveWindow = 5 * time.Minute
	}
	if c.Analytics.TopPages <= 0 {
		c.Analytics.TopPages = 5
	}
	if c.GeoIP.Provider == "" {
		c.GeoIP.Provider = "ipapi"
	}
	if c.GeoIP.URL == "" {
		c.GeoIP.URL = "https://ipapi.co"
	}
	if c.GeoIP.Timeout <= 0 {
		c.GeoIP.Timeout = 3 * time.Second
	}
	if c.GeoIP.CacheTTL <= 0 {
		c.GeoIP.CacheTTL = 24 * time.Hour
	}
	if c.GeoIP.FailureTTL <= 0 {
		c.GeoIP.FailureTTL = 5 * time.Minute
	}
	if c.Session.Name == "" {
		c.Session.Name = "portfolio"
	}
	if c.Session.MaxAge <= 0 {
		c.Session.MaxAge = 86400 * 365
	}
	c.Session.SameSite = strings.ToLower(strings.TrimSpace(c.Session.SameSite))
	if c.Session.SameSite == "" {
		c.Session.SameSite = "lax"
	}
}

// Location renvoie le fuseau utilisé pour découper les jours de visite
func (a AnalyticsConfig) Location() *time.Location {
	if a.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", a.Timezone).Msg("fuseau inconnu, utilisation de l'heure locale")
		return time.Local
	}
	return loc
}

func CreateExample(shouldCreateExample bool, configFile string) {
	// Handle example creation
	if shouldCreateExample {
		if err := handleExampleCreation(configFile); err != nil {
			fmt.Printf("❌ %v\n", err)
		}
		os.Exit(1)
	}

	_, err := os.Stat(configFile)
	if err != nil && os.IsNotExist(err) {
		if err := handleExampleCreation(configFile); err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}
	}
}

func handleExampleCreation(filename string) error {
	if filename == "" {
		filename = "portfolio.yaml"
	}
	filename, err := CreateExampleConfig(filename)
	if err != nil {
		return fmt.Errorf("erreur création exemple: %v", err)
	}

	fmt.Printf("✅ Fichier exemple créé: %s\n", filename)
	fmt.Println("⚠️  user.pass sera automatiquement hash en argon2 dans user.hash au premier lancement")
	return nil
}

func DisplayConfiguration(config *Config, version string) {
	logPrintf("Portfolio version %s", version)

	logPrintf("Mode Production %v", config.Production)
	logPrintf("Administrateur login %s", config.User.Login)

	logPrintf("Database")
	if config.Database.Db == "sqlite" {
		logPrintf("  • Type sqlite")
		logPrintf("  • Path %s", config.Database.Path)
	}
	if config.Database.Db == "mysql" {
		logPrintf("  • Type mysql")
		logPrintf("  • DSN %s", config.Database.Dsn)
	}
	if config.Database.Redis.Addr != "" {
		logPrintf("  • Cache redis %s", config.Database.Redis.Addr)
	}

	if config.Analytics.Enabled {
		logPrintf("Analytics activé")
		logPrintf("  • Intervalle minimum %s", config.Analytics.MinUpdate)
		logPrintf("  • Fenêtre en ligne %s", config.Analytics.ActiveWindow)
		if config.Analytics.RetentionDays > 0 {
			logPrintf("  • Rétention %d jours", config.Analytics.RetentionDays)
		}
		logPrintf("  • GeoIP %s", config.GeoIP.Provider)
	} else {
		logPrintf("Analytics désactivé")
	}

	if config.Listen.Metrics != "" {
		logPrintf("Metrics sur %s", config.Listen.Metrics)
	}

	// Logger
	logPrintf("Logger en level %s", config.Logger.Level)
	if config.Logger.File.Enable {
		logPrintf("  Log en fichier activé")
		logPrintf("  • Path %s", config.Logger.File.Path)
		logPrintf("  • Max size %d", config.Logger.File.MaxSize)
		logPrintf("  • Max age %d", config.Logger.File.MaxAge)
		logPrintf("  • Max backup %d", config.Logger.File.MaxBackups)
		logPrintf("  • Compression %v", config.Logger.File.Compress)
	} else {
		logPrintf("  Log en fichier désactivé")
	}
	if config.Logger.Syslog.Enable {
		logPrintf("  Log en syslog activé")
		logPrintf("  • Protocol %s", config.Logger.Syslog.Protocol)
		logPrintf("  • Address %s", config.Logger.Syslog.Address)
	} else {
		logPrintf("  Log en syslog désactivé")
	}
}

// Info logue avec printf
func logPrintf(format string, a ...any) {
	log.Info().Msg(fmt.Sprintf(format, a...))
}
