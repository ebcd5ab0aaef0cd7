package handlers_rss

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"portfolio/internal/models/clconfig"
	"portfolio/internal/models/clposts"
	"portfolio/internal/models/clrss"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const feedSize = 20

type RSSHandler struct {
	db         *gorm.DB
	site       clconfig.SiteConfig
	staticPath string
	version    string
	now        func() time.Time
}

func NewRSSHandler(db *gorm.DB, site clconfig.SiteConfig, staticPath, version string) *RSSHandler {
	return &RSSHandler{
		db:         db,
		site:       site,
		staticPath: staticPath,
		version:    version,
		now:        time.Now,
	}
}

// Feed génère le flux RSS des derniers articles publiés
func (rh *RSSHandler) Feed(c *gin.Context) {
	posts, _, err := clposts.ListPublished(rh.db.WithContext(c.Request.Context()), 1, feedSize, clposts.Slugify(c.Param("tag")))
	if err != nil {
		log.Error().Err(err).Msg("flux rss")
		c.XML(http.StatusInternalServerError, gin.H{"error": "Erreur récupération posts"})
		return
	}

	site := clrss.Site{
		Name:        rh.site.SiteName,
		Description: rh.site.Description,
		BaseURL:     rh.baseURL(c),
		Generator:   fmt.Sprintf("Portfolio v%s", rh.version),
	}

	output, err := clrss.FromPosts(site, posts, rh.now(), rh.imageSize).Marshal()
	if err != nil {
		c.XML(http.StatusInternalServerError, gin.H{"error": "Erreur génération RSS"})
		return
	}

	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", output)
}

// baseURL préfère l'URL configurée, sinon celle de la requête
func (rh *RSSHandler) baseURL(c *gin.Context) string {
	if rh.site.BaseURL != "" {
		return rh.site.BaseURL
	}
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, c.Request.Host)
}

// imageSize donne la taille sur disque d'une image servie sous /static
func (rh *RSSHandler) imageSize(url string) int64 {
	rel, ok := strings.CutPrefix(url, "/static/")
	if !ok || rh.staticPath == "" {
		return 0
	}
	info, err := os.Stat(filepath.Join(rh.staticPath, filepath.FromSlash(filepath.Clean("/"+rel))))
	if err != nil {
		return 0
	}
	return info.Size()
}
