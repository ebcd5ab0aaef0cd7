package handlers_static

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"
)

// Minified sert les CSS/JS de files minifiés, les autres fichiers tels quels
type Minified struct {
	files  fs.FS
	prefix string
	m      *minify.M
}

func NewMinified(files fs.FS, prefix string) *Minified {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("application/javascript", js.Minify)
	return &Minified{files: files, prefix: prefix, m: m}
}

func (s *Minified) Serve(c *gin.Context) {
	name := strings.TrimPrefix(strings.TrimPrefix(c.Request.URL.Path, s.prefix), "/")
	content, err := fs.ReadFile(s.files, name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Fichier non trouvé"})
		return
	}

	var contentType string
	switch path.Ext(name) {
	case ".css":
		contentType = "text/css"
	case ".js":
		contentType = "application/javascript"
	case ".svg":
		contentType = "image/svg+xml"
	default:
		c.Data(http.StatusOK, "application/octet-stream", content)
		return
	}

	if contentType != "image/svg+xml" {
		if minified, err := s.m.Bytes(contentType, content); err == nil {
			content = minified
		}
	}

	// En-têtes de cache
	etag := generateETag(content)
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}

	c.Data(http.StatusOK, contentType, content)
}

// Fonction helper pour générer un ETag
func generateETag(content []byte) string {
	hash := sha256.Sum256(content)
	return fmt.Sprintf(`"%x"`, hash[:16])
}
