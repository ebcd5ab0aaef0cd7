package handlers_static

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter() *gin.Engine {
	files := fstest.MapFS{
		"css/site.css": {Data: []byte("body {\n  color : red ;\n}\n")},
		"js/app.js":    {Data: []byte("function  add ( a , b ) {\n  return a + b ;\n}\n")},
		"cv.pdf":       {Data: []byte("%PDF-1.4")},
	}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/files/*filepath", NewMinified(files, "/files").Serve)
	return r
}

func TestServeMinifiedCSS(t *testing.T) {
	r := setupTestRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/css/site.css", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "body{color:red}", w.Body.String())
	assert.Equal(t, "text/css", w.Header().Get("Content-Type"))

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/files/css/site.css", nil)
	req.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)
}

func TestServeOtherFiles(t *testing.T) {
	r := setupTestRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/js/app.js", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "\n  return")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/cv.pdf", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/../secret", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/absent.css", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
