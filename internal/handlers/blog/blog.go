package handlers_blog

import (
	"errors"
	"net/http"
	"portfolio/internal/models/clposts"
	"strconv"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type PostRequest struct {
	Title      string   `json:"title" binding:"required"`
	Content    string   `json:"content" binding:"required"`
	Excerpt    string   `json:"excerpt"`
	CoverImage string   `json:"cover_image"`
	Author     string   `json:"author"`
	Slug       string   `json:"slug"`
	Tags       []string `json:"tags"`
	Published  bool     `json:"is_published"`
}

type BlogHandler struct {
	db *gorm.DB
}

func NewBlogHandler(db *gorm.DB) *BlogHandler {
	return &BlogHandler{db: db}
}

// List renvoie une page d'articles publiés, filtrable par tag
func (bh *BlogHandler) List(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "5"))
	if err != nil || limit < 1 {
		limit = 5
	}
	if limit > 50 { // Limite maximale pour éviter les abus
		limit = 50
	}

	tag := clposts.Slugify(c.Query("tag"))

	posts, total, err := clposts.ListPublished(bh.db.WithContext(c.Request.Context()), page, limit, tag)
	if err != nil {
		log.Error().Err(err).Msg("liste des articles")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posts":   posts,
		"hasMore": int64(page*limit) < total,
		"total":   total,
		"page":    page,
		"perPage": limit,
	})
}

// Get renvoie un article publié
func (bh *BlogHandler) Get(c *gin.Context) {
	bh.get(c, true)
}

// AdminGet renvoie un article, brouillon compris
func (bh *BlogHandler) AdminGet(c *gin.Context) {
	bh.get(c, false)
}

func (bh *BlogHandler) get(c *gin.Context, publishedOnly bool) {
	post, err := clposts.GetBySlug(bh.db.WithContext(c.Request.Context()), c.Param("slug"), publishedOnly)
	if err != nil {
		bh.postError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

// AdminList renvoie tous les articles, brouillons compris
func (bh *BlogHandler) AdminList(c *gin.Context) {
	posts := []clposts.Post{}
	if err := bh.db.WithContext(c.Request.Context()).Order("created_at desc, id desc").Find(&posts).Error; err != nil {
		log.Error().Err(err).Msg("liste admin des articles")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "total": len(posts)})
}

func (bh *BlogHandler) Create(c *gin.Context) {
	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides"})
		return
	}

	post := clposts.Post{}
	if msg := req.apply(&post); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if post.Author == "" {
		post.Author = sessionAuthor(c)
	}

	db := bh.db.WithContext(c.Request.Context())
	slug, err := clposts.UniqueSlug(db, post.Slug, 0)
	if err != nil {
		bh.postError(c, err)
		return
	}
	post.Slug = slug

	if err := db.Create(&post).Error; err != nil {
		log.Error().Err(err).Str("slug", post.Slug).Msg("création article")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création article"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Article créé avec succès",
		"post_id": post.ID,
		"slug":    post.Slug,
	})
}

func (bh *BlogHandler) Update(c *gin.Context) {
	db := bh.db.WithContext(c.Request.Context())
	post, err := clposts.GetBySlug(db, c.Param("slug"), false)
	if err != nil {
		bh.postError(c, err)
		return
	}

	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides"})
		return
	}

	author := post.Author
	if msg := req.apply(post); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if post.Author == "" {
		post.Author = author
	}

	slug, err := clposts.UniqueSlug(db, post.Slug, post.ID)
	if err != nil {
		bh.postError(c, err)
		return
	}
	post.Slug = slug

	if err := db.Save(post).Error; err != nil {
		log.Error().Err(err).Uint("id", post.ID).Msg("mise à jour article")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour article"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Article mis à jour avec succès", "slug": post.Slug})
}

func (bh *BlogHandler) Delete(c *gin.Context) {
	res := bh.db.WithContext(c.Request.Context()).Where("slug = ?", c.Param("slug")).Delete(&clposts.Post{})
	if res.Error != nil {
		log.Error().Err(res.Error).Msg("suppression article")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur suppression article"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article non trouvé"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Article supprimé avec succès"})
}

// apply recopie la requête dans post; renvoie un message si elle est invalide
func (req *PostRequest) apply(post *clposts.Post) string {
	post.Title = strings.TrimSpace(req.Title)
	post.Content = strings.TrimSpace(req.Content)
	post.Excerpt = strings.TrimSpace(req.Excerpt)
	post.CoverImage = strings.TrimSpace(req.CoverImage)
	post.Author = strings.TrimSpace(req.Author)
	post.Published = req.Published

	post.TagsList = post.TagsList[:0]
	for _, tag := range req.Tags {
		if t := clposts.Slugify(tag); t != "" {
			post.TagsList = append(post.TagsList, t)
		}
	}

	if post.Title == "" {
		return "Le titre ne peut pas etre vide"
	}

	slug := req.Slug
	if slug == "" {
		slug = post.Title
	}
	post.Slug = clposts.Slugify(slug)
	if post.Slug == "" {
		return "Le slug ne peut pas etre vide"
	}

	post.FillExcerpt()
	return ""
}

func sessionAuthor(c *gin.Context) string {
	if username, ok := sessions.Default(c).Get("username").(string); ok && username != "" {
		return username
	}
	return "Anonymous"
}

func (bh *BlogHandler) postError(c *gin.Context, err error) {
	if errors.Is(err, clposts.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article non trouvé"})
		return
	}
	log.Error().Err(err).Msg("accès article")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
}
