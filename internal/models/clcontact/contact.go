package clcontact

import (
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Message est un message reçu via le formulaire de contact
type Message struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:100;not null"`
	Email     string    `json:"email" gorm:"size:255;not null"`
	Content   string    `json:"message" gorm:"type:text;not null"`
	RemoteIP  string    `json:"remote_ip" gorm:"size:64"`
	Read      bool      `json:"read" gorm:"column:is_read;default:false;index"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

func (Message) TableName() string {
	return "contact_messages"
}

// CaptchaVerifier valide la réponse au captcha
type CaptchaVerifier interface {
	VerifyCaptcha(captchaID string, captchaAnswer string) error
}

type Handler struct {
	DB      *gorm.DB
	Captcha CaptchaVerifier
}

func NewHandler(db *gorm.DB, captcha CaptchaVerifier) *Handler {
	return &Handler{
		DB:      db,
		Captcha: captcha,
	}
}

type SubmitRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Message       string `json:"message"`
	CaptchaID     string `json:"captcha_id"`
	CaptchaAnswer string `json:"captcha_answer"`
}

// Validate vérifie les champs obligatoires et normalise la requête
func (r *SubmitRequest) Validate() string {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Message = strings.TrimSpace(r.Message)

	if r.Name == "" || r.Email == "" || r.Message == "" {
		return "Tous les champs sont obligatoires"
	}
	if utf8.RuneCountInString(r.Name) > 100 {
		return "Nom trop long"
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return "Email invalide"
	}
	if utf8.RuneCountInString(r.Message) > 5000 {
		return "Message trop long (max 5000 caractères)"
	}
	return ""
}

// API : Envoi d'un message
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides"})
		return
	}
	if msg := req.Validate(); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if err := h.Captcha.VerifyCaptcha(req.CaptchaID, req.CaptchaAnswer); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message := Message{
		Name:     req.Name,
		Email:    req.Email,
		Content:  req.Message,
		RemoteIP: c.ClientIP(),
	}
	if err := h.DB.Create(&message).Error; err != nil {
		log.Error().Err(err).Msg("enregistrement message contact")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur enregistrement message"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "sent"})
}

// API : Liste des messages
func (h *Handler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	// Filtre : all, unread, read
	status := c.DefaultQuery("status", "all")
	buildQuery := func() *gorm.DB {
		query := h.DB.Model(&Message{})
		switch status {
		case "unread":
			query = query.Where("is_read = ?", false)
		case "read":
			query = query.Where("is_read = ?", true)
		}
		return query
	}

	var total int64
	if err := buildQuery().Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	messages := []Message{}
	if err := buildQuery().Order("created_at DESC, id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&messages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

// API : Marquer un message comme lu
func (h *Handler) MarkRead(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	result := h.DB.Model(&Message{}).Where("id = ?", id).Update("is_read", true)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error.Error()})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message non trouvé"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message marqué comme lu"})
}

// API : Supprimer un message
func (h *Handler) Delete(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.DB.Delete(&Message{}, id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message supprimé"})
}

// API : Supprimer plusieurs messages
func (h *Handler) BulkDelete(c *gin.Context) {
	var req struct {
		IDs []uint `json:"ids" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.DB.Delete(&Message{}, req.IDs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Messages supprimés", "count": len(req.IDs)})
}

func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID invalide"})
		return 0, false
	}
	return uint(id), true
}
