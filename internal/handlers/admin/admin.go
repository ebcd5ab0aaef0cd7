package handlers_admin

import (
	"errors"
	"net/http"
	"portfolio/internal/clmiddleware"
	"portfolio/internal/models/clconfig"
	"portfolio/internal/models/climages"

	"github.com/andskur/argon2-hashing"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AdminHandler struct {
	user      clconfig.UserConfig
	uploadDir string
	uploadURL string
}

// NewAdminHandler prend le compte administrateur et le dossier où les
// images envoyées sont écrites, servi publiquement sous uploadURL.
func NewAdminHandler(user clconfig.UserConfig, uploadDir, uploadURL string) *AdminHandler {
	return &AdminHandler{
		user:      user,
		uploadDir: uploadDir,
		uploadURL: uploadURL,
	}
}

func (ah *AdminHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides"})
		return
	}

	ip := clmiddleware.ClientIP(c)

	// Vérification login / pass
	err := argon2.CompareHashAndPassword([]byte(ah.user.Hash), []byte(req.Password))
	if err != nil || req.Username != ah.user.Login {
		log.Warn().Str("user", req.Username).Str("ip", ip).Msg("Tentative de connexion échouée")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Identifiants incorrects"})
		return
	}
	log.Info().Str("user", req.Username).Str("ip", ip).Msg("Connexion réussie")

	// Créer la session
	session := sessions.Default(c)
	session.Set("user_id", "admin")
	session.Set("username", req.Username)
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Connexion réussie",
		"redirect": "/admin",
	})
}

// Logout garde la clé visiteur: se déconnecter ne crée pas un nouveau visiteur
func (ah *AdminHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Delete("user_id")
	session.Delete("username")
	if err := session.Save(); err != nil {
		log.Warn().Err(err).Msg("sauvegarde session à la déconnexion")
	}

	c.JSON(http.StatusOK, gin.H{"message": "Déconnexion réussie"})
}

// Upload enregistre une image de couverture redimensionnée
func (ah *AdminHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Fichier non trouvé"})
		return
	}
	defer file.Close()

	saved, err := climages.Save(file, header.Size, ah.uploadDir, ah.uploadURL)
	switch {
	case errors.Is(err, climages.ErrNotImage), errors.Is(err, climages.ErrTooLarge), errors.Is(err, climages.ErrUnsupported):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.Error().Err(err).Str("file", header.Filename).Msg("upload image")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur sauvegarde image"})
		return
	}

	c.JSON(http.StatusOK, saved)
}
