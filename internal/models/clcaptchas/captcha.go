package clcaptchas

import (
	"errors"
	"net/http"
	"portfolio/internal/clredis"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mojocn/base64Captcha"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var (
	ErrCaptchaMissing = errors.New("CAPTCHA manquant")
	ErrCaptchaWrong   = errors.New("CAPTCHA incorrect")
)

type Captchas struct {
	store  base64Captcha.Store
	driver base64Captcha.Driver
}

// New utilise Redis quand un client est fourni, la mémoire sinon
func New(rdb *redis.Client) *Captchas {
	var store base64Captcha.Store
	if rdb != nil {
		store = clredis.NewCaptchaStore(rdb)
	} else {
		store = base64Captcha.DefaultMemStore
	}

	driver := base64Captcha.NewDriverMath(
		80,  // hauteur
		240, // largeur
		6,   // nombre d'opérations à afficher
		base64Captcha.OptionShowHollowLine,
		nil, // couleur de fond
		nil, // police
		nil, // couleurs
	)

	return &Captchas{
		store:  store,
		driver: driver,
	}
}

// GenerateCaptcha renvoie l'image encodée. Hors production la réponse est
// jointe pour faciliter les tests manuels.
func (cap *Captchas) GenerateCaptcha(production bool) (gin.H, error) {
	captcha := base64Captcha.NewCaptcha(cap.driver, cap.store)

	id, b64s, answer, err := captcha.Generate()
	if err != nil {
		return nil, errors.New("erreur lors de la génération du CAPTCHA")
	}

	data := gin.H{
		"captcha_id": id,
		"image":      b64s,
	}

	if !production {
		log.Debug().Str("id", id).Str("answer", answer).Msg("CAPTCHA généré")
		data["answer"] = answer
	}

	return data, nil
}

func (cap *Captchas) VerifyCaptcha(captchaID string, captchaAnswer string) error {
	captchaID = strings.TrimSpace(captchaID)
	captchaAnswer = strings.TrimSpace(captchaAnswer)

	if captchaID == "" || captchaAnswer == "" {
		return ErrCaptchaMissing
	}

	if !cap.store.Verify(captchaID, captchaAnswer, true) {
		return ErrCaptchaWrong
	}
	return nil
}

func (cap *Captchas) CaptchaHandler(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := cap.GenerateCaptcha(production)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, data)
	}
}
