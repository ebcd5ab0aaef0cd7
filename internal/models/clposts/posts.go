package clposts

import (
	"errors"
	"fmt"
	"html/template"
	"portfolio/internal/models/clmarkdown"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	stripmd "github.com/writeas/go-strip-markdown"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("article non trouvé")

var (
	reImage    = regexp.MustCompile(`!\[[^\]]*\]\(([^)]+)\)`)
	reImageAll = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
)

// Post est un article de blog rédigé en Markdown
type Post struct {
	ID          uint          `json:"id" gorm:"primaryKey"`
	Title       string        `json:"title" gorm:"size:200;not null"`
	Slug        string        `json:"slug" gorm:"size:220;uniqueIndex;not null"`
	Content     string        `json:"content" gorm:"type:text;not null"`
	ContentHTML template.HTML `json:"content_html" gorm:"-"`
	Excerpt     string        `json:"excerpt" gorm:"type:text"`
	CoverImage  string        `json:"cover_image" gorm:"size:500"`
	Author      string        `json:"author" gorm:"not null"`
	Published   bool          `json:"is_published" gorm:"index;not null;default:false"`
	Tags        string        `json:"-" gorm:"type:text"`
	TagsList    []string      `json:"tags" gorm:"-"`
	CreatedAt   time.Time     `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt   time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// FillExcerpt calcule le résumé et l'image de couverture à partir du contenu
// quand ils ne sont pas fournis
func (p *Post) FillExcerpt() {
	if p.Content == "" {
		return
	}
	if p.Excerpt == "" {
		p.Excerpt = ExtractExcerpt(PlainText(p.Content), 300)
	} else {
		p.Excerpt = CleanMarkdownForExcerpt(p.Excerpt)
	}
	if p.CoverImage == "" {
		if found, l := ExtractImages(p.Content, true, true); found {
			p.CoverImage = l[0]
		}
	}
}

func (p *Post) AfterFind(tx *gorm.DB) error {
	if p.Tags != "" {
		p.TagsList = strings.Split(p.Tags, ",")
	}
	p.ContentHTML = clmarkdown.ConvertMarkdownToHTML(p.Content)
	return nil
}

// Hooks GORM
func (p *Post) BeforeSave(tx *gorm.DB) error {
	p.Tags = strings.Join(p.TagsList, ",")
	if p.Slug == "" {
		p.Slug = Slugify(p.Title)
	}
	if p.Slug == "" {
		return errors.New("slug vide")
	}
	return nil
}

// ListPublished renvoie une page d'articles publiés, du plus récent au plus ancien
func ListPublished(db *gorm.DB, page, limit int, tag string) ([]Post, int64, error) {
	query := func() *gorm.DB {
		q := db.Model(&Post{}).Where("published = ?", true)
		if tag != "" {
			q = q.Where("tags LIKE ?", "%"+tag+"%")
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	posts := []Post{}
	err := query().
		Order("created_at desc, id desc").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&posts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	return posts, total, nil
}

// GetBySlug charge un article. publishedOnly masque les brouillons.
func GetBySlug(db *gorm.DB, slug string, publishedOnly bool) (*Post, error) {
	q := db.Where("slug = ?", slug)
	if publishedOnly {
		q = q.Where("published = ?", true)
	}
	var post Post
	if err := q.Take(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get post %s: %w", slug, err)
	}
	return &post, nil
}

// UniqueSlug suffixe base par -2, -3... jusqu'à trouver un slug libre.
// exceptID permet de garder le slug actuel d'un article modifié.
func UniqueSlug(db *gorm.DB, base string, exceptID uint) (string, error) {
	slug := base
	for i := 2; ; i++ {
		var n int64
		q := db.Model(&Post{}).Where("slug = ?", slug)
		if exceptID != 0 {
			q = q.Where("id <> ?", exceptID)
		}
		if err := q.Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

// Slugify met en minuscules, remplace les espaces par des tirets et retire
// le reste de la ponctuation
func Slugify(s string) string {
	var result strings.Builder
	lastDash := true

	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			result.WriteRune(r)
			lastDash = false
		case unicode.IsSpace(r) || r == '-' || r == '_':
			if !lastDash {
				result.WriteRune('-')
				lastDash = true
			}
		}
	}

	return strings.TrimSuffix(result.String(), "-")
}

// PlainText retire la syntaxe Markdown, pour les résumés et le flux RSS
func PlainText(content string) string {
	return strings.TrimSpace(stripmd.Strip(CleanMarkdownForExcerpt(content)))
}

func CleanMarkdownForExcerpt(content string) string {
	// supprimer les images
	return reImageAll.ReplaceAllString(content, "")
}

// ExtractExcerpt coupe le texte à maxLength runes, de préférence sur une fin
// de phrase puis sur un espace
func ExtractExcerpt(text string, maxLength int) string {
	if utf8.RuneCountInString(text) <= maxLength {
		return text
	}

	runes := []rune(text)

	// D'abord, chercher une fin de phrase (. ! ?)
	cutPoint := maxLength
	for i := maxLength - 1; i >= maxLength-100 && i >= 0; i-- {
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			cutPoint = i + 1
			break
		}
	}

	// Si aucune fin de phrase trouvée, chercher un espace
	if cutPoint == maxLength {
		for i := maxLength - 1; i >= maxLength-50 && i >= 0; i-- {
			if runes[i] == ' ' {
				cutPoint = i
				break
			}
		}
	}

	result := strings.TrimSpace(string(runes[:cutPoint]))

	// Ajouter "..." seulement si on n'a pas terminé sur une ponctuation
	lastChar := runes[cutPoint-1]
	if lastChar != '.' && lastChar != '!' && lastChar != '?' {
		result += "..."
	}

	return result
}

// ExtractImages extrait l'URL des images du Markdown
// Exemple: ![cover.jpg](/static/uploads/5f0c...e1.jpg)
func ExtractImages(markdown string, firstOnly bool, fileOnly bool) (bool, []string) {
	if markdown == "" {
		return false, nil
	}

	var l []string
	found := false

	for _, match := range reImage.FindAllStringSubmatch(markdown, -1) {
		if len(match) < 2 {
			continue
		}
		if fileOnly {
			l = append(l, strings.Trim(strings.TrimSpace(match[1]), `"' `))
		} else {
			l = append(l, strings.TrimSpace(match[0]))
		}
		found = true

		if firstOnly {
			break
		}
	}

	return found, l
}
