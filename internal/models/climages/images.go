package climages

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

const (
	MaxUploadSize = 10 * 1024 * 1024
	CoverWidth    = 1600
)

var (
	ErrNotImage    = errors.New("le fichier doit être une image")
	ErrTooLarge    = errors.New("image trop grande (max 10MB)")
	ErrUnsupported = errors.New("seules les images jpg, png et gif sont supportées")
)

// Saved décrit une image enregistrée dans le dossier d'upload
type Saved struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	Format   string `json:"format"`
}

// Resize réduit l'image à maxWidth en gardant le ratio
func Resize(img image.Image, maxWidth int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	// Si l'image est déjà plus petite, la retourner telle quelle
	if width <= maxWidth {
		return img
	}

	ratio := float64(maxWidth) / float64(width)
	newWidth := maxWidth
	newHeight := int(float64(height) * ratio)

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))

	// Utiliser l'interpolation de haute qualité
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	return dst
}

// Save vérifie le type, redimensionne et écrit l'image sous un nom unique
// dans dir. urlPrefix est le chemin public correspondant à dir.
func Save(file io.ReadSeeker, size int64, dir, urlPrefix string) (*Saved, error) {
	if size > MaxUploadSize {
		return nil, ErrTooLarge
	}

	// Vérifier le type MIME
	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("lecture fichier: %w", err)
	}
	if !strings.HasPrefix(http.DetectContentType(buffer[:n]), "image/") {
		return nil, ErrNotImage
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("décodage image: %w", err)
	}

	var ext string
	switch format {
	case "jpeg":
		ext = ".jpg"
	case "png":
		ext = ".png"
	case "gif":
		ext = ".gif"
	default:
		return nil, ErrUnsupported
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("création dossier: %w", err)
	}

	filename := uuid.NewString() + ext
	path := filepath.Join(dir, filename)
	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("création fichier: %w", err)
	}
	defer out.Close()

	processed := Resize(img, CoverWidth)
	switch format {
	case "png":
		// Garder le PNG pour préserver la transparence
		err = png.Encode(out, processed)
	case "gif":
		// Le GIF est copié tel quel pour garder l'animation
		if _, err = file.Seek(0, io.SeekStart); err == nil {
			_, err = io.Copy(out, file)
		}
	default:
		err = jpeg.Encode(out, processed, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("sauvegarde image: %w", err)
	}

	info, err := out.Stat()
	if err != nil {
		return nil, err
	}

	return &Saved{
		Filename: filename,
		URL:      strings.TrimRight(urlPrefix, "/") + "/" + filename,
		Size:     info.Size(),
		Format:   format,
	}, nil
}
