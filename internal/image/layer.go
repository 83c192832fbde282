// Package image provides the editable document: a stack of placed image
// layers, the generation area and its mask and sketch canvases.
package image

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/tiff"
	xdraw "golang.org/x/image/draw"

	"intrapaint/internal/transform"
	"intrapaint/pkg/geometry"
)

// Layer is one image in the document stack, placed by its transform.
type Layer struct {
	Name      string
	Path      string
	Image     *image.RGBA
	Visible   bool
	Opacity   float64
	BlendMode BlendMode
	Transform transform.State
}

// NewLayer wraps img in a visible, untransformed layer. The pixels are
// copied so the layer can be painted into.
func NewLayer(name string, img image.Image) *Layer {
	return &Layer{
		Name:      name,
		Image:     toRGBA(img),
		Visible:   true,
		Opacity:   1.0,
		Transform: transform.NewState(geometry.RectFromImage(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))),
	}
}

// Load reads a PNG, JPEG or TIFF file into a new layer.
func Load(path string) (*Layer, error) {
	img, err := Decode(path)
	if err != nil {
		return nil, err
	}
	layer := NewLayer(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), img)
	layer.Path = path
	return layer, nil
}

// Decode reads an image file without wrapping it in a layer.
func Decode(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}

// SavePNG writes img to path, creating parent directories.
func SavePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return file.Close()
}

// Width returns the image width in pixels.
func (l *Layer) Width() int {
	if l.Image == nil {
		return 0
	}
	return l.Image.Bounds().Dx()
}

// Height returns the image height in pixels.
func (l *Layer) Height() int {
	if l.Image == nil {
		return 0
	}
	return l.Image.Bounds().Dy()
}

// Bounds returns the layer's bounding box in document coordinates.
func (l *Layer) Bounds() geometry.Rect {
	return l.Transform.SceneBounds()
}

func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".png", ".jpg", ".jpeg", ".tiff", ".tif"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
