package cli

import (
	"fmt"
	goimage "image"
	"path/filepath"
	"strconv"
	"strings"

	xdraw "golang.org/x/image/draw"

	"intrapaint/internal/image"
	"intrapaint/internal/staging"
)

// documentFlags select the generation area and mask of an input image.
type documentFlags struct {
	area string
	mask string
}

// parseArea reads "x,y,w,h".
func parseArea(s string) (goimage.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return goimage.Rectangle{}, fmt.Errorf("area %q: want x,y,width,height", s)
	}
	var n [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return goimage.Rectangle{}, fmt.Errorf("area %q: %w", s, err)
		}
		n[i] = v
	}
	if n[2] <= 0 || n[3] <= 0 {
		return goimage.Rectangle{}, fmt.Errorf("area %q: width and height must be positive", s)
	}
	return goimage.Rect(n[0], n[1], n[0]+n[2], n[1]+n[3]), nil
}

// apply sets the generation area and loads the mask into doc.
func (f documentFlags) apply(doc *image.Document) error {
	if f.area != "" {
		r, err := parseArea(f.area)
		if err != nil {
			return err
		}
		if err := doc.SetGenerationArea(r); err != nil {
			return err
		}
	}
	if f.mask == "" {
		return nil
	}
	mask, err := readMask(f.mask)
	if err != nil {
		return err
	}
	area := doc.GenerationArea()
	w, h := doc.Size()
	mb := mask.Bounds()
	if mb.Dx() != w || mb.Dy() != h {
		return fmt.Errorf("mask %s is %dx%d, image is %dx%d", f.mask, mb.Dx(), mb.Dy(), w, h)
	}
	doc.Mask().SetImage(mask.SubImage(area.Add(mb.Min)))
	return nil
}

func checkFormat(path string) error {
	if !image.IsSupportedFormat(path) {
		return fmt.Errorf("%s: unsupported image format (want one of %s)",
			path, strings.Join(image.SupportedFormats(), ", "))
	}
	return nil
}

// readMask loads a mask image. Opaque images are read by luminance with
// white marking the area to regenerate; images with transparency are read
// by alpha.
func readMask(path string) (*goimage.Alpha, error) {
	if err := checkFormat(path); err != nil {
		return nil, err
	}
	img, err := image.Decode(path)
	if err != nil {
		return nil, err
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		gray := goimage.NewGray(img.Bounds())
		xdraw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, xdraw.Src)
		img = gray
	}
	return staging.MaskPlane(img), nil
}

func writePNG(dir, name string, img goimage.Image) (string, error) {
	path := filepath.Join(dir, name)
	if err := image.SavePNG(path, img); err != nil {
		return "", err
	}
	return path, nil
}
