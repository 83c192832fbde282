package image

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"

	"intrapaint/internal/staging"
)

// Canvas is a transparent paint surface the size of the generation area,
// used for the inpainting mask and the sketch.
type Canvas struct {
	img *image.NRGBA
}

// NewCanvas returns an empty canvas.
func NewCanvas(w, h int) *Canvas {
	return &Canvas{img: image.NewNRGBA(image.Rect(0, 0, w, h))}
}

// Image returns the canvas pixels. The caller must not keep it across
// Resize calls.
func (c *Canvas) Image() *image.NRGBA { return c.img }

// Size returns the canvas dimensions.
func (c *Canvas) Size() (w, h int) {
	return c.img.Bounds().Dx(), c.img.Bounds().Dy()
}

// Resize changes the canvas size, scaling existing content to fit.
func (c *Canvas) Resize(w, h int) {
	if cw, ch := c.Size(); cw == w && ch == h {
		return
	}
	next := image.NewNRGBA(image.Rect(0, 0, w, h))
	if staging.MaskHasContent(c.img) {
		xdraw.ApproxBiLinear.Scale(next, next.Bounds(), c.img, c.img.Bounds(), xdraw.Src, nil)
	}
	c.img = next
}

// Clear erases all content.
func (c *Canvas) Clear() {
	xdraw.Draw(c.img, c.img.Bounds(), image.Transparent, image.Point{}, xdraw.Src)
}

// Fill paints the whole canvas.
func (c *Canvas) Fill(col color.Color) {
	c.FillRect(c.img.Bounds(), col)
}

// FillRect paints a rectangle in canvas coordinates.
func (c *Canvas) FillRect(r image.Rectangle, col color.Color) {
	xdraw.Draw(c.img, r.Intersect(c.img.Bounds()), &image.Uniform{C: col}, image.Point{}, xdraw.Over)
}

// SetImage replaces the content, scaled to the canvas size.
func (c *Canvas) SetImage(img image.Image) {
	c.Clear()
	xdraw.ApproxBiLinear.Scale(c.img, c.img.Bounds(), img, img.Bounds(), xdraw.Over, nil)
}

// HasContent reports whether anything has been painted.
func (c *Canvas) HasContent() bool {
	return staging.MaskHasContent(c.img)
}
