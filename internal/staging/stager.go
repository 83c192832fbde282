package staging

import (
	"errors"
	"image"

	xdraw "golang.org/x/image/draw"
)

// ErrNoSelection is returned when there is no selection image to stage.
var ErrNoSelection = errors.New("no selection content to stage")

// Options control the staging pipeline.
type Options struct {
	Upscale   xdraw.Scaler
	Downscale xdraw.Scaler

	// ScaleToEditSize resizes the staged image so its larger side is close
	// to MaxEditSize, quantized to Stride.
	ScaleToEditSize bool
	MaxEditSize     int
	Stride          int

	// CropToMask limits the staged area to GenerationBounds with
	// MaskPadding around the painted mask.
	CropToMask  bool
	MaskPadding int

	// RemoveUnmaskedChanges restores original pixels outside the mask in
	// finished images, softened by Feather pixels.
	RemoveUnmaskedChanges bool
	Feather               int

	// KeepSketch restores the sketch-composited image instead of the raw
	// selection outside the mask.
	KeepSketch bool
}

// Inputs are the raw document pixels for one request.
type Inputs struct {
	Selection image.Image
	Mask      image.Image
	Sketch    image.Image
	HasSketch bool
}

// Prepared holds the staged request pixels plus what Finish needs to map
// results back.
type Prepared struct {
	Image image.Image
	Mask  image.Image

	selection  image.Image
	composited image.Image
	fullMask   image.Image
	crop       image.Rectangle
	hasSketch  bool
}

// Crop returns the staged area within the selection.
func (p *Prepared) Crop() image.Rectangle { return p.crop }

// Stager runs the staging pipeline.
type Stager struct {
	opts Options
}

// NewStager returns a stager; unset resamplers default to bilinear for
// upscaling and Catmull-Rom for downscaling.
func NewStager(opts Options) *Stager {
	if opts.Upscale == nil {
		opts.Upscale = xdraw.BiLinear
	}
	if opts.Downscale == nil {
		opts.Downscale = xdraw.CatmullRom
	}
	if opts.Stride <= 0 {
		opts.Stride = DefaultStride
	}
	return &Stager{opts: opts}
}

// Resize scales img to w x h with the stager's resize policies.
func (s *Stager) Resize(img image.Image, w, h int) image.Image {
	return Resize(img, w, h, s.opts.Upscale, s.opts.Downscale)
}

func (s *Stager) resize(img image.Image, w, h int) image.Image {
	return s.Resize(img, w, h)
}

// Prepare composites the sketch onto the selection, fits mask and sketch to
// the selection size, optionally crops to the masked area and scales to the
// edit size.
func (s *Stager) Prepare(in Inputs) (*Prepared, error) {
	if in.Selection == nil {
		return nil, ErrNoSelection
	}
	sb := in.Selection.Bounds()
	w, h := sb.Dx(), sb.Dy()

	img := in.Selection
	if in.Sketch != nil && in.HasSketch {
		img = CompositeSketch(img, s.resize(in.Sketch, w, h), true)
	}
	mask := s.resize(in.Mask, w, h)

	p := &Prepared{
		selection:  in.Selection,
		composited: img,
		fullMask:   mask,
		crop:       image.Rect(0, 0, w, h),
		hasSketch:  in.HasSketch,
	}

	if s.opts.CropToMask && mask != nil {
		if r, ok := GenerationBounds(mask, s.opts.MaskPadding); ok {
			p.crop = r.Sub(mask.Bounds().Min)
			img = crop(img, p.crop.Add(img.Bounds().Min))
			mask = crop(mask, r)
		}
	}

	if s.opts.ScaleToEditSize {
		cw, ch := ScaleToEditSize(p.crop.Dx(), p.crop.Dy(), s.opts.MaxEditSize, s.opts.Stride)
		img = s.resize(img, cw, ch)
		mask = s.resize(mask, cw, ch)
	}

	p.Image, p.Mask = img, mask
	return p, nil
}

// Finish maps a generated image back to selection size: it scales to the
// staged area, optionally restores unmasked pixels and pastes the area into
// the selection.
func (s *Stager) Finish(p *Prepared, generated image.Image) image.Image {
	out := s.resize(generated, p.crop.Dx(), p.crop.Dy())

	base := p.selection
	if s.opts.KeepSketch && p.hasSketch {
		base = p.composited
	}

	if s.opts.RemoveUnmaskedChanges && p.fullMask != nil {
		out = RestoreUnmasked(crop(base, p.crop.Add(base.Bounds().Min)), out, crop(p.fullMask, p.crop.Add(p.fullMask.Bounds().Min)), s.opts.Feather)
	}

	full := base.Bounds()
	if p.crop == image.Rect(0, 0, full.Dx(), full.Dy()) {
		return out
	}
	return paste(base, out, p.crop)
}
