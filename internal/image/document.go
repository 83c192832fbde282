package image

import (
	"errors"
	"fmt"
	"image"
	"sync"

	xdraw "golang.org/x/image/draw"

	"intrapaint/pkg/geometry"
)

// ErrNoLayers is returned by operations that need at least one layer.
var ErrNoLayers = errors.New("document has no layers")

// Document is a layer stack with a generation area. The mask and sketch
// canvases always match the generation area size.
type Document struct {
	mu     sync.RWMutex
	width  int
	height int
	layers []*Layer
	active int
	area   image.Rectangle
	mask   *Canvas
	sketch *Canvas
}

// NewDocument creates an empty document. The generation area starts as the
// whole document.
func NewDocument(width, height int) *Document {
	area := image.Rect(0, 0, width, height)
	return &Document{
		width:  width,
		height: height,
		area:   area,
		mask:   NewCanvas(width, height),
		sketch: NewCanvas(width, height),
	}
}

// NewDocumentFromLayer creates a document sized to the layer.
func NewDocumentFromLayer(l *Layer) *Document {
	d := NewDocument(l.Width(), l.Height())
	d.AddLayer(l)
	return d
}

// Size returns the document dimensions.
func (d *Document) Size() (w, h int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.width, d.height
}

// HasImage reports whether any layer has pixels.
func (d *Document) HasImage() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, l := range d.layers {
		if l.Image != nil {
			return true
		}
	}
	return false
}

// AddLayer pushes a layer on top and makes it active.
func (d *Document) AddLayer(l *Layer) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.layers = append(d.layers, l)
	d.active = len(d.layers) - 1
	return d.active
}

// Layers returns the stack, bottom first.
func (d *Document) Layers() []*Layer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Layer, len(d.layers))
	copy(out, d.layers)
	return out
}

// Layer returns the layer at index i.
func (d *Document) Layer(i int) (*Layer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i < 0 || i >= len(d.layers) {
		return nil, fmt.Errorf("layer %d out of range [0,%d)", i, len(d.layers))
	}
	return d.layers[i], nil
}

// ActiveLayer returns the layer results are applied to.
func (d *Document) ActiveLayer() (*Layer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.layers) == 0 {
		return nil, ErrNoLayers
	}
	return d.layers[d.active], nil
}

// SetActiveLayer selects the layer results are applied to.
func (d *Document) SetActiveLayer(i int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.layers) {
		return fmt.Errorf("layer %d out of range [0,%d)", i, len(d.layers))
	}
	d.active = i
	return nil
}

// GenerationArea returns the selected area in document coordinates.
func (d *Document) GenerationArea() image.Rectangle {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.area
}

// SetGenerationArea moves or resizes the selected area, clamped to the
// document. Mask and sketch content are scaled with it. An area that falls
// entirely outside the document is rejected.
func (d *Document) SetGenerationArea(r image.Rectangle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r = r.Canon().Intersect(image.Rect(0, 0, d.width, d.height))
	if r.Empty() {
		return fmt.Errorf("generation area %v is outside the %dx%d document", r, d.width, d.height)
	}
	d.area = r
	d.mask.Resize(r.Dx(), r.Dy())
	d.sketch.Resize(r.Dx(), r.Dy())
	return nil
}

// Mask returns the inpainting mask canvas.
func (d *Document) Mask() *Canvas { return d.mask }

// Sketch returns the sketch canvas.
func (d *Document) Sketch() *Canvas { return d.sketch }

// Flatten composites all visible layers at document size.
func (d *Document) Flatten() *image.RGBA {
	d.mu.RLock()
	c := NewComposite(d.width, d.height)
	for _, l := range d.layers {
		c.AddLayer(l)
	}
	d.mu.RUnlock()
	return c.Render()
}

// SelectionContent returns the flattened pixels inside the generation area.
func (d *Document) SelectionContent() (*image.RGBA, error) {
	if !d.HasImage() {
		return nil, ErrNoLayers
	}
	flat := d.Flatten()
	area := d.GenerationArea()
	out := image.NewRGBA(image.Rect(0, 0, area.Dx(), area.Dy()))
	xdraw.Draw(out, out.Bounds(), flat, area.Min, xdraw.Src)
	return out, nil
}

// ApplySelection writes img into the active layer over the generation area,
// mapping through the layer's transform. img is scaled to the area size if
// needed.
func (d *Document) ApplySelection(img image.Image) error {
	l, err := d.ActiveLayer()
	if err != nil {
		return err
	}
	area := d.GenerationArea()

	src := img
	if b := img.Bounds(); b.Dx() != area.Dx() || b.Dy() != area.Dy() {
		scaled := image.NewRGBA(image.Rect(0, 0, area.Dx(), area.Dy()))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, xdraw.Src, nil)
		src = scaled
	}

	inv, ok := l.Transform.Transform().Inverse()
	if !ok {
		return fmt.Errorf("layer %q has a degenerate transform", l.Name)
	}
	origin := src.Bounds().Min
	toLayer := inv.Compose(geometry.Translation(float64(area.Min.X-origin.X), float64(area.Min.Y-origin.Y)))

	d.mu.Lock()
	defer d.mu.Unlock()
	xdraw.NearestNeighbor.Transform(l.Image, toLayer.Aff3(), src, src.Bounds(), xdraw.Src, nil)
	return nil
}
