// Package outline provides a fyne widget that draws a transformable outline
// with corner handles and forwards pointer input to a transform.Controller.
package outline

import (
	"image/color"
	"math"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"intrapaint/internal/transform"
	"intrapaint/pkg/geometry"
)

// Outline shows the scene outline of a transform.Controller. Widget
// coordinates are scene coordinates times the zoom, shifted by the pan
// offset.
type Outline struct {
	widget.BaseWidget

	ctl  *transform.Controller
	zoom float64
	pan  fyne.Position

	dragging bool
	last     geometry.Point2D
	hover    transform.Handle

	// OnChanged is called after the controller reports a change.
	OnChanged func(transform.Change)

	removeListeners []func()
}

var (
	_ fyne.Draggable      = (*Outline)(nil)
	_ fyne.DoubleTappable = (*Outline)(nil)
	_ desktop.Hoverable   = (*Outline)(nil)
	_ desktop.Cursorable  = (*Outline)(nil)
)

// New creates an outline widget for ctl.
func New(ctl *transform.Controller) *Outline {
	o := &Outline{ctl: ctl, zoom: 1, hover: transform.HandleNone}
	o.ExtendBaseWidget(o)
	o.removeListeners = append(o.removeListeners,
		ctl.OnChange(func(ch transform.Change) {
			if o.OnChanged != nil {
				o.OnChanged(ch)
			}
			o.Refresh()
		}),
		ctl.OnModeChange(func(transform.Mode) { o.Refresh() }),
	)
	return o
}

// Controller returns the controller the widget drives.
func (o *Outline) Controller() *transform.Controller { return o.ctl }

// Detach stops listening to the controller.
func (o *Outline) Detach() {
	for _, remove := range o.removeListeners {
		remove()
	}
	o.removeListeners = nil
}

// SetZoom sets the scene-to-widget scale. Non-positive values are ignored.
func (o *Outline) SetZoom(zoom float64) {
	if zoom <= 0 {
		return
	}
	o.zoom = zoom
	o.Refresh()
}

// Zoom returns the scene-to-widget scale.
func (o *Outline) Zoom() float64 { return o.zoom }

// SetPan sets the widget position of the scene origin.
func (o *Outline) SetPan(p fyne.Position) {
	o.pan = p
	o.Refresh()
}

// ToScene maps a widget position to scene coordinates.
func (o *Outline) ToScene(p fyne.Position) geometry.Point2D {
	return geometry.Point2D{
		X: float64(p.X-o.pan.X) / o.zoom,
		Y: float64(p.Y-o.pan.Y) / o.zoom,
	}
}

// ToWidget maps a scene point to a widget position.
func (o *Outline) ToWidget(p geometry.Point2D) fyne.Position {
	return fyne.NewPos(float32(p.X*o.zoom)+o.pan.X, float32(p.Y*o.zoom)+o.pan.Y)
}

// Dragged starts a drag at the press position on the first event and moves
// the grabbed handle on every event.
func (o *Outline) Dragged(ev *fyne.DragEvent) {
	p := o.ToScene(ev.Position)
	if !o.dragging {
		start := o.ToScene(ev.Position.Subtract(ev.Dragged))
		o.dragging = true
		if o.ctl.Press(start) == transform.HandleNone {
			o.last = p
			return
		}
	}
	o.last = p
	o.ctl.Move(p)
}

// DragEnd releases the grabbed handle.
func (o *Outline) DragEnd() {
	if !o.dragging {
		return
	}
	o.dragging = false
	o.ctl.Release(o.last)
	o.Refresh()
}

// DoubleTapped toggles between scale and rotate mode.
func (o *Outline) DoubleTapped(*fyne.PointEvent) {
	o.ctl.DoubleClick()
}

func (o *Outline) MouseIn(ev *desktop.MouseEvent) { o.MouseMoved(ev) }

func (o *Outline) MouseMoved(ev *desktop.MouseEvent) {
	h := o.ctl.HitTest(o.ToScene(ev.Position))
	if h != o.hover {
		o.hover = h
		o.Refresh()
	}
}

func (o *Outline) MouseOut() {
	o.hover = transform.HandleNone
	o.Refresh()
}

// Cursor picks a pointer shape for the handle under the mouse.
func (o *Outline) Cursor() desktop.Cursor {
	switch {
	case o.hover.IsCorner() && o.ctl.Mode() == transform.ModeRotate:
		return desktop.CrosshairCursor
	case o.hover.IsCorner():
		a := math.Mod(transform.HandleIconAngle(o.hover, o.ctl.State()), 180)
		if a < 45 || a >= 135 {
			return desktop.HResizeCursor
		}
		return desktop.VResizeCursor
	case o.hover == transform.HandleBody || o.hover == transform.HandleOrigin:
		return desktop.PointerCursor
	}
	return desktop.DefaultCursor
}

func (o *Outline) CreateRenderer() fyne.WidgetRenderer {
	r := &outlineRenderer{outline: o}
	for i := range r.edges {
		r.edges[i] = fynecanvas.NewLine(color.Black)
		r.edges[i].StrokeWidth = 1
	}
	for i := range r.handles {
		r.handles[i] = fynecanvas.NewRectangle(color.Transparent)
		r.handles[i].StrokeWidth = 1
	}
	r.origin = fynecanvas.NewCircle(color.Transparent)
	r.origin.StrokeWidth = 1
	r.Refresh()
	return r
}

type outlineRenderer struct {
	outline *Outline
	edges   [4]*fynecanvas.Line
	handles [4]*fynecanvas.Rectangle
	origin  *fynecanvas.Circle
}

func (r *outlineRenderer) Layout(fyne.Size) { r.Refresh() }

func (r *outlineRenderer) MinSize() fyne.Size {
	b := r.outline.ctl.State().SceneBounds()
	z := float32(r.outline.zoom)
	return fyne.NewSize(float32(b.Width)*z, float32(b.Height)*z)
}

func (r *outlineRenderer) Refresh() {
	o := r.outline
	state := o.ctl.State()
	corners := state.SceneCorners()
	lineColor := colorFor(o, ColorNameOutline, theme.ColorNameForeground)
	handleColor := colorFor(o, ColorNameHandle, theme.ColorNamePrimary)
	activeColor := colorFor(o, ColorNameActiveHandle, theme.ColorNameFocus)

	for i, c := range corners {
		next := corners[(i+1)%len(corners)]
		e := r.edges[i]
		e.Position1 = o.ToWidget(c)
		e.Position2 = o.ToWidget(next)
		e.StrokeColor = lineColor
		e.Refresh()
	}

	size := float32(transform.DefaultHandleSize)
	for i, h := range transform.Corners {
		rect := r.handles[i]
		pos := o.ToWidget(corners[i])
		rect.Move(fyne.NewPos(pos.X-size/2, pos.Y-size/2))
		rect.Resize(fyne.NewSquareSize(size))
		rect.StrokeColor = handleColor
		rect.FillColor = color.Transparent
		if h == o.hover || h == o.ctl.Dragging() {
			rect.FillColor = activeColor
		}
		rect.Refresh()
	}

	center := o.ToWidget(state.SceneOrigin())
	r.origin.Position1 = fyne.NewPos(center.X-size/2, center.Y-size/2)
	r.origin.Position2 = fyne.NewPos(center.X+size/2, center.Y+size/2)
	r.origin.StrokeColor = handleColor
	r.origin.FillColor = color.Transparent
	if o.hover == transform.HandleOrigin || o.ctl.Dragging() == transform.HandleOrigin {
		r.origin.FillColor = activeColor
	}
	r.origin.Refresh()
}

func (r *outlineRenderer) Objects() []fyne.CanvasObject {
	objs := make([]fyne.CanvasObject, 0, len(r.edges)+len(r.handles)+1)
	for _, e := range r.edges {
		objs = append(objs, e)
	}
	for _, h := range r.handles {
		objs = append(objs, h)
	}
	return append(objs, r.origin)
}

func (r *outlineRenderer) Destroy() {}
