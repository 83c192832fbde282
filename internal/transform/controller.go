package transform

import (
	"math"
	"sync"

	"intrapaint/pkg/geometry"
)

// DefaultHandleSize is the handle edge length in scene units.
const DefaultHandleSize = 8.0

// Listener receives the new placement after each mutation.
type Listener func(Change)

// ModeListener is notified when double-click switches modes.
type ModeListener func(Mode)

// Option configures a Controller.
type Option func(*Controller)

// WithHandleSize sets the handle size used for hit testing.
func WithHandleSize(size float64) Option {
	return func(c *Controller) { c.handleSize = size }
}

// WithMode sets the initial interaction mode.
func WithMode(m Mode) Option {
	return func(c *Controller) { c.mode = m }
}

// WithState starts the controller from an existing placement.
func WithState(s State) Option {
	return func(c *Controller) { c.state = s }
}

// Controller turns pointer events on an outline into transform changes.
// Event methods must be called from a single goroutine; listener
// registration is safe from any goroutine.
type Controller struct {
	state      State
	mode       Mode
	handleSize float64

	dragHandle Handle
	dragLast   geometry.Point2D

	mu            sync.Mutex
	nextID        int
	listeners     map[int]Listener
	modeListeners map[int]ModeListener
}

// NewController creates a controller for a base rectangle.
func NewController(base geometry.Rect, opts ...Option) *Controller {
	c := &Controller{
		state:         NewState(base),
		handleSize:    DefaultHandleSize,
		listeners:     make(map[int]Listener),
		modeListeners: make(map[int]ModeListener),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current placement.
func (c *Controller) State() State { return c.state }

// Mode returns the current corner-drag mode.
func (c *Controller) Mode() Mode { return c.mode }

// Dragging returns the handle of the active drag, or HandleNone.
func (c *Controller) Dragging() Handle { return c.dragHandle }

// OnChange registers a listener and returns a function that removes it.
func (c *Controller) OnChange(l Listener) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// OnModeChange registers a mode listener and returns its removal function.
func (c *Controller) OnModeChange(l ModeListener) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.modeListeners[id] = l
	return func() {
		c.mu.Lock()
		delete(c.modeListeners, id)
		c.mu.Unlock()
	}
}

// HitTest returns the handle under a scene point. Handles win over the body
// when the pointer is within twice the handle size (Manhattan distance);
// the closest handle wins.
func (c *Controller) HitTest(p geometry.Point2D) Handle {
	best := HandleNone
	bestDist := 2 * c.handleSize
	corners := c.state.SceneCorners()
	for i, corner := range corners {
		if d := corner.ManhattanDistance(p); d < bestDist {
			best, bestDist = Corners[i], d
		}
	}
	if d := c.state.SceneOrigin().ManhattanDistance(p); d < bestDist {
		best = HandleOrigin
	}
	if best != HandleNone {
		return best
	}
	if geometry.PointInPolygon(p, corners[:]) {
		return HandleBody
	}
	return HandleNone
}

// Press starts a drag at a scene point and returns the grabbed handle.
func (c *Controller) Press(p geometry.Point2D) Handle {
	return c.PressHandle(c.HitTest(p), p)
}

// PressHandle starts a drag on a specific handle.
func (c *Controller) PressHandle(h Handle, p geometry.Point2D) Handle {
	c.dragHandle = h
	c.dragLast = p
	return h
}

// Move continues the active drag. It is a no-op without a drag.
func (c *Controller) Move(p geometry.Point2D) {
	s := c.state
	switch h := c.dragHandle; {
	case h == HandleNone:
		return
	case h == HandleBody:
		s = s.Translate(p.X-c.dragLast.X, p.Y-c.dragLast.Y)
	case h == HandleOrigin:
		s = s.WithOrigin(s.ToLocal(p))
	case c.mode == ModeRotate:
		s = rotateCorner(s, h, p)
	default:
		s = scaleCorner(s, h, p)
	}
	c.dragLast = p
	c.commit(s)
}

// Release applies a final move and ends the drag.
func (c *Controller) Release(p geometry.Point2D) {
	c.Move(p)
	c.dragHandle = HandleNone
}

// DoubleClick toggles between scale and rotate modes.
func (c *Controller) DoubleClick() {
	c.mode = c.mode.Toggle()
	c.mu.Lock()
	listeners := make([]ModeListener, 0, len(c.modeListeners))
	for _, l := range c.modeListeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()
	for _, l := range listeners {
		l(c.mode)
	}
}

// SetPosition moves the outline so its bounding box starts at (x, y).
func (c *Controller) SetPosition(x, y float64) { c.commit(c.state.WithPosition(x, y)) }

// SetOffset replaces the translation component.
func (c *Controller) SetOffset(p geometry.Point2D) { c.commit(c.state.WithOffset(p)) }

// SetSize scales the outline to w by h.
func (c *Controller) SetSize(w, h float64) { c.commit(c.state.WithSize(w, h)) }

// SetWidth changes the width only, unless the aspect ratio is locked.
func (c *Controller) SetWidth(w float64) { c.commit(c.state.WithWidth(w)) }

// SetHeight changes the height only, unless the aspect ratio is locked.
func (c *Controller) SetHeight(h float64) { c.commit(c.state.WithHeight(h)) }

// SetScale sets both scale factors.
func (c *Controller) SetScale(sx, sy float64) { c.commit(c.state.WithScale(sx, sy)) }

// SetRotation sets the rotation in degrees.
func (c *Controller) SetRotation(deg float64) { c.commit(c.state.WithRotation(deg)) }

// SetOrigin moves the transformation origin to a local point.
func (c *Controller) SetOrigin(p geometry.Point2D) { c.commit(c.state.WithOrigin(p)) }

// SetPreserveAspectRatio toggles aspect locking.
func (c *Controller) SetPreserveAspectRatio(b bool) {
	c.commit(c.state.WithPreserveAspectRatio(b))
}

// Reset clears all transformations, optionally on a new base rectangle.
func (c *Controller) Reset(base geometry.Rect) { c.commit(c.state.Reset(base)) }

// commit stores s and notifies listeners once if anything changed.
func (c *Controller) commit(s State) {
	if s == c.state {
		return
	}
	c.state = s
	change := s.Change()

	c.mu.Lock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(change)
	}
}

// scaleCorner resizes so the dragged corner follows the pointer while the
// opposite corner stays put.
func scaleCorner(s State, h Handle, p geometry.Point2D) State {
	base := s.Base()
	if base.Empty() {
		return s
	}
	final := draggedRect(base, h, s.ToLocal(p))
	if math.Abs(final.Width) < MinNonzero {
		final.Width = MinNonzero
	}
	if math.Abs(final.Height) < MinNonzero {
		final.Height = MinNonzero
	}

	kx, ky := final.Width/base.Width, final.Height/base.Height
	cx, cy := s.Scale()
	fx, fy := kx*cx, ky*cy
	if s.PreserveAspectRatio() && math.Abs(fx) != math.Abs(fy) {
		if math.Abs(fx) < math.Abs(fy) {
			kx = math.Copysign(kx*fy/fx, kx)
		} else {
			ky = math.Copysign(ky*fx/fy, ky)
		}
		fx, fy = kx*cx, ky*cy
	}
	if math.Abs(fx) < MinNonzero {
		kx = math.Copysign(MinNonzero, fx) / cx
	}
	if math.Abs(fy) < MinNonzero {
		ky = math.Copysign(MinNonzero, fy) / cy
	}
	if kx == 1 && ky == 1 {
		return s
	}
	return s.ScaledAbout(cornerPoint(base, oppositeCorner(h)), kx, ky)
}

// rotateCorner turns the outline about its origin by the angle between the
// dragged corner and the pointer, as seen from the origin.
func rotateCorner(s State, h Handle, p geometry.Point2D) State {
	origin := s.SceneOrigin()
	from := s.ToScene(cornerPoint(s.Base(), h)).Sub(origin)
	to := p.Sub(origin)
	if from.Length() == 0 || to.Length() == 0 {
		return s
	}
	delta := to.Angle() - from.Angle()
	if delta == 0 {
		return s
	}
	return s.WithRotation(s.Rotation() + delta)
}
