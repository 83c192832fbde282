// Package transform implements the editable placement of an image layer:
// translation, per-axis scale and rotation around a movable origin, plus the
// pointer interaction that drives them.
package transform

import (
	"math"

	"intrapaint/pkg/geometry"
)

// MinNonzero is the smallest scale magnitude or rectangle extent the engine
// will produce. Smaller values are replaced with MinNonzero, keeping sign.
const MinNonzero = 0.001

// Change is the payload sent to listeners after every mutation.
type Change struct {
	Offset   geometry.Point2D
	ScaleX   float64
	ScaleY   float64
	Rotation float64
}

// State is the placement of a base rectangle in scene space. Values are
// never mutated in place; every With* method returns a new State.
type State struct {
	base           geometry.Rect
	xf             geometry.AffineTransform
	origin         geometry.Point2D // relative to base, in [0,1]
	preserveAspect bool
}

// NewState returns an untransformed state for base with the origin centered.
func NewState(base geometry.Rect) State {
	return State{
		base:   base,
		xf:     geometry.Identity(),
		origin: geometry.Point2D{X: 0.5, Y: 0.5},
	}
}

// Reset clears all transformations and re-centers the origin on a new base
// rectangle. The aspect-ratio setting is kept.
func (s State) Reset(base geometry.Rect) State {
	n := NewState(base)
	n.preserveAspect = s.preserveAspect
	return n
}

// Base returns the untransformed rectangle.
func (s State) Base() geometry.Rect { return s.base }

// Transform returns the composed local-to-scene transform.
func (s State) Transform() geometry.AffineTransform { return s.xf }

// WithTransform replaces the composed transform directly.
func (s State) WithTransform(t geometry.AffineTransform) State {
	s.xf = t
	return s
}

// PreserveAspectRatio reports whether scale changes are coupled.
func (s State) PreserveAspectRatio() bool { return s.preserveAspect }

// SceneCorners returns the mapped corners in TL, TR, BR, BL order.
func (s State) SceneCorners() [4]geometry.Point2D {
	return s.xf.MapRect(s.base)
}

// SceneBounds is the axis-aligned bounding box of the mapped rectangle.
func (s State) SceneBounds() geometry.Rect {
	return s.xf.BoundingRect(s.base)
}

// Position is the minimum x and y over the four mapped corners.
func (s State) Position() geometry.Point2D {
	return s.SceneBounds().TopLeft()
}

// WithPosition translates so that Position equals (x, y).
func (s State) WithPosition(x, y float64) State {
	pos := s.Position()
	return s.translated(x-pos.X, y-pos.Y)
}

// Offset is the translation component of the transform.
func (s State) Offset() geometry.Point2D { return s.xf.Offset() }

// WithOffset replaces the translation component.
func (s State) WithOffset(p geometry.Point2D) State {
	s.xf = s.xf.WithOffset(p)
	return s
}

// Translate moves the state by a scene-space delta.
func (s State) Translate(dx, dy float64) State {
	return s.translated(dx, dy)
}

func (s State) translated(dx, dy float64) State {
	s.xf.TX += dx
	s.xf.TY += dy
	return s
}

// Scale returns the signed per-axis scale factors. The x factor is taken from
// the mapped length of the top edge and is always positive; the y factor is
// signed by the determinant, so a mirrored layer reports a negative y scale
// and a rotation past 90 degrees. An empty base reports (1, 1).
func (s State) Scale() (sx, sy float64) {
	if s.base.Empty() {
		return 1, 1
	}
	u := s.xf.ApplyVector(geometry.Point2D{X: s.base.Width, Y: 0})
	v := s.xf.ApplyVector(geometry.Point2D{X: 0, Y: s.base.Height})
	sx = u.Length() / math.Abs(s.base.Width)
	sy = v.Length() / math.Abs(s.base.Height)
	if s.xf.Determinant() < 0 {
		sy = -sy
	}
	return sx, sy
}

// WithScale sets both scale factors. With the aspect ratio locked the axis
// that moved further from its current value wins, and on an exact tie the
// larger signed request wins; each axis keeps its own sign. Magnitudes below
// MinNonzero are clamped. Scaling is anchored at the transform origin.
func (s State) WithScale(sx, sy float64) State {
	if s.preserveAspect {
		sx, sy = s.coupleAspect(sx, sy)
	}
	sx, sy = avoidZero(sx), avoidZero(sy)
	px, py := s.Scale()
	if sx == px && sy == py {
		return s
	}
	return s.ScaledAbout(s.Origin(), sx/px, sy/py)
}

func (s State) coupleAspect(sx, sy float64) (float64, float64) {
	px, py := s.Scale()
	dx, dy := math.Abs(sx-px), math.Abs(sy-py)
	switch {
	case dx > dy:
		sy = math.Copysign(sx, sy)
	case dy > dx:
		sx = math.Copysign(sy, sx)
	default:
		m := math.Max(sx, sy)
		sx, sy = math.Copysign(m, sx), math.Copysign(m, sy)
	}
	return sx, sy
}

// ScaledAbout multiplies the current scale by (kx, ky) around a local-space
// anchor. The anchor's scene position does not move.
func (s State) ScaledAbout(anchor geometry.Point2D, kx, ky float64) State {
	s.xf = s.xf.Compose(geometry.ScaleAbout(anchor, kx, ky))
	return s
}

// Size is the scaled extent of the base rectangle, never negative.
func (s State) Size() geometry.Size {
	sx, sy := s.Scale()
	return geometry.Size{
		Width:  math.Abs(s.base.Width * sx),
		Height: math.Abs(s.base.Height * sy),
	}
}

// WithSize scales to the requested width and height, keeping the sign of
// each current scale factor.
func (s State) WithSize(w, h float64) State {
	if s.base.Empty() {
		return s
	}
	sx, sy := s.Scale()
	return s.WithScale(
		math.Copysign(w/math.Abs(s.base.Width), sx),
		math.Copysign(h/math.Abs(s.base.Height), sy),
	)
}

// WithWidth changes only the width; a locked aspect ratio follows it.
func (s State) WithWidth(w float64) State {
	if s.base.Empty() {
		return s
	}
	sx, sy := s.Scale()
	sx = math.Copysign(w/math.Abs(s.base.Width), sx)
	if s.preserveAspect {
		sy = math.Copysign(sx, sy)
	}
	return s.withScaleUncoupled(sx, sy)
}

// WithHeight changes only the height; a locked aspect ratio follows it.
func (s State) WithHeight(h float64) State {
	if s.base.Empty() {
		return s
	}
	sx, sy := s.Scale()
	sy = math.Copysign(h/math.Abs(s.base.Height), sy)
	if s.preserveAspect {
		sx = math.Copysign(sy, sx)
	}
	return s.withScaleUncoupled(sx, sy)
}

func (s State) withScaleUncoupled(sx, sy float64) State {
	lock := s.preserveAspect
	s.preserveAspect = false
	s = s.WithScale(sx, sy)
	s.preserveAspect = lock
	return s
}

// Rotation is the angle of the mapped x axis in degrees, in [0, 360).
func (s State) Rotation() float64 {
	return normalizeAngle(s.xf.ApplyVector(geometry.Point2D{X: 1}).Angle())
}

// WithRotation rotates about the scene position of the origin so that
// Rotation reports the normalized angle. Translation and scale are kept.
func (s State) WithRotation(degrees float64) State {
	delta := normalizeAngle(degrees) - s.Rotation()
	if delta == 0 {
		return s
	}
	s.xf = geometry.RotateAbout(s.SceneOrigin(), delta).Compose(s.xf)
	return s
}

// Origin returns the transformation origin in local coordinates.
func (s State) Origin() geometry.Point2D {
	return geometry.Point2D{
		X: s.base.X + s.base.Width*s.origin.X,
		Y: s.base.Y + s.base.Height*s.origin.Y,
	}
}

// RelativeOrigin returns the origin as a fraction of the base size.
func (s State) RelativeOrigin() geometry.Point2D { return s.origin }

// SceneOrigin returns the origin mapped into scene coordinates.
func (s State) SceneOrigin() geometry.Point2D {
	return s.xf.Apply(s.Origin())
}

// WithOrigin moves the origin to a local-space point, clamped to the base
// rectangle. It does not change the transform.
func (s State) WithOrigin(p geometry.Point2D) State {
	p = s.base.Clamp(p)
	rel := geometry.Point2D{X: 0.5, Y: 0.5}
	if s.base.Width != 0 {
		rel.X = (p.X - s.base.X) / s.base.Width
	}
	if s.base.Height != 0 {
		rel.Y = (p.Y - s.base.Y) / s.base.Height
	}
	s.origin = rel
	return s
}

// WithPreserveAspectRatio toggles aspect locking. Turning it on equalizes the
// scale magnitudes to the larger of the two.
func (s State) WithPreserveAspectRatio(preserve bool) State {
	if preserve == s.preserveAspect {
		return s
	}
	s.preserveAspect = preserve
	if !preserve {
		return s
	}
	sx, sy := s.Scale()
	m := math.Max(math.Abs(sx), math.Abs(sy))
	return s.withScaleUncoupled(math.Copysign(m, sx), math.Copysign(m, sy))
}

// ToLocal maps a scene point into local coordinates. Degenerate transforms
// map everything to the origin.
func (s State) ToLocal(p geometry.Point2D) geometry.Point2D {
	inv, ok := s.xf.Inverse()
	if !ok {
		return s.Origin()
	}
	return inv.Apply(p)
}

// ToScene maps a local point into scene coordinates.
func (s State) ToScene(p geometry.Point2D) geometry.Point2D {
	return s.xf.Apply(p)
}

// Change returns the listener payload for the state.
func (s State) Change() Change {
	sx, sy := s.Scale()
	return Change{Offset: s.Offset(), ScaleX: sx, ScaleY: sy, Rotation: s.Rotation()}
}

func avoidZero(v float64) float64 {
	if math.Abs(v) < MinNonzero {
		return math.Copysign(MinNonzero, v)
	}
	return v
}

func normalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}
