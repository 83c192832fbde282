package transform

import (
	"math"

	"intrapaint/pkg/geometry"
)

// Handle identifies the part of the outline a drag started on.
type Handle int

const (
	HandleNone Handle = iota
	HandleBody
	HandleOrigin
	HandleTopLeft
	HandleTopRight
	HandleBottomRight
	HandleBottomLeft
)

// String returns the handle name.
func (h Handle) String() string {
	switch h {
	case HandleBody:
		return "body"
	case HandleOrigin:
		return "origin"
	case HandleTopLeft:
		return "top-left"
	case HandleTopRight:
		return "top-right"
	case HandleBottomRight:
		return "bottom-right"
	case HandleBottomLeft:
		return "bottom-left"
	default:
		return "none"
	}
}

// IsCorner reports whether the handle is one of the four corners.
func (h Handle) IsCorner() bool {
	return h >= HandleTopLeft && h <= HandleBottomLeft
}

// Corners lists the corner handles in the same order as Rect.Corners.
var Corners = [4]Handle{HandleTopLeft, HandleTopRight, HandleBottomRight, HandleBottomLeft}

// Mode selects what corner drags do.
type Mode int

const (
	ModeScale Mode = iota
	ModeRotate
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeRotate {
		return "rotate"
	}
	return "scale"
}

// Toggle returns the other mode.
func (m Mode) Toggle() Mode {
	if m == ModeRotate {
		return ModeScale
	}
	return ModeRotate
}

// cornerPoint returns the local position of a corner handle on r.
func cornerPoint(r geometry.Rect, h Handle) geometry.Point2D {
	switch h {
	case HandleTopLeft:
		return r.TopLeft()
	case HandleTopRight:
		return r.TopRight()
	case HandleBottomRight:
		return r.BottomRight()
	default:
		return r.BottomLeft()
	}
}

// oppositeCorner returns the corner that stays fixed while h is dragged.
func oppositeCorner(h Handle) Handle {
	switch h {
	case HandleTopLeft:
		return HandleBottomRight
	case HandleTopRight:
		return HandleBottomLeft
	case HandleBottomRight:
		return HandleTopLeft
	default:
		return HandleTopRight
	}
}

// draggedRect returns the base rectangle with only corner h moved to p.
// Width and height keep their sign, so dragging past the fixed corner
// produces a negative extent.
func draggedRect(base geometry.Rect, h Handle, p geometry.Point2D) geometry.Rect {
	fixed := cornerPoint(base, oppositeCorner(h))
	switch h {
	case HandleTopLeft:
		return geometry.Rect{X: p.X, Y: p.Y, Width: fixed.X - p.X, Height: fixed.Y - p.Y}
	case HandleTopRight:
		return geometry.Rect{X: fixed.X, Y: p.Y, Width: p.X - fixed.X, Height: fixed.Y - p.Y}
	case HandleBottomRight:
		return geometry.Rect{X: fixed.X, Y: fixed.Y, Width: p.X - fixed.X, Height: p.Y - fixed.Y}
	default:
		return geometry.Rect{X: p.X, Y: fixed.Y, Width: fixed.X - p.X, Height: p.Y - fixed.Y}
	}
}

// HandleIconAngle returns the direction, in scene degrees, a corner icon
// should point: diagonally outward from the rectangle, following rotation
// and mirroring.
func HandleIconAngle(h Handle, s State) float64 {
	if !h.IsCorner() {
		return 0
	}
	base := s.Base()
	corner := s.ToScene(cornerPoint(base, h))
	center := s.ToScene(base.Center())
	if corner == center {
		return 0
	}
	return normalizeAngle(math.Atan2(corner.Y-center.Y, corner.X-center.X) * 180 / math.Pi)
}
