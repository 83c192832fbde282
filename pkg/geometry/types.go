// Package geometry provides the points, rectangles and affine transforms
// shared by the transform engine and image staging.
package geometry

import (
	"image"
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPoint2D creates a new Point2D.
func NewPoint2D(x, y float64) Point2D {
	return Point2D{X: x, Y: y}
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	return math.Hypot(p.X-other.X, p.Y-other.Y)
}

// ManhattanDistance returns |dx| + |dy|.
func (p Point2D) ManhattanDistance(other Point2D) float64 {
	return math.Abs(p.X-other.X) + math.Abs(p.Y-other.Y)
}

// Add returns the sum of two points.
func (p Point2D) Add(other Point2D) Point2D {
	return Point2D{X: p.X + other.X, Y: p.Y + other.Y}
}

// Sub returns the difference of two points.
func (p Point2D) Sub(other Point2D) Point2D {
	return Point2D{X: p.X - other.X, Y: p.Y - other.Y}
}

// Scale returns the point scaled by a factor.
func (p Point2D) Scale(factor float64) Point2D {
	return Point2D{X: p.X * factor, Y: p.Y * factor}
}

// Length returns the distance from the origin.
func (p Point2D) Length() float64 {
	return math.Hypot(p.X, p.Y)
}

// Angle returns the direction of the vector in degrees, (-180, 180].
func (p Point2D) Angle() float64 {
	return math.Atan2(p.Y, p.X) * 180 / math.Pi
}

// Size represents a 2D size.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewSize creates a new Size.
func NewSize(width, height float64) Size {
	return Size{Width: width, Height: height}
}

// Rect is an axis-aligned rectangle. Width and height may be negative while
// a corner is being dragged past its opposite corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewRect creates a new Rect.
func NewRect(x, y, width, height float64) Rect {
	return Rect{X: x, Y: y, Width: width, Height: height}
}

// RectFromPoints builds the rectangle spanned by two corners, keeping the
// signed extent from p1 to p2.
func RectFromPoints(p1, p2 Point2D) Rect {
	return Rect{X: p1.X, Y: p1.Y, Width: p2.X - p1.X, Height: p2.Y - p1.Y}
}

// RectFromImage converts an integer image rectangle.
func RectFromImage(r image.Rectangle) Rect {
	return Rect{X: float64(r.Min.X), Y: float64(r.Min.Y), Width: float64(r.Dx()), Height: float64(r.Dy())}
}

// ImageRect rounds the normalized rectangle out to integer pixel bounds.
func (r Rect) ImageRect() image.Rectangle {
	n := r.Normalized()
	return image.Rect(
		int(math.Floor(n.X)), int(math.Floor(n.Y)),
		int(math.Ceil(n.X+n.Width)), int(math.Ceil(n.Y+n.Height)),
	)
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Width == 0 || r.Height == 0
}

// Normalized returns the rectangle with non-negative width and height.
func (r Rect) Normalized() Rect {
	if r.Width < 0 {
		r.X += r.Width
		r.Width = -r.Width
	}
	if r.Height < 0 {
		r.Y += r.Height
		r.Height = -r.Height
	}
	return r
}

// Contains returns true if the point is inside the rectangle.
func (r Rect) Contains(p Point2D) bool {
	n := r.Normalized()
	return p.X >= n.X && p.X <= n.X+n.Width &&
		p.Y >= n.Y && p.Y <= n.Y+n.Height
}

// Clamp moves a point to the nearest position inside the rectangle.
func (r Rect) Clamp(p Point2D) Point2D {
	n := r.Normalized()
	return Point2D{
		X: math.Max(n.X, math.Min(p.X, n.X+n.Width)),
		Y: math.Max(n.Y, math.Min(p.Y, n.Y+n.Height)),
	}
}

// Center returns the center point of the rectangle.
func (r Rect) Center() Point2D {
	return Point2D{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// TopLeft returns the top-left corner.
func (r Rect) TopLeft() Point2D {
	return Point2D{X: r.X, Y: r.Y}
}

// TopRight returns the top-right corner.
func (r Rect) TopRight() Point2D {
	return Point2D{X: r.X + r.Width, Y: r.Y}
}

// BottomLeft returns the bottom-left corner.
func (r Rect) BottomLeft() Point2D {
	return Point2D{X: r.X, Y: r.Y + r.Height}
}

// BottomRight returns the bottom-right corner.
func (r Rect) BottomRight() Point2D {
	return Point2D{X: r.X + r.Width, Y: r.Y + r.Height}
}

// Corners returns the corners in TL, TR, BR, BL order.
func (r Rect) Corners() [4]Point2D {
	return [4]Point2D{r.TopLeft(), r.TopRight(), r.BottomRight(), r.BottomLeft()}
}

// Intersects returns true if this rectangle intersects with another.
func (r Rect) Intersects(other Rect) bool {
	a, b := r.Normalized(), other.Normalized()
	return a.X < b.X+b.Width && a.X+a.Width > b.X &&
		a.Y < b.Y+b.Height && a.Y+a.Height > b.Y
}

// Union returns the smallest rectangle containing both rectangles.
func (r Rect) Union(other Rect) Rect {
	a, b := r.Normalized(), other.Normalized()
	x := math.Min(a.X, b.X)
	y := math.Min(a.Y, b.Y)
	x2 := math.Max(a.X+a.Width, b.X+b.Width)
	y2 := math.Max(a.Y+a.Height, b.Y+b.Height)
	return Rect{X: x, Y: y, Width: x2 - x, Height: y2 - y}
}

// BoundingBox computes the axis-aligned bounding box of a set of points.
func BoundingBox(points []Point2D) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
