package geometry

import (
	"errors"
	"math"

	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/mat"
)

// AffineTransform represents a 2x3 affine transformation matrix.
//
//	[a b tx]
//	[c d ty]
//
// Points map as x' = a*x + b*y + tx, y' = c*x + d*y + ty.
type AffineTransform struct {
	A, B, TX float64
	C, D, TY float64
}

// Identity returns the identity transform.
func Identity() AffineTransform {
	return AffineTransform{A: 1, D: 1}
}

// Translation returns a translation transform.
func Translation(tx, ty float64) AffineTransform {
	return AffineTransform{A: 1, D: 1, TX: tx, TY: ty}
}

// Rotation returns a rotation transform around the origin. Positive angles
// turn clockwise on a y-down screen.
func Rotation(radians float64) AffineTransform {
	cos := math.Cos(radians)
	sin := math.Sin(radians)
	return AffineTransform{A: cos, B: -sin, C: sin, D: cos}
}

// RotationDegrees is Rotation with the angle in degrees.
func RotationDegrees(degrees float64) AffineTransform {
	return Rotation(degrees * math.Pi / 180)
}

// Scale returns a scaling transform.
func Scale(sx, sy float64) AffineTransform {
	return AffineTransform{A: sx, D: sy}
}

// ScaleAbout scales around a fixed anchor point.
func ScaleAbout(anchor Point2D, sx, sy float64) AffineTransform {
	return Translation(anchor.X, anchor.Y).
		Compose(Scale(sx, sy)).
		Compose(Translation(-anchor.X, -anchor.Y))
}

// RotateAbout rotates around a fixed anchor point.
func RotateAbout(anchor Point2D, degrees float64) AffineTransform {
	return Translation(anchor.X, anchor.Y).
		Compose(RotationDegrees(degrees)).
		Compose(Translation(-anchor.X, -anchor.Y))
}

// Apply applies the transform to a point.
func (t AffineTransform) Apply(p Point2D) Point2D {
	return Point2D{
		X: t.A*p.X + t.B*p.Y + t.TX,
		Y: t.C*p.X + t.D*p.Y + t.TY,
	}
}

// ApplyVector applies only the linear part, for direction vectors.
func (t AffineTransform) ApplyVector(v Point2D) Point2D {
	return Point2D{X: t.A*v.X + t.B*v.Y, Y: t.C*v.X + t.D*v.Y}
}

// Compose returns this transform composed with another (this * other):
// other is applied first.
func (t AffineTransform) Compose(other AffineTransform) AffineTransform {
	return AffineTransform{
		A:  t.A*other.A + t.B*other.C,
		B:  t.A*other.B + t.B*other.D,
		TX: t.A*other.TX + t.B*other.TY + t.TX,
		C:  t.C*other.A + t.D*other.C,
		D:  t.C*other.B + t.D*other.D,
		TY: t.C*other.TX + t.D*other.TY + t.TY,
	}
}

// Determinant of the linear part. Negative values mean the transform mirrors.
func (t AffineTransform) Determinant() float64 {
	return t.A*t.D - t.B*t.C
}

// Offset returns the translation component.
func (t AffineTransform) Offset() Point2D {
	return Point2D{X: t.TX, Y: t.TY}
}

// WithOffset replaces the translation component.
func (t AffineTransform) WithOffset(p Point2D) AffineTransform {
	t.TX, t.TY = p.X, p.Y
	return t
}

// IsIdentity reports whether the transform leaves every point unchanged.
func (t AffineTransform) IsIdentity() bool {
	return t == Identity()
}

// Inverse returns the inverse transform, if it exists.
func (t AffineTransform) Inverse() (AffineTransform, bool) {
	if math.Abs(t.Determinant()) < 1e-12 {
		return AffineTransform{}, false
	}
	var inv mat.Dense
	if err := inv.Inverse(t.Matrix()); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return AffineTransform{}, false
		}
	}
	return FromDense(&inv), true
}

// Matrix returns the transform as a 3x3 homogeneous matrix.
func (t AffineTransform) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		t.A, t.B, t.TX,
		t.C, t.D, t.TY,
		0, 0, 1,
	})
}

// FromDense reads the top two rows of a 3x3 homogeneous matrix.
func FromDense(m mat.Matrix) AffineTransform {
	return AffineTransform{
		A: m.At(0, 0), B: m.At(0, 1), TX: m.At(0, 2),
		C: m.At(1, 0), D: m.At(1, 1), TY: m.At(1, 2),
	}
}

// Aff3 converts to the matrix form used by golang.org/x/image/draw.
func (t AffineTransform) Aff3() f64.Aff3 {
	return f64.Aff3{t.A, t.B, t.TX, t.C, t.D, t.TY}
}

// MapRect returns the four mapped corners of r, in TL, TR, BR, BL order.
func (t AffineTransform) MapRect(r Rect) [4]Point2D {
	corners := r.Corners()
	for i, c := range corners {
		corners[i] = t.Apply(c)
	}
	return corners
}

// BoundingRect returns the axis-aligned bounds of the mapped rectangle.
func (t AffineTransform) BoundingRect(r Rect) Rect {
	corners := t.MapRect(r)
	return BoundingBox(corners[:])
}
