package geometry

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats/scalar"
)

func assertPoint(t *testing.T, want, got Point2D) {
	t.Helper()
	assert.True(t, scalar.EqualWithinAbs(want.X, got.X, 1e-9), "x: want %v got %v", want.X, got.X)
	assert.True(t, scalar.EqualWithinAbs(want.Y, got.Y, 1e-9), "y: want %v got %v", want.Y, got.Y)
}

func TestComposeAppliesOtherFirst(t *testing.T) {
	tr := Translation(10, 0).Compose(Scale(2, 2))
	assertPoint(t, Point2D{X: 12, Y: 2}, tr.Apply(Point2D{X: 1, Y: 1}))
}

func TestScaleAboutKeepsAnchorFixed(t *testing.T) {
	anchor := Point2D{X: 100, Y: 100}
	tr := ScaleAbout(anchor, 1.2, 0.5)
	assertPoint(t, anchor, tr.Apply(anchor))
	assertPoint(t, Point2D{X: -20, Y: 50}, tr.Apply(Point2D{}))
}

func TestRotateAboutKeepsAnchorFixed(t *testing.T) {
	anchor := Point2D{X: 50, Y: 50}
	tr := RotateAbout(anchor, 90)
	assertPoint(t, anchor, tr.Apply(anchor))
	assertPoint(t, Point2D{X: 50, Y: 60}, tr.Apply(Point2D{X: 60, Y: 50}))
}

func TestInverse(t *testing.T) {
	tr := Translation(5, -3).Compose(RotationDegrees(30)).Compose(Scale(2, -0.5))
	inv, ok := tr.Inverse()
	require.True(t, ok)

	p := Point2D{X: 7, Y: 11}
	assertPoint(t, p, inv.Apply(tr.Apply(p)))

	_, ok = Scale(0, 1).Inverse()
	assert.False(t, ok)
}

func TestDeterminantSignTracksMirroring(t *testing.T) {
	assert.Greater(t, RotationDegrees(200).Determinant(), 0.0)
	assert.Less(t, Scale(-1, 1).Determinant(), 0.0)
}

func TestRectHelpers(t *testing.T) {
	r := NewRect(10, 10, -20, 30)
	n := r.Normalized()
	assert.Equal(t, Rect{X: -10, Y: 10, Width: 20, Height: 30}, n)
	assert.True(t, r.Contains(Point2D{X: 0, Y: 20}))
	assertPoint(t, Point2D{X: 10, Y: 40}, r.Clamp(Point2D{X: 99, Y: 99}))
	assert.Equal(t, image.Rect(-10, 10, 10, 40), r.ImageRect())
	assert.True(t, NewRect(0, 0, 0, 5).Empty())
}

func TestBoundingRectOfRotatedSquare(t *testing.T) {
	b := RotateAbout(Point2D{X: 5, Y: 5}, 45).BoundingRect(NewRect(0, 0, 10, 10))
	assert.InDelta(t, 14.142, b.Width, 1e-3)
	assert.InDelta(t, 14.142, b.Height, 1e-3)
}

func TestPointInPolygon(t *testing.T) {
	quad := Translation(0, 0).MapRect(NewRect(0, 0, 10, 10))
	assert.True(t, PointInPolygon(Point2D{X: 5, Y: 5}, quad[:]))
	assert.False(t, PointInPolygon(Point2D{X: 15, Y: 5}, quad[:]))
	assert.False(t, PointInPolygon(Point2D{X: 5, Y: 5}, quad[:2]))

	collapsed := Scale(1, 0).MapRect(NewRect(0, 0, 10, 10))
	assert.False(t, PointInPolygon(Point2D{X: 5, Y: 0}, collapsed[:]))
}
