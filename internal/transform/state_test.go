package transform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intrapaint/pkg/geometry"
)

const tolerance = 1e-6

func square() State {
	return NewState(geometry.NewRect(0, 0, 100, 100))
}

func assertScale(t *testing.T, s State, wantX, wantY float64) {
	t.Helper()
	sx, sy := s.Scale()
	assert.InDelta(t, wantX, sx, tolerance, "scale x")
	assert.InDelta(t, wantY, sy, tolerance, "scale y")
}

func TestNewStateIsIdentity(t *testing.T) {
	s := square()
	assert.True(t, s.Transform().IsIdentity())
	assert.Equal(t, geometry.Point2D{X: 50, Y: 50}, s.Origin())
	assertScale(t, s, 1, 1)
	assert.Equal(t, 0.0, s.Rotation())
}

func TestEmptyBaseReportsUnitScale(t *testing.T) {
	s := NewState(geometry.Rect{})
	assertScale(t, s, 1, 1)
	assert.Equal(t, geometry.Size{}, s.Size())
}

func TestPositionRoundTrip(t *testing.T) {
	cases := map[string]State{
		"identity": square(),
		"rotated":  square().WithRotation(33),
		"scaled":   square().WithScale(2.5, -0.75),
		"combined": square().WithScale(0.5, 3).WithRotation(200).Translate(-40, 12),
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			moved := s.WithPosition(-17.25, 301)
			pos := moved.Position()
			assert.InDelta(t, -17.25, pos.X, tolerance)
			assert.InDelta(t, 301, pos.Y, tolerance)

			sx, sy := s.Scale()
			assertScale(t, moved, sx, sy)
			assert.InDelta(t, s.Rotation(), moved.Rotation(), tolerance)
		})
	}
}

func TestWithScaleAnchorsOnOrigin(t *testing.T) {
	s := square().WithOrigin(geometry.Point2D{X: 0, Y: 0}).WithScale(2, 3)
	assertScale(t, s, 2, 3)
	assert.Equal(t, geometry.Point2D{X: 0, Y: 0}, s.Position())
	assert.InDelta(t, 200, s.Size().Width, tolerance)
	assert.InDelta(t, 300, s.Size().Height, tolerance)
}

func TestWithScaleClampsNearZero(t *testing.T) {
	s := square().WithScale(0, -0.00001)
	sx, sy := s.Scale()
	assert.InDelta(t, MinNonzero, math.Abs(sx), 1e-9)
	assert.InDelta(t, MinNonzero, math.Abs(sy), 1e-9)
	assert.GreaterOrEqual(t, s.Size().Width, 0.0)
	assert.GreaterOrEqual(t, s.Size().Height, 0.0)
}

func TestMirroredScaleReportsFlippedDecomposition(t *testing.T) {
	s := square().WithScale(-1, 1)
	assertScale(t, s, 1, -1)
	assert.InDelta(t, 180, s.Rotation(), tolerance)
	assert.Less(t, s.Transform().Determinant(), 0.0)

	size := s.Size()
	assert.InDelta(t, 100, size.Width, tolerance)
	assert.InDelta(t, 100, size.Height, tolerance)
}

func TestScaleStableAtRightAngles(t *testing.T) {
	for _, deg := range []float64{90, 180, 270} {
		s := square().WithScale(2, 0.5).WithRotation(deg)
		assertScale(t, s, 2, 0.5)
		assert.InDelta(t, deg, s.Rotation(), tolerance)
	}
}

func TestAspectLockFollowsLargerChange(t *testing.T) {
	s := square().WithPreserveAspectRatio(true)

	s = s.WithScale(3, 1.5)
	assertScale(t, s, 3, 3)

	s = s.WithScale(3.1, 1)
	assertScale(t, s, 1, 1)
}

func TestAspectLockTieUsesLargerSignedValue(t *testing.T) {
	s := square().WithPreserveAspectRatio(true).WithScale(2, 0)
	assertScale(t, s, 2, 2)
}

func TestAspectLockKeepsSignsPerAxis(t *testing.T) {
	s := square().WithPreserveAspectRatio(true).WithScale(-3, 1)
	sx, sy := s.Scale()
	assert.InDelta(t, math.Abs(sx), math.Abs(sy), tolerance)
	assert.InDelta(t, 3, math.Abs(sx), tolerance)
	assert.Less(t, s.Transform().Determinant(), 0.0)
}

func TestEnablingAspectLockEqualizesToLarger(t *testing.T) {
	s := square().WithScale(2, 0.5).WithPreserveAspectRatio(true)
	assert.True(t, s.PreserveAspectRatio())
	assertScale(t, s, 2, 2)

	s = s.WithPreserveAspectRatio(false).WithScale(1, 4)
	assertScale(t, s, 1, 4)
}

func TestWithSize(t *testing.T) {
	s := square().WithSize(50, 80)
	assert.InDelta(t, 50, s.Size().Width, tolerance)
	assert.InDelta(t, 80, s.Size().Height, tolerance)

	locked := square().WithPreserveAspectRatio(true).WithWidth(40)
	assert.InDelta(t, 40, locked.Size().Width, tolerance)
	assert.InDelta(t, 40, locked.Size().Height, tolerance)

	tall := square().WithHeight(250)
	assert.InDelta(t, 100, tall.Size().Width, tolerance)
	assert.InDelta(t, 250, tall.Size().Height, tolerance)
}

func TestWithRotationNormalizesAndPivotsOnOrigin(t *testing.T) {
	s := square().WithScale(2, 1)
	origin := s.SceneOrigin()

	r := s.WithRotation(450)
	assert.InDelta(t, 90, r.Rotation(), tolerance)
	assert.InDelta(t, origin.X, r.SceneOrigin().X, tolerance)
	assert.InDelta(t, origin.Y, r.SceneOrigin().Y, tolerance)
	assertScale(t, r, 2, 1)

	assert.InDelta(t, 270, s.WithRotation(-90).Rotation(), tolerance)
}

func TestWithOriginClampsToBase(t *testing.T) {
	s := square().WithOrigin(geometry.Point2D{X: 200, Y: -5})
	assert.Equal(t, geometry.Point2D{X: 100, Y: 0}, s.Origin())
	assert.Equal(t, geometry.Point2D{X: 1, Y: 0}, s.RelativeOrigin())
	assert.True(t, s.Transform().IsIdentity())
}

func TestOriginFollowsTransform(t *testing.T) {
	s := square().Translate(10, 20)
	assert.Equal(t, geometry.Point2D{X: 60, Y: 70}, s.SceneOrigin())
}

func TestResetIsIdempotent(t *testing.T) {
	base := geometry.NewRect(5, 5, 40, 30)
	s := square().WithScale(3, 2).WithRotation(45).WithPreserveAspectRatio(true)

	once := s.Reset(base)
	assert.Equal(t, once, once.Reset(base))
	assert.True(t, once.Transform().IsIdentity())
	assert.True(t, once.PreserveAspectRatio())
	assert.Equal(t, geometry.Point2D{X: 25, Y: 20}, once.Origin())
}

func TestToLocalInvertsToScene(t *testing.T) {
	s := square().WithScale(2, -3).WithRotation(30).Translate(7, 9)
	p := geometry.Point2D{X: 12, Y: -4}
	back := s.ToLocal(s.ToScene(p))
	require.InDelta(t, p.X, back.X, tolerance)
	require.InDelta(t, p.Y, back.Y, tolerance)
}
