package backend

import (
	"image"
	"image/color"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"intrapaint/internal/generation"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encoded(t *testing.T, w, h int, withPrefix bool) string {
	t.Helper()
	s, err := encodePNG(solid(w, h, color.RGBA{R: 200, A: 255}), withPrefix)
	require.NoError(t, err)
	return s
}

func testRequest(mode generation.EditMode) generation.Request {
	mask := image.NewAlpha(image.Rect(0, 0, 16, 8))
	mask.SetAlpha(2, 2, color.Alpha{A: 255})
	return generation.Request{
		ID:         uuid.New(),
		Mode:       mode,
		Source:     solid(16, 8, color.White),
		Mask:       mask,
		BatchSize:  2,
		BatchCount: 1,
		Params: generation.Params{
			Prompt:            "a red barn",
			NegativePrompt:    "blurry",
			Steps:             20,
			GuidanceScale:     7.5,
			Seed:              99,
			DenoisingStrength: 0.6,
			MaskBlur:          4,
			InpaintPadding:    32,
		},
	}.Normalized()
}
