package backend

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"

	"intrapaint/internal/generation"
	"intrapaint/internal/staging"
)

var mockTints = []color.NRGBA{
	{R: 0xe0, G: 0x40, B: 0x40, A: 0x60},
	{R: 0x40, G: 0xc0, B: 0x40, A: 0x60},
	{R: 0x40, G: 0x60, B: 0xe0, A: 0x60},
	{R: 0xe0, G: 0xc0, B: 0x30, A: 0x60},
}

// Mock produces tinted copies of the source image without any server. Each
// output index gets a different tint so results are distinguishable.
type Mock struct {
	// Delay is spent per produced image.
	Delay time.Duration

	mu    sync.Mutex
	done  int
	total int
}

// NewMock returns a mock that waits delay before producing each image.
func NewMock(delay time.Duration) *Mock {
	return &Mock{Delay: delay}
}

// Generate produces req.ExpectedOutputs() images derived from the request
// source, stopping early when ctx is cancelled.
func (m *Mock) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	total := req.ExpectedOutputs()
	m.mu.Lock()
	m.done, m.total = 0, total
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.total = 0
		m.mu.Unlock()
	}()

	images := make([]image.Image, 0, total)
	for i := 0; i < total; i++ {
		if m.Delay > 0 {
			if err := sleepContext(ctx, m.Delay); err != nil {
				return nil, err
			}
		} else if err := ctx.Err(); err != nil {
			return nil, err
		}
		images = append(images, mockImage(req, i))
		m.mu.Lock()
		m.done++
		m.mu.Unlock()
	}
	return &generation.Result{
		Images: images,
		Info:   map[string]any{"mock": true, "seed": req.Params.Seed, "prompt": req.Params.Prompt},
	}, nil
}

// CheckProgress reports the fraction of images produced by the running
// Generate call, or zero progress when none is running.
func (m *Mock) CheckProgress(context.Context) (generation.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.total == 0 {
		return generation.Progress{}, nil
	}
	remaining := m.total - m.done
	return generation.Progress{
		Fraction:    float64(m.done) / float64(m.total),
		ETARelative: (time.Duration(remaining) * m.Delay).Seconds(),
	}, nil
}

func (m *Mock) HealthCheck(context.Context) bool { return true }

func mockImage(req generation.Request, index int) image.Image {
	w, h := req.Size()
	r := image.Rect(0, 0, w, h)
	out := image.NewRGBA(r)
	xdraw.Draw(out, r, req.Source, req.Source.Bounds().Min, xdraw.Src)
	tint := mockTints[index%len(mockTints)]
	if req.Mask != nil {
		xdraw.DrawMask(out, r, image.NewUniform(tint), image.Point{}, staging.MaskPlane(req.Mask), image.Point{}, xdraw.Over)
	} else {
		xdraw.Draw(out, r, image.NewUniform(tint), image.Point{}, xdraw.Over)
	}
	return out
}
