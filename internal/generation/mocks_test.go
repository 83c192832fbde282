package generation

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
)

type progressReply struct {
	progress Progress
	err      error
}

// fakeGenerator returns scripted progress replies; the last reply repeats.
// When release is non-nil Generate blocks until it is closed.
type fakeGenerator struct {
	mu            sync.Mutex
	replies       []progressReply
	progressCalls int
	generateCalls int
	lastRequest   Request

	started chan struct{}
	release chan struct{}
	result  *Result
	err     error
}

func (f *fakeGenerator) CheckProgress(ctx context.Context) (Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progressCalls++
	if len(f.replies) == 0 {
		return Progress{}, nil
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return r.progress, r.err
}

func (f *fakeGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	f.mu.Lock()
	f.generateCalls++
	f.lastRequest = req
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &Result{}, nil
	}
	return f.result, nil
}

func (f *fakeGenerator) calls() (progress, generate int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progressCalls, f.generateCalls
}

// streamingGenerator emits its images one by one.
type streamingGenerator struct {
	fakeGenerator
	images []image.Image
	// indexes overrides the emitted index per image when set.
	indexes []int
}

func (s *streamingGenerator) GenerateStream(ctx context.Context, req Request, emit func(image.Image, int)) (map[string]any, error) {
	for i, img := range s.images {
		idx := i
		if s.indexes != nil {
			idx = s.indexes[i]
		}
		emit(img, idx)
	}
	return map[string]any{"seed": 42}, nil
}

var errBoom = errors.New("boom")

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func maskWithDot() *image.Alpha {
	m := image.NewAlpha(image.Rect(0, 0, 8, 8))
	m.SetAlpha(3, 3, color.Alpha{A: 255})
	return m
}
