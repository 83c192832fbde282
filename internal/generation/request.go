// Package generation coordinates asynchronous image generation requests
// against an external backend: precondition checks, a single in-flight
// request, progress polling with backoff, and ordered result delivery.
package generation

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/google/uuid"
)

// EditMode selects how the source image is used.
type EditMode int

const (
	TextToImage EditMode = iota
	ImageToImage
	Inpaint
)

// String returns the mode name used in config files and flags.
func (m EditMode) String() string {
	switch m {
	case TextToImage:
		return "txt2img"
	case ImageToImage:
		return "img2img"
	case Inpaint:
		return "inpaint"
	default:
		return fmt.Sprintf("EditMode(%d)", int(m))
	}
}

// ParseEditMode accepts the names produced by String.
func ParseEditMode(s string) (EditMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "txt2img", "text-to-image":
		return TextToImage, nil
	case "img2img", "image-to-image":
		return ImageToImage, nil
	case "inpaint", "inpainting":
		return Inpaint, nil
	}
	return 0, fmt.Errorf("unknown edit mode %q", s)
}

// Params holds the prompt and sampler settings forwarded to the backend.
// Zero values mean "backend default".
type Params struct {
	Prompt            string
	NegativePrompt    string
	Steps             int
	GuidanceScale     float64
	Seed              int64
	DenoisingStrength float64
	SamplerName       string
	SkipSteps         int
	MaskBlur          int
	InpaintFullRes    bool
	InpaintPadding    int
	RestoreFaces      bool
	Tiling            bool
}

// Request is one generation job. Source and Mask are already staged to the
// size the backend should produce.
type Request struct {
	ID         uuid.UUID
	Mode       EditMode
	Source     image.Image
	Mask       image.Image
	BatchSize  int
	BatchCount int
	Params     Params
}

// ExpectedOutputs is the number of images a successful request yields.
func (r Request) ExpectedOutputs() int {
	return r.BatchSize * r.BatchCount
}

// Size returns the output dimensions, taken from the source image.
func (r Request) Size() (w, h int) {
	if r.Source == nil {
		return 0, 0
	}
	b := r.Source.Bounds()
	return b.Dx(), b.Dy()
}

// Normalized fills defaults: a fresh ID, batch values of at least one and
// no mask outside inpainting.
func (r Request) Normalized() Request {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchCount < 1 {
		r.BatchCount = 1
	}
	if r.Mode != Inpaint {
		r.Mask = nil
	}
	return r
}

// Progress is a backend progress report.
type Progress struct {
	Fraction           float64
	ETARelative        float64
	CurrentImageActive bool
}

// Result is what a backend returns for a finished request.
type Result struct {
	Images []image.Image
	Info   map[string]any
}

// Generator is the backend a Coordinator drives. Generate blocks until the
// whole request is done; CheckProgress must be safe to call concurrently
// with it.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
	CheckProgress(ctx context.Context) (Progress, error)
}

// StreamingGenerator is implemented by backends that produce images one at a
// time. emit may be called from any goroutine but not concurrently.
type StreamingGenerator interface {
	Generator
	GenerateStream(ctx context.Context, req Request, emit func(img image.Image, index int)) (map[string]any, error)
}

// HealthChecker is implemented by backends that can be probed before use.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}
