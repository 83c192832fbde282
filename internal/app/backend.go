package app

import (
	"context"
	"errors"
	"fmt"
	goimage "image"

	"intrapaint/internal/generation"
	"intrapaint/internal/image"
)

// Interrogator is implemented by backends that can caption an image.
type Interrogator interface {
	Interrogate(ctx context.Context, img goimage.Image) (string, error)
}

// Upscaler is implemented by backends that can enlarge an image.
type Upscaler interface {
	Upscale(ctx context.Context, img goimage.Image, w, h int) (goimage.Image, error)
}

// ErrUnsupported is returned when the backend lacks an operation.
var ErrUnsupported = errors.New("the backend does not support this operation")

const (
	interrogateMessage = "Running CLIP interrogate"
	upscaleMessage     = "Upscaling..."
)

// Interrogate captions the generation area through the backend and makes
// the caption the prompt for later requests. It shares the single request
// slot with Generate.
func (e *Editor) Interrogate(ctx context.Context) (string, error) {
	doc := e.Document()
	if doc == nil || !doc.HasImage() {
		return "", e.fail("interrogate", &generation.PreconditionError{Err: generation.ErrNoImage})
	}
	in, ok := e.gen.(Interrogator)
	if !ok {
		return "", e.fail("interrogate", ErrUnsupported)
	}

	var caption string
	err := e.coord.Do(ctx, func(ctx context.Context) error {
		e.Emit(EventLoading, interrogateMessage)
		defer e.Emit(EventLoading, "")

		selection, err := doc.SelectionContent()
		if err != nil {
			return err
		}
		caption, err = in.Interrogate(ctx, selection)
		return err
	})
	if err != nil {
		return "", e.fail("interrogate", err)
	}

	e.mu.Lock()
	e.cfg.Generation.Prompt = caption
	e.mu.Unlock()
	e.log.Info().Str("prompt", caption).Msg("prompt set from interrogate")
	e.Emit(EventPromptReady, caption)
	return caption, nil
}

// Upscale resizes the whole document to w x h. Enlargements go through the
// backend when it can upscale; shrinking, and backends that cannot, use the
// configured resize policies locally. The resized image replaces the
// document as a single layer.
func (e *Editor) Upscale(ctx context.Context, w, h int) error {
	doc := e.Document()
	if doc == nil || !doc.HasImage() {
		return e.fail("upscale", &generation.PreconditionError{Err: generation.ErrNoImage})
	}
	if w <= 0 || h <= 0 {
		return e.fail("upscale", fmt.Errorf("invalid size %dx%d", w, h))
	}
	dw, dh := doc.Size()
	flat := doc.Flatten()

	var scaled goimage.Image
	up, ok := e.gen.(Upscaler)
	if ok && (w > dw || h > dh) {
		err := e.coord.Do(ctx, func(ctx context.Context) error {
			e.Emit(EventLoading, upscaleMessage)
			defer e.Emit(EventLoading, "")
			var err error
			scaled, err = up.Upscale(ctx, flat, w, h)
			return err
		})
		if err != nil {
			return e.fail("upscale", err)
		}
	}
	if scaled == nil || scaled.Bounds().Dx() != w || scaled.Bounds().Dy() != h {
		if scaled == nil {
			scaled = flat
		}
		scaled = e.stager.Resize(scaled, w, h)
	}

	name := "image"
	if l, err := doc.ActiveLayer(); err == nil {
		name = l.Name
	}
	e.setDocument(image.NewDocumentFromLayer(image.NewLayer(name, scaled)), "")
	e.log.Info().Int("from_width", dw).Int("from_height", dh).Int("width", w).Int("height", h).Msg("image resized")
	e.Emit(EventImageResized, goimage.Pt(w, h))
	return nil
}

// fail reports err for op. A request rejected because another one is
// running belongs to that request's caller only, so it is returned without
// an event.
func (e *Editor) fail(op string, err error) error {
	if errors.Is(err, generation.ErrInFlight) {
		e.log.Warn().Str("op", op).Msg("rejected, another request is running")
		return err
	}
	e.log.Error().Err(err).Str("op", op).Msg("operation failed")
	e.Emit(EventGenerationFailed, ErrorReport{Op: op, Err: err})
	return err
}
