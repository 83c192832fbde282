package app

import (
	"context"
	goimage "image"

	"intrapaint/internal/config"
	"intrapaint/internal/generation"
	"intrapaint/internal/image"
	"intrapaint/internal/staging"
)

const loadingMessage = "Loading..."

// Generate stages the generation area, runs one request and maps every
// returned image back to the area. Progress and samples are reported as
// events on the calling goroutine. A call made while another request is
// running returns a *generation.PreconditionError and emits nothing; the
// samples and loading message of the running request are left alone. Once
// a request is dispatched its loading message is always cleared before
// Generate returns.
func (e *Editor) Generate(ctx context.Context) error {
	if e.coord.Busy() {
		return e.fail("generate", &generation.PreconditionError{Err: generation.ErrInFlight})
	}

	dispatched := false
	defer func() {
		if dispatched {
			e.Emit(EventLoading, "")
		}
	}()

	n, err := e.generate(ctx, func() {
		dispatched = true
		e.Emit(EventLoading, loadingMessage)
	})
	if err != nil {
		return e.fail("generate", err)
	}
	e.Emit(EventGenerationComplete, n)
	return nil
}

func (e *Editor) generate(ctx context.Context, onDispatch func()) (int, error) {
	doc := e.Document()
	if doc == nil || !doc.HasImage() {
		return 0, &generation.PreconditionError{Err: generation.ErrNoImage}
	}
	cfg := e.Config()
	mode := cfg.EditMode()

	prepared, err := stage(doc, mode, e.stager)
	if err != nil {
		return 0, err
	}

	req := generation.Request{
		Mode:       mode,
		Source:     prepared.Image,
		BatchSize:  cfg.Generation.BatchSize,
		BatchCount: cfg.Generation.BatchCount,
		Params:     cfg.Params(),
	}
	if prepared.Mask != nil {
		req.Mask = staging.BinaryMask(prepared.Mask)
	}

	e.log.Debug().Str("mode", mode.String()).Stringer("area", doc.GenerationArea()).
		Stringer("staged", prepared.Image.Bounds()).Msg("staged generation area")

	_, err = e.coord.Generate(ctx, req, generation.Handlers{
		OnPhase: func(p generation.Phase) {
			if p != generation.PhaseDispatched {
				return
			}
			e.mu.Lock()
			e.samples = nil
			e.mu.Unlock()
			onDispatch()
		},
		OnStatus: func(s generation.Status) {
			e.Emit(EventLoading, s.Text)
			e.Emit(EventProgress, s)
		},
		OnImage: func(img goimage.Image, index int) {
			finished := e.stager.Finish(prepared, img)
			e.storeSample(finished, index)
			e.Emit(EventSampleReady, Sample{Index: index, Image: finished})
		},
	})
	if err != nil {
		return 0, err
	}
	count := 0
	for _, s := range e.Samples() {
		if s != nil {
			count++
		}
	}
	return count, nil
}

// Stage runs the staging pipeline over the generation area of doc without
// generating anything. It returns the pixels a backend would receive.
func Stage(doc *image.Document, cfg config.Config) (*staging.Prepared, error) {
	if doc == nil || !doc.HasImage() {
		return nil, &generation.PreconditionError{Err: generation.ErrNoImage}
	}
	return stage(doc, cfg.EditMode(), staging.NewStager(cfg.StagerOptions()))
}

func stage(doc *image.Document, mode generation.EditMode, stager *staging.Stager) (*staging.Prepared, error) {
	selection, err := doc.SelectionContent()
	if err != nil {
		return nil, err
	}
	in := staging.Inputs{
		Selection: selection,
		Sketch:    doc.Sketch().Image(),
		HasSketch: doc.Sketch().HasContent(),
	}
	if mode == generation.Inpaint {
		in.Mask = doc.Mask().Image()
	}
	return stager.Prepare(in)
}
