package generation

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"intrapaint/internal/staging"
)

// Options tunes polling. Zero values take the package defaults.
type Options struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	MaxErrors   int
	Logger      *zerolog.Logger
	Now         func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MinInterval <= 0 {
		o.MinInterval = DefaultMinInterval
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = DefaultMaxInterval
	}
	if o.MaxErrors <= 0 {
		o.MaxErrors = DefaultMaxErrors
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Handlers receive events on the goroutine that called Generate.
// Any of them may be nil.
type Handlers struct {
	OnStatus func(Status)
	OnImage  func(img image.Image, index int)
	OnPhase  func(Phase)
}

func (h Handlers) status(s Status) {
	if h.OnStatus != nil {
		h.OnStatus(s)
	}
}

func (h Handlers) image(img image.Image, index int) {
	if h.OnImage != nil {
		h.OnImage(img, index)
	}
}

func (h Handlers) phase(p Phase) {
	if h.OnPhase != nil {
		h.OnPhase(p)
	}
}

// Coordinator runs one generation request at a time against a Generator.
type Coordinator struct {
	gen  Generator
	opts Options
	log  zerolog.Logger

	mu       sync.Mutex
	inFlight bool
	phase    Phase
}

// NewCoordinator returns a coordinator for gen.
func NewCoordinator(gen Generator, opts Options) (*Coordinator, error) {
	if gen == nil {
		return nil, ErrNoGenerator
	}
	opts = opts.withDefaults()
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Coordinator{
		gen:  gen,
		opts: opts,
		log:  log.With().Str("component", "generation").Logger(),
	}, nil
}

// Phase returns the lifecycle phase of the current request.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Busy reports whether a request is in flight.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

func (c *Coordinator) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return false
	}
	c.inFlight = true
	return true
}

func (c *Coordinator) release() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

// Do runs fn in the coordinator's single request slot, for backend
// operations other than generation such as interrogation or upscaling.
// While fn runs, Generate and Do calls are rejected with ErrInFlight, and fn
// is not started while a request is running.
func (c *Coordinator) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !c.acquire() {
		return precondition(ErrInFlight)
	}
	defer c.release()
	return fn(ctx)
}

func (c *Coordinator) setPhase(p Phase, h Handlers) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
	h.phase(p)
}

type delivery struct {
	img   image.Image
	index int
}

// Generate validates req, dispatches it to a background goroutine and polls
// progress until the work finishes. It blocks until then. Images are passed
// to h.OnImage in backend order as they arrive and are also returned.
//
// Precondition failures return a *PreconditionError without contacting the
// backend for generation. A failure of the background work is returned as a
// *FatalGenerationError, regardless of how polling went.
func (c *Coordinator) Generate(ctx context.Context, req Request, h Handlers) (*Result, error) {
	req = req.Normalized()
	if req.Source == nil {
		return nil, precondition(ErrNoImage)
	}
	if req.Mode == Inpaint && !staging.MaskHasContent(req.Mask) {
		return nil, precondition(ErrEmptyMask)
	}

	if !c.acquire() {
		return nil, precondition(ErrInFlight)
	}
	defer c.release()

	log := c.log.With().Str("request_id", req.ID.String()).Str("mode", req.Mode.String()).Logger()

	initial, err := c.gen.CheckProgress(ctx)
	if err != nil {
		return nil, &TransientBackendError{Op: "checking backend progress", Err: err}
	}
	if initial.CurrentImageActive {
		return nil, precondition(ErrBackendBusy)
	}

	c.setPhase(PhaseDispatched, h)
	defer c.setPhase(PhaseIdle, h)
	log.Info().Int("expected", req.ExpectedOutputs()).Msg("generation dispatched")

	res, err := c.run(ctx, req, h, log)
	if err != nil {
		c.setPhase(PhaseFailed, h)
		if ctxErr := ctx.Err(); ctxErr != nil {
			log.Warn().Err(ctxErr).Msg("generation cancelled")
			return res, ctxErr
		}
		log.Error().Err(err).Msg("generation failed")
		return res, &FatalGenerationError{RequestID: req.ID.String(), Err: err}
	}
	c.setPhase(PhaseCompleted, h)
	log.Info().Int("images", len(res.Images)).Msg("generation completed")
	return res, nil
}

// run owns the polling loop. The worker sends images on an unbuffered
// channel and closes done after writing workErr and info.
func (c *Coordinator) run(ctx context.Context, req Request, h Handlers, log zerolog.Logger) (*Result, error) {
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan delivery)
	done := make(chan struct{})
	var (
		workErr error
		info    map[string]any
	)

	go func() {
		defer close(done)
		emit := func(img image.Image, index int) {
			select {
			case results <- delivery{img: img, index: index}:
			case <-workCtx.Done():
			}
		}
		if sg, ok := c.gen.(StreamingGenerator); ok {
			info, workErr = sg.GenerateStream(workCtx, req, emit)
			return
		}
		out, err := c.gen.Generate(workCtx, req)
		if err != nil {
			workErr = err
			return
		}
		info = out.Info
		for i, img := range out.Images {
			emit(img, i)
		}
	}()

	res := &Result{}
	tracker := etaTracker{now: c.opts.Now}
	errorCount := 0
	polling := true
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		var tick <-chan time.Time
		if polling {
			if timer == nil {
				timer = time.NewTimer(BackoffInterval(c.opts.MinInterval, c.opts.MaxInterval, errorCount))
			}
			tick = timer.C
		}

		select {
		case d := <-results:
			res.place(d.img, d.index)
			h.image(d.img, d.index)

		case <-done:
			res.compact()
			res.Info = info
			return res, workErr

		case <-tick:
			timer = nil
			p, err := c.gen.CheckProgress(ctx)
			if err != nil {
				errorCount++
				log.Warn().Err(err).Int("error_count", errorCount).Msg("progress check failed")
				if errorCount > c.opts.MaxErrors {
					log.Error().Int("max_errors", c.opts.MaxErrors).Msg("too many progress errors, waiting for result without polling")
					polling = false
				}
				continue
			}
			errorCount = 0
			h.status(tracker.status(p))

		case <-ctx.Done():
			// The worker may still be blocked in the backend; it exits on
			// its own once the call returns.
			return res, ctx.Err()
		}
	}
}

// place stores img at index. Streaming backends may send an updated image
// for an index they already delivered; the later one replaces it.
func (r *Result) place(img image.Image, index int) {
	if index < 0 {
		index = len(r.Images)
	}
	for len(r.Images) <= index {
		r.Images = append(r.Images, nil)
	}
	r.Images[index] = img
}

// compact drops slots a streaming backend never filled.
func (r *Result) compact() {
	out := r.Images[:0]
	for _, img := range r.Images {
		if img != nil {
			out = append(out, img)
		}
	}
	r.Images = out
}
