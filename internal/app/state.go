// Package app ties the document, staging, generation and transform packages
// into one editing session and reports what happens through events.
package app

import (
	"errors"
	"fmt"
	goimage "image"
	"sync"

	"github.com/rs/zerolog"

	"intrapaint/internal/config"
	"intrapaint/internal/generation"
	"intrapaint/internal/image"
	"intrapaint/internal/logging"
	"intrapaint/internal/staging"
	"intrapaint/internal/transform"
)

// EventType identifies editor events.
type EventType int

const (
	EventImageLoaded EventType = iota
	// EventLoading carries the loading message; "" clears it.
	EventLoading
	EventProgress
	EventSampleReady
	EventGenerationFailed
	EventGenerationComplete
	EventSelectionApplied
	EventGenerationAreaChanged
	EventTransformChanged
	EventPromptReady
	EventImageResized
)

// EventListener is called when an event occurs. Event data by type:
//
//	EventImageLoaded           string (path, may be empty)
//	EventLoading               string
//	EventProgress              generation.Status
//	EventSampleReady           Sample
//	EventGenerationFailed      ErrorReport
//	EventGenerationComplete    int (number of samples)
//	EventSelectionApplied      int (sample index)
//	EventGenerationAreaChanged image.Rectangle
//	EventTransformChanged      transform.Change
//	EventPromptReady           string (interrogate caption)
//	EventImageResized          image.Point (new document size)
type EventListener func(data any)

// Sample is a finished image, already mapped back to the generation area.
type Sample struct {
	Index int
	Image goimage.Image
}

// ErrorReport describes a failed operation for display.
type ErrorReport struct {
	Op  string
	Err error
}

func (r ErrorReport) Error() string { return fmt.Sprintf("%s: %v", r.Op, r.Err) }

// ErrNoSample is returned by ApplySample for an index with no image.
var ErrNoSample = errors.New("no sample at that index")

var errNoDocument = errors.New("no document loaded")

// Editor is one editing session: a document, the generation pipeline and
// the event listeners observing it.
type Editor struct {
	mu sync.RWMutex

	cfg    config.Config
	doc    *image.Document
	gen    generation.Generator
	coord  *generation.Coordinator
	stager *staging.Stager
	log    zerolog.Logger

	samples []goimage.Image

	transformLayer  int
	controller      *transform.Controller
	removeTransform func()

	listeners map[EventType][]EventListener
}

// NewEditor creates a session that generates through gen.
func NewEditor(gen generation.Generator, cfg config.Config, log *zerolog.Logger) (*Editor, error) {
	l := logging.OrNop(log)
	opts := cfg.CoordinatorOptions()
	opts.Logger = l
	coord, err := generation.NewCoordinator(gen, opts)
	if err != nil {
		return nil, err
	}
	return &Editor{
		cfg:            cfg,
		gen:            gen,
		coord:          coord,
		stager:         staging.NewStager(cfg.StagerOptions()),
		log:            l.With().Str("component", "editor").Logger(),
		transformLayer: -1,
		listeners:      make(map[EventType][]EventListener),
	}, nil
}

// On registers an event listener for the specified event type.
func (e *Editor) On(event EventType, listener EventListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[event] = append(e.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (e *Editor) Emit(event EventType, data any) {
	e.mu.RLock()
	listeners := e.listeners[event]
	e.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// Config returns the session configuration.
func (e *Editor) Config() config.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Document returns the current document, or nil before an image is loaded.
func (e *Editor) Document() *image.Document {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.doc
}

// Busy reports whether a generation request is running.
func (e *Editor) Busy() bool { return e.coord.Busy() }

// LoadImage opens path as a new single-layer document.
func (e *Editor) LoadImage(path string) error {
	layer, err := image.Load(path)
	if err != nil {
		return err
	}
	e.setDocument(image.NewDocumentFromLayer(layer), path)
	return nil
}

// SetDocument replaces the current document.
func (e *Editor) SetDocument(doc *image.Document) {
	e.setDocument(doc, "")
}

func (e *Editor) setDocument(doc *image.Document, path string) {
	e.EndTransform()
	if maxDim := e.cfg.Generation.MaxEditSize; maxDim > 0 {
		w, h := doc.Size()
		_ = doc.SetGenerationArea(goimage.Rect(0, 0, min(w, maxDim), min(h, maxDim)))
	}
	e.mu.Lock()
	e.doc = doc
	e.samples = nil
	e.mu.Unlock()
	e.log.Info().Str("path", path).Msg("document loaded")
	e.Emit(EventImageLoaded, path)
}

// SetGenerationArea moves the generation area of the current document.
func (e *Editor) SetGenerationArea(r goimage.Rectangle) error {
	doc := e.Document()
	if doc == nil {
		return errNoDocument
	}
	if err := doc.SetGenerationArea(r); err != nil {
		return err
	}
	e.Emit(EventGenerationAreaChanged, doc.GenerationArea())
	return nil
}

// Samples returns the images produced by the last generation, by index.
// Slots a backend never filled are nil.
func (e *Editor) Samples() []goimage.Image {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]goimage.Image, len(e.samples))
	copy(out, e.samples)
	return out
}

// ApplySample commits sample i into the active layer over the generation
// area.
func (e *Editor) ApplySample(i int) error {
	e.mu.RLock()
	doc := e.doc
	var img goimage.Image
	if i >= 0 && i < len(e.samples) {
		img = e.samples[i]
	}
	e.mu.RUnlock()

	if doc == nil {
		return errNoDocument
	}
	if img == nil {
		return fmt.Errorf("%w: %d", ErrNoSample, i)
	}
	if err := doc.ApplySelection(img); err != nil {
		return err
	}
	e.Emit(EventSelectionApplied, i)
	return nil
}

func (e *Editor) storeSample(img goimage.Image, index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 {
		index = len(e.samples)
	}
	for len(e.samples) <= index {
		e.samples = append(e.samples, nil)
	}
	e.samples[index] = img
}
