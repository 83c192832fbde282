package app

import (
	"intrapaint/internal/transform"
)

// BeginTransform starts interactive transformation of layer i. The returned
// controller writes every change back into the layer's transform and emits
// EventTransformChanged. Any previous transform session is ended.
func (e *Editor) BeginTransform(i int, opts ...transform.Option) (*transform.Controller, error) {
	doc := e.Document()
	if doc == nil {
		return nil, errNoDocument
	}
	layer, err := doc.Layer(i)
	if err != nil {
		return nil, err
	}
	e.EndTransform()

	opts = append([]transform.Option{transform.WithState(layer.Transform)}, opts...)
	ctl := transform.NewController(layer.Transform.Base(), opts...)
	remove := ctl.OnChange(func(ch transform.Change) {
		layer.Transform = ctl.State()
		e.Emit(EventTransformChanged, ch)
	})

	e.mu.Lock()
	e.controller = ctl
	e.transformLayer = i
	e.removeTransform = remove
	e.mu.Unlock()
	return ctl, nil
}

// TransformController returns the active controller and its layer index, or
// nil and -1 when no layer is being transformed.
func (e *Editor) TransformController() (*transform.Controller, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.controller, e.transformLayer
}

// EndTransform detaches the active controller. The layer keeps its last
// transform.
func (e *Editor) EndTransform() {
	e.mu.Lock()
	remove := e.removeTransform
	e.controller = nil
	e.transformLayer = -1
	e.removeTransform = nil
	e.mu.Unlock()
	if remove != nil {
		remove()
	}
}
