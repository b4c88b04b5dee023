// Package renderer adapts an optional host audio renderer into a
// reference-counted bridge shared by all recording sessions.
package renderer

import (
	"sync"

	"github.com/tphakala/framebridge/internal/audiocore"
	"github.com/tphakala/framebridge/internal/errors"
	"github.com/tphakala/framebridge/internal/logger"
	"github.com/tphakala/framebridge/internal/observability/metrics"
)

const componentRenderer = "audiocore.renderer"

// ErrUnavailable is returned by Render when the host exposes no renderer
var ErrUnavailable = errors.NewStd("host audio renderer unavailable")

// Renderer is the host capability the bridge drives. Render must fill exactly
// SampleFrameCountForCaptureFrame() * channels samples.
type Renderer interface {
	Start()
	Stop()
	SampleFrameCountForCaptureFrame() uint
	Render(buf []float32) error
}

// Bridge reference-counts Start/Stop over a host Renderer. When the host has
// no renderer the bridge is inert: every operation is a no-op and Render
// returns ErrUnavailable.
type Bridge struct {
	mu      sync.Mutex
	host    Renderer
	refs    int
	log     logger.Logger
	metrics *metrics.AudioBridgeMetrics
}

// Resolve binds the renderer capability of host once. host may be nil or any
// value; only values implementing Renderer make the bridge available.
func Resolve(host any, log logger.Logger, m *metrics.AudioBridgeMetrics) *Bridge {
	b := &Bridge{
		log:     audiocore.LoggerOr(log, "renderer"),
		metrics: m,
	}
	if r, ok := host.(Renderer); ok && r != nil {
		b.host = r
		b.log.Debug("host audio renderer resolved")
		return b
	}
	b.log.Info("host audio renderer not available, renderer bridge is inert")
	return b
}

// Available reports whether a host renderer was resolved
func (b *Bridge) Available() bool {
	return b.host != nil
}

// Renderer returns the bound host renderer
func (b *Bridge) Renderer() (Renderer, bool) {
	return b.host, b.host != nil
}

// Start increments the reference count and starts the host renderer on the
// first reference
func (b *Bridge) Start() {
	if b.host == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refs++
	if b.refs == 1 {
		b.host.Start()
		b.metrics.RecordRendererTransition(metrics.TransitionStart)
		b.log.Debug("host audio renderer started")
	}
}

// Stop decrements the reference count and stops the host renderer when the
// last reference goes away. Unmatched calls are ignored.
func (b *Bridge) Stop() {
	if b.host == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.refs <= 0 {
		b.log.Debug("ignoring unmatched renderer stop")
		return
	}
	b.refs--
	if b.refs == 0 {
		b.host.Stop()
		b.metrics.RecordRendererTransition(metrics.TransitionStop)
		b.log.Debug("host audio renderer stopped")
	}
}

// RefCount returns the current number of active references
func (b *Bridge) RefCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refs
}

// SampleFrameCountForCaptureFrame returns how many sample frames the host
// rendered for the frame just completed. Inert bridges report 0.
func (b *Bridge) SampleFrameCountForCaptureFrame() uint {
	if b.host == nil {
		return 0
	}
	return b.host.SampleFrameCountForCaptureFrame()
}

// Render fills buf from the host renderer
func (b *Bridge) Render(buf []float32) error {
	if b.host == nil {
		return errors.New(ErrUnavailable).
			Component(componentRenderer).
			Category(errors.CategoryCapability).
			Context("operation", "render").
			Build()
	}
	if err := b.host.Render(buf); err != nil {
		b.metrics.RecordRender(metrics.StatusError)
		return errors.New(err).
			Component(componentRenderer).
			Category(errors.CategoryRenderer).
			Context("operation", "render").
			Context("buffer_samples", len(buf)).
			Build()
	}
	b.metrics.RecordRender(metrics.StatusSuccess)
	return nil
}
