// Package metrics provides audio bridge metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AudioBridgeMetrics contains Prometheus metrics for the audio inputs and
// the renderer bridge. All methods are safe on a nil receiver so inputs can
// run without a registry.
type AudioBridgeMetrics struct {
	registry *prometheus.Registry

	// Tap producer metrics
	blocksCaptured    *prometheus.CounterVec
	blocksRejected    *prometheus.CounterVec
	blocksDropped     *prometheus.CounterVec
	thresholdWarnings *prometheus.CounterVec

	// Block pool metrics
	poolCapacity *prometheus.GaugeVec
	poolFilled   *prometheus.GaugeVec

	// Frame consumer metrics
	drains              *prometheus.CounterVec
	drainedSampleFrames *prometheus.CounterVec
	drainDuration       *prometheus.HistogramVec
	bufferReallocations *prometheus.CounterVec

	// Renderer metrics
	rendererTransitions *prometheus.CounterVec
	renders             *prometheus.CounterVec

	// Recording pipeline metrics
	framesWritten *prometheus.CounterVec

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewAudioBridgeMetrics creates and registers new audio bridge metrics
func NewAudioBridgeMetrics(registry *prometheus.Registry) (*AudioBridgeMetrics, error) {
	m := &AudioBridgeMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *AudioBridgeMetrics) initMetrics() {
	m.blocksCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framebridge_blocks_captured_total",
			Help: "Total number of audio blocks accepted from the audio thread",
		},
		[]string{"input"},
	)

	m.blocksRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framebridge_blocks_rejected_total",
			Help: "Total number of audio blocks refused by the tap callback",
		},
		[]string{"input", "reason"},
	)

	m.blocksDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framebridge_blocks_dropped_total",
			Help: "Total number of audio blocks dropped because the pool was at its cap",
		},
		[]string{"input"},
	)

	m.thresholdWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framebridge_pool_threshold_warnings_total",
			Help: "Total number of times the filled block count crossed the warning threshold",
		},
		[]string{"input"},
	)

	m.poolCapacity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "framebridge_pool_capacity_blocks",
			Help: "Physical number of slots in the block pool",
		},
		[]string{"input"},
	)

	m.poolFilled = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "framebridge_pool_filled_blocks",
			Help: "Number of filled slots in the block pool at the last update",
		},
		[]string{"input"},
	)

	m.drains = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framebridge_drains_total",
			Help: "Total number of per-frame drains",
		},
		[]string{"input"},
	)

	m.drainedSampleFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framebridge_drained_sample_frames_total",
			Help: "Total number of sample frames handed to the frame consumer",
		},
		[]string{"input"},
	)

	m.drainDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "framebridge_drain_duration_seconds",
			Help:    "Time spent holding the pool lock while draining",
			Buckets: prometheus.ExponentialBuckets(0.000005, 2, 14), // 5us to ~40ms
		},
		[]string{"input"},
	)

	m.bufferReallocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framebridge_frame_buffer_reallocations_total",
			Help: "Total number of frame buffer reallocations",
		},
		[]string{"input"},
	)

	m.rendererTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framebridge_renderer_transitions_total",
			Help: "Total number of host renderer start and stop calls",
		},
		[]string{"transition"},
	)

	m.renders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framebridge_renders_total",
			Help: "Total number of pull renders",
		},
		[]string{"status"},
	)

	m.framesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framebridge_frames_written_total",
			Help: "Total number of frame buffers written to a sink",
		},
		[]string{"sink"},
	)

	m.collectors = []prometheus.Collector{
		m.blocksCaptured,
		m.blocksRejected,
		m.blocksDropped,
		m.thresholdWarnings,
		m.poolCapacity,
		m.poolFilled,
		m.drains,
		m.drainedSampleFrames,
		m.drainDuration,
		m.bufferReallocations,
		m.rendererTransitions,
		m.renders,
		m.framesWritten,
	}
}

// Describe implements the prometheus.Collector interface
func (m *AudioBridgeMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface
func (m *AudioBridgeMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// Tap producer methods

func (m *AudioBridgeMetrics) RecordBlockCaptured(input string) {
	if m == nil {
		return
	}
	m.blocksCaptured.WithLabelValues(input).Inc()
}

func (m *AudioBridgeMetrics) RecordBlockRejected(input, reason string) {
	if m == nil {
		return
	}
	m.blocksRejected.WithLabelValues(input, reason).Inc()
}

func (m *AudioBridgeMetrics) RecordBlockDropped(input string) {
	if m == nil {
		return
	}
	m.blocksDropped.WithLabelValues(input).Inc()
}

func (m *AudioBridgeMetrics) RecordThresholdWarning(input string) {
	if m == nil {
		return
	}
	m.thresholdWarnings.WithLabelValues(input).Inc()
}

// Block pool methods

func (m *AudioBridgeMetrics) UpdatePool(input string, capacity, filled int) {
	if m == nil {
		return
	}
	m.poolCapacity.WithLabelValues(input).Set(float64(capacity))
	m.poolFilled.WithLabelValues(input).Set(float64(filled))
}

// Frame consumer methods

// RecordDrain records one per-frame drain and the sample frames it produced
func (m *AudioBridgeMetrics) RecordDrain(input string, sampleFrames uint64, seconds float64) {
	if m == nil {
		return
	}
	m.drains.WithLabelValues(input).Inc()
	m.drainedSampleFrames.WithLabelValues(input).Add(float64(sampleFrames))
	m.drainDuration.WithLabelValues(input).Observe(seconds)
}

func (m *AudioBridgeMetrics) RecordBufferReallocation(input string) {
	if m == nil {
		return
	}
	m.bufferReallocations.WithLabelValues(input).Inc()
}

// Renderer methods

func (m *AudioBridgeMetrics) RecordRendererTransition(transition string) {
	if m == nil {
		return
	}
	m.rendererTransitions.WithLabelValues(transition).Inc()
}

func (m *AudioBridgeMetrics) RecordRender(status string) {
	if m == nil {
		return
	}
	m.renders.WithLabelValues(status).Inc()
}

// Recording pipeline methods

func (m *AudioBridgeMetrics) RecordFrameWritten(sink string) {
	if m == nil {
		return
	}
	m.framesWritten.WithLabelValues(sink).Inc()
}
