package tap

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/framebridge/internal/audiocore"
	"github.com/tphakala/framebridge/internal/audiocore/renderer"
	"github.com/tphakala/framebridge/internal/errors"
	"github.com/tphakala/framebridge/internal/logger"
	"github.com/tphakala/framebridge/internal/observability/metrics"
)

const (
	componentTap = "audiocore.tap"

	// audioThreadLogInterval limits repeated audio-thread log lines
	audioThreadLogInterval = 10 * time.Second
)

// Options configures an Input
type Options struct {
	Logger        logger.Logger
	Metrics       *metrics.AudioBridgeMetrics
	WarnThreshold int
	MaxBlocks     int
	Overflow      audiocore.OverflowPolicy
}

// Stats is a snapshot of tap activity
type Stats struct {
	Captured     uint64
	Rejected     uint64
	Dropped      uint64
	Warnings     uint64
	Drains       uint64
	PoolCapacity int
	PoolFilled   int
}

// Input is the callback tap input. Lifecycle calls run on the frame goroutine
// and hold mu; the audio thread only touches the node's pool and the atomic
// counters.
type Input struct {
	graph   Graph
	bridge  *renderer.Bridge
	token   audiocore.OwnerToken
	log     logger.Logger
	metrics *metrics.AudioBridgeMetrics
	opts    Options

	mu       sync.Mutex
	state    audiocore.SessionState
	preserve bool
	node     *node
	frame    []float32
	drains   uint64

	captured atomic.Uint64
	rejected atomic.Uint64
	dropped  atomic.Uint64
	warnings atomic.Uint64

	mismatchLog rate.Sometimes
	dropLog     rate.Sometimes
	failureLog  rate.Sometimes
}

var _ audiocore.AudioInput = (*Input)(nil)

// NewInput creates a tap input over graph. bridge is started for sessions that
// preserve audio.
func NewInput(graph Graph, bridge *renderer.Bridge, opts Options) *Input {
	if opts.WarnThreshold <= 0 {
		opts.WarnThreshold = audiocore.DefaultWarnThreshold
	}
	return &Input{
		graph:       graph,
		bridge:      bridge,
		token:       audiocore.NewOwnerToken(),
		log:         audiocore.LoggerOr(opts.Logger, "tap"),
		metrics:     opts.Metrics,
		opts:        opts,
		mismatchLog: rate.Sometimes{First: 1, Interval: audioThreadLogInterval},
		dropLog:     rate.Sometimes{First: 1, Interval: audioThreadLogInterval},
		failureLog:  rate.Sometimes{First: 1, Interval: audioThreadLogInterval},
	}
}

// Token returns the owner token this input claims sessions with
func (in *Input) Token() audiocore.OwnerToken {
	return in.token
}

// BeginRecording reads the tap point format, installs the tap node and starts
// the renderer when the session preserves audio
func (in *Input) BeginRecording(session *audiocore.Session) error {
	if session == nil {
		return audiocore.SessionError(componentTap, "begin_recording")
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if in.state.Active {
		return audiocore.StateError(componentTap, audiocore.ErrAlreadyRecording, "begin_recording")
	}

	info, err := in.graph.TapPoint()
	if err != nil {
		return errors.New(err).
			Component(componentTap).
			Category(errors.CategoryAudioSource).
			Context("operation", "query_tap_point").
			Build()
	}

	channels := info.ChannelCount()
	if channels <= 0 || channels > audiocore.MaxChannels || info.SampleRate <= 0 {
		return errors.Newf("unsupported tap point format").
			Component(componentTap).
			Category(errors.CategoryValidation).
			FormatContext(channels, info.SampleRate).
			Context("channel_mask", fmt.Sprintf("%#x", info.ChannelMask)).
			Build()
	}

	n := &node{
		input: in,
		pool: audiocore.NewBlockPool(audiocore.PoolOptions{
			WarnThreshold: in.opts.WarnThreshold,
			MaxBlocks:     in.opts.MaxBlocks,
			Overflow:      in.opts.Overflow,
		}),
	}
	if err := in.graph.InstallNode(n); err != nil {
		return errors.New(err).
			Component(componentTap).
			Category(errors.CategoryAudioSource).
			Context("operation", "install_node").
			Build()
	}

	in.node = n
	in.frame = nil
	in.drains = 0
	in.state = audiocore.SessionState{
		ChannelCount: uint16(channels),
		SampleRate:   info.SampleRate,
		Active:       true,
	}
	in.resetCounters()

	in.preserve = session.PreserveAudio
	if in.preserve {
		in.bridge.Start()
	}

	in.log.Info("tap input recording started",
		logger.String("session_id", session.ID.String()),
		logger.Int("channels", channels),
		logger.Int("sample_rate", info.SampleRate),
		logger.String("speaker_mode", info.SpeakerMode.String()),
		logger.String("overflow", in.opts.Overflow.String()),
		logger.Bool("preserve_audio", in.preserve))
	return nil
}

// NewFrameReady drains every block captured since the previous frame into
// MainBuffer. Inputs that do not own the session return without touching it.
// A drained sample count that is not a multiple of the channel count panics.
func (in *Input) NewFrameReady(session *audiocore.Session) error {
	if session == nil {
		return audiocore.SessionError(componentTap, "new_frame_ready")
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if !in.state.Active {
		return audiocore.StateError(componentTap, audiocore.ErrNotRecording, "new_frame_ready")
	}
	if !session.Claim(in.token) {
		in.log.Trace("session owned by another input, skipping frame",
			logger.String("session_id", session.ID.String()))
		return nil
	}

	start := time.Now()
	frame, drained := in.node.pool.Drain(in.frame)
	in.frame = frame

	channels := int(in.state.ChannelCount)
	if drained.Samples%channels != 0 {
		ee := errors.Newf("drained %d samples not divisible by %d channels", drained.Samples, channels).
			Component(componentTap).
			Category(errors.CategoryInvariant).
			Priority(errors.PriorityCritical).
			FormatContext(channels, in.state.SampleRate).
			Context("blocks", drained.Blocks).
			Build()
		errors.Report(ee)
		in.log.Error("frame drain invariant violated", logger.Error(ee))
		panic(ee)
	}

	sampleFrames := uint64(drained.Samples / channels)
	in.state.TotalSampleFramesCaptured += sampleFrames
	in.drains++

	in.metrics.RecordDrain(metrics.InputTap, sampleFrames, time.Since(start).Seconds())
	in.metrics.UpdatePool(metrics.InputTap, drained.Capacity, 0)
	return nil
}

// EndRecording removes the tap node, stops the renderer if BeginRecording
// started it and releases the pool. Node removal failures are logged and
// swallowed. Calling it while not recording returns a state error.
func (in *Input) EndRecording(session *audiocore.Session) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if !in.state.Active {
		in.log.Warn("end recording called without an active session")
		return audiocore.StateError(componentTap, audiocore.ErrNotRecording, "end_recording")
	}

	if session != nil {
		session.Release(in.token)
	}

	if err := in.graph.RemoveNode(in.node); err != nil {
		in.log.Warn("tap node removal failed, host may have released it already",
			logger.Error(err))
	}
	if in.preserve {
		in.bridge.Stop()
	}

	in.node.pool.Release()
	in.node = nil
	in.frame = nil
	in.preserve = false
	in.state.Active = false
	in.metrics.UpdatePool(metrics.InputTap, 0, 0)

	in.log.Info("tap input recording ended",
		logger.Uint64("sample_frames_captured", in.state.TotalSampleFramesCaptured),
		logger.Uint64("blocks_captured", in.captured.Load()),
		logger.Uint64("blocks_rejected", in.rejected.Load()),
		logger.Uint64("blocks_dropped", in.dropped.Load()),
		logger.Uint64("drains", in.drains))
	return nil
}

func (in *Input) ChannelCount() uint16 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state.ChannelCount
}

func (in *Input) SampleRate() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state.SampleRate
}

// MainBuffer returns the samples drained for the last frame
func (in *Input) MainBuffer() []float32 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.frame
}

func (in *Input) TotalSampleFramesCaptured() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state.TotalSampleFramesCaptured
}

func (in *Input) State() audiocore.SessionState {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

// Stats returns a snapshot of tap activity
func (in *Input) Stats() Stats {
	in.mu.Lock()
	defer in.mu.Unlock()

	stats := Stats{
		Captured: in.captured.Load(),
		Rejected: in.rejected.Load(),
		Dropped:  in.dropped.Load(),
		Warnings: in.warnings.Load(),
		Drains:   in.drains,
	}
	if in.node != nil {
		stats.PoolCapacity = in.node.pool.Capacity()
		stats.PoolFilled = in.node.pool.Filled()
	}
	return stats
}

func (in *Input) resetCounters() {
	in.captured.Store(0)
	in.rejected.Store(0)
	in.dropped.Store(0)
	in.warnings.Store(0)
}
