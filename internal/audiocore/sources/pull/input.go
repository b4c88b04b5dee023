// Package pull implements the renderer pull input: once per frame it asks the
// host renderer how many sample frames were produced and renders them.
package pull

import (
	"sync"

	"github.com/tphakala/framebridge/internal/audiocore"
	"github.com/tphakala/framebridge/internal/audiocore/renderer"
	"github.com/tphakala/framebridge/internal/errors"
	"github.com/tphakala/framebridge/internal/logger"
	"github.com/tphakala/framebridge/internal/observability/metrics"
)

const componentPull = "audiocore.pull"

// HostAudio exposes the host's current audio settings
type HostAudio interface {
	SpeakerMode() audiocore.SpeakerMode
	SampleRate() int
}

// Options configures an Input
type Options struct {
	Logger  logger.Logger
	Metrics *metrics.AudioBridgeMetrics
}

// Stats is a snapshot of pull activity
type Stats struct {
	Frames        uint64
	Renders       uint64
	RenderErrors  uint64
	Reallocations uint64
	BufferSamples int
}

// Input renders host audio on demand. All lifecycle calls run on the frame
// goroutine; the mutex only guards readers such as State and Stats.
type Input struct {
	bridge  *renderer.Bridge
	host    HostAudio
	token   audiocore.OwnerToken
	log     logger.Logger
	metrics *metrics.AudioBridgeMetrics

	mu       sync.Mutex
	state    audiocore.SessionState
	preserve bool
	buffer   []float32
	stats    Stats
}

var _ audiocore.AudioInput = (*Input)(nil)

// NewInput creates a pull input over bridge. host supplies the speaker mode
// and sample rate read at BeginRecording.
func NewInput(bridge *renderer.Bridge, host HostAudio, opts Options) *Input {
	return &Input{
		bridge:  bridge,
		host:    host,
		token:   audiocore.NewOwnerToken(),
		log:     audiocore.LoggerOr(opts.Logger, "pull"),
		metrics: opts.Metrics,
	}
}

// Token returns the owner token this input claims sessions with
func (in *Input) Token() audiocore.OwnerToken {
	return in.token
}

// BeginRecording derives the channel count from the host speaker mode and
// starts the renderer when the session preserves audio
func (in *Input) BeginRecording(session *audiocore.Session) error {
	if session == nil {
		return audiocore.SessionError(componentPull, "begin_recording")
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if in.state.Active {
		return audiocore.StateError(componentPull, audiocore.ErrAlreadyRecording, "begin_recording")
	}

	mode := in.host.SpeakerMode()
	in.state = audiocore.SessionState{
		ChannelCount: mode.ChannelCount(),
		SampleRate:   in.host.SampleRate(),
		Active:       true,
	}
	in.preserve = session.PreserveAudio
	in.buffer = nil
	in.stats = Stats{}

	if in.preserve {
		in.bridge.Start()
	}

	in.log.Info("pull input recording started",
		logger.String("session_id", session.ID.String()),
		logger.String("speaker_mode", mode.String()),
		logger.Int("channels", int(in.state.ChannelCount)),
		logger.Int("sample_rate", in.state.SampleRate),
		logger.Bool("preserve_audio", in.preserve),
		logger.Bool("renderer_available", in.bridge.Available()))
	return nil
}

// NewFrameReady renders the samples of the frame just completed into the
// persistent buffer. Inputs that do not own the session return without
// touching it.
func (in *Input) NewFrameReady(session *audiocore.Session) error {
	if session == nil {
		return audiocore.SessionError(componentPull, "new_frame_ready")
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if !in.state.Active {
		return audiocore.StateError(componentPull, audiocore.ErrNotRecording, "new_frame_ready")
	}
	if !session.Claim(in.token) {
		in.log.Trace("session owned by another input, skipping frame",
			logger.String("session_id", session.ID.String()))
		return nil
	}

	frames := in.bridge.SampleFrameCountForCaptureFrame()
	required := int(frames) * int(in.state.ChannelCount)
	if required != len(in.buffer) {
		in.buffer = make([]float32, required)
		in.stats.Reallocations++
		in.metrics.RecordBufferReallocation(metrics.InputPull)
		in.log.Debug("frame buffer reallocated",
			logger.Uint64("sample_frames", uint64(frames)),
			logger.Int("samples", required))
	}

	if required > 0 {
		if err := in.bridge.Render(in.buffer); err != nil {
			in.stats.RenderErrors++
			return errors.New(err).
				Component(componentPull).
				Category(errors.CategoryRenderer).
				FormatContext(int(in.state.ChannelCount), in.state.SampleRate).
				Context("sample_frames", frames).
				Build()
		}
		in.stats.Renders++
	}

	in.state.TotalSampleFramesCaptured += uint64(frames)
	in.stats.Frames++
	in.stats.BufferSamples = len(in.buffer)
	return nil
}

// EndRecording releases the buffer and session ownership and stops the
// renderer if BeginRecording started it. It is a no-op when not recording.
func (in *Input) EndRecording(session *audiocore.Session) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if session != nil {
		session.Release(in.token)
	}
	if !in.state.Active {
		return nil
	}

	if in.preserve {
		in.bridge.Stop()
	}
	in.buffer = nil
	in.preserve = false
	in.state.Active = false

	in.log.Info("pull input recording ended",
		logger.Uint64("sample_frames_captured", in.state.TotalSampleFramesCaptured),
		logger.Uint64("frames", in.stats.Frames))
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

// MainBuffer returns the samples rendered for the last frame
func (in *Input) MainBuffer() []float32 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.buffer
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

// Stats returns a snapshot of render activity
func (in *Input) Stats() Stats {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.stats
}
