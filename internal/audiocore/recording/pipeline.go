// Package recording drives an AudioInput at video frame rate and forwards
// every frame buffer to a sink. It owns the session: BeginRecording once,
// NewFrameReady per tick, EndRecording always.
package recording

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tphakala/framebridge/internal/audiocore"
	"github.com/tphakala/framebridge/internal/audiocore/export"
	"github.com/tphakala/framebridge/internal/errors"
	"github.com/tphakala/framebridge/internal/logger"
	"github.com/tphakala/framebridge/internal/observability/metrics"
)

const componentRecording = "audiocore.recording"

// Config controls one recording run
type Config struct {
	FrameInterval time.Duration // time between NewFrameReady calls
	Duration      time.Duration // 0 runs until ctx is cancelled
	MaxFrames     uint64        // 0 means unlimited
	PreserveAudio bool
}

// Options carries optional collaborators
type Options struct {
	Logger  logger.Logger
	Metrics *metrics.AudioBridgeMetrics
}

// Stats summarizes a run
type Stats struct {
	Frames       uint64
	SampleFrames uint64
	Samples      uint64
	Channels     uint16
	SampleRate   int
}

// Pipeline is a single-use session owner
type Pipeline struct {
	input   audiocore.AudioInput
	sink    export.FrameSink
	cfg     Config
	log     logger.Logger
	metrics *metrics.AudioBridgeMetrics

	running atomic.Bool
	frames  atomic.Uint64
	samples atomic.Uint64
}

// New creates a pipeline from input to sink
func New(input audiocore.AudioInput, sink export.FrameSink, cfg Config, opts Options) *Pipeline {
	return &Pipeline{
		input:   input,
		sink:    sink,
		cfg:     cfg,
		log:     audiocore.LoggerOr(opts.Logger, "recording"),
		metrics: opts.Metrics,
	}
}

// Run records until ctx is done, the duration elapses or MaxFrames frames
// were written. Cancellation is a normal stop. Audio captured after the last
// tick is flushed with one final frame before EndRecording.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	if p.cfg.FrameInterval <= 0 {
		return errors.Newf("frame interval must be positive, got %s", p.cfg.FrameInterval).
			Component(componentRecording).
			Category(errors.CategoryValidation).
			Build()
	}
	if !p.running.CompareAndSwap(false, true) {
		return errors.New(audiocore.ErrAlreadyRecording).
			Component(componentRecording).
			Category(errors.CategoryState).
			Context("operation", "run").
			Build()
	}

	session := audiocore.NewSession(p.cfg.PreserveAudio)
	log := p.log.With(logger.String("session_id", session.ID.String()))

	if err := p.input.BeginRecording(session); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, p.finish(session, log))
	}()

	channels, rate := p.input.ChannelCount(), p.input.SampleRate()
	if err := p.sink.Begin(channels, rate); err != nil {
		return err
	}

	log.Info("recording started",
		logger.Int("channels", int(channels)),
		logger.Int("sample_rate", rate),
		logger.Duration("frame_interval", p.cfg.FrameInterval),
		logger.Duration("duration", p.cfg.Duration),
		logger.Bool("preserve_audio", p.cfg.PreserveAudio))

	if p.cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Duration)
		defer cancel()
	}

	ticker := time.NewTicker(p.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("recording stopping", logger.String("reason", context.Cause(ctx).Error()))
			return p.frame(session)
		case <-ticker.C:
			if err := p.frame(session); err != nil {
				return err
			}
			if p.cfg.MaxFrames > 0 && p.frames.Load() >= p.cfg.MaxFrames {
				return nil
			}
		}
	}
}

// frame runs one NewFrameReady and hands the buffer to the sink
func (p *Pipeline) frame(session *audiocore.Session) error {
	if err := p.input.NewFrameReady(session); err != nil {
		return err
	}
	buf := p.input.MainBuffer()
	if err := p.sink.WriteFrame(buf); err != nil {
		return err
	}
	p.frames.Add(1)
	p.samples.Add(uint64(len(buf)))
	p.metrics.RecordFrameWritten(string(p.sink.Format()))
	return nil
}

// finish ends the session and closes the sink. Both always run.
func (p *Pipeline) finish(session *audiocore.Session, log logger.Logger) error {
	endErr := p.input.EndRecording(session)
	if endErr != nil {
		log.Warn("end recording failed", logger.Error(endErr))
	}
	closeErr := p.sink.Close()
	if closeErr != nil {
		log.Error("failed to close frame sink", logger.Error(closeErr))
	}

	stats := p.Stats()
	log.Info("recording finished",
		logger.Uint64("frames", stats.Frames),
		logger.Uint64("sample_frames", stats.SampleFrames),
		logger.Uint64("samples", stats.Samples))
	return errors.Join(endErr, closeErr)
}

// Stats returns counters of the current or last run
func (p *Pipeline) Stats() Stats {
	state := p.input.State()
	return Stats{
		Frames:       p.frames.Load(),
		SampleFrames: state.TotalSampleFramesCaptured,
		Samples:      p.samples.Load(),
		Channels:     state.ChannelCount,
		SampleRate:   state.SampleRate,
	}
}
