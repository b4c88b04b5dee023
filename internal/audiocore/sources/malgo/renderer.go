package malgo

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"
	"golang.org/x/time/rate"

	"github.com/tphakala/framebridge/internal/audiocore"
	"github.com/tphakala/framebridge/internal/audiocore/renderer"
	"github.com/tphakala/framebridge/internal/errors"
	"github.com/tphakala/framebridge/internal/logger"
)

const defaultRingSeconds = 2.0

// Renderer captures from a device into a ring buffer and renders on demand.
// Start and Stop run the device; SampleFrameCountForCaptureFrame reports the
// whole sample frames staged since the last Render.
type Renderer struct {
	cfg  Config
	mode audiocore.SpeakerMode
	log  logger.Logger

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	running bool

	ring       *ringbuffer.RingBuffer
	frameBytes int
	rate       int

	overflowBytes atomic.Uint64
	overflowLog   rate.Sometimes
}

var _ renderer.Renderer = (*Renderer)(nil)

// NewRenderer creates a renderer whose channel count follows mode. The device
// is opened by Open and only runs between Start and Stop.
func NewRenderer(cfg Config, mode audiocore.SpeakerMode, log logger.Logger) *Renderer {
	if cfg.RingSeconds <= 0 {
		cfg.RingSeconds = defaultRingSeconds
	}
	cfg.Channels = int(mode.ChannelCount())
	return newRenderer(cfg, mode, log)
}

func newRenderer(cfg Config, mode audiocore.SpeakerMode, log logger.Logger) *Renderer {
	frameBytes := cfg.Channels * bytesPerSample
	ringBytes := int(cfg.RingSeconds*float64(cfg.SampleRate)) * frameBytes
	return &Renderer{
		cfg:         cfg,
		mode:        mode,
		log:         audiocore.LoggerOr(log, "malgo"),
		ring:        ringbuffer.New(ringBytes),
		frameBytes:  frameBytes,
		rate:        cfg.SampleRate,
		overflowLog: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Open initializes the capture device without starting it
func (r *Renderer) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.device != nil {
		return nil
	}

	ctx, err := initContext()
	if err != nil {
		return err
	}

	info, err := findCaptureDevice(ctx, r.cfg.Device)
	if err != nil {
		_ = ctx.Uninit()
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(r.cfg.Channels)
	deviceConfig.SampleRate = uint32(r.cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(r.cfg.PeriodFrames)
	deviceConfig.Alsa.NoMMap = 1
	if info != nil {
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: r.onData,
		Stop: r.onDeviceStop,
	})
	if err != nil {
		_ = ctx.Uninit()
		return errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("device_name", r.cfg.Device).
			Context("operation", "init_capture_device").
			Build()
	}

	r.ctx = ctx
	r.device = device
	r.rate = int(device.SampleRate())

	r.log.Info("capture renderer opened",
		logger.String("device", r.cfg.Device),
		logger.String("speaker_mode", r.mode.String()),
		logger.Int("channels", r.cfg.Channels),
		logger.Int("sample_rate", r.rate),
		logger.Int("ring_bytes", r.ring.Capacity()))
	return nil
}

// Close stops and releases the device
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.device != nil {
		if r.running {
			_ = r.device.Stop()
			r.running = false
		}
		r.device.Uninit()
		r.device = nil
	}
	if r.ctx != nil {
		err := r.ctx.Uninit()
		r.ctx.Free()
		r.ctx = nil
		if err != nil {
			return errors.New(err).
				Component(componentMalgo).
				Category(errors.CategoryAudioSource).
				Context("operation", "uninit_context").
				Build()
		}
	}
	return nil
}

// Start starts capturing. Failures are logged; the bridge contract has no
// error path for start.
func (r *Renderer) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.device == nil || r.running {
		return
	}
	r.ring.Reset()
	if err := r.device.Start(); err != nil {
		r.log.Error("failed to start capture device", logger.Error(errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("operation", "start_capture_device").
			Build()))
		return
	}
	r.running = true
}

// Stop stops capturing and discards staged audio
func (r *Renderer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.device == nil || !r.running {
		return
	}
	if err := r.device.Stop(); err != nil {
		r.log.Warn("failed to stop capture device", logger.Error(err))
	}
	r.running = false
	r.ring.Reset()
}

// SampleFrameCountForCaptureFrame returns the whole sample frames staged
func (r *Renderer) SampleFrameCountForCaptureFrame() uint {
	return uint(r.ring.Length() / r.frameBytes)
}

// Render reads exactly len(buf) samples from the ring
func (r *Renderer) Render(buf []float32) error {
	want := len(buf) * bytesPerSample
	if want == 0 {
		return nil
	}
	if want%r.frameBytes != 0 {
		return errors.Newf("render buffer of %d samples is not a whole number of %d-channel frames", len(buf), r.cfg.Channels).
			Component(componentMalgo).
			Category(errors.CategoryValidation).
			Build()
	}
	if staged := r.ring.Length(); staged < want {
		return errors.Newf("render requested %d bytes but only %d are staged", want, staged).
			Component(componentMalgo).
			Category(errors.CategoryBuffer).
			Build()
	}

	n, err := r.ring.Read(byteView(buf))
	if err != nil {
		return errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryBuffer).
			Context("operation", "ring_read").
			Build()
	}
	if n != want {
		return errors.Newf("short ring read: %d of %d bytes", n, want).
			Component(componentMalgo).
			Category(errors.CategoryBuffer).
			Build()
	}
	return nil
}

// SpeakerMode reports the configured speaker mode
func (r *Renderer) SpeakerMode() audiocore.SpeakerMode {
	return r.mode
}

// SampleRate reports the device sample rate once opened, else the requested one
func (r *Renderer) SampleRate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rate
}

// OverflowBytes returns the bytes dropped because the ring was full
func (r *Renderer) OverflowBytes() uint64 {
	return r.overflowBytes.Load()
}

// onData runs on the miniaudio thread. Blocks that do not fit are dropped
// whole so the ring always holds complete frames.
func (r *Renderer) onData(_, in []byte, _ uint32) {
	if len(in) == 0 {
		return
	}
	if r.ring.Free() < len(in) {
		r.dropBlock(len(in))
		return
	}
	if n, err := r.ring.Write(in); err != nil || n < len(in) {
		r.dropBlock(len(in) - n)
	}
}

func (r *Renderer) dropBlock(bytes int) {
	r.overflowBytes.Add(uint64(bytes))
	r.overflowLog.Do(func() {
		r.log.Warn("renderer ring full, dropping captured audio",
			logger.Int("bytes", bytes),
			logger.Int("ring_bytes", r.ring.Capacity()))
	})
}

func (r *Renderer) onDeviceStop() {
	r.log.Debug("capture device stopped")
}
