package malgo

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/framebridge/internal/audiocore"
	"github.com/tphakala/framebridge/internal/audiocore/sources/tap"
	"github.com/tphakala/framebridge/internal/errors"
	"github.com/tphakala/framebridge/internal/logger"
)

// installedNode boxes a tap.Node for atomic swapping
type installedNode struct {
	node tap.Node
}

// Graph is a duplex device that plays its capture input back to the output
// device. The tap point is the tail of that path: an installed node sees every
// block on the audio thread and writes the output itself.
type Graph struct {
	cfg Config
	log logger.Logger

	mu       sync.Mutex
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	channels int
	rate     int

	node atomic.Pointer[installedNode]
}

var _ tap.Graph = (*Graph)(nil)

// NewGraph creates an unopened graph
func NewGraph(cfg Config, log logger.Logger) *Graph {
	return &Graph{
		cfg: cfg,
		log: audiocore.LoggerOr(log, "malgo"),
	}
}

// Open initializes and starts the duplex device
func (g *Graph) Open() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.device != nil {
		return errors.New(nil).
			Component(componentMalgo).
			Category(errors.CategoryState).
			Context("error", "graph already open").
			Build()
	}

	ctx, err := initContext()
	if err != nil {
		return err
	}

	info, err := findCaptureDevice(ctx, g.cfg.Device)
	if err != nil {
		_ = ctx.Uninit()
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(g.cfg.Channels)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(g.cfg.Channels)
	deviceConfig.SampleRate = uint32(g.cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(g.cfg.PeriodFrames)
	deviceConfig.Alsa.NoMMap = 1
	if info != nil {
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
	}

	g.channels = g.cfg.Channels
	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: g.onData,
		Stop: g.onDeviceStop,
	})
	if err != nil {
		_ = ctx.Uninit()
		return errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("device_name", g.cfg.Device).
			Context("operation", "init_duplex_device").
			Build()
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		return errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("operation", "start_duplex_device").
			Build()
	}

	g.ctx = ctx
	g.device = device
	g.rate = int(device.SampleRate())

	g.log.Info("duplex graph opened",
		logger.String("device", g.cfg.Device),
		logger.Int("channels", g.channels),
		logger.Int("sample_rate", g.rate),
		logger.Int("period_frames", g.cfg.PeriodFrames))
	return nil
}

// Close stops and releases the device. Safe to call more than once.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.device != nil {
		_ = g.device.Stop()
		g.device.Uninit()
		g.device = nil
		g.rate = 0
	}
	if g.ctx != nil {
		err := g.ctx.Uninit()
		g.ctx.Free()
		g.ctx = nil
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

// TapPoint reports the format at the output of the duplex path
func (g *Graph) TapPoint() (tap.PointInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rate == 0 {
		return tap.PointInfo{}, errors.New(nil).
			Component(componentMalgo).
			Category(errors.CategoryState).
			Context("error", "graph is not open").
			Build()
	}
	return tap.PointInfo{
		ChannelMask: uint32(1)<<g.channels - 1,
		Channels:    g.channels,
		SampleRate:  g.rate,
		SpeakerMode: audiocore.SpeakerModeForChannels(g.channels),
	}, nil
}

// InstallNode places node at the tap point
func (g *Graph) InstallNode(node tap.Node) error {
	if node == nil {
		return errors.New(nil).
			Component(componentMalgo).
			Category(errors.CategoryValidation).
			Context("error", "nil tap node").
			Build()
	}
	if !g.node.CompareAndSwap(nil, &installedNode{node: node}) {
		return errors.New(nil).
			Component(componentMalgo).
			Category(errors.CategoryState).
			Context("error", "a tap node is already installed").
			Build()
	}
	return nil
}

// RemoveNode detaches node. It fails when node is not the installed one.
func (g *Graph) RemoveNode(node tap.Node) error {
	current := g.node.Load()
	if current == nil || current.node != node || !g.node.CompareAndSwap(current, nil) {
		return errors.New(nil).
			Component(componentMalgo).
			Category(errors.CategoryState).
			Context("error", "tap node is not installed").
			Build()
	}
	return nil
}

// onData runs on the miniaudio thread
func (g *Graph) onData(out, in []byte, frames uint32) {
	current := g.node.Load()
	if current == nil {
		copy(out, in)
		return
	}
	if current.node.Process(float32View(in), float32View(out), frames, g.channels, g.channels) == tap.ResultSkip {
		// bypass the node
		copy(out, in)
	}
}

func (g *Graph) onDeviceStop() {
	g.log.Warn("duplex device stopped")
}
