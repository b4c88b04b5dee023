package malgo

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/framebridge/internal/audiocore"
	"github.com/tphakala/framebridge/internal/audiocore/renderer"
	"github.com/tphakala/framebridge/internal/audiocore/sources/pull"
	"github.com/tphakala/framebridge/internal/audiocore/sources/tap"
	"github.com/tphakala/framebridge/internal/errors"
	"github.com/tphakala/framebridge/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(&bytes.Buffer{}, logger.LogLevelDebug, nil)
}

// deviceBlock builds an f32 device buffer of frames*channels samples
func deviceBlock(frames, channels int, value float32) []byte {
	samples := make([]float32, frames*channels)
	for i := range samples {
		samples[i] = value
	}
	return byteView(samples)
}

// openedGraph fakes an open duplex device so callbacks can be driven directly
func openedGraph(channels, rate int) *Graph {
	g := NewGraph(Config{Channels: channels, SampleRate: rate}, testLogger())
	g.channels = channels
	g.rate = rate
	return g
}

func TestFloat32Views(t *testing.T) {
	t.Parallel()

	samples := []float32{0.5, -1, 0.25}
	b := byteView(samples)
	assert.Len(t, b, 12)
	assert.Equal(t, samples, float32View(b))

	assert.Nil(t, float32View([]byte{1, 2}))
	assert.Nil(t, byteView(nil))
}

func TestHexToASCII(t *testing.T) {
	t.Parallel()

	decoded, err := hexToASCII("3a302c30")
	require.NoError(t, err)
	assert.Equal(t, ":0,0", decoded)

	_, err = hexToASCII("zz")
	require.Error(t, err)
}

func TestFilterHardware(t *testing.T) {
	t.Parallel()

	devices := []AudioDeviceInfo{
		{Index: 0, Name: "default", ID: "default"},
		{Index: 1, Name: "USB Audio", ID: ":1,0"},
	}
	hardware := filterHardware(devices)
	if runtime.GOOS == "linux" {
		require.Len(t, hardware, 1)
		assert.Equal(t, "USB Audio", hardware[0].Name)
	} else {
		assert.Len(t, hardware, 2)
	}
}

func TestSelectDeviceNoDevices(t *testing.T) {
	t.Parallel()

	_, err := SelectDevice(nil, "missing")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestGraphPassThroughWithoutNode(t *testing.T) {
	t.Parallel()

	g := openedGraph(2, 48000)
	in := deviceBlock(4, 2, 0.75)
	out := make([]byte, len(in))
	g.onData(out, in, 4)
	assert.Equal(t, in, out)
}

func TestGraphTapPoint(t *testing.T) {
	t.Parallel()

	g := NewGraph(Config{Channels: 2, SampleRate: 48000}, testLogger())
	_, err := g.TapPoint()
	require.Error(t, err, "closed graph has no tap point")

	g = openedGraph(6, 44100)
	info, err := g.TapPoint()
	require.NoError(t, err)
	assert.Equal(t, 6, info.ChannelCount())
	assert.Equal(t, uint32(0b111111), info.ChannelMask)
	assert.Equal(t, 44100, info.SampleRate)
	assert.Equal(t, audiocore.SpeakerMode5Point1, info.SpeakerMode)
}

type skipNode struct{ calls int }

func (n *skipNode) Process(_, _ []float32, _ uint32, _, _ int) tap.Result {
	n.calls++
	return tap.ResultSkip
}

func TestGraphNodeInstallRemove(t *testing.T) {
	t.Parallel()

	g := openedGraph(1, 48000)
	node := &skipNode{}
	require.NoError(t, g.InstallNode(node))
	require.Error(t, g.InstallNode(&skipNode{}), "one node at a time")

	in := deviceBlock(8, 1, 0.1)
	out := make([]byte, len(in))
	g.onData(out, in, 8)
	assert.Equal(t, 1, node.calls)
	assert.Equal(t, in, out, "skipped blocks bypass the node")

	require.Error(t, g.RemoveNode(&skipNode{}))
	require.NoError(t, g.RemoveNode(node))
	require.Error(t, g.RemoveNode(node), "already removed")
	require.Error(t, g.InstallNode(nil))
}

func TestGraphDrivesTapInput(t *testing.T) {
	t.Parallel()

	g := openedGraph(2, 48000)
	in := tap.NewInput(g, renderer.Resolve(nil, testLogger(), nil), tap.Options{Logger: testLogger()})
	session := audiocore.NewSession(false)
	require.NoError(t, in.BeginRecording(session))

	for range 3 {
		block := deviceBlock(100, 2, 0.5)
		out := make([]byte, len(block))
		g.onData(out, block, 100)
		assert.Equal(t, block, out)
	}

	require.NoError(t, in.NewFrameReady(session))
	assert.Len(t, in.MainBuffer(), 600)
	assert.Equal(t, uint64(300), in.TotalSampleFramesCaptured())

	require.NoError(t, in.EndRecording(session))
	require.Error(t, g.RemoveNode(nil), "node removed by EndRecording")
}

func TestRendererStagesAndRenders(t *testing.T) {
	t.Parallel()

	r := newRenderer(Config{Channels: 2, SampleRate: 1000, RingSeconds: 1}, audiocore.SpeakerModeStereo, testLogger())
	assert.Zero(t, r.SampleFrameCountForCaptureFrame())

	r.onData(nil, deviceBlock(10, 2, 0.25), 10)
	r.onData(nil, deviceBlock(5, 2, 0.5), 5)
	require.Equal(t, uint(15), r.SampleFrameCountForCaptureFrame())

	buf := make([]float32, 30)
	require.NoError(t, r.Render(buf))
	assert.InDelta(t, 0.25, buf[0], 0)
	assert.InDelta(t, 0.5, buf[29], 0)
	assert.Zero(t, r.SampleFrameCountForCaptureFrame())
}

func TestRendererRejectsBadRequests(t *testing.T) {
	t.Parallel()

	r := newRenderer(Config{Channels: 2, SampleRate: 1000, RingSeconds: 1}, audiocore.SpeakerModeStereo, testLogger())
	r.onData(nil, deviceBlock(4, 2, 1), 4)

	require.NoError(t, r.Render(nil))

	err := r.Render(make([]float32, 3))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	err = r.Render(make([]float32, 20))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryBuffer))
	assert.Equal(t, uint(4), r.SampleFrameCountForCaptureFrame(), "failed render leaves staged audio")
}

func TestRendererDropsWholeBlocksWhenFull(t *testing.T) {
	t.Parallel()

	// 10 frames of stereo capacity
	r := newRenderer(Config{Channels: 2, SampleRate: 10, RingSeconds: 1}, audiocore.SpeakerModeStereo, testLogger())
	r.onData(nil, deviceBlock(8, 2, 1), 8)
	r.onData(nil, deviceBlock(4, 2, 2), 4)

	assert.Equal(t, uint(8), r.SampleFrameCountForCaptureFrame())
	assert.Equal(t, uint64(4*2*bytesPerSample), r.OverflowBytes())
}

func TestRendererWithoutDeviceIgnoresStartStop(t *testing.T) {
	t.Parallel()

	r := NewRenderer(Config{SampleRate: 48000}, audiocore.SpeakerModeQuad, testLogger())
	assert.Equal(t, 4, r.cfg.Channels)
	assert.Equal(t, audiocore.SpeakerModeQuad, r.SpeakerMode())
	assert.Equal(t, 48000, r.SampleRate())

	assert.NotPanics(t, func() {
		r.Start()
		r.Stop()
	})
	require.NoError(t, r.Close())
}

func TestRendererDrivesPullInput(t *testing.T) {
	t.Parallel()

	r := newRenderer(Config{Channels: 2, SampleRate: 1000, RingSeconds: 1}, audiocore.SpeakerModeStereo, testLogger())
	bridge := renderer.Resolve(r, testLogger(), nil)
	in := pull.NewInput(bridge, r, pull.Options{Logger: testLogger()})
	session := audiocore.NewSession(true)

	require.NoError(t, in.BeginRecording(session))
	assert.Equal(t, uint16(2), in.ChannelCount())

	r.onData(nil, deviceBlock(33, 2, 0.5), 33)
	require.NoError(t, in.NewFrameReady(session))
	assert.Len(t, in.MainBuffer(), 66)

	require.NoError(t, in.NewFrameReady(session))
	assert.Empty(t, in.MainBuffer())
	assert.Equal(t, uint64(33), in.TotalSampleFramesCaptured())

	require.NoError(t, in.EndRecording(session))
	assert.Zero(t, bridge.RefCount())
}
