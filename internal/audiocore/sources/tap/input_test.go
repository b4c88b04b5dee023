package tap

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/framebridge/internal/audiocore"
	"github.com/tphakala/framebridge/internal/audiocore/renderer"
	"github.com/tphakala/framebridge/internal/errors"
	"github.com/tphakala/framebridge/internal/logger"
	"github.com/tphakala/framebridge/internal/observability/metrics"
)

// syncBuffer lets the audio-thread goroutines and the test share a log sink
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeGraph struct {
	mu        sync.Mutex
	info      PointInfo
	pointErr  error
	removeErr error
	node      Node
	installs  int
	removals  int
}

func (g *fakeGraph) TapPoint() (PointInfo, error) { return g.info, g.pointErr }

func (g *fakeGraph) InstallNode(n Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.node = n
	g.installs++
	return nil
}

func (g *fakeGraph) RemoveNode(n Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removals++
	if g.removeErr != nil {
		return g.removeErr
	}
	if g.node == n {
		g.node = nil
	}
	return nil
}

func (g *fakeGraph) installed() Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.node
}

// deliver simulates one audio-thread callback and returns its output block
func (g *fakeGraph) deliver(t *testing.T, frames, channels int, value float32) ([]float32, Result) {
	t.Helper()
	n := g.installed()
	require.NotNil(t, n, "no tap node installed")
	in := make([]float32, frames*channels)
	for i := range in {
		in[i] = value
	}
	out := make([]float32, len(in))
	return out, n.Process(in, out, uint32(frames), channels, channels)
}

type countingRenderer struct {
	mu            sync.Mutex
	starts, stops int
}

func (r *countingRenderer) Start()                                { r.mu.Lock(); r.starts++; r.mu.Unlock() }
func (r *countingRenderer) Stop()                                 { r.mu.Lock(); r.stops++; r.mu.Unlock() }
func (r *countingRenderer) SampleFrameCountForCaptureFrame() uint { return 0 }
func (r *countingRenderer) Render([]float32) error                { return nil }

type fixture struct {
	graph  *fakeGraph
	input  *Input
	logs   *syncBuffer
	render *countingRenderer
}

func newFixture(t *testing.T, channels int, opts Options) *fixture {
	t.Helper()
	logs := &syncBuffer{}
	log := logger.NewSlogLogger(logs, logger.LogLevelDebug, nil)
	graph := &fakeGraph{info: PointInfo{Channels: channels, SampleRate: 48000, SpeakerMode: audiocore.SpeakerModeForChannels(channels)}}
	render := &countingRenderer{}
	opts.Logger = log
	return &fixture{
		graph:  graph,
		input:  NewInput(graph, renderer.Resolve(render, log, nil), opts),
		logs:   logs,
		render: render,
	}
}

func TestTapThreeCallbacksOneDrain(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2, Options{})
	session := audiocore.NewSession(false)
	require.NoError(t, f.input.BeginRecording(session))
	assert.Equal(t, uint16(2), f.input.ChannelCount())
	assert.Equal(t, 48000, f.input.SampleRate())

	for i := range 3 {
		_, res := f.graph.deliver(t, 100, 2, float32(i))
		require.Equal(t, ResultOK, res)
	}

	require.NoError(t, f.input.NewFrameReady(session))
	buf := f.input.MainBuffer()
	assert.Len(t, buf, 600)
	assert.Equal(t, uint64(300), f.input.TotalSampleFramesCaptured())
	assert.InDelta(t, 0, buf[0], 0)
	assert.InDelta(t, 2, buf[599], 0)

	require.NoError(t, f.input.EndRecording(session))
}

func TestTapDrainLengthProperty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                    string
		blocks, frames, channels int
	}{
		{"mono", 7, 441, 1},
		{"stereo", 12, 512, 2},
		{"quad", 3, 256, 4},
		{"5.1", 20, 480, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, tt.channels, Options{})
			session := audiocore.NewSession(false)
			require.NoError(t, f.input.BeginRecording(session))

			for range tt.blocks {
				f.graph.deliver(t, tt.frames, tt.channels, 0.1)
			}
			require.NoError(t, f.input.NewFrameReady(session))

			buf := f.input.MainBuffer()
			assert.Len(t, buf, tt.blocks*tt.frames*tt.channels)
			assert.Zero(t, len(buf)%tt.channels)
			assert.Equal(t, uint64(tt.blocks*tt.frames), f.input.TotalSampleFramesCaptured())
			require.NoError(t, f.input.EndRecording(session))
		})
	}
}

func TestTapEmptyDrain(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2, Options{})
	session := audiocore.NewSession(false)
	require.NoError(t, f.input.BeginRecording(session))

	f.graph.deliver(t, 10, 2, 1)
	require.NoError(t, f.input.NewFrameReady(session))
	before := f.input.TotalSampleFramesCaptured()

	require.NoError(t, f.input.NewFrameReady(session))
	assert.Empty(t, f.input.MainBuffer())
	assert.Equal(t, before, f.input.TotalSampleFramesCaptured())
	require.NoError(t, f.input.EndRecording(session))
}

func TestTapPassThroughLeavesSignalUnchanged(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2, Options{})
	session := audiocore.NewSession(false)
	require.NoError(t, f.input.BeginRecording(session))

	in := []float32{0.1, -0.2, 0.3, -0.4}
	original := append([]float32(nil), in...)
	out := make([]float32, len(in))
	res := f.graph.installed().Process(in, out, 2, 2, 2)

	assert.Equal(t, ResultOK, res)
	assert.Equal(t, original, out)
	assert.Equal(t, original, in)

	require.NoError(t, f.input.NewFrameReady(session))
	assert.Equal(t, original, f.input.MainBuffer())
	require.NoError(t, f.input.EndRecording(session))
}

func TestTapRejectsChannelMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2, Options{})
	session := audiocore.NewSession(false)
	require.NoError(t, f.input.BeginRecording(session))

	n := f.graph.installed()
	for range 3 {
		res := n.Process(make([]float32, 200), make([]float32, 100), 100, 2, 1)
		assert.Equal(t, ResultSkip, res)
	}

	// the session continues with the next valid block
	_, res := f.graph.deliver(t, 100, 2, 1)
	assert.Equal(t, ResultOK, res)

	require.NoError(t, f.input.NewFrameReady(session))
	assert.Len(t, f.input.MainBuffer(), 200)

	stats := f.input.Stats()
	assert.Equal(t, uint64(3), stats.Rejected)
	assert.Equal(t, uint64(1), stats.Captured)
	assert.Equal(t, 1, strings.Count(f.logs.String(), "channel mismatch"), "mismatch log is rate limited")
	require.NoError(t, f.input.EndRecording(session))
}

func TestTapRejectsShortBuffers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2, Options{})
	session := audiocore.NewSession(false)
	require.NoError(t, f.input.BeginRecording(session))

	res := f.graph.installed().Process(make([]float32, 10), make([]float32, 10), 100, 2, 2)
	assert.Equal(t, ResultSkip, res)
	assert.Equal(t, uint64(1), f.input.Stats().Rejected)
	require.NoError(t, f.input.EndRecording(session))
}

func TestTapRecoversFromCallbackPanic(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2, Options{})
	broken := &node{input: f.input}

	var res Result
	assert.NotPanics(t, func() {
		res = broken.Process(make([]float32, 4), make([]float32, 4), 2, 2, 2)
	})
	assert.Equal(t, ResultSkip, res)
	assert.Equal(t, uint64(1), f.input.Stats().Rejected)
	assert.Contains(t, f.logs.String(), "tap callback failed")
}

func TestTapThresholdWarningWithoutDataLoss(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := metrics.NewAudioBridgeMetrics(registry)
	require.NoError(t, err)

	f := newFixture(t, 2, Options{Metrics: m})
	session := audiocore.NewSession(false)
	require.NoError(t, f.input.BeginRecording(session))

	for i := 1; i <= 501; i++ {
		f.graph.deliver(t, 64, 2, 0.5)
		if i == 499 {
			assert.Zero(t, f.input.Stats().Warnings)
		}
		if i == 500 {
			assert.Equal(t, uint64(1), f.input.Stats().Warnings)
		}
	}
	assert.Equal(t, uint64(1), f.input.Stats().Warnings)
	assert.Contains(t, f.logs.String(), "not being drained fast enough")

	require.NoError(t, f.input.NewFrameReady(session))
	assert.Len(t, f.input.MainBuffer(), 501*128)
	expected := `
# HELP framebridge_pool_threshold_warnings_total Total number of times the filled block count crossed the warning threshold
# TYPE framebridge_pool_threshold_warnings_total counter
framebridge_pool_threshold_warnings_total{input="tap"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"framebridge_pool_threshold_warnings_total"))

	require.NoError(t, f.input.EndRecording(session))
}

func TestTapBlockSizeChangeResizesNextSlot(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2, Options{})
	session := audiocore.NewSession(false)
	require.NoError(t, f.input.BeginRecording(session))

	for range 3 {
		f.graph.deliver(t, 100, 2, 1)
	}
	require.NoError(t, f.input.NewFrameReady(session))

	pool := f.input.node.pool
	require.Equal(t, []int{200, 200, 200}, pool.SlotLengths())

	f.graph.deliver(t, 50, 2, 2)
	assert.Equal(t, []int{100, 200, 200}, pool.SlotLengths())
	assert.Equal(t, 3, f.input.Stats().PoolCapacity)

	require.NoError(t, f.input.NewFrameReady(session))
	assert.Len(t, f.input.MainBuffer(), 100)
	assert.Equal(t, uint64(350), f.input.TotalSampleFramesCaptured())
	require.NoError(t, f.input.EndRecording(session))
}

func TestTapDrainInvariantPanics(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2, Options{})
	session := audiocore.NewSession(false)
	require.NoError(t, f.input.BeginRecording(session))

	// A block with an odd sample count can only come from a format bug
	f.input.node.pool.Push([]float32{1, 2, 3})

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.IsCategory(err, errors.CategoryInvariant))

		// the lock was released while unwinding
		assert.Zero(t, f.input.TotalSampleFramesCaptured())
		require.NoError(t, f.input.EndRecording(session))
	}()
	_ = f.input.NewFrameReady(session)
	t.Fatal("NewFrameReady must panic")
}

func TestTapEndRecording(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2, Options{})
	session := audiocore.NewSession(true)
	require.NoError(t, f.input.BeginRecording(session))
	assert.Equal(t, 1, f.render.starts)

	node := f.graph.installed()
	f.graph.deliver(t, 10, 2, 1)
	f.graph.removeErr = errors.NewStd("node already destroyed by host")

	require.NoError(t, f.input.EndRecording(session), "removal failures are swallowed")
	assert.Equal(t, 1, f.render.stops)
	assert.Nil(t, f.input.MainBuffer())
	assert.Contains(t, f.logs.String(), "tap node removal failed")

	// late callbacks after teardown are refused, not stored
	res := node.Process(make([]float32, 4), make([]float32, 4), 2, 2, 2)
	assert.Equal(t, ResultOK, res)
	assert.Equal(t, uint64(1), f.input.Stats().Dropped)

	err := f.input.EndRecording(session)
	require.Error(t, err)
	assert.ErrorIs(t, err, audiocore.ErrNotRecording)
	assert.Equal(t, 1, f.graph.removals, "second end must not touch the host")
	assert.Equal(t, 1, f.render.stops)
}

func TestTapBeginRecordingErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2, Options{})
	session := audiocore.NewSession(false)

	assert.ErrorIs(t, f.input.NewFrameReady(session), audiocore.ErrNotRecording)

	f.graph.pointErr = errors.NewStd("tap point missing")
	err := f.input.BeginRecording(session)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAudioSource))
	assert.Zero(t, f.graph.installs)

	f.graph.pointErr = nil
	f.graph.info = PointInfo{Channels: 16, SampleRate: 48000}
	assert.True(t, errors.IsCategory(f.input.BeginRecording(session), errors.CategoryValidation))

	f.graph.info = PointInfo{ChannelMask: 0b111111, SampleRate: 48000}
	require.NoError(t, f.input.BeginRecording(session))
	assert.Equal(t, uint16(6), f.input.ChannelCount())
	assert.ErrorIs(t, f.input.BeginRecording(session), audiocore.ErrAlreadyRecording)
	require.NoError(t, f.input.EndRecording(session))
}

func TestTapDropOverflowPolicy(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1, Options{Overflow: audiocore.OverflowDrop, MaxBlocks: 4})
	session := audiocore.NewSession(false)
	require.NoError(t, f.input.BeginRecording(session))

	for range 6 {
		out, res := f.graph.deliver(t, 8, 1, 0.25)
		assert.Equal(t, ResultOK, res)
		assert.InDelta(t, 0.25, out[0], 0, "dropped blocks still pass through")
	}

	require.NoError(t, f.input.NewFrameReady(session))
	assert.Len(t, f.input.MainBuffer(), 32)
	assert.Equal(t, uint64(2), f.input.Stats().Dropped)
	require.NoError(t, f.input.EndRecording(session))
}

func TestTapLosingContenderIsNoop(t *testing.T) {
	t.Parallel()

	a := newFixture(t, 2, Options{})
	b := newFixture(t, 2, Options{})
	session := audiocore.NewSession(false)
	require.NoError(t, a.input.BeginRecording(session))
	require.NoError(t, b.input.BeginRecording(session))

	a.graph.deliver(t, 10, 2, 1)
	b.graph.deliver(t, 10, 2, 1)
	require.NoError(t, a.input.NewFrameReady(session))
	require.NoError(t, b.input.NewFrameReady(session))

	assert.Len(t, a.input.MainBuffer(), 20)
	assert.Empty(t, b.input.MainBuffer())
	assert.Equal(t, 1, b.input.Stats().PoolFilled, "non-owner must not drain")

	require.NoError(t, a.input.EndRecording(session))
	require.NoError(t, b.input.EndRecording(session))
}

func TestTapConcurrentAudioThread(t *testing.T) {
	t.Parallel()

	const (
		callbacks = 3000
		frames    = 128
		channels  = 2
	)

	f := newFixture(t, channels, Options{})
	session := audiocore.NewSession(false)
	require.NoError(t, f.input.BeginRecording(session))
	n := f.graph.installed()

	done := make(chan struct{})
	go func() {
		defer close(done)
		in := make([]float32, frames*channels)
		out := make([]float32, frames*channels)
		for range callbacks {
			n.Process(in, out, frames, channels, channels)
		}
	}()

	var total int
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		require.NoError(t, f.input.NewFrameReady(session))
		total += len(f.input.MainBuffer())
	}

	assert.Equal(t, callbacks*frames*channels, total)
	assert.Equal(t, uint64(callbacks*frames), f.input.TotalSampleFramesCaptured())
	require.NoError(t, f.input.EndRecording(session))
}

func TestPointInfoChannelCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2, PointInfo{Channels: 2, ChannelMask: 0xff}.ChannelCount())
	assert.Equal(t, 4, PointInfo{ChannelMask: 0b1111}.ChannelCount())
	assert.Equal(t, 6, PointInfo{SpeakerMode: audiocore.SpeakerMode5Point1}.ChannelCount())
	assert.Equal(t, 1, PointInfo{}.ChannelCount())
}
