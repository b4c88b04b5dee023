package renderer

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/framebridge/internal/errors"
	"github.com/tphakala/framebridge/internal/logger"
	"github.com/tphakala/framebridge/internal/observability/metrics"
)

type fakeRenderer struct {
	starts atomic.Int32
	stops  atomic.Int32
	frames uint
	fill   float32
	err    error
}

func (f *fakeRenderer) Start() { f.starts.Add(1) }
func (f *fakeRenderer) Stop()  { f.stops.Add(1) }

func (f *fakeRenderer) SampleFrameCountForCaptureFrame() uint { return f.frames }

func (f *fakeRenderer) Render(buf []float32) error {
	if f.err != nil {
		return f.err
	}
	for i := range buf {
		buf[i] = f.fill
	}
	return nil
}

func testLogger() logger.Logger {
	return logger.NewSlogLogger(&bytes.Buffer{}, logger.LogLevelDebug, nil)
}

func TestBridgeStartStopTransitions(t *testing.T) {
	t.Parallel()

	host := &fakeRenderer{}
	bridge := Resolve(host, testLogger(), nil)
	require.True(t, bridge.Available())

	for k := 1; k <= 5; k++ {
		host.starts.Store(0)
		host.stops.Store(0)

		for range k {
			bridge.Start()
		}
		assert.Equal(t, k, bridge.RefCount())
		for range k {
			bridge.Stop()
		}

		assert.Equal(t, int32(1), host.starts.Load(), "k=%d", k)
		assert.Equal(t, int32(1), host.stops.Load(), "k=%d", k)
		assert.Zero(t, bridge.RefCount())
	}
}

func TestBridgeConcurrentSessions(t *testing.T) {
	t.Parallel()

	host := &fakeRenderer{}
	bridge := Resolve(host, testLogger(), nil)

	const sessions = 32
	var started sync.WaitGroup
	started.Add(sessions)
	release := make(chan struct{})
	var done sync.WaitGroup
	for range sessions {
		done.Add(1)
		go func() {
			defer done.Done()
			bridge.Start()
			started.Done()
			<-release
			bridge.Stop()
		}()
	}
	started.Wait()
	close(release)
	done.Wait()

	assert.Equal(t, int32(1), host.starts.Load())
	assert.Equal(t, int32(1), host.stops.Load())
	assert.Zero(t, bridge.RefCount())
}

func TestBridgeIgnoresUnmatchedStop(t *testing.T) {
	t.Parallel()

	host := &fakeRenderer{}
	bridge := Resolve(host, testLogger(), nil)

	bridge.Stop()
	bridge.Stop()
	assert.Zero(t, host.stops.Load())
	assert.Zero(t, bridge.RefCount())

	bridge.Start()
	bridge.Stop()
	bridge.Stop()
	assert.Equal(t, int32(1), host.starts.Load())
	assert.Equal(t, int32(1), host.stops.Load())
}

func TestInertBridge(t *testing.T) {
	t.Parallel()

	for _, host := range []any{nil, "not a renderer", struct{}{}} {
		t.Run(fmt.Sprintf("%T", host), func(t *testing.T) {
			t.Parallel()
			bridge := Resolve(host, testLogger(), nil)

			assert.False(t, bridge.Available())
			_, ok := bridge.Renderer()
			assert.False(t, ok)

			bridge.Start()
			assert.Zero(t, bridge.RefCount())
			bridge.Stop()
			assert.Zero(t, bridge.SampleFrameCountForCaptureFrame())

			err := bridge.Render(make([]float32, 4))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnavailable)
			assert.True(t, errors.IsCategory(err, errors.CategoryCapability))
		})
	}
}

func TestBridgeRender(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := metrics.NewAudioBridgeMetrics(registry)
	require.NoError(t, err)

	host := &fakeRenderer{frames: 3, fill: 0.25}
	bridge := Resolve(host, testLogger(), m)
	assert.Equal(t, uint(3), bridge.SampleFrameCountForCaptureFrame())

	buf := make([]float32, 6)
	require.NoError(t, bridge.Render(buf))
	assert.Equal(t, []float32{0.25, 0.25, 0.25, 0.25, 0.25, 0.25}, buf)

	host.err = errors.NewStd("size mismatch")
	err = bridge.Render(buf)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryRenderer))

	bridge.Start()
	bridge.Stop()

	count, err := testutil.GatherAndCount(registry, "framebridge_renderer_transitions_total", "framebridge_renders_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
