package audiocore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBlock(frames, channels int, value float32) []float32 {
	block := make([]float32, frames*channels)
	for i := range block {
		block[i] = value
	}
	return block
}

func TestBlockPoolDrainLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		blocks   int
		frames   int
		channels int
	}{
		{"stereo three blocks", 3, 100, 2},
		{"mono single block", 1, 256, 1},
		{"surround many blocks", 40, 480, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pool := NewBlockPool(PoolOptions{})
			for i := range tt.blocks {
				status := pool.Push(makeBlock(tt.frames, tt.channels, float32(i)))
				require.True(t, status.Stored)
			}

			out, drained := pool.Drain(nil)
			assert.Len(t, out, tt.blocks*tt.frames*tt.channels)
			assert.Zero(t, len(out)%tt.channels)
			assert.Equal(t, tt.blocks, drained.Blocks)
			assert.Equal(t, len(out), drained.Samples)
			assert.Zero(t, pool.Filled())
		})
	}
}

func TestBlockPoolPreservesOrder(t *testing.T) {
	t.Parallel()

	pool := NewBlockPool(PoolOptions{})
	pool.Push([]float32{1, 2})
	pool.Push([]float32{3, 4})
	pool.Push([]float32{5, 6})

	out, _ := pool.Drain(nil)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, out)
}

func TestBlockPoolEmptyDrain(t *testing.T) {
	t.Parallel()

	pool := NewBlockPool(PoolOptions{})
	out, drained := pool.Drain(make([]float32, 10))
	assert.Empty(t, out)
	assert.Equal(t, DrainStatus{}, drained)
}

func TestBlockPoolCapacityNeverShrinks(t *testing.T) {
	t.Parallel()

	pool := NewBlockPool(PoolOptions{})
	last := 0
	for round, n := range []int{5, 2, 8, 0, 3} {
		for range n {
			pool.Push(makeBlock(64, 2, float32(round)))
		}
		capacity := pool.Capacity()
		assert.GreaterOrEqual(t, capacity, last)
		last = capacity
		pool.Drain(nil)
		assert.Equal(t, capacity, pool.Capacity(), "drain must keep slots")
	}
	assert.Equal(t, 8, last)
}

func TestBlockPoolResizesOnlyNextSlot(t *testing.T) {
	t.Parallel()

	pool := NewBlockPool(PoolOptions{})
	for range 3 {
		pool.Push(makeBlock(100, 2, 1))
	}
	pool.Drain(nil)
	require.Equal(t, []int{200, 200, 200}, pool.SlotLengths())

	status := pool.Push(makeBlock(50, 2, 7))
	assert.True(t, status.Resized)
	assert.False(t, status.Grew)
	assert.Equal(t, []int{100, 200, 200}, pool.SlotLengths())

	out, _ := pool.Drain(nil)
	assert.Equal(t, makeBlock(50, 2, 7), out)
}

func TestBlockPoolResizeLeavesOtherSlotsUntouched(t *testing.T) {
	t.Parallel()

	pool := NewBlockPool(PoolOptions{})
	pool.Push(makeBlock(4, 2, 1))
	pool.Push(makeBlock(4, 2, 2))
	status := pool.Push(makeBlock(2, 2, 3))
	assert.True(t, status.Grew)

	out, _ := pool.Drain(nil)
	want := append(append(makeBlock(4, 2, 1), makeBlock(4, 2, 2)...), makeBlock(2, 2, 3)...)
	assert.Equal(t, want, out)
}

func TestBlockPoolThresholdWarnsOncePerCrossing(t *testing.T) {
	t.Parallel()

	pool := NewBlockPool(PoolOptions{WarnThreshold: DefaultWarnThreshold})
	crossings := 0
	crossedAt := 0
	for i := 1; i <= 501; i++ {
		if pool.Push(makeBlock(10, 2, 0)).ThresholdCrossed {
			crossings++
			crossedAt = i
		}
	}
	assert.Equal(t, 1, crossings)
	assert.Equal(t, 500, crossedAt)

	out, _ := pool.Drain(nil)
	assert.Len(t, out, 501*20, "warning must not lose data")

	// A new crossing after a drain warns again
	crossings = 0
	for range 500 {
		if pool.Push(makeBlock(10, 2, 0)).ThresholdCrossed {
			crossings++
		}
	}
	assert.Equal(t, 1, crossings)
}

func TestBlockPoolDropPolicy(t *testing.T) {
	t.Parallel()

	pool := NewBlockPool(PoolOptions{Overflow: OverflowDrop, MaxBlocks: 2})
	assert.True(t, pool.Push([]float32{1}).Stored)
	assert.True(t, pool.Push([]float32{2}).Stored)
	assert.False(t, pool.Push([]float32{3}).Stored)

	out, _ := pool.Drain(nil)
	assert.Equal(t, []float32{1, 2}, out)
	assert.True(t, pool.Push([]float32{4}).Stored)
}

func TestBlockPoolRelease(t *testing.T) {
	t.Parallel()

	pool := NewBlockPool(PoolOptions{})
	pool.Push(makeBlock(8, 2, 1))
	pool.Release()

	assert.Zero(t, pool.Capacity())
	assert.Zero(t, pool.Filled())
	assert.False(t, pool.Push(makeBlock(8, 2, 1)).Stored)
}

func TestBlockPoolConcurrentProducerConsumer(t *testing.T) {
	t.Parallel()

	const (
		blocks   = 2000
		frames   = 32
		channels = 2
	)

	pool := NewBlockPool(PoolOptions{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		block := makeBlock(frames, channels, 0.5)
		for range blocks {
			pool.Push(block)
		}
	}()

	total := 0
	var buf []float32
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		select {
		case <-done:
			buf, _ = pool.Drain(buf)
			total += len(buf)
			assert.Equal(t, blocks*frames*channels, total)
			return
		default:
			buf, _ = pool.Drain(buf)
			total += len(buf)
			for _, v := range buf {
				require.InDelta(t, 0.5, v, 0)
			}
		}
	}
}

func TestParseOverflowPolicy(t *testing.T) {
	t.Parallel()

	p, err := ParseOverflowPolicy("drop")
	require.NoError(t, err)
	assert.Equal(t, OverflowDrop, p)

	p, err = ParseOverflowPolicy("")
	require.NoError(t, err)
	assert.Equal(t, OverflowGrow, p)

	_, err = ParseOverflowPolicy("oldest")
	require.Error(t, err)
}
