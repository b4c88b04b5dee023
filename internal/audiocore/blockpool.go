package audiocore

import (
	"strings"
	"sync"

	"github.com/tphakala/framebridge/internal/errors"
)

// AudioBlock is one interleaved block delivered by a producer invocation.
// Blocks are owned by a BlockPool and reused across invocations.
type AudioBlock []float32

// resize sets the block length to n, reusing the backing array when it fits
func (b *AudioBlock) resize(n int) {
	if cap(*b) >= n {
		*b = (*b)[:n]
		return
	}
	*b = make(AudioBlock, n)
}

// OverflowPolicy decides what the producer does when the pool is capped
type OverflowPolicy int

const (
	// OverflowGrow never refuses a block. Growth is unbounded.
	OverflowGrow OverflowPolicy = iota
	// OverflowDrop refuses new blocks once MaxBlocks are filled
	OverflowDrop
)

func (p OverflowPolicy) String() string {
	if p == OverflowDrop {
		return "drop"
	}
	return "grow"
}

// ParseOverflowPolicy parses "grow" or "drop"
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "grow":
		return OverflowGrow, nil
	case "drop":
		return OverflowDrop, nil
	default:
		return OverflowGrow, errors.Newf("unknown overflow policy %q", s).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}
}

// PoolOptions configures a BlockPool
type PoolOptions struct {
	WarnThreshold int // filled count that triggers one warning per crossing
	MaxBlocks     int // cap for OverflowDrop, ignored for OverflowGrow
	Overflow      OverflowPolicy
}

// PushStatus describes what one Push did
type PushStatus struct {
	Stored           bool
	Grew             bool // a slot was appended
	Resized          bool // the next free slot changed length
	ThresholdCrossed bool
	Filled           int
	Capacity         int
}

// DrainStatus describes one Drain
type DrainStatus struct {
	Blocks   int
	Samples  int
	Capacity int
}

// BlockPool is an ordered set of reusable blocks with a filled count. One
// producer appends with Push and one consumer empties it with Drain. A single
// mutex serializes both. Capacity grows or has a slot resized in place; it
// never shrinks until Release.
type BlockPool struct {
	mu       sync.Mutex
	blocks   []AudioBlock
	filled   int
	warned   bool
	released bool
	opts     PoolOptions
}

// NewBlockPool creates an empty pool
func NewBlockPool(opts PoolOptions) *BlockPool {
	if opts.WarnThreshold <= 0 {
		opts.WarnThreshold = DefaultWarnThreshold
	}
	return &BlockPool{opts: opts}
}

// Push copies block into the next free slot, appending or resizing that slot
// when needed. Released pools refuse every block.
func (p *BlockPool) Push(block []float32) PushStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := PushStatus{Filled: p.filled, Capacity: len(p.blocks)}
	if p.released {
		return status
	}
	if p.opts.Overflow == OverflowDrop && p.opts.MaxBlocks > 0 && p.filled >= p.opts.MaxBlocks {
		return status
	}

	if p.filled == len(p.blocks) {
		p.blocks = append(p.blocks, make(AudioBlock, len(block)))
		status.Grew = true
	} else if len(p.blocks[p.filled]) != len(block) {
		p.blocks[p.filled].resize(len(block))
		status.Resized = true
	}

	copy(p.blocks[p.filled], block)
	p.filled++

	if p.filled >= p.opts.WarnThreshold && !p.warned {
		p.warned = true
		status.ThresholdCrossed = true
	}

	status.Stored = true
	status.Filled = p.filled
	status.Capacity = len(p.blocks)
	return status
}

// Drain appends every filled slot to dst in order and resets the filled count
// after the copy completes. dst is grown if its capacity is too small.
func (p *BlockPool) Drain(dst []float32) ([]float32, DrainStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()

	filled := p.filled
	total := 0
	for i := range filled {
		total += len(p.blocks[i])
	}

	dst = dst[:0]
	if cap(dst) < total {
		dst = make([]float32, 0, total)
	}
	for i := range filled {
		dst = append(dst, p.blocks[i]...)
	}

	p.filled = 0
	p.warned = false
	return dst, DrainStatus{Blocks: filled, Samples: total, Capacity: len(p.blocks)}
}

// Release discards all slots. The pool refuses further blocks.
func (p *BlockPool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocks = nil
	p.filled = 0
	p.warned = false
	p.released = true
}

// Capacity returns the number of allocated slots
func (p *BlockPool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.blocks)
}

// Filled returns the number of undrained blocks
func (p *BlockPool) Filled() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filled
}

// SlotLengths returns the length of every slot, filled or not
func (p *BlockPool) SlotLengths() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	lengths := make([]int, len(p.blocks))
	for i := range p.blocks {
		lengths[i] = len(p.blocks[i])
	}
	return lengths
}
