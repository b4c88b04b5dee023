// Package tap implements the callback tap input. A node installed at a fixed
// point of the host audio graph copies every block the audio thread hands it
// into a block pool; the frame goroutine drains the pool once per frame.
package tap

import (
	"math/bits"

	"github.com/tphakala/framebridge/internal/audiocore"
)

// Result is the code a node returns to the host audio graph
type Result int

const (
	// ResultOK means the block was processed and passed through
	ResultOK Result = iota
	// ResultSkip tells the host the node did not process the block
	ResultSkip
)

func (r Result) String() string {
	if r == ResultSkip {
		return "skip"
	}
	return "ok"
}

// PointInfo describes the format at the tap point
type PointInfo struct {
	ChannelMask uint32
	Channels    int
	SampleRate  int
	SpeakerMode audiocore.SpeakerMode
}

// ChannelCount returns Channels, falling back to the mask population and
// then to the speaker mode
func (p PointInfo) ChannelCount() int {
	if p.Channels > 0 {
		return p.Channels
	}
	if n := bits.OnesCount32(p.ChannelMask); n > 0 {
		return n
	}
	return int(p.SpeakerMode.ChannelCount())
}

// Node is invoked by the host audio thread with interleaved input and output
// blocks of frames sample frames. It must return quickly and never panic.
type Node interface {
	Process(in, out []float32, frames uint32, inChannels, outChannels int) Result
}

// Graph is the host audio-graph capability the tap input needs
type Graph interface {
	TapPoint() (PointInfo, error)
	InstallNode(node Node) error
	RemoveNode(node Node) error
}
