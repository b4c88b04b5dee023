// Package audiocore bridges audio produced by a real-time engine to a
// frame-paced recording pipeline.
//
// # Architecture Overview
//
// A recording pipeline drives one AudioInput through the lifecycle
//
//	BeginRecording(session) -> NewFrameReady(session)* -> EndRecording(session)
//
// and after every NewFrameReady reads MainBuffer: exactly the interleaved
// samples produced since the previous frame. Two inputs implement the
// contract:
//
//   - sources/pull: asks a host renderer (see renderer.Bridge) how many
//     sample frames belong to the frame just completed and renders them into
//     a persistent buffer.
//   - sources/tap: installs a node at a fixed point of a live audio graph. The
//     audio thread copies every block into a BlockPool; the frame goroutine
//     drains the pool into one contiguous buffer per frame.
//
// # Concurrency and Thread Safety
//
// The tap input spans two scheduling domains with no shared cadence: the
// host's audio thread and the frame goroutine. The BlockPool mutex is the only
// lock between them. The producer allocates only when the pool grows or a slot
// is resized after a device reconfiguration.
//
// The pull input runs entirely on the frame goroutine. Its only state shared
// across sessions is the renderer.Bridge reference count.
//
// # Buffer Lifecycle
//
//  1. BeginRecording: the pool is created empty
//  2. Audio thread: slots are appended or resized in place, then filled
//  3. NewFrameReady: filled slots are copied out, the filled count is reset last
//  4. EndRecording: the pool is released
//
// MainBuffer is owned by the input and stays valid until the next
// NewFrameReady or EndRecording.
//
// # Error Handling
//
// All errors use the enhanced error system with component and category
// tagging. Producer-side failures never cross the audio-thread boundary; they
// become a skip result and a log line. A drained sample count that is not a
// multiple of the channel count is an invariant failure and panics.
package audiocore
