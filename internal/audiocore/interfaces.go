package audiocore

// SessionState is the consumer-visible state of an input
type SessionState struct {
	ChannelCount              uint16
	SampleRate                int
	TotalSampleFramesCaptured uint64 // only increases within a session
	Active                    bool
}

// AudioInput is the contract a recording pipeline drives once per session:
// BeginRecording, then NewFrameReady once per produced video frame, then
// EndRecording.
type AudioInput interface {
	ChannelCount() uint16
	SampleRate() int

	// MainBuffer holds the interleaved samples of the most recently completed
	// frame. It is valid until the next NewFrameReady or EndRecording.
	MainBuffer() []float32

	TotalSampleFramesCaptured() uint64
	State() SessionState

	BeginRecording(session *Session) error
	NewFrameReady(session *Session) error
	EndRecording(session *Session) error
}
