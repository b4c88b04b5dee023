// Package export writes the per-frame audio produced by an AudioInput to a
// destination. WAV is implemented natively with go-audio.
package export

// Format represents the audio export format
type Format string

const (
	// FormatWAV represents 16-bit PCM WAV
	FormatWAV Format = "wav"
)

// FrameSink receives the MainBuffer of every frame of a session. Begin is
// called once before the first frame, Close once after the last.
type FrameSink interface {
	Begin(channels uint16, sampleRate int) error
	WriteFrame(samples []float32) error
	Close() error
	Format() Format
}
