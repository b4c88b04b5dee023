// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Input labels
const (
	InputTap  = "tap"
	InputPull = "pull"
)

// Rejection reasons for blocks refused on the audio thread
const (
	ReasonChannelMismatch = "channel_mismatch"
	ReasonShortBuffer     = "short_buffer"
	ReasonPanic           = "panic"
)

// Renderer transitions
const (
	TransitionStart = "start"
	TransitionStop  = "stop"
)

// Status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

const (
	// ShutdownTimeout is the timeout for graceful shutdown operations.
	ShutdownTimeout = 5 * time.Second
)
