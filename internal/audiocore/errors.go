package audiocore

import (
	"github.com/tphakala/framebridge/internal/errors"
)

// Component identifier for audiocore errors
const ComponentAudioCore = "audiocore"

// Lifecycle sentinels. Inputs wrap them with the error builder, so match with
// errors.Is.
var (
	// ErrNotRecording is returned when a frame or teardown call arrives
	// without a matching BeginRecording
	ErrNotRecording = errors.NewStd("input is not recording")

	// ErrAlreadyRecording is returned by a second BeginRecording
	ErrAlreadyRecording = errors.NewStd("input is already recording")

	// ErrNilSession is returned when a lifecycle call receives no session
	ErrNilSession = errors.NewStd("session is nil")
)

// StateError wraps a lifecycle sentinel for the given component
func StateError(component string, sentinel error, operation string) error {
	return errors.New(sentinel).
		Component(component).
		Category(errors.CategoryState).
		Context("operation", operation).
		Build()
}

// SessionError reports a missing session
func SessionError(component, operation string) error {
	return errors.New(ErrNilSession).
		Component(component).
		Category(errors.CategoryValidation).
		Context("operation", operation).
		Build()
}
