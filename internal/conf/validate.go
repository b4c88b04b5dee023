// conf/validate.go

package conf

import (
	"fmt"
	"slices"

	"github.com/tphakala/framebridge/internal/audiocore"
	"github.com/tphakala/framebridge/internal/errors"
)

const (
	maxFrameRate  = 240
	maxChannels   = 8
	minSampleRate = 8000
	maxSampleRate = 384000
)

var validLogLevels = []string{"trace", "debug", "info", "warn", "error"}

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, validate := range []func(*Settings) error{
		func(s *Settings) error { return validateRecorderSettings(&s.Recorder) },
		func(s *Settings) error { return validateAudioSettings(&s.Audio) },
		func(s *Settings) error { return validateTapSettings(&s.Tap) },
		func(s *Settings) error { return validateRendererSettings(&s.Renderer) },
		validateLoggingSettings,
		validateServiceSettings,
	} {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("conf").
			Category(errors.CategoryValidation).
			Context("error_count", len(ve.Errors)).
			Build()
	}

	return nil
}

func validateRecorderSettings(r *RecorderSettings) error {
	if r.FrameRate <= 0 || r.FrameRate > maxFrameRate {
		return fmt.Errorf("recorder.framerate must be in (0, %d], got %g", maxFrameRate, r.FrameRate)
	}
	if r.Duration < 0 {
		return fmt.Errorf("recorder.duration must not be negative")
	}
	if r.Input != InputTap && r.Input != InputPull {
		return fmt.Errorf("recorder.input must be %q or %q, got %q", InputTap, InputPull, r.Input)
	}
	if r.Output == "" {
		return fmt.Errorf("recorder.output must not be empty")
	}
	return nil
}

func validateAudioSettings(a *AudioSettings) error {
	if a.Channels < 1 || a.Channels > maxChannels {
		return fmt.Errorf("audio.channels must be between 1 and %d, got %d", maxChannels, a.Channels)
	}
	if a.SampleRate < minSampleRate || a.SampleRate > maxSampleRate {
		return fmt.Errorf("audio.samplerate must be between %d and %d, got %d", minSampleRate, maxSampleRate, a.SampleRate)
	}
	if a.PeriodFrames < 0 {
		return fmt.Errorf("audio.periodframes must not be negative")
	}
	if a.SpeakerMode != "" {
		if _, err := audiocore.ParseSpeakerMode(a.SpeakerMode); err != nil {
			return fmt.Errorf("audio.speakermode %q is not a known speaker mode", a.SpeakerMode)
		}
	}
	return nil
}

func validateTapSettings(t *TapSettings) error {
	if t.WarnThreshold <= 0 {
		return fmt.Errorf("tap.warnthreshold must be positive, got %d", t.WarnThreshold)
	}
	if t.MaxBlocks < 0 {
		return fmt.Errorf("tap.maxblocks must not be negative")
	}
	switch t.Overflow {
	case OverflowGrow:
	case OverflowDrop:
		if t.MaxBlocks == 0 {
			return fmt.Errorf("tap.maxblocks must be set when tap.overflow is %q", OverflowDrop)
		}
	default:
		return fmt.Errorf("tap.overflow must be %q or %q, got %q", OverflowGrow, OverflowDrop, t.Overflow)
	}
	return nil
}

func validateRendererSettings(r *RendererSettings) error {
	if r.RingSeconds <= 0 {
		return fmt.Errorf("renderer.ringseconds must be positive")
	}
	return nil
}

func validateLoggingSettings(s *Settings) error {
	levels := []string{s.Logging.DefaultLevel}
	if s.Logging.Console != nil {
		levels = append(levels, s.Logging.Console.Level)
	}
	if s.Logging.FileOutput != nil {
		levels = append(levels, s.Logging.FileOutput.Level)
		if s.Logging.FileOutput.Enabled && s.Logging.FileOutput.Path == "" {
			return fmt.Errorf("logging.file_output.path must be set when file output is enabled")
		}
	}
	for _, level := range levels {
		if level != "" && !slices.Contains(validLogLevels, level) {
			return fmt.Errorf("invalid log level %q", level)
		}
	}
	return nil
}

func validateServiceSettings(s *Settings) error {
	if s.Metrics.Enabled && s.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen must be set when metrics are enabled")
	}
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		return fmt.Errorf("sentry.dsn must be set when sentry is enabled")
	}
	return nil
}
