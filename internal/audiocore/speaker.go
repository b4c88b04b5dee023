package audiocore

import (
	"strings"

	"github.com/tphakala/framebridge/internal/errors"
)

// SpeakerMode is the host's speaker configuration
type SpeakerMode int

const (
	SpeakerModeUnknown SpeakerMode = iota
	SpeakerModeMono
	SpeakerModeStereo
	SpeakerModeQuad
	SpeakerModeSurround
	SpeakerMode5Point1
	SpeakerMode7Point1
	SpeakerModePrologic
)

var speakerModeNames = map[SpeakerMode]string{
	SpeakerModeUnknown:  "unknown",
	SpeakerModeMono:     "mono",
	SpeakerModeStereo:   "stereo",
	SpeakerModeQuad:     "quad",
	SpeakerModeSurround: "surround",
	SpeakerMode5Point1:  "5.1",
	SpeakerMode7Point1:  "7.1",
	SpeakerModePrologic: "prologic",
}

// ChannelCount maps the speaker mode to the channel count used for capture.
// 7.1 maps to 7 channels; unknown modes capture mono.
func (m SpeakerMode) ChannelCount() uint16 {
	switch m {
	case SpeakerModeMono:
		return 1
	case SpeakerModeStereo, SpeakerModePrologic:
		return 2
	case SpeakerModeQuad:
		return 4
	case SpeakerModeSurround:
		return 5
	case SpeakerMode5Point1:
		return 6
	case SpeakerMode7Point1:
		return 7
	default:
		return 1
	}
}

func (m SpeakerMode) String() string {
	if name, ok := speakerModeNames[m]; ok {
		return name
	}
	return speakerModeNames[SpeakerModeUnknown]
}

// ParseSpeakerMode parses a configuration value such as "stereo" or "5.1"
func ParseSpeakerMode(s string) (SpeakerMode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "5point1", "5_1":
		name = "5.1"
	case "7point1", "7_1":
		name = "7.1"
	}
	for mode, n := range speakerModeNames {
		if n == name {
			return mode, nil
		}
	}
	return SpeakerModeUnknown, errors.Newf("unknown speaker mode %q", s).
		Component(ComponentAudioCore).
		Category(errors.CategoryValidation).
		Build()
}

// SpeakerModeForChannels picks the speaker mode a device with the given
// channel count would report
func SpeakerModeForChannels(channels int) SpeakerMode {
	switch channels {
	case 1:
		return SpeakerModeMono
	case 2:
		return SpeakerModeStereo
	case 4:
		return SpeakerModeQuad
	case 5:
		return SpeakerModeSurround
	case 6:
		return SpeakerMode5Point1
	case 7, 8:
		return SpeakerMode7Point1
	default:
		return SpeakerModeUnknown
	}
}
