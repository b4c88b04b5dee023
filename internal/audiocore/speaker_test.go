package audiocore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpeakerModeChannelCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode SpeakerMode
		want uint16
	}{
		{SpeakerModeMono, 1},
		{SpeakerModeStereo, 2},
		{SpeakerModeQuad, 4},
		{SpeakerModeSurround, 5},
		{SpeakerMode5Point1, 6},
		{SpeakerMode7Point1, 7},
		{SpeakerModePrologic, 2},
		{SpeakerModeUnknown, 1},
		{SpeakerMode(42), 1},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.mode.ChannelCount())
		})
	}
}

func TestParseSpeakerMode(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]SpeakerMode{
		"stereo":   SpeakerModeStereo,
		" Mono ":   SpeakerModeMono,
		"5.1":      SpeakerMode5Point1,
		"7point1":  SpeakerMode7Point1,
		"prologic": SpeakerModePrologic,
	} {
		got, err := ParseSpeakerMode(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseSpeakerMode("ambisonic")
	require.Error(t, err)
}

func TestSpeakerModeForChannels(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SpeakerModeStereo, SpeakerModeForChannels(2))
	assert.Equal(t, SpeakerMode5Point1, SpeakerModeForChannels(6))
	assert.Equal(t, SpeakerModeUnknown, SpeakerModeForChannels(3))
}
