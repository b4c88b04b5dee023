// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"

	"github.com/tphakala/framebridge/internal/logger"
)

// DefaultWarnThreshold is the filled block count that triggers the backlog warning
const DefaultWarnThreshold = 500

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("recorder.framerate", 30.0)
	viper.SetDefault("recorder.duration", "0s")
	viper.SetDefault("recorder.input", InputTap)
	viper.SetDefault("recorder.preserveaudio", true)
	viper.SetDefault("recorder.output", "capture.wav")

	viper.SetDefault("audio.source", "")
	viper.SetDefault("audio.channels", 2)
	viper.SetDefault("audio.samplerate", 48000)
	viper.SetDefault("audio.periodframes", 0)
	viper.SetDefault("audio.speakermode", "stereo")

	viper.SetDefault("tap.warnthreshold", DefaultWarnThreshold)
	viper.SetDefault("tap.maxblocks", 0)
	viper.SetDefault("tap.overflow", OverflowGrow)

	viper.SetDefault("renderer.ringseconds", 2.0)

	viper.SetDefault("logging.default_level", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	viper.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	viper.SetDefault("logging.file_output.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.max_size", logger.DefaultMaxSize)
	viper.SetDefault("logging.file_output.max_age", logger.DefaultMaxAge)
	viper.SetDefault("logging.file_output.max_rotated_files", logger.DefaultMaxRotatedFiles)
	viper.SetDefault("logging.file_output.compress", false)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen", "127.0.0.1:9464")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")
}
