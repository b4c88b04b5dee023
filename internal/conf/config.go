// Package conf provides configuration management for framebridge.
package conf

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/framebridge/internal/errors"
	"github.com/tphakala/framebridge/internal/logger"
)

// EnvPrefix is the prefix for environment overrides, e.g. FRAMEBRIDGE_TAP_OVERFLOW.
const EnvPrefix = "FRAMEBRIDGE"

// Input source kinds for recorder.input
const (
	InputTap  = "tap"
	InputPull = "pull"
)

// Tap overflow policies for tap.overflow
const (
	OverflowGrow = "grow"
	OverflowDrop = "drop"
)

// RecorderSettings controls the frame-paced recording session
type RecorderSettings struct {
	FrameRate     float64       `yaml:"framerate"`     // video frames per second driving NewFrameReady
	Duration      time.Duration `yaml:"duration"`      // 0 records until interrupted
	Input         string        `yaml:"input"`         // tap or pull
	PreserveAudio bool          `yaml:"preserveaudio"` // keep the host renderer running for the session
	Output        string        `yaml:"output"`        // WAV output path
}

// AudioSettings selects the capture device and its format
type AudioSettings struct {
	Source       string `yaml:"source"`       // device name or ID substring, empty for system default
	Channels     int    `yaml:"channels"`     // requested channel count
	SampleRate   int    `yaml:"samplerate"`   // requested sample rate in Hz
	PeriodFrames int    `yaml:"periodframes"` // frames per device callback, 0 lets the backend decide
	SpeakerMode  string `yaml:"speakermode"`  // host speaker mode reported to the pull input
}

// TapSettings tunes the callback tap block pool
type TapSettings struct {
	WarnThreshold int    `yaml:"warnthreshold"` // filled count that triggers the backlog warning
	MaxBlocks     int    `yaml:"maxblocks"`     // hard cap for the drop policy
	Overflow      string `yaml:"overflow"`      // grow or drop
}

// RendererSettings tunes the device-backed renderer
type RendererSettings struct {
	RingSeconds float64 `yaml:"ringseconds"` // staging ring capacity in seconds of audio
}

// MetricsSettings controls the Prometheus endpoint
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// SentrySettings controls error telemetry
type SentrySettings struct {
	Enabled     bool   `yaml:"enabled"`
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// Settings is the root configuration
type Settings struct {
	Debug    bool                 `yaml:"debug"`
	Recorder RecorderSettings     `yaml:"recorder"`
	Audio    AudioSettings        `yaml:"audio"`
	Tap      TapSettings          `yaml:"tap"`
	Renderer RendererSettings     `yaml:"renderer"`
	Logging  logger.LoggingConfig `yaml:"logging"`
	Metrics  MetricsSettings      `yaml:"metrics"`
	Sentry   SentrySettings       `yaml:"sentry"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads configuration from the default search paths, or from
// configFile when it is not empty, applies environment overrides, and
// validates the result.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

func initViper(configFile string) error {
	setDefaultConfig()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return err
		}
		for _, path := range configPaths {
			viper.AddConfigPath(path)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			GetLogger().Debug("no config file found, using defaults")
			return nil
		}
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "read-config").
			Context("config_file", configFile).
			Build()
	}

	GetLogger().Debug("loaded config file", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// GetSettings returns the most recently loaded settings, or nil
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// FrameInterval is the wall-clock time between two NewFrameReady calls
func (r *RecorderSettings) FrameInterval() time.Duration {
	if r.FrameRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / r.FrameRate)
}
