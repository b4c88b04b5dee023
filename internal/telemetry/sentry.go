// Package telemetry bootstraps opt-in Sentry error reporting and connects it
// to the enhanced error builder.
package telemetry

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/framebridge/internal/conf"
	"github.com/tphakala/framebridge/internal/errors"
	"github.com/tphakala/framebridge/internal/logger"
)

var sentryInitialized atomic.Bool

// GetLogger returns the telemetry module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

// InitSentry initializes Sentry when enabled in settings and installs the
// error reporter. Disabled telemetry is not an error.
func InitSentry(settings *conf.Settings, version string) error {
	if !settings.Sentry.Enabled {
		GetLogger().Info("sentry telemetry is disabled (opt-in required)")
		return nil
	}

	return initWithOptions(settings, version, sentry.ClientOptions{
		Dsn:         settings.Sentry.DSN,
		Environment: settings.Sentry.Environment,
	})
}

// initWithOptions finishes client options from settings, initializes the SDK
// and hooks the reporter into the error builder. Tests pass a Transport.
func initWithOptions(settings *conf.Settings, version string, opts sentry.ClientOptions) error {
	opts.SampleRate = 1.0
	opts.AttachStacktrace = false
	opts.ServerName = ""
	opts.Release = fmt.Sprintf("framebridge@%s", version)
	opts.BeforeSend = func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
		return applyPrivacyFilters(event)
	}

	if err := sentry.Init(opts); err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry-init").
			Build()
	}

	configureSentryScope(settings, version)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	sentryInitialized.Store(true)

	GetLogger().Info("sentry telemetry initialized",
		logger.String("environment", opts.Environment),
		logger.String("release", opts.Release))
	return nil
}

// applyPrivacyFilters removes host identifying data from outgoing events
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}

func configureSentryScope(settings *conf.Settings, version string) {
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTag("input", settings.Recorder.Input)

		scope.SetContext("application", map[string]any{
			"name":    "framebridge",
			"version": version,
		})
		scope.SetContext("audio", map[string]any{
			"channels":    settings.Audio.Channels,
			"sample_rate": settings.Audio.SampleRate,
			"overflow":    settings.Tap.Overflow,
		})
	})
}

// Flush waits for queued events to be delivered. No-op when Sentry is not initialized.
func Flush(timeout time.Duration) {
	if !sentryInitialized.Load() {
		return
	}
	sentry.Flush(timeout)
}

// Shutdown detaches the reporter and flushes pending events.
func Shutdown(timeout time.Duration) {
	if !sentryInitialized.Swap(false) {
		return
	}
	errors.SetTelemetryReporter(nil)
	sentry.Flush(timeout)
}
