package record

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/framebridge/internal/audiocore"
	"github.com/tphakala/framebridge/internal/audiocore/export"
	"github.com/tphakala/framebridge/internal/audiocore/recording"
	"github.com/tphakala/framebridge/internal/audiocore/renderer"
	"github.com/tphakala/framebridge/internal/audiocore/sources/malgo"
	"github.com/tphakala/framebridge/internal/audiocore/sources/pull"
	"github.com/tphakala/framebridge/internal/audiocore/sources/tap"
	"github.com/tphakala/framebridge/internal/conf"
	"github.com/tphakala/framebridge/internal/errors"
	"github.com/tphakala/framebridge/internal/logger"
	"github.com/tphakala/framebridge/internal/observability"
	"github.com/tphakala/framebridge/internal/observability/metrics"
)

// Command creates the record command.
func Command(settings *conf.Settings) *cobra.Command {
	var maxFrames uint64

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record frame-paced audio to a WAV file",
		Long: "Open the configured device, drive an audio input once per video frame " +
			"and write every frame buffer to a WAV file until interrupted or the duration elapses.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings, maxFrames)
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}
	cmd.Flags().Uint64Var(&maxFrames, "frames", 0, "Stop after this many frames, 0 for no limit")

	return cmd
}

// setupFlags configures flags specific to the record command.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().StringP("output", "o", "", "Output WAV path")
	cmd.Flags().String("input", "", "Audio input: tap (graph callback) or pull (renderer)")
	cmd.Flags().Duration("duration", 0, "Recording duration, 0 records until interrupted")
	cmd.Flags().Float64("framerate", 0, "Video frames per second")
	cmd.Flags().Bool("preserve", false, "Keep the host renderer running for the session")
	cmd.Flags().String("source", "", "Capture device name or ID")
	cmd.Flags().String("speakermode", "", "Host speaker mode for the pull input (mono, stereo, quad, surround, 5.1, 7.1, prologic)")

	bindings := map[string]string{
		"recorder.output":        "output",
		"recorder.input":         "input",
		"recorder.duration":      "duration",
		"recorder.framerate":     "framerate",
		"recorder.preserveaudio": "preserve",
		"audio.source":           "source",
		"audio.speakermode":      "speakermode",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// Run records one session with the configured input. The metrics endpoint,
// when enabled, runs alongside the pipeline and stops with it.
func Run(ctx context.Context, settings *conf.Settings, maxFrames uint64) error {
	log := logger.Global().Module("record")

	obs, err := observability.NewMetrics()
	if err != nil {
		return err
	}
	m := obs.Bridge

	input, closeHost, err := buildInput(settings, m, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeHost(); err != nil {
			log.Warn("failed to close audio host", logger.Error(err))
		}
	}()

	sink := export.NewWAVSink(settings.Recorder.Output, log.Module("export"))
	pipeline := recording.New(input, sink, recording.Config{
		FrameInterval: settings.Recorder.FrameInterval(),
		Duration:      settings.Recorder.Duration,
		MaxFrames:     maxFrames,
		PreserveAudio: settings.Recorder.PreserveAudio,
	}, recording.Options{Logger: log, Metrics: m})

	var endpoint *observability.Endpoint
	if settings.Metrics.Enabled {
		if endpoint, err = observability.NewEndpoint(settings, obs); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// the endpoint lives only as long as the recording
		defer cancel()
		return pipeline.Run(gctx)
	})
	if endpoint != nil {
		g.Go(func() error {
			return endpoint.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	stats := pipeline.Stats()
	fmt.Printf("Recorded %d frames, %d sample frames (%d ch @ %d Hz) to %s\n",
		stats.Frames, stats.SampleFrames, stats.Channels, stats.SampleRate, settings.Recorder.Output)
	return nil
}

// buildInput opens the device host for the configured input kind
func buildInput(settings *conf.Settings, m *metrics.AudioBridgeMetrics, log logger.Logger) (audiocore.AudioInput, func() error, error) {
	cfg := malgo.Config{
		Device:       settings.Audio.Source,
		Channels:     settings.Audio.Channels,
		SampleRate:   settings.Audio.SampleRate,
		PeriodFrames: settings.Audio.PeriodFrames,
		RingSeconds:  settings.Renderer.RingSeconds,
	}

	switch settings.Recorder.Input {
	case conf.InputTap:
		policy, err := audiocore.ParseOverflowPolicy(settings.Tap.Overflow)
		if err != nil {
			return nil, nil, err
		}
		graph := malgo.NewGraph(cfg, log.Module("malgo"))
		if err := graph.Open(); err != nil {
			return nil, nil, err
		}
		// the duplex graph has no renderer, so preserve-audio resolves to an inert bridge
		bridge := renderer.Resolve(graph, log.Module("renderer"), m)
		input := tap.NewInput(graph, bridge, tap.Options{
			Logger:        log.Module("tap"),
			Metrics:       m,
			WarnThreshold: settings.Tap.WarnThreshold,
			MaxBlocks:     settings.Tap.MaxBlocks,
			Overflow:      policy,
		})
		return input, graph.Close, nil

	case conf.InputPull:
		mode, err := audiocore.ParseSpeakerMode(settings.Audio.SpeakerMode)
		if err != nil {
			return nil, nil, err
		}
		host := malgo.NewRenderer(cfg, mode, log.Module("malgo"))
		if err := host.Open(); err != nil {
			return nil, nil, err
		}
		bridge := renderer.Resolve(host, log.Module("renderer"), m)
		input := pull.NewInput(bridge, host, pull.Options{
			Logger:  log.Module("pull"),
			Metrics: m,
		})
		return input, host.Close, nil

	default:
		return nil, nil, errors.Newf("unknown recorder input %q", settings.Recorder.Input).
			Component("record").
			Category(errors.CategoryConfiguration).
			Build()
	}
}
