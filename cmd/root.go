package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/framebridge/cmd/config"
	"github.com/tphakala/framebridge/cmd/devices"
	"github.com/tphakala/framebridge/cmd/record"
	"github.com/tphakala/framebridge/internal/buildinfo"
	"github.com/tphakala/framebridge/internal/conf"
	"github.com/tphakala/framebridge/internal/logger"
	"github.com/tphakala/framebridge/internal/telemetry"
)

const telemetryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command. settings is filled by
// the persistent pre-run before any subcommand executes.
func RootCommand(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	var configFile string
	var centralLogger *logger.CentralLogger

	rootCmd := &cobra.Command{
		Use:           "framebridge",
		Short:         "Frame-paced audio capture",
		Long:          "Capture audio in per-video-frame slices from a tapped audio graph or a pull renderer.",
		Version:       info.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file")
	if err := setupFlags(rootCmd); err != nil {
		panic(err)
	}

	subcommands := []*cobra.Command{
		record.Command(settings),
		devices.Command(),
		config.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded

		if settings.Debug {
			settings.Logging.DefaultLevel = "debug"
			if settings.Logging.Console != nil {
				settings.Logging.Console.Level = "debug"
			}
		}
		cl, err := logger.NewCentralLogger(&settings.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger.SetGlobal(cl)
		centralLogger = cl

		return telemetry.InitSentry(settings, info.Version())
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		telemetry.Shutdown(telemetryFlushTimeout)
		if centralLogger != nil {
			_ = centralLogger.Close()
		}
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command) error {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().Bool("metrics", false, "Enable the Prometheus metrics endpoint")
	rootCmd.PersistentFlags().String("metrics-listen", "", "Listen address of the metrics endpoint")

	bindings := map[string]string{
		"debug":           "debug",
		"metrics.enabled": "metrics",
		"metrics.listen":  "metrics-listen",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
