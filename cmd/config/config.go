package config

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/framebridge/internal/conf"
)

// Command creates the config command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return conf.DumpYAML(os.Stdout, settings)
		},
	}
}
