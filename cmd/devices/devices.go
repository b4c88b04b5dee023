package devices

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/framebridge/internal/audiocore/sources/malgo"
)

// Command creates the devices command.
func Command() *cobra.Command {
	var hardwareOnly bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			list := malgo.EnumerateDevices
			if hardwareOnly {
				list = malgo.GetHardwareDevices
			}
			devices, err := list()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "INDEX\tNAME\tID\tDEFAULT")
			for _, d := range devices {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%t\n", d.Index, d.Name, d.ID, d.IsDefault)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&hardwareOnly, "hardware", false, "Only list hardware devices")
	return cmd
}
