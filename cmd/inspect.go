package cmd

import (
	"github.com/spf13/cobra"

	"github.com/brensch/zipfetch/internal/report"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Show the contents of a Parquet run report",
	Long:  `Reads a report written by 'run --report FILE' and prints one line per source with its status, failure kind and member count.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := report.Read(args[0])
		if err != nil {
			return err
		}
		getLogger().Debug("Report loaded.", "path", args[0], "rows", len(rows))
		report.Display(cmd.OutOrStdout(), rows)
		return nil
	},
}
