package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/brensch/zipfetch/internal/history"
)

var (
	historyLimit int
	historyEvent string
	historyRuns  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View the task event log of previous runs",
	Long: `Queries the DuckDB history database (--history-db) and displays recent task
events, newest first. Use --event to filter by event type and --runs to list
runs with their totals instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		if historyRuns {
			return printRuns(cmd, store)
		}
		getLogger().Debug("Querying task events", "event_filter", historyEvent, "limit", historyLimit)
		return store.DisplayHistory(cmd.Context(), cmd.OutOrStdout(), historyEvent, historyLimit)
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export DIR",
	Short: "Save the history tables to Parquet files in DIR",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		written, err := store.Export(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		for _, path := range written {
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
		return nil
	},
}

func openHistory(cmd *cobra.Command) (*history.Store, error) {
	cfg := getConfig()
	if cfg.HistoryDB == "" {
		return nil, fmt.Errorf("no history database configured (use --history-db or history_db)")
	}
	return history.Open(cmd.Context(), cfg.HistoryDB, getLogger())
}

func printRuns(cmd *cobra.Command, store *history.Store) error {
	runs, err := store.Runs(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-36s | %-25s | %-7s | %-7s | %-9s | %-6s | %s\n", "Run", "Started (UTC)", "Workers", "Sources", "Succeeded", "Failed", "Destination")
	fmt.Fprintln(w, strings.Repeat("-", 130))
	for _, r := range runs {
		succeeded, failed := "-", "-"
		if r.Succeeded.Valid {
			succeeded = fmt.Sprint(r.Succeeded.Int64)
		}
		if r.Failed.Valid {
			failed = fmt.Sprint(r.Failed.Int64)
		}
		fmt.Fprintf(w, "%-36s | %-25s | %-7d | %-7d | %-9s | %-6s | %s\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.Workers, r.Sources, succeeded, failed, r.Destination)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
	}
	return nil
}

func init() {
	historyCmd.PersistentFlags().IntVarP(&historyLimit, "limit", "n", 50, "Limit the number of records displayed")
	historyCmd.Flags().StringVarP(&historyEvent, "event", "e", "", "Filter events by type (task_start, task_success, task_failure)")
	historyCmd.Flags().BoolVar(&historyRuns, "runs", false, "List runs instead of task events")
	historyCmd.AddCommand(historyExportCmd)
}
