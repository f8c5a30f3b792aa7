package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/brensch/zipfetch/internal/app"
	"github.com/brensch/zipfetch/internal/discover"
	"github.com/brensch/zipfetch/internal/fetch"
	"github.com/brensch/zipfetch/internal/history"
	"github.com/brensch/zipfetch/internal/orchestrator"
	"github.com/brensch/zipfetch/internal/output"
	"github.com/brensch/zipfetch/internal/report"
)

var useTUI bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Download and extract every configured archive",
	Long: `Runs the download workflow:
1. Discovers extra archive links on any configured listing pages.
2. Clears and recreates the destination directory.
3. Downloads and extracts every source on a pool of workers.
4. Prints the extracted member names, then any failed sources.
Failed sources do not change the exit status; only setup failures do.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDownload(cmd)
	},
}

func addRunFlags(c *cobra.Command) {
	c.Flags().BoolVar(&useTUI, "tui", false, "Show live progress in the terminal")
}

func init() {
	addRunFlags(runCmd)
}

func runDownload(cmd *cobra.Command) error {
	logger := getLogger()
	cfg := getConfig()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	fetcher := fetch.NewHTTPFetcher(fetch.Options{Timeout: cfg.HTTPTimeout, UserAgent: cfg.UserAgent})

	sources := cfg.Sources
	if len(cfg.IndexURLs) > 0 {
		discovered, err := discover.Discover(ctx, fetcher, cfg.IndexURLs, logger)
		if err != nil {
			logger.Warn("Discovery completed with errors.", "error", err)
		}
		sources = discover.Merge(sources, discovered)
	}

	fsys := afero.NewOsFs()
	if err := output.Prepare(fsys, cfg.Destination); err != nil {
		return err
	}

	var histRun *history.Run
	if cfg.HistoryDB != "" {
		store, err := history.Open(ctx, cfg.HistoryDB, logger)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer store.Close()
		histRun, err = store.BeginRun(ctx, cfg.Destination, cfg.Workers, len(sources))
		if err != nil {
			return err
		}
		logger = logger.With(slog.String("run_id", histRun.ID))
	}

	opts := orchestrator.Options{
		Workers: cfg.Workers,
		FS:      fsys,
		Fetcher: fetcher,
		Logger:  logger,
	}
	execute := func(ctx context.Context, rec orchestrator.Recorder) (orchestrator.Results, error) {
		o := opts
		o.Recorder = orchestrator.Recorders(recorderOrNil(histRun), rec)
		return orchestrator.Run(ctx, sources, cfg.Destination, o)
	}

	var results orchestrator.Results
	var err error
	if useTUI {
		results, err = app.Run(ctx, sources, execute, tea.WithOutput(os.Stderr))
	} else {
		results, err = execute(ctx, nil)
	}
	if err != nil {
		return err
	}
	results.Sort()

	if histRun != nil {
		if err := histRun.Finish(context.WithoutCancel(ctx), results); err != nil {
			logger.Error("Failed to record run totals.", "error", err)
		}
	}
	if cfg.Report != "" {
		runID := ""
		if histRun != nil {
			runID = histRun.ID
		}
		if err := writeReport(cfg.Report, runID, results); err != nil {
			logger.Error("Failed to write report.", "error", err)
		} else {
			logger.Info("Report written.", slog.String("path", cfg.Report))
		}
	}

	printSummary(cmd.OutOrStdout(), results)
	return nil
}

func writeReport(path, runID string, results orchestrator.Results) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory %s: %w", dir, err)
		}
	}
	return report.Write(path, runID, results)
}

// recorderOrNil keeps a nil *history.Run from becoming a non-nil Recorder.
func recorderOrNil(r *history.Run) orchestrator.Recorder {
	if r == nil {
		return nil
	}
	return r
}
