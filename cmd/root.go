package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/brensch/zipfetch/internal/config"
)

var (
	cfgFile string

	// Global instances populated in PersistentPreRunE
	rootLogger *slog.Logger
	logFile    *os.File
	appConfig  config.Config
)

// rootCmd runs the download when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "zipfetch",
	Short: "Download zip archives concurrently and extract them into one directory.",
	Long: `zipfetch downloads a list of zip archives on a bounded pool of workers,
extracts every archive into a shared destination directory and reports the
outcome of each source. A failing source never stops the others.

Without a subcommand it behaves like 'run'. Other commands discover archive
links on listing pages, show the run history and inspect run reports.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		appConfig = cfg

		logger, f, err := newLogger(cfg)
		if err != nil {
			return err
		}
		rootLogger, logFile = logger, f
		slog.SetDefault(rootLogger)
		rootLogger.Debug("Logger initialized", "level", cfg.LogLevel, "format", cfg.LogFormat, "output", cfg.LogOutput)
		rootLogger.Debug("Configuration loaded", slog.Any("config", appConfig))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logFile != nil {
			if err := logFile.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
			}
			logFile = nil
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDownload(cmd)
	},
}

// Execute adds all child commands to the root command and runs it.
// This is called by main.main().
func Execute() {
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		if rootLogger != nil {
			rootLogger.Error("Command execution failed", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

var registerOnce sync.Once

func registerCommands() {
	registerOnce.Do(func() {
		rootCmd.AddCommand(runCmd)
		rootCmd.AddCommand(discoverCmd)
		rootCmd.AddCommand(historyCmd)
		rootCmd.AddCommand(inspectCmd)
		rootCmd.AddCommand(configCmd)
	})
}

func init() {
	def := config.Default()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	pf.StringSlice("source", def.Sources, "Archive URL to download (repeatable; replaces the built-in list)")
	pf.StringSlice("index-url", nil, "Listing page to discover extra .zip links on (repeatable)")
	pf.StringP("destination", "d", def.Destination, "Directory archives are extracted into; cleared at the start of a run")
	pf.IntP("workers", "w", def.Workers, "Number of concurrent download workers")
	pf.String("history-db", "", "DuckDB file recording run history (disabled when empty)")
	pf.String("report", "", "Write a Parquet report of the run to this file")
	pf.Duration("http-timeout", def.HTTPTimeout, "Timeout for a single HTTP request (0 disables)")
	pf.String("user-agent", def.UserAgent, "User-Agent header sent with requests")
	pf.String("log-format", def.LogFormat, "Log output format (text or json)")
	pf.String("log-level", def.LogLevel, "Log level (debug, info, warn, error)")
	pf.String("log-output", def.LogOutput, "Log output destination (stderr, stdout, or file path)")

	addRunFlags(rootCmd)

	rootCmd.Version = "0.3.0"
}

// newLogger builds the slog logger described by cfg. The returned file is
// non-nil when logs go to a file the caller must close.
func newLogger(cfg config.Config) (*slog.Logger, *os.File, error) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var logWriter io.Writer = os.Stderr
	var f *os.File
	switch out := strings.ToLower(cfg.LogOutput); out {
	case "", "stderr":
	case "stdout":
		logWriter = os.Stdout
	default:
		var err error
		f, err = os.OpenFile(cfg.LogOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.LogOutput, err)
		}
		logWriter = f
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.LogFormat) == "json" {
		handler = slog.NewJSONHandler(logWriter, opts)
	} else {
		handler = slog.NewTextHandler(logWriter, opts)
	}
	return slog.New(handler), f, nil
}

func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

func getConfig() config.Config {
	return appConfig
}
