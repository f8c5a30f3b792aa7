package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"sigs.k8s.io/yaml"
)

// DefaultSources is the built-in list of Divvy trip archives. The last entry
// does not exist upstream and is expected to fail with a 404.
var DefaultSources = []string{
	"https://divvy-tripdata.s3.amazonaws.com/Divvy_Trips_2018_Q4.zip",
	"https://divvy-tripdata.s3.amazonaws.com/Divvy_Trips_2019_Q1.zip",
	"https://divvy-tripdata.s3.amazonaws.com/Divvy_Trips_2019_Q2.zip",
	"https://divvy-tripdata.s3.amazonaws.com/Divvy_Trips_2019_Q3.zip",
	"https://divvy-tripdata.s3.amazonaws.com/Divvy_Trips_2019_Q4.zip",
	"https://divvy-tripdata.s3.amazonaws.com/Divvy_Trips_2020_Q1.zip",
	"https://divvy-tripdata.s3.amazonaws.com/Divvy_Trips_2220_Q1.zip",
}

const (
	DefaultDestination = "downloads"
	DefaultWorkers     = 4
	DefaultHTTPTimeout = 120 * time.Second
	DefaultUserAgent   = "zipfetch/0.3 (Go-client)"
)

// Config holds application settings. Keys match the config file and the
// mapstructure tags; dashed flag names are mapped in flagKeys.
type Config struct {
	Sources     []string      `mapstructure:"sources" json:"sources" toml:"sources"`
	IndexURLs   []string      `mapstructure:"index_urls" json:"index_urls,omitempty" toml:"index_urls,omitempty"`
	Destination string        `mapstructure:"destination" json:"destination" toml:"destination"`
	Workers     int           `mapstructure:"workers" json:"workers" toml:"workers"`
	HistoryDB   string        `mapstructure:"history_db" json:"history_db,omitempty" toml:"history_db,omitempty"`
	Report      string        `mapstructure:"report" json:"report,omitempty" toml:"report,omitempty"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout" json:"http_timeout" toml:"http_timeout"`
	UserAgent   string        `mapstructure:"user_agent" json:"user_agent" toml:"user_agent"`
	LogLevel    string        `mapstructure:"log_level" json:"log_level" toml:"log_level"`
	LogFormat   string        `mapstructure:"log_format" json:"log_format" toml:"log_format"`
	LogOutput   string        `mapstructure:"log_output" json:"log_output" toml:"log_output"`
}

// flagKeys maps config keys to the CLI flag that overrides them.
var flagKeys = map[string]string{
	"sources":      "source",
	"index_urls":   "index-url",
	"destination":  "destination",
	"workers":      "workers",
	"history_db":   "history-db",
	"report":       "report",
	"http_timeout": "http-timeout",
	"user_agent":   "user-agent",
	"log_level":    "log-level",
	"log_format":   "log-format",
	"log_output":   "log-output",
}

// Default returns the configuration used when no file or flag says otherwise.
func Default() Config {
	return Config{
		Sources:     append([]string(nil), DefaultSources...),
		Destination: DefaultDestination,
		Workers:     DefaultWorkers,
		HTTPTimeout: DefaultHTTPTimeout,
		UserAgent:   DefaultUserAgent,
		LogLevel:    "info",
		LogFormat:   "text",
		LogOutput:   "stderr",
	}
}

// Load resolves configuration with viper precedence: changed flags > config
// file > defaults. path may be empty, flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("sources", def.Sources)
	v.SetDefault("index_urls", []string{})
	v.SetDefault("destination", def.Destination)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("history_db", "")
	v.SetDefault("report", "")
	v.SetDefault("http_timeout", def.HTTPTimeout)
	v.SetDefault("user_agent", def.UserAgent)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)
	v.SetDefault("log_output", def.LogOutput)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	// Registered after reading so a file value under the alias is moved to workers.
	v.RegisterAlias("worker_count", "workers")

	if flags != nil {
		for key, name := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("binding flag --%s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Destination) == "" {
		errs = append(errs, errors.New("destination must not be empty"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.HTTPTimeout < 0 {
		errs = append(errs, fmt.Errorf("http_timeout must not be negative, got %s", c.HTTPTimeout))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Settings returns the configuration keyed like the config file, with
// durations in their string form so a dump can be loaded back.
func (c Config) Settings() map[string]any {
	return map[string]any{
		"sources":      c.Sources,
		"index_urls":   c.IndexURLs,
		"destination":  c.Destination,
		"workers":      c.Workers,
		"history_db":   c.HistoryDB,
		"report":       c.Report,
		"http_timeout": c.HTTPTimeout.String(),
		"user_agent":   c.UserAgent,
		"log_level":    c.LogLevel,
		"log_format":   c.LogFormat,
		"log_output":   c.LogOutput,
	}
}

// Marshal renders the configuration as a config file in format, which is
// "yaml" or "toml".
func (c Config) Marshal(format string) ([]byte, error) {
	settings := c.Settings()
	if c.IndexURLs == nil {
		settings["index_urls"] = []string{}
	}
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return yaml.Marshal(settings)
	case "toml":
		return toml.Marshal(settings)
	default:
		return nil, fmt.Errorf("unsupported config format %q (use yaml or toml)", format)
	}
}
