package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	def := Default()
	fs.StringSlice("source", def.Sources, "")
	fs.String("destination", def.Destination, "")
	fs.Int("workers", def.Workers, "")
	fs.Duration("http-timeout", def.HTTPTimeout, "")
	fs.String("log-format", def.LogFormat, "")
	return fs
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultSources, cfg.Sources)
	assert.Equal(t, DefaultDestination, cfg.Destination)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, DefaultHTTPTimeout, cfg.HTTPTimeout)
	assert.Empty(t, cfg.HistoryDB)
}

func TestLoadUnchangedFlagsKeepDefaults(t *testing.T) {
	cfg, err := Load("", newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultSources, cfg.Sources)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
}

func TestLoadPrecedence(t *testing.T) {
	tests := map[string]struct {
		file string
		name string
		args []string
		want func(t *testing.T, cfg Config)
	}{
		"yaml file overrides defaults": {
			name: "zipfetch.yaml",
			file: "sources:\n  - http://a.test/a.zip\ndestination: out\nworkers: 2\nhttp_timeout: 5s\n",
			want: func(t *testing.T, cfg Config) {
				assert.Equal(t, []string{"http://a.test/a.zip"}, cfg.Sources)
				assert.Equal(t, "out", cfg.Destination)
				assert.Equal(t, 2, cfg.Workers)
				assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
			},
		},
		"toml file overrides defaults": {
			name: "zipfetch.toml",
			file: "destination = \"tomlout\"\nworkers = 3\n",
			want: func(t *testing.T, cfg Config) {
				assert.Equal(t, "tomlout", cfg.Destination)
				assert.Equal(t, 3, cfg.Workers)
				assert.Equal(t, DefaultSources, cfg.Sources)
			},
		},
		"worker_count alias": {
			name: "zipfetch.yaml",
			file: "worker_count: 7\n",
			want: func(t *testing.T, cfg Config) {
				assert.Equal(t, 7, cfg.Workers)
			},
		},
		"changed flags override file": {
			name: "zipfetch.yaml",
			file: "destination: out\nworkers: 2\n",
			args: []string{"--workers=8", "--source=http://b.test/b.zip", "--source=http://c.test/c.zip"},
			want: func(t *testing.T, cfg Config) {
				assert.Equal(t, "out", cfg.Destination)
				assert.Equal(t, 8, cfg.Workers)
				assert.Equal(t, []string{"http://b.test/b.zip", "http://c.test/c.zip"}, cfg.Sources)
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, tc.name, tc.file)
			flags := newFlags(t)
			require.NoError(t, flags.Parse(tc.args))

			cfg, err := Load(path, flags)
			require.NoError(t, err)
			tc.want(t, cfg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeFile(t, "bad.yaml", "workers: 0\ndestination: \"\"\n")
	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers must be at least 1")
	assert.Contains(t, err.Error(), "destination must not be empty")
}

func TestValidateLogFormat(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	require.ErrorContains(t, cfg.Validate(), "log_format")
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.IndexURLs = []string{"https://divvy-tripdata.s3.amazonaws.com/index.html"}
	cfg.HistoryDB = "history.duckdb"
	cfg.Report = "report.parquet"
	cfg.Workers = 6
	cfg.HTTPTimeout = 90 * time.Second

	for _, format := range []string{"yaml", "toml"} {
		t.Run(format, func(t *testing.T) {
			data, err := cfg.Marshal(format)
			require.NoError(t, err)
			assert.Contains(t, string(data), "1m30s")

			loaded, err := Load(writeFile(t, "zipfetch."+format, string(data)), nil)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestMarshalUnknownFormat(t *testing.T) {
	_, err := Default().Marshal("xml")
	assert.ErrorContains(t, err, "unsupported config format")
}
