// Package config resolves pcron's on-disk layout for a configuration
// directory, the way the teacher's config package resolves paths relative
// to a base directory, and loads the small slice of daemon-level settings
// (store DSN, history sinks, metrics listen address, log level) that isn't
// itself crontab.ini job data.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Layout is the resolved set of paths pcron reads and writes inside a
// single configuration directory.
type Layout struct {
	Dir             string
	CrontabPath     string
	EnvironmentPath string
	LogFilePath     string
	PIDFilePath     string
	DaemonConfig    string
}

// ResolveLayout computes the on-disk layout rooted at dir. It does not
// require any of the files to exist yet; EnsureDir creates dir itself.
func ResolveLayout(dir string) (Layout, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve config dir %q: %w", dir, err)
	}
	return Layout{
		Dir:             abs,
		CrontabPath:     filepath.Join(abs, "crontab.ini"),
		EnvironmentPath: filepath.Join(abs, "environment.sh"),
		LogFilePath:     filepath.Join(abs, "logfile.txt"),
		PIDFilePath:     filepath.Join(abs, "pcron.pid"),
		DaemonConfig:    filepath.Join(abs, "pcron.yaml"),
	}, nil
}

// EnsureDir creates the layout's directory if it does not already exist.
func (l Layout) EnsureDir() error {
	return os.MkdirAll(l.Dir, 0o755)
}

// HasEnvironmentScript reports whether an environment.sh exists in the
// layout, so the supervisor knows whether to source it ahead of a job.
func (l Layout) HasEnvironmentScript() bool {
	_, err := os.Stat(l.EnvironmentPath)
	return err == nil
}

// Daemon is the set of settings that govern the engine process itself,
// rather than any individual job: persistence backend, optional history
// sink, metrics, and log level. Loaded from Layout.DaemonConfig when
// present; every field has a working zero-value default.
type Daemon struct {
	StoreDSN string `mapstructure:"store_dsn"`

	History HistoryConfig `mapstructure:"history"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
	Mail    MailConfig    `mapstructure:"mail"`
}

type HistoryConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Backend         string `mapstructure:"backend"` // sqlite, postgres, clickhouse, opensearch
	DSN             string `mapstructure:"dsn"`
	ClickHouseTable string `mapstructure:"clickhouse_table"`
	OpenSearchIndex string `mapstructure:"opensearch_index"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type MailConfig struct {
	Sendmail string `mapstructure:"sendmail"`
}

// DefaultDaemon returns the settings pcron runs with when no pcron.yaml is
// present: SQLite state store next to the catalog, no history sink, no
// metrics listener, info-level logging.
func DefaultDaemon(layout Layout) Daemon {
	return Daemon{
		StoreDSN: filepath.Join(layout.Dir, "state.db"),
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Mail: MailConfig{Sendmail: "/usr/sbin/sendmail"},
	}
}

// LoadDaemon reads layout.DaemonConfig if present, overlaying it on top of
// DefaultDaemon(layout); a missing file is not an error.
func LoadDaemon(layout Layout) (Daemon, error) {
	cfg := DefaultDaemon(layout)

	if _, err := os.Stat(layout.DaemonConfig); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("stat daemon config %q: %w", layout.DaemonConfig, err)
	}

	v := viper.New()
	v.SetConfigFile(layout.DaemonConfig)
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read daemon config %q: %w", layout.DaemonConfig, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal daemon config %q: %w", layout.DaemonConfig, err)
	}
	return cfg, nil
}
