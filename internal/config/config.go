// Package config loads the TOML configuration for the mergeplay CLI,
// following the shape of the teacher's internal/cli/config package:
// NewFromFile reads an optional file on top of the built-in defaults
// that Default returns.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config controls the merger's diagnostic behavior and the surrounding
// CLI/daemon: soft backlog cap, warning rate limits, log level, the
// metrics listen address, and the reaper schedule.
type Config struct {
	SoftCap      int           `toml:"soft_cap"`
	WarnInterval time.Duration `toml:"warn_interval"`
	WarnBurst    int           `toml:"warn_burst"`
	LogLevel     string        `toml:"log_level"`
	MetricsAddr  string        `toml:"metrics_addr"`
	// ReaperSchedule is a standard cron expression controlling how often
	// internal/reaper checks for idle streams to finish. Empty disables
	// the reaper.
	ReaperSchedule string        `toml:"reaper_schedule"`
	ReaperIdleTime time.Duration `toml:"reaper_idle_time"`

	path string
}

// Default returns the built-in configuration used when no file is given.
func Default() Config {
	return Config{
		SoftCap:        500,
		WarnInterval:   time.Second,
		WarnBurst:      1,
		LogLevel:       "info",
		MetricsAddr:    ":9090",
		ReaperSchedule: "@every 30s",
		ReaperIdleTime: 10 * time.Second,
	}
}

// NewFromFile loads Config from path, falling back to Default() for any
// field the file doesn't set, and to pure defaults if path doesn't exist.
func NewFromFile(path string) (Config, error) {
	cfg := Default()
	cfg.path = path

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("check config file permissions %q: %w", path, err)
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("read config file %q: %w", path, err)
	}
	return cfg, nil
}
