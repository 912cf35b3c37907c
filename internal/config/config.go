// Package config provides the YAML application configuration, including
// first-run config creation and atomic saves with 0600 permissions.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	// CalendarURL is the upstream calendar page the browser session drives
	// to obtain season spreadsheet exports.
	CalendarURL string `yaml:"calendar_url" json:"calendar_url"`

	// Seasons is the list of 4-digit season labels to acquire. When empty,
	// the current year plus the next two are used (future seasons are
	// usually published well in advance).
	Seasons []string `yaml:"seasons" json:"seasons"`

	// DataDir is where acquired season spreadsheets live. Files placed
	// here manually are picked up by the scanner like any other source.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// FeedPath is the published iCalendar feed file.
	FeedPath string `yaml:"feed_path" json:"feed_path"`

	// DatabasePath is the SQLite run-history database.
	DatabasePath string `yaml:"database_path" json:"database_path"`

	// Listen is the HTTP listen address for the debug UI and feed endpoint.
	Listen string `yaml:"listen" json:"listen"`

	// RefreshCron is the cron schedule for automatic pipeline runs in
	// serve mode (e.g. "0 6 * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// FetchTimeoutSec bounds one season's browser-driven acquisition.
	FetchTimeoutSec int `yaml:"fetch_timeout_sec" json:"fetch_timeout_sec"`

	// SeasonDelaySec is the fixed pause between season acquisitions; a
	// politeness throttle toward the upstream site, not a correctness
	// requirement.
	SeasonDelaySec int `yaml:"season_delay_sec" json:"season_delay_sec"`

	// Headful runs the acquisition browser with a visible window; only
	// useful when debugging selector matchers locally.
	Headful bool `yaml:"headful" json:"headful"`
}

// DefaultCalendarURL points at the federation's public calendar page.
const DefaultCalendarURL = "https://www.uci.org/calendar/mtb/1voMyukVGR4iZMhMlDfRv0?discipline=MTB"

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		CalendarURL:     DefaultCalendarURL,
		Seasons:         []string{},
		DataDir:         "./data",
		FeedPath:        "./public/calendar.ics",
		DatabasePath:    "./var/racecal.db",
		Listen:          "127.0.0.1:8080",
		RefreshCron:     "0 6 * * *",
		FetchTimeoutSec: 90,
		SeasonDelaySec:  3,
	}
}

// Normalize fills in missing/zero values so partially-filled configs from
// older versions still behave correctly.
func (c *Config) Normalize() {
	if c.CalendarURL == "" {
		c.CalendarURL = DefaultCalendarURL
	}
	if c.Seasons == nil {
		c.Seasons = []string{}
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.FeedPath == "" {
		c.FeedPath = "./public/calendar.ics"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "./var/racecal.db"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "0 6 * * *"
	}
	if c.FetchTimeoutSec <= 0 {
		c.FetchTimeoutSec = 90
	}
	if c.SeasonDelaySec < 0 {
		c.SeasonDelaySec = 0
	} else if c.SeasonDelaySec == 0 {
		c.SeasonDelaySec = 3
	}
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (creating
// the parent directory if needed) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".racecal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
