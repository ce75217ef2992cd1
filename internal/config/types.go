// Package config loads and hot-reloads the bot configuration from a
// JSON or YAML file.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"sitewatch/internal/notifier"
	"sitewatch/internal/scheduler"
	"sitewatch/internal/storage"
	"sitewatch/pkg/logx"
)

type Config struct {
	Telegram  TelegramConfig        `json:"telegram"`
	Logging   LoggingConfig         `json:"logging"`
	Scheduler SchedulerConfig       `json:"scheduler"`
	Notifier  NotifierConfig        `json:"notifier"`
	Storage   StorageConfig         `json:"storage"`
	Sites     map[string]SiteConfig `json:"sites,omitempty"`
}

type TelegramConfig struct {
	Token       string `json:"token"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console,omitempty"`
	File    FileTarget `json:"file,omitempty"`
}

type FileTarget struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type SchedulerConfig struct {
	Enabled      bool   `json:"enabled"`
	Timezone     string `json:"timezone,omitempty"`
	CheckTimeout string `json:"check_timeout,omitempty"`
}

type NotifierConfig struct {
	BatchSize   int     `json:"batch_size,omitempty"`
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
	SendTimeout string  `json:"send_timeout,omitempty"`
	RetryMax    int     `json:"retry_max,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SiteConfig tunes one site plugin. Options holds plugin-specific
// settings the plugin decodes itself.
type SiteConfig struct {
	Enabled  *bool           `json:"enabled,omitempty"`
	Schedule string          `json:"schedule,omitempty"`
	Options  json.RawMessage `json:"options,omitempty"`
}

// SiteEnabled reports whether the site with the given id should run.
/// Sites default to enabled; only an explicit enabled:false turns one
// off.
func (c *Config) SiteEnabled(id string) bool {
	sc, ok := c.Sites[id]
	if !ok || sc.Enabled == nil {
		return true
	}
	return *sc.Enabled
}

// SiteSchedule returns the configured schedule override for id, empty
// when the plugin default applies.
func (c *Config) SiteSchedule(id string) string {
	return c.Sites[id].Schedule
}

// SiteOptions returns the raw plugin options block for id, nil when
// the config carries none.
func (c *Config) SiteOptions(id string) json.RawMessage {
	return c.Sites[id].Options
}

// LogxConfig maps the logging section onto the logger's own config.
func (c *Config) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

// SchedulerConfig maps the scheduler section onto the service config.
// Validate has already vetted the duration strings.
func (c *Config) SchedulerConfig() scheduler.Config {
	timeout, _ := parseDuration("scheduler.check_timeout", c.Scheduler.CheckTimeout)
	return scheduler.Config{
		Enabled:      c.Scheduler.Enabled,
		Timezone:     c.Scheduler.Timezone,
		CheckTimeout: timeout,
	}
}

// NotifierConfig maps the notifier section onto the service config.
func (c *Config) NotifierConfig() notifier.Config {
	timeout, _ := parseDuration("notifier.send_timeout", c.Notifier.SendTimeout)
	return notifier.Config{
		BatchSize:   c.Notifier.BatchSize,
		RatePerSec:  c.Notifier.RatePerSec,
		SendTimeout: timeout,
		RetryMax:    c.Notifier.RetryMax,
	}
}

// StorageConfig maps the storage section onto the backend config.
func (c *Config) StorageConfig() storage.Config {
	busy, _ := parseDuration("storage.busy_timeout", c.Storage.BusyTimeout)
	return storage.Config{
		Driver:      c.Storage.Driver,
		Path:        c.Storage.Path,
		BusyTimeout: busy,
	}
}

// PollTimeout returns the telegram long-poll timeout, zero for the
// transport default.
func (c *Config) PollTimeout() time.Duration {
	d, _ := parseDuration("telegram.poll_timeout", c.Telegram.PollTimeout)
	return d
}

func parseDuration(path, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: %s: duration must be >= 0", path)
	}
	return d, nil
}

// Validate rejects configurations the services cannot start with.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("config: telegram.token is required")
	}
	switch c.Storage.Driver {
	case "", "file", "sqlite":
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Notifier.BatchSize < 0 {
		return fmt.Errorf("config: notifier.batch_size must not be negative")
	}
	if c.Notifier.RatePerSec < 0 {
		return fmt.Errorf("config: notifier.rate_per_sec must not be negative")
	}
	if c.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			return fmt.Errorf("config: scheduler.timezone: %w", err)
		}
	}
	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"scheduler.check_timeout", c.Scheduler.CheckTimeout},
		{"notifier.send_timeout", c.Notifier.SendTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
	} {
		if _, err := parseDuration(f.path, f.raw); err != nil {
			return err
		}
	}
	for id, sc := range c.Sites {
		if sc.Schedule == "" {
			continue
		}
		if _, err := scheduler.ParseSchedule(id, sc.Schedule); err != nil {
			return fmt.Errorf("config: sites.%s.schedule: %w", id, err)
		}
	}
	return nil
}
