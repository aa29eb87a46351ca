// Package config loads, normalizes and saves the YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen   = "127.0.0.1:8080"
	defaultTimezone = "Asia/Shanghai"
	appDir          = "lunarcal"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// LogConfig selects the log level (debug, info, warn, error) and encoding
// (console or json).
type LogConfig struct {
	Level    string `yaml:"level" json:"level"`
	Encoding string `yaml:"encoding" json:"encoding"`
}

// ReminderConfig controls reminder delivery.
type ReminderConfig struct {
	// Enabled turns the reminder scheduler on for `serve`.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// WebhookURL, when set, receives every fired reminder as a JSON POST in
	// addition to the log line.
	WebhookURL string `yaml:"webhook_url" json:"webhook_url"`
	// Timeout bounds one delivery, as a Go duration ("10s").
	Timeout string `yaml:"timeout" json:"timeout"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone that defines "a day" for events and views.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path" json:"db_path"`

	// FetchTimeout bounds downloads of remote calendars for import.
	FetchTimeout string `yaml:"fetch_timeout" json:"fetch_timeout"`

	Log      LogConfig      `yaml:"log" json:"log"`
	Reminder ReminderConfig `yaml:"reminder" json:"reminder"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultPath returns the config file location under the user config
// directory, falling back to ./var when it cannot be determined.
func DefaultPath() string {
	return filepath.Join(baseDir(), "config.yaml")
}

func baseDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return filepath.Join(".", "var")
	}
	return filepath.Join(dir, appDir)
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       defaultListen,
		Timezone:     defaultTimezone,
		WeekStart:    "monday",
		DBPath:       filepath.Join(baseDir(), "events.db"),
		FetchTimeout: "15s",
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
		Reminder: ReminderConfig{
			Enabled: true,
			Timeout: "10s",
		},
	}
}

// Normalize fills in missing or invalid values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	c.WeekStart = strings.ToLower(strings.TrimSpace(c.WeekStart))
	if c.WeekStart != "monday" && c.WeekStart != "sunday" {
		c.WeekStart = def.WeekStart
	}
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	if _, err := time.ParseDuration(c.FetchTimeout); err != nil {
		c.FetchTimeout = def.FetchTimeout
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		c.Log.Level = def.Log.Level
	}
	if c.Log.Encoding != "json" {
		c.Log.Encoding = def.Log.Encoding
	}

	if _, err := time.ParseDuration(c.Reminder.Timeout); err != nil {
		c.Reminder.Timeout = def.Reminder.Timeout
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Weekday returns WeekStart as a time.Weekday.
func (c *Config) Weekday() time.Weekday {
	if c.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// ReminderTimeout returns Reminder.Timeout parsed; zero if invalid.
func (c *Config) ReminderTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Reminder.Timeout)
	return d
}

// FetchTimeoutDuration returns FetchTimeout parsed; zero if invalid.
func (c *Config) FetchTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.FetchTimeout)
	return d
}

// Environment overrides, usually supplied through a .env file.
const (
	EnvListen       = "LUNARCAL_LISTEN"
	EnvTimezone     = "LUNARCAL_TIMEZONE"
	EnvWeekStart    = "LUNARCAL_WEEK_START"
	EnvDBPath       = "LUNARCAL_DB"
	EnvLogLevel     = "LUNARCAL_LOG_LEVEL"
	EnvLogEncoding  = "LUNARCAL_LOG_ENCODING"
	EnvReminders    = "LUNARCAL_REMINDERS"
	EnvWebhookURL   = "LUNARCAL_WEBHOOK_URL"
	EnvAuthUser     = "LUNARCAL_BASIC_AUTH_USER"
	EnvAuthPassword = "LUNARCAL_BASIC_AUTH_PASSWORD"
)

// ApplyEnv overrides fields from the environment as seen through lookup
// (os.LookupEnv in production). Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	set := func(key string, dst *string) {
		if v, ok := get(key); ok {
			*dst = v
		}
	}

	set(EnvListen, &c.Listen)
	set(EnvTimezone, &c.Timezone)
	set(EnvWeekStart, &c.WeekStart)
	set(EnvDBPath, &c.DBPath)
	set(EnvLogLevel, &c.Log.Level)
	set(EnvLogEncoding, &c.Log.Encoding)
	set(EnvWebhookURL, &c.Reminder.WebhookURL)
	if v, ok := get(EnvReminders); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Reminder.Enabled = b
		}
	}

	user, hasUser := get(EnvAuthUser)
	pass, hasPass := get(EnvAuthPassword)
	if hasUser || hasPass {
		if c.BasicAuth == nil {
			c.BasicAuth = &BasicAuthConfig{}
		}
		if hasUser {
			c.BasicAuth.Username = user
		}
		if hasPass {
			c.BasicAuth.Password = pass
		}
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there (0600,
//     parent directory 0700) and returned.
//   - Otherwise the YAML is read and unmarshaled.
//   - Environment overrides are applied last and never written back.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.Normalize()
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
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
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
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

	tmp, err := os.CreateTemp(dir, ".lunarcal-config-*.tmp")
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

func (c *Config) Save(path string) error {
	return Save(path, c)
}
