package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultListen, cfg.Listen)
	assert.Equal(t, "monday", cfg.WeekStart)
	assert.True(t, cfg.Reminder.Enabled)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.DBPath, again.DBPath)
}

func TestLoadNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9000"
week_start: Sunday
db_path: /tmp/x.db
log:
  level: LOUD
  encoding: json
reminder:
  timeout: soon
basic_auth:
  username: ""
  password: ""
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "sunday", cfg.WeekStart)
	assert.Equal(t, time.Sunday, cfg.Weekday())
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	assert.Equal(t, defaultTimezone, cfg.Timezone)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Encoding)
	assert.Equal(t, 10*time.Second, cfg.ReminderTimeout())
	assert.Equal(t, 15*time.Second, cfg.FetchTimeoutDuration())
	assert.Nil(t, cfg.BasicAuth)
	assert.False(t, cfg.Reminder.Enabled)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvListen:       "0.0.0.0:7000",
		EnvTimezone:     "UTC",
		EnvDBPath:       " ",
		EnvReminders:    "false",
		EnvWebhookURL:   "http://hook.local/notify",
		EnvAuthUser:     "me",
		EnvAuthPassword: "secret",
	}
	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.Equal(t, "0.0.0.0:7000", cfg.Listen)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, DefaultConfig().DBPath, cfg.DBPath)
	assert.False(t, cfg.Reminder.Enabled)
	assert.Equal(t, "http://hook.local/notify", cfg.Reminder.WebhookURL)
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, BasicAuthConfig{Username: "me", Password: "secret"}, *cfg.BasicAuth)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Listen = ":8181"
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}
	require.NoError(t, cfg.Save(path))

	got, err := loadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	assert.Error(t, Save(path, nil))
}

func TestLocationError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Mars/Olympus"
	_, err := cfg.Location()
	assert.Error(t, err)
}
