package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverPusher, cfg.BrokerDriver)
	assert.Equal(t, 3*time.Second, cfg.NotifyTimeout)
	assert.Equal(t, 3, cfg.NotifyMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.NotifyBaseDelay)
	assert.Equal(t, time.Hour, cfg.InsightCacheTTL)
	assert.Equal(t, 3, cfg.ReminderWindowDays)

	n := cfg.Notify()
	assert.Equal(t, 3, n.Policy.MaxAttempts)
	assert.Equal(t, time.Second, n.Policy.Delay(2))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BROKER_DRIVER", "RELAY")
	t.Setenv("PUSHER_APP_ID", "1")
	t.Setenv("PUSHER_KEY", "key")
	t.Setenv("PUSHER_SECRET", "secret")
	t.Setenv("PUSHER_CLUSTER", "eu")
	t.Setenv("NOTIFY_MAX_ATTEMPTS", "5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DriverRelay, cfg.BrokerDriver)
	assert.True(t, cfg.Pusher.Configured())
	assert.Equal(t, 5, cfg.NotifyMaxAttempts)
	assert.Equal(t, "debug", cfg.LogLevel)

	key, secret := cfg.RelayCredentials()
	assert.Equal(t, "key", key)
	assert.Equal(t, "secret", secret)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CRON_SECRET=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CRON_SECRET") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.CronSecret)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("BROKER_DRIVER", "kafka")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)

	t.Setenv("BROKER_DRIVER", "pusher")
	t.Setenv("NOTIFY_MAX_ATTEMPTS", "0")
	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoad_ZeroValuesRejected(t *testing.T) {
	cases := map[string]string{
		"NOTIFY_MAX_ATTEMPTS":  "0",
		"NOTIFY_TIMEOUT":       "0s",
		"REMINDER_WINDOW_DAYS": "-1",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ZeroReminderWindowAllowed(t *testing.T) {
	t.Setenv("REMINDER_WINDOW_DAYS", "0")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.ReminderWindowDays)
}
