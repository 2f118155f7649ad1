// Package config reads process settings from the environment, after loading
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"budgetbot/internal/pusher"
	"budgetbot/internal/realtime"
	"budgetbot/internal/retry"
)

const (
	DriverPusher = "pusher"
	DriverRelay  = "relay"
)

type Config struct {
	Port     string
	LogLevel string

	// DatabaseURL empty selects the in-memory store.
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SessionSecret     string
	SupabaseJWTSecret string
	CronSecret        string

	BrokerDriver string
	Pusher       pusher.Credentials

	NotifyTimeout     time.Duration
	NotifyMaxAttempts int
	NotifyBaseDelay   time.Duration

	GeminiAPIKey    string
	GeminiModel     string
	InsightCacheTTL time.Duration

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string

	ReminderWindowDays int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("redis_db", 0)
	v.SetDefault("session_secret", "secret-key-change-in-production")
	v.SetDefault("broker_driver", DriverPusher)
	v.SetDefault("notify_timeout", "3s")
	v.SetDefault("notify_max_attempts", 3)
	v.SetDefault("notify_base_delay", "500ms")
	v.SetDefault("gemini_model", "gemini-1.5-flash")
	v.SetDefault("insight_cache_ttl", "1h")
	v.SetDefault("vapid_subscriber", "mailto:admin@example.com")
	v.SetDefault("reminder_window_days", 3)
}

// Load reads envFiles (default ".env") if they exist, then the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Port:              v.GetString("port"),
		LogLevel:          strings.ToLower(v.GetString("log_level")),
		DatabaseURL:       v.GetString("database_url"),
		RedisAddr:         v.GetString("redis_addr"),
		RedisPassword:     v.GetString("redis_password"),
		RedisDB:           v.GetInt("redis_db"),
		SessionSecret:     v.GetString("session_secret"),
		SupabaseJWTSecret: v.GetString("supabase_jwt_secret"),
		CronSecret:        v.GetString("cron_secret"),
		BrokerDriver:      strings.ToLower(v.GetString("broker_driver")),
		Pusher: pusher.Credentials{
			AppID:   v.GetString("pusher_app_id"),
			Key:     v.GetString("pusher_key"),
			Secret:  v.GetString("pusher_secret"),
			Cluster: v.GetString("pusher_cluster"),
		},
		NotifyTimeout:      v.GetDuration("notify_timeout"),
		NotifyMaxAttempts:  v.GetInt("notify_max_attempts"),
		NotifyBaseDelay:    v.GetDuration("notify_base_delay"),
		GeminiAPIKey:       v.GetString("gemini_api_key"),
		GeminiModel:        v.GetString("gemini_model"),
		InsightCacheTTL:    v.GetDuration("insight_cache_ttl"),
		VAPIDPublicKey:     v.GetString("vapid_public_key"),
		VAPIDPrivateKey:    v.GetString("vapid_private_key"),
		VAPIDSubscriber:    v.GetString("vapid_subscriber"),
		ReminderWindowDays: v.GetInt("reminder_window_days"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.BrokerDriver, validation.In(DriverPusher, DriverRelay)),
		validation.Field(&c.NotifyTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.NotifyMaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.NotifyBaseDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.ReminderWindowDays, validation.By(notNegative)),
	)
}

// notNegative accepts zero, the "no lookahead" window.
func notNegative(value any) error {
	if n, _ := value.(int); n < 0 {
		return errors.New("must be no less than 0")
	}
	return nil
}

// Notify is the fan-out timeout and linear retry policy.
func (c Config) Notify() realtime.Config {
	return realtime.Config{
		Timeout: c.NotifyTimeout,
		Policy:  retry.Linear(c.NotifyMaxAttempts, c.NotifyBaseDelay),
	}
}

func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RelayCredentials are the key and secret the self-hosted relay signs with.
// They reuse the Pusher values so clients need no other settings.
func (c Config) RelayCredentials() (key, secret string) {
	return c.Pusher.Key, c.Pusher.Secret
}
