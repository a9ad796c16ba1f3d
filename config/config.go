package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config is the process-wide configuration surface: the store's clustering
// and tuning knobs plus the ambient concerns (HTTP, metrics,
// logging, alerting) every scheduler instance also needs.
type Config struct {
	Env string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	Backend string `env:"STORE_BACKEND" envDefault:"postgres" validate:"required,oneof=postgres memory"`

	// Store identity and clustering.
	InstanceName string `env:"SCHEDULER_INSTANCE_NAME" envDefault:"coreclock"`
	InstanceID string `env:"SCHEDULER_INSTANCE_ID"`
	Clustered bool `env:"SCHEDULER_CLUSTERED" envDefault:"false"`
	UseDBLocks bool `env:"SCHEDULER_USE_DB_LOCKS" envDefault:"false"`
	DBRetryIntervalMs int `env:"SCHEDULER_DB_RETRY_INTERVAL_MS" envDefault:"15000" validate:"min=100"`
	MisfireThresholdMs int `env:"SCHEDULER_MISFIRE_THRESHOLD_MS" envDefault:"60000" validate:"min=1"`
	MaxMisfiresToHandle int `env:"SCHEDULER_MAX_MISFIRES_TO_HANDLE" envDefault:"20" validate:"min=1"`
	AcquireTriggersWithinLock bool `env:"SCHEDULER_ACQUIRE_TRIGGERS_WITHIN_LOCK" envDefault:"false"`
	ClusterCheckinIntervalMs int `env:"SCHEDULER_CLUSTER_CHECKIN_INTERVAL_MS" envDefault:"15000" validate:"min=1000"`
	DoubleCheckLockMisfire bool `env:"SCHEDULER_DOUBLE_CHECK_LOCK_MISFIRE_HANDLER" envDefault:"true"`
	IsolationSerializable bool `env:"SCHEDULER_SERIALIZABLE_ISOLATION" envDefault:"false"`
	MisfireHandlerPollMs int `env:"SCHEDULER_MISFIRE_HANDLER_POLL_MS" envDefault:"5000" validate:"min=100"`
	ClusterCheckPollMs int `env:"SCHEDULER_CLUSTER_CHECK_POLL_MS" envDefault:"7500" validate:"min=100"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	// ClerkJWKSURL is the JWKS endpoint for RS256 token verification (Clerk).
	// It is loaded but not read anywhere: the admin API verifies tokens with
	// JWTSecret only.
	ClerkJWKSURL string `env:"CLERK_JWKS_URL"`

	// JWTSecret is kept for local dev / migration period.
	JWTSecret string `env:"JWT_SECRET"`

	// Alerting: notified of NotifySchedulerListenersError events.
	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom string `env:"RESEND_FROM" validate:"required_if=Env production,required_if=Env staging"`
	AlertTo string `env:"ALERT_TO_EMAIL"`
	MagicLinkBase string `env:"MAGIC_LINK_BASE_URL" envDefault:"http://localhost:8080"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
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

func (c *Config) MisfireThreshold() time.Duration {
	return time.Duration(c.MisfireThresholdMs) * time.Millisecond
}

func (c *Config) DBRetryInterval() time.Duration {
	return time.Duration(c.DBRetryIntervalMs) * time.Millisecond
}

func (c *Config) ClusterCheckinInterval() time.Duration {
	return time.Duration(c.ClusterCheckinIntervalMs) * time.Millisecond
}

func (c *Config) MisfireHandlerPollInterval() time.Duration {
	return time.Duration(c.MisfireHandlerPollMs) * time.Millisecond
}

func (c *Config) ClusterCheckPollInterval() time.Duration {
	return time.Duration(c.ClusterCheckPollMs) * time.Millisecond
}
