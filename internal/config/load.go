package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables use the
// TASKHUB_ prefix with underscores, e.g. TASKHUB_AUTH_JWT_SECRET, and take
// precedence over file values. The result is validated before being
// returned, so a *Config is always usable.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TASKHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine, env vars alone can carry the config.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every config key with viper. AutomaticEnv only
// resolves keys viper knows about, so keys without a meaningful default
// still get an empty one to make their env vars visible to Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.url", "")
	v.SetDefault("database.operation_timeout_seconds", 5)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.operation_timeout_seconds", 3)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.session_lifetime_minutes", 60)
	v.SetDefault("auth.refresh_threshold_minutes", 30)
	v.SetDefault("auth.recovery_lifetime_minutes", 15)
	v.SetDefault("auth.verification_lifetime_hours", 24)
	v.SetDefault("auth.bcrypt_cost", 0)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.from_name", "")
	v.SetDefault("smtp.tls", true)

	v.SetDefault("mail.worker_count", 5)
	v.SetDefault("mail.queue_size", 100)
	v.SetDefault("mail.rate_per_second", 10)
	v.SetDefault("mail.max_attempts", 5)

	v.SetDefault("front.base_url", "http://localhost:3000")
}
