package config

import "time"

// Config holds all application configuration.
// It is loaded once at process start and passed by value into constructors;
// request-handling code never reads ambient global state.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"    validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Mail     MailConfig     `mapstructure:"mail"     validate:"required"`
	Front    FrontConfig    `mapstructure:"front"    validate:"required"`
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains the relational store settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
	// OperationTimeout bounds every relational store call.
	OperationTimeoutSeconds int `mapstructure:"operation_timeout_seconds" validate:"required,gt=0"`
}

// RedisConfig contains the credential store settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// OperationTimeout bounds every credential store call.
	OperationTimeoutSeconds int `mapstructure:"operation_timeout_seconds" validate:"required,gt=0"`
}

// AuthConfig contains session and token lifetimes.
// RefreshThreshold must be shorter than the session lifetime: a token may
// only be refreshed inside the [refreshNotBefore, expiresAt) window.
type AuthConfig struct {
	JWTSecret                string `mapstructure:"jwt_secret"                 validate:"required,min=32"`
	SessionLifetimeMinutes   int    `mapstructure:"session_lifetime_minutes"   validate:"required,gt=0"`
	RefreshThresholdMinutes  int    `mapstructure:"refresh_threshold_minutes"  validate:"required,gt=0,ltfield=SessionLifetimeMinutes"`
	RecoveryLifetimeMinutes  int    `mapstructure:"recovery_lifetime_minutes"  validate:"required,gt=0"`
	VerificationLifetimeHrs  int    `mapstructure:"verification_lifetime_hours" validate:"required,gt=0"`
	BcryptCost               int    `mapstructure:"bcrypt_cost"                validate:"omitempty,gte=4,lte=31"`
}

// SessionLifetime returns the configured session lifetime as a duration.
func (c AuthConfig) SessionLifetime() time.Duration {
	return time.Duration(c.SessionLifetimeMinutes) * time.Minute
}

// RefreshThreshold returns the configured refresh threshold as a duration.
func (c AuthConfig) RefreshThreshold() time.Duration {
	return time.Duration(c.RefreshThresholdMinutes) * time.Minute
}

// RecoveryLifetime returns the configured recovery token lifetime.
func (c AuthConfig) RecoveryLifetime() time.Duration {
	return time.Duration(c.RecoveryLifetimeMinutes) * time.Minute
}

// VerificationLifetime returns the configured verification token lifetime.
func (c AuthConfig) VerificationLifetime() time.Duration {
	return time.Duration(c.VerificationLifetimeHrs) * time.Hour
}

// SMTPConfig contains the outbound mail transport settings.
// When Host is empty the transport falls back to logging the message
// instead of dialing, so local environments work without a mail server.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
	TLS      bool   `mapstructure:"tls"`
}

// MailConfig contains the mail dispatch queue and worker settings.
type MailConfig struct {
	WorkerCount   int `mapstructure:"worker_count"    validate:"required,gt=0"`
	QueueSize     int `mapstructure:"queue_size"      validate:"required,gt=0"`
	RatePerSecond int `mapstructure:"rate_per_second" validate:"required,gt=0"`
	MaxAttempts   int `mapstructure:"max_attempts"    validate:"required,gt=0"`
}

// FrontConfig contains the frontend URLs embedded in outbound mail links.
type FrontConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
}
