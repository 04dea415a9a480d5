package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Redis       RedisConfig     `yaml:"redis"`
	Auth        AuthConfig      `yaml:"auth"`
	Email       EmailConfig     `yaml:"email"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Logging     LoggingConfig   `yaml:"logging"`
	Tracing     TracingConfig   `yaml:"tracing"`
	Environment string          `yaml:"environment"`
}

type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConnections int    `yaml:"max_connections"`
}

// RedisConfig controls the optional tag-value hot cache. When URL is empty
// the cache is disabled and reads go straight to Postgres.
type RedisConfig struct {
	URL string `yaml:"url"`
	TTL time.Duration
}

type AuthConfig struct {
	// SessionTTL bounds the lifetime of login sessions.
	SessionTTL time.Duration
	// SudoTTL is how long a sudo elevation lasts after re-authentication.
	SudoTTL time.Duration
	// VerificationSecret signs email verification tokens.
	VerificationSecret string `yaml:"verification_secret"`
	VerificationExpiry time.Duration
}

type EmailConfig struct {
	Enabled      bool   `yaml:"enabled"`
	From         string `yaml:"from"`
	ResendAPIKey string `yaml:"resend_api_key"`
}

type RateLimitConfig struct {
	PublicPerMinute int `yaml:"public_per_minute"`
	IngestPerMinute int `yaml:"ingest_per_minute"`
	LoginPerHour    int `yaml:"login_per_hour"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Load reads configuration from environment variables. When path is non-empty
// the YAML file at path is read first and env vars override it.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.BaseURL = getEnv("SERVER_BASE_URL", cfg.Server.BaseURL)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConnections = getEnvInt("DATABASE_MAX_CONNECTIONS", cfg.Database.MaxConnections)

	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)
	cfg.Redis.TTL = time.Duration(getEnvInt("REDIS_TTL_SECONDS", int(cfg.Redis.TTL/time.Second))) * time.Second

	cfg.Auth.SessionTTL = time.Duration(getEnvInt("SESSION_TTL_HOURS", int(cfg.Auth.SessionTTL/time.Hour))) * time.Hour
	cfg.Auth.SudoTTL = time.Duration(getEnvInt("SUDO_TTL_MINUTES", int(cfg.Auth.SudoTTL/time.Minute))) * time.Minute
	cfg.Auth.VerificationSecret = getEnv("VERIFICATION_SECRET", cfg.Auth.VerificationSecret)
	cfg.Auth.VerificationExpiry = time.Duration(getEnvInt("VERIFICATION_EXPIRY_HOURS", int(cfg.Auth.VerificationExpiry/time.Hour))) * time.Hour

	cfg.Email.Enabled = getEnvBool("EMAIL_ENABLED", cfg.Email.Enabled)
	cfg.Email.From = getEnv("EMAIL_FROM", cfg.Email.From)
	cfg.Email.ResendAPIKey = getEnv("RESEND_API_KEY", cfg.Email.ResendAPIKey)

	cfg.RateLimit.PublicPerMinute = getEnvInt("RATE_LIMIT_PUBLIC", cfg.RateLimit.PublicPerMinute)
	cfg.RateLimit.IngestPerMinute = getEnvInt("RATE_LIMIT_INGEST", cfg.RateLimit.IngestPerMinute)
	cfg.RateLimit.LoginPerHour = getEnvInt("RATE_LIMIT_LOGIN", cfg.RateLimit.LoginPerHour)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnv("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.ServiceName = getEnv("TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.OTLPEndpoint = getEnv("TRACING_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)

	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.VerificationSecret == "" {
		return Config{}, fmt.Errorf("VERIFICATION_SECRET is required")
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			BaseURL: "http://localhost:8080",
		},
		Database: DatabaseConfig{
			MaxConnections: 25,
		},
		Redis: RedisConfig{
			TTL: 60 * time.Second,
		},
		Auth: AuthConfig{
			SessionTTL:         720 * time.Hour,
			SudoTTL:            3 * time.Hour,
			VerificationExpiry: 72 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute: 60,
			IngestPerMinute: 300,
			LoginPerHour:    30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			ServiceName: "faultline",
			SampleRate:  1.0,
		},
		Environment: "development",
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
