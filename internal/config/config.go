// Package config provides configuration management for the metric alert engine.
// It handles loading and validation of environment variables and the alert rules file.
package config

import (
	"fmt"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default configuration values
const (
	DefaultPort                  = "8080"
	DefaultLogLevel              = "info"
	DefaultMetricRetention       = time.Hour
	DefaultMetricMaxSamples      = 100000
	DefaultAlertHistoryRetention = 24 * time.Hour
	DefaultRulesReloadInterval   = 30 * time.Second
	DefaultCollectorInterval     = 60 * time.Second
	DefaultCollectorDiskPath     = "/"
	DefaultNotifyWorkers         = 4
	DefaultNotifyQueueSize       = 256
	DefaultNotifyTimeout         = 10 * time.Second
	DefaultNotifyRateLimit       = 5.0
	DefaultNotifyRateBurst       = 10
	DefaultSMTPPort              = 587
	DefaultAPIRateLimit          = 20.0
	DefaultAPIRateBurst          = 40
	DefaultTracingSampleRate     = 1.0
	DefaultServiceName           = "metric-alert-engine"
	DefaultTimezone              = "UTC"
)

// Config holds all configuration for the application
type Config struct {
	Port     string
	LogLevel string
	// Timezone is used when rendering alert times in notifications
	Timezone string

	MetricRetention       time.Duration
	MetricMaxSamples      int
	AlertHistoryRetention time.Duration
	SeedDefaultRules      bool

	RulesFile           string
	RulesReloadInterval time.Duration

	CollectorEnabled  bool
	CollectorInterval time.Duration
	CollectorDiskPath string

	NotifyWorkers   int
	NotifyQueueSize int
	NotifyTimeout   time.Duration
	NotifyRateLimit float64
	NotifyRateBurst int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPTo       []string

	ChatWebhookURL    string
	ChatWebhookSecret string
	AlertWebhookURL   string

	APIRateLimit float64
	APIRateBurst int

	TracingEnabled    bool
	OTLPEndpoint      string
	TracingConsole    bool
	TracingSampleRate float64
	ServiceName       string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// It's okay if .env file doesn't exist - we'll use environment variables
	_ = godotenv.Load()

	cfg := FromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// FromEnv builds a Config from the current environment without validating it
func FromEnv() *Config {
	return &Config{
		Port:     getEnv("PORT", DefaultPort),
		LogLevel: getEnv("LOG_LEVEL", DefaultLogLevel),
		Timezone: getEnv("TIMEZONE", DefaultTimezone),

		MetricRetention:       parseDurationEnv("METRIC_RETENTION", DefaultMetricRetention),
		MetricMaxSamples:      parseIntEnv("METRIC_MAX_SAMPLES", DefaultMetricMaxSamples),
		AlertHistoryRetention: parseDurationEnv("ALERT_HISTORY_RETENTION", DefaultAlertHistoryRetention),
		SeedDefaultRules:      parseBoolEnv("SEED_DEFAULT_RULES", true),

		RulesFile:           getEnv("RULES_FILE", ""),
		RulesReloadInterval: parseDurationEnv("RULES_RELOAD_INTERVAL", DefaultRulesReloadInterval),

		CollectorEnabled:  parseBoolEnv("COLLECTOR_ENABLED", true),
		CollectorInterval: parseDurationEnv("COLLECTOR_INTERVAL", DefaultCollectorInterval),
		CollectorDiskPath: getEnv("COLLECTOR_DISK_PATH", DefaultCollectorDiskPath),

		NotifyWorkers:   parseIntEnv("NOTIFY_WORKERS", DefaultNotifyWorkers),
		NotifyQueueSize: parseIntEnv("NOTIFY_QUEUE_SIZE", DefaultNotifyQueueSize),
		NotifyTimeout:   parseDurationEnv("NOTIFY_TIMEOUT", DefaultNotifyTimeout),
		NotifyRateLimit: parseFloatEnv("NOTIFY_RATE_LIMIT", DefaultNotifyRateLimit),
		NotifyRateBurst: parseIntEnv("NOTIFY_RATE_BURST", DefaultNotifyRateBurst),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     parseIntEnv("SMTP_PORT", DefaultSMTPPort),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPTo:       parseCSVEnv("SMTP_TO"),

		ChatWebhookURL:    getEnv("CHAT_WEBHOOK_URL", ""),
		ChatWebhookSecret: getEnv("CHAT_WEBHOOK_SECRET", ""),
		AlertWebhookURL:   getEnv("ALERT_WEBHOOK_URL", ""),

		APIRateLimit: parseFloatEnv("API_RATE_LIMIT", DefaultAPIRateLimit),
		APIRateBurst: parseIntEnv("API_RATE_BURST", DefaultAPIRateBurst),

		TracingEnabled:    parseBoolEnv("TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("OTLP_ENDPOINT", ""),
		TracingConsole:    parseBoolEnv("TRACING_CONSOLE", false),
		TracingSampleRate: parseFloatEnv("TRACING_SAMPLE_RATE", DefaultTracingSampleRate),
		ServiceName:       getEnv("SERVICE_NAME", DefaultServiceName),
	}
}

// EmailEnabled reports whether the SMTP channel is configured
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != ""
}

// validate checks that configuration values are usable
func (c *Config) validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}
	if c.MetricRetention <= 0 {
		return fmt.Errorf("METRIC_RETENTION must be positive")
	}
	if c.MetricMaxSamples <= 0 {
		return fmt.Errorf("METRIC_MAX_SAMPLES must be positive")
	}
	if c.AlertHistoryRetention <= 0 {
		return fmt.Errorf("ALERT_HISTORY_RETENTION must be positive")
	}
	if c.CollectorEnabled && c.CollectorInterval <= 0 {
		return fmt.Errorf("COLLECTOR_INTERVAL must be positive")
	}
	if c.RulesFile != "" && c.RulesReloadInterval <= 0 {
		return fmt.Errorf("RULES_RELOAD_INTERVAL must be positive")
	}
	if c.NotifyWorkers <= 0 || c.NotifyQueueSize <= 0 {
		return fmt.Errorf("NOTIFY_WORKERS and NOTIFY_QUEUE_SIZE must be positive")
	}
	if c.NotifyTimeout <= 0 {
		return fmt.Errorf("NOTIFY_TIMEOUT must be positive")
	}
	if c.NotifyRateLimit <= 0 || c.APIRateLimit <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATE must be between 0 and 1")
	}

	if c.EmailEnabled() {
		if c.SMTPFrom == "" {
			return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
		}
		if len(c.SMTPTo) == 0 {
			return fmt.Errorf("SMTP_TO is required when SMTP_HOST is set")
		}
		for _, addr := range append([]string{c.SMTPFrom}, c.SMTPTo...) {
			if _, err := mail.ParseAddress(addr); err != nil {
				return fmt.Errorf("invalid email address %q: %w", addr, err)
			}
		}
	}

	return nil
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseIntEnv parses an integer environment variable with a fallback value
func parseIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// parseFloatEnv parses a float environment variable with a fallback value
func parseFloatEnv(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

// parseBoolEnv parses a boolean environment variable with a fallback value
func parseBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// parseDurationEnv parses a duration such as "90s" or "1h"; a bare number is read as seconds
func parseDurationEnv(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

// parseCSVEnv parses a comma-separated environment variable into a string slice
func parseCSVEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
