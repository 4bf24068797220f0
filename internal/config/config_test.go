package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "METRIC_RETENTION", "NOTIFY_WORKERS", "SMTP_HOST", "SEED_DEFAULT_RULES"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, time.Hour, cfg.MetricRetention)
	assert.Equal(t, 100000, cfg.MetricMaxSamples)
	assert.Equal(t, 24*time.Hour, cfg.AlertHistoryRetention)
	assert.Equal(t, 4, cfg.NotifyWorkers)
	assert.Equal(t, 10*time.Second, cfg.NotifyTimeout)
	assert.True(t, cfg.SeedDefaultRules)
	assert.False(t, cfg.EmailEnabled())
	assert.NoError(t, cfg.validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("METRIC_RETENTION", "2h")
	t.Setenv("COLLECTOR_INTERVAL", "15")
	t.Setenv("NOTIFY_RATE_LIMIT", "2.5")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("SMTP_TO", "ops@example.com, ,dev@example.com")

	cfg := FromEnv()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 2*time.Hour, cfg.MetricRetention)
	assert.Equal(t, 15*time.Second, cfg.CollectorInterval)
	assert.Equal(t, 2.5, cfg.NotifyRateLimit)
	assert.True(t, cfg.TracingEnabled)
	assert.Equal(t, []string{"ops@example.com", "dev@example.com"}, cfg.SMTPTo)
}

func TestParseHelpers_InvalidFallBack(t *testing.T) {
	t.Setenv("TEST_INT", "abc")
	t.Setenv("TEST_BOOL", "maybe")
	t.Setenv("TEST_DURATION", "soon")

	assert.Equal(t, 7, parseIntEnv("TEST_INT", 7))
	assert.True(t, parseBoolEnv("TEST_BOOL", true))
	assert.Equal(t, time.Minute, parseDurationEnv("TEST_DURATION", time.Minute))
	assert.Nil(t, parseCSVEnv("TEST_UNSET_CSV"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Port = "http" }, "PORT"},
		{"unknown timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "TIMEZONE"},
		{"zero retention", func(c *Config) { c.MetricRetention = 0 }, "METRIC_RETENTION"},
		{"sample rate out of range", func(c *Config) { c.TracingSampleRate = 1.5 }, "TRACING_SAMPLE_RATE"},
		{"smtp without recipients", func(c *Config) {
			c.SMTPHost = "smtp.example.com"
			c.SMTPFrom = "alerts@example.com"
		}, "SMTP_TO"},
		{"smtp with bad address", func(c *Config) {
			c.SMTPHost = "smtp.example.com"
			c.SMTPFrom = "alerts@example.com"
			c.SMTPTo = []string{"not-an-address"}
		}, "invalid email address"},
		{"smtp complete", func(c *Config) {
			c.SMTPHost = "smtp.example.com"
			c.SMTPFrom = "alerts@example.com"
			c.SMTPTo = []string{"ops@example.com"}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_WrapsValidationError(t *testing.T) {
	t.Setenv("PORT", "not-a-port")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

func defaultConfig() *Config {
	return &Config{
		Port:                  DefaultPort,
		MetricRetention:       DefaultMetricRetention,
		MetricMaxSamples:      DefaultMetricMaxSamples,
		AlertHistoryRetention: DefaultAlertHistoryRetention,
		CollectorEnabled:      true,
		CollectorInterval:     DefaultCollectorInterval,
		NotifyWorkers:         DefaultNotifyWorkers,
		NotifyQueueSize:       DefaultNotifyQueueSize,
		NotifyTimeout:         DefaultNotifyTimeout,
		NotifyRateLimit:       DefaultNotifyRateLimit,
		APIRateLimit:          DefaultAPIRateLimit,
		TracingSampleRate:     DefaultTracingSampleRate,
	}
}
