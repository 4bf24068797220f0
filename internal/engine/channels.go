package engine

import (
	"log/slog"

	"github.com/atlet99/metric-alert-engine/internal/config"
	"github.com/atlet99/metric-alert-engine/internal/notify"
	"github.com/atlet99/metric-alert-engine/internal/timezone"
)

// ChannelsFromConfig builds the log channel plus every optional channel that
// has its settings present. Email and chat render times in tz.
func ChannelsFromConfig(cfg *config.Config, tz *timezone.Manager, logger *slog.Logger) []notify.Channel {
	channels := []notify.Channel{notify.NewLogChannel(logger)}

	if cfg.EmailEnabled() {
		mailer := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
		channels = append(channels, notify.NewEmailChannel(mailer, cfg.SMTPFrom, cfg.SMTPTo, tz))
	}
	if cfg.ChatWebhookURL != "" {
		channels = append(channels, notify.NewChatChannel(cfg.ChatWebhookURL, cfg.ChatWebhookSecret, nil, tz))
	}
	if cfg.AlertWebhookURL != "" {
		channels = append(channels, notify.NewWebhookChannel(cfg.AlertWebhookURL, nil))
	}
	return channels
}

// OptionsFromConfig maps configuration onto engine options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Retention:             cfg.MetricRetention,
		MaxSamplesPerSeries:   cfg.MetricMaxSamples,
		AlertHistoryRetention: cfg.AlertHistoryRetention,
		SeedDefaultRules:      cfg.SeedDefaultRules,
		Notification: notify.DispatcherOptions{
			Workers:     cfg.NotifyWorkers,
			QueueSize:   cfg.NotifyQueueSize,
			SendTimeout: cfg.NotifyTimeout,
			RateLimit:   cfg.NotifyRateLimit,
			RateBurst:   cfg.NotifyRateBurst,
		},
	}
}
