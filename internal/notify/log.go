package notify

import (
	"context"
	"log/slog"

	"github.com/atlet99/metric-alert-engine/internal/alerting"
)

// LogChannel writes notifications as structured log lines
type LogChannel struct {
	logger *slog.Logger
}

// NewLogChannel creates the log channel
func NewLogChannel(logger *slog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

// Name implements Channel
func (c *LogChannel) Name() string { return ChannelLog }

// Send implements Channel; it never fails
func (c *LogChannel) Send(ctx context.Context, n Notification) error {
	a := n.Alert
	level := slogLevel(a.Level)
	msg := "ALERT: " + a.Message
	if n.Event == EventResolved {
		level = slog.LevelInfo
		msg = "RESOLVED: " + a.Message
	}

	c.logger.LogAttrs(ctx, level, msg,
		slog.String("alert_id", a.ID),
		slog.String("rule", a.RuleName),
		slog.String("severity", string(a.Level)),
		slog.String("type", string(a.Type)),
		slog.Float64("value", a.MetricValue),
		slog.Float64("threshold", a.Threshold),
		slog.String("event", string(n.Event)),
	)
	return nil
}

func slogLevel(level alerting.Level) slog.Level {
	switch level {
	case alerting.LevelInfo:
		return slog.LevelInfo
	case alerting.LevelWarning:
		return slog.LevelWarn
	case alerting.LevelError, alerting.LevelCritical:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
