// Package notify delivers alert notifications to log, email, chat and
// webhook channels off the evaluation path.
package notify

import (
	"context"

	"github.com/atlet99/metric-alert-engine/internal/alerting"
)

// Channel names
const (
	ChannelLog     = "log"
	ChannelEmail   = "email"
	ChannelChat    = "chat"
	ChannelWebhook = "webhook"
)

// Event distinguishes a new alert from a resolution
type Event string

// Notification events
const (
	EventTriggered Event = "triggered"
	EventResolved  Event = "resolved"
)

// Notification is one alert event to deliver
type Notification struct {
	Event Event
	Alert alerting.Alert
}

// Channel delivers notifications to one destination
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// resolutionRoute is the ordered channel list for resolution notices
var resolutionRoute = []string{ChannelLog, ChannelEmail}

// Route returns the ordered channels a notification is delivered to
func Route(n Notification) []string {
	if n.Event == EventResolved {
		return resolutionRoute
	}
	return RouteForLevel(n.Alert.Level)
}

// RouteForLevel maps an alert level to its ordered channel list
func RouteForLevel(level alerting.Level) []string {
	switch level {
	case alerting.LevelInfo:
		return []string{ChannelLog}
	case alerting.LevelWarning:
		return []string{ChannelLog, ChannelEmail}
	case alerting.LevelError:
		return []string{ChannelLog, ChannelEmail, ChannelChat}
	case alerting.LevelCritical:
		return []string{ChannelLog, ChannelEmail, ChannelChat, ChannelWebhook}
	default:
		return []string{ChannelLog}
	}
}
