package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/atlet99/metric-alert-engine/internal/alerting"
	"github.com/atlet99/metric-alert-engine/internal/timezone"
)

type chatMarkdown struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type chatAt struct {
	IsAtAll bool `json:"isAtAll"`
}

// chatMessage is the DingTalk-style robot payload
type chatMessage struct {
	MsgType  string       `json:"msgtype"`
	Markdown chatMarkdown `json:"markdown"`
	At       chatAt       `json:"at"`
}

type chatResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// ChatChannel posts markdown cards to a chat robot webhook
type ChatChannel struct {
	url    string
	secret string
	client *http.Client
	tz     *timezone.Manager
	now    func() time.Time
}

// NewChatChannel creates a chat channel; secret enables signed requests
func NewChatChannel(webhookURL, secret string, client *http.Client, tz *timezone.Manager) *ChatChannel {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if tz == nil {
		tz = timezone.UTC()
	}
	return &ChatChannel{url: webhookURL, secret: secret, client: client, tz: tz, now: time.Now}
}

// Name implements Channel
func (c *ChatChannel) Name() string { return ChannelChat }

// Send implements Channel
func (c *ChatChannel) Send(ctx context.Context, n Notification) error {
	target, err := c.signedURL()
	if err != nil {
		return err
	}

	body, err := json.Marshal(buildChatMessage(n, c.tz))
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// some robots answer with an empty body
		return nil
	}
	if out.ErrCode != 0 {
		return fmt.Errorf("chat webhook rejected message: errcode=%d errmsg=%s", out.ErrCode, out.ErrMsg)
	}
	return nil
}

// signedURL appends timestamp and sign query parameters when a secret is set
func (c *ChatChannel) signedURL() (string, error) {
	if c.secret == "" {
		return c.url, nil
	}
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("invalid chat webhook url: %w", err)
	}

	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	q := u.Query()
	q.Set("timestamp", ts)
	q.Set("sign", sign(ts, c.secret))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// sign computes base64(HMAC-SHA256(secret, timestamp + "\n" + secret))
func sign(timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "\n" + secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func buildChatMessage(n Notification, tz *timezone.Manager) chatMessage {
	a := n.Alert
	status := strings.ToUpper(string(a.Level))
	if n.Event == EventResolved {
		status = "RESOLVED"
	}
	title := fmt.Sprintf("[%s] %s", status, a.RuleName)

	var b strings.Builder
	fmt.Fprintf(&b, "### <font color=\"%s\">%s</font>\n\n", levelColor(a.Level, n.Event), title)
	fmt.Fprintf(&b, "%s\n\n", a.Message)
	fmt.Fprintf(&b, "- **Type:** %s\n", a.Type)
	fmt.Fprintf(&b, "- **Value:** %.2f\n", a.MetricValue)
	fmt.Fprintf(&b, "- **Threshold:** %.2f\n", a.Threshold)
	fmt.Fprintf(&b, "- **Time:** %s\n", tz.Format(a.Timestamp))
	fmt.Fprintf(&b, "- **ID:** %s\n", a.ID)

	return chatMessage{
		MsgType:  "markdown",
		Markdown: chatMarkdown{Title: title, Text: b.String()},
		At:       chatAt{IsAtAll: n.Event == EventTriggered && mentionsAll(a.Level)},
	}
}

func mentionsAll(level alerting.Level) bool {
	switch level {
	case alerting.LevelError, alerting.LevelCritical:
		return true
	case alerting.LevelInfo, alerting.LevelWarning:
		return false
	default:
		return false
	}
}
