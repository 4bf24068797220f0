package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/atlet99/metric-alert-engine/internal/alerting"
	"github.com/atlet99/metric-alert-engine/internal/timezone"
)

// Mailer sends one already-rendered message
type Mailer interface {
	SendMail(ctx context.Context, from string, to []string, msg []byte) error
}

// SMTPConfig configures the SMTP mailer
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// smtpMailer talks SMTP with STARTTLS when the server offers it
type smtpMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer creates a Mailer backed by net/smtp
func NewSMTPMailer(cfg SMTPConfig) Mailer {
	return &smtpMailer{cfg: cfg}
}

func (m *smtpMailer) SendMail(ctx context.Context, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}
	if m.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
			if err := c.Auth(auth); err != nil {
				return fmt.Errorf("SMTP auth failed: %w", err)
			}
		}
	}

	if err := c.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s failed: %w", rcpt, err)
		}
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := wc.Write(msg); err != nil {
		wc.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}
	return c.Quit()
}

var emailBody = template.Must(template.New("alert").Parse(`<html><body>
<h2 style="color:{{.Color}}">{{.Heading}}</h2>
<p>{{.Alert.Message}}</p>
<table cellpadding="4">
<tr><td><b>Rule</b></td><td>{{.Alert.RuleName}}</td></tr>
<tr><td><b>Level</b></td><td>{{.Alert.Level}}</td></tr>
<tr><td><b>Type</b></td><td>{{.Alert.Type}}</td></tr>
<tr><td><b>Value</b></td><td>{{printf "%.2f" .Alert.MetricValue}}</td></tr>
<tr><td><b>Threshold</b></td><td>{{printf "%.2f" .Alert.Threshold}}</td></tr>
<tr><td><b>Triggered</b></td><td>{{.Triggered}}</td></tr>
{{- if .Resolved}}
<tr><td><b>Resolved</b></td><td>{{.Resolved}}</td></tr>
{{- end}}
<tr><td><b>Alert ID</b></td><td>{{.Alert.ID}}</td></tr>
</table>
</body></html>
`))

// EmailChannel renders alerts as HTML mail
type EmailChannel struct {
	mailer Mailer
	from   string
	to     []string
	tz     *timezone.Manager
	now    func() time.Time
}

// NewEmailChannel creates an email channel sending from one address to many.
// Timestamps are shown in tz, or UTC when tz is nil.
func NewEmailChannel(mailer Mailer, from string, to []string, tz *timezone.Manager) *EmailChannel {
	if tz == nil {
		tz = timezone.UTC()
	}
	return &EmailChannel{
		mailer: mailer,
		from:   from,
		to:     append([]string(nil), to...),
		tz:     tz,
		now:    time.Now,
	}
}

// Name implements Channel
func (c *EmailChannel) Name() string { return ChannelEmail }

// Subject builds the mail subject, e.g. "[WARNING] High Cpu Usage".
// A Caser holds state, so one is built per call.
func (c *EmailChannel) Subject(n Notification) string {
	tag := strings.ToUpper(string(n.Alert.Level))
	if n.Event == EventResolved {
		tag = "RESOLVED"
	}
	return fmt.Sprintf("[%s] %s", tag, cases.Title(language.English).String(strings.ReplaceAll(n.Alert.RuleName, "_", " ")))
}

// Send implements Channel
func (c *EmailChannel) Send(ctx context.Context, n Notification) error {
	msg, err := c.render(n)
	if err != nil {
		return err
	}
	if err := c.mailer.SendMail(ctx, c.from, c.to, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (c *EmailChannel) render(n Notification) ([]byte, error) {
	heading := "Alert: " + string(n.Alert.Level)
	if n.Event == EventResolved {
		heading = "Resolved"
	}

	var resolved string
	if n.Alert.ResolvedAt != nil {
		resolved = c.tz.Format(*n.Alert.ResolvedAt)
	}

	var body bytes.Buffer
	err := emailBody.Execute(&body, struct {
		Heading   string
		Color     string
		Triggered string
		Resolved  string
		Alert     alerting.Alert
	}{heading, levelColor(n.Alert.Level, n.Event), c.tz.Format(n.Alert.Timestamp), resolved, n.Alert})
	if err != nil {
		return nil, fmt.Errorf("failed to render email: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", c.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(c.to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", c.Subject(n)))
	fmt.Fprintf(&msg, "Date: %s\r\n", c.now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// levelColor is shared by the HTML mail and chat markdown
func levelColor(level alerting.Level, event Event) string {
	if event == EventResolved {
		return "#2e7d32"
	}
	switch level {
	case alerting.LevelCritical:
		return "#b71c1c"
	case alerting.LevelError:
		return "#e53935"
	case alerting.LevelWarning:
		return "#fb8c00"
	default:
		return "#1e88e5"
	}
}
