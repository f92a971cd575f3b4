package email

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/returnordie/til-i-allt-sub001/internal/config"
	"go.uber.org/zap"
)

// Message is a rendered plain-text email.
type Message struct {
	To         []string
	From       string
	Subject    string
	Body       string
	TemplateID string // which template produced it, used by test senders as a lookup key
}

// Raw renders RFC 5322 headers and body. Non-ASCII subjects are Q-encoded.
func (m *Message) Raw(now time.Time) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "To: %s\r\n", strings.Join(m.To, ", "))
	fmt.Fprintf(&sb, "From: %s\r\n", m.From)
	fmt.Fprintf(&sb, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&sb, "Date: %s\r\n", now.Format(time.RFC1123Z))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(strings.TrimRight(m.Body, "\r\n"), "\n", "\r\n"))
	sb.WriteString("\r\n")
	return []byte(sb.String())
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// SMTPSender delivers through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	auth smtp.Auth
	addr string
	from string
}

// NewSMTPSender falls back to a LoggingSender when no SMTP host is configured.
func NewSMTPSender(cfg *config.Config) Sender {
	if cfg.SmtpHost == "" {
		zap.L().Info("SMTP host not configured, using logging email sender")
		return &LoggingSender{}
	}
	return &SMTPSender{
		auth: smtp.PlainAuth("", cfg.SmtpUsername, cfg.SmtpPassword, cfg.SmtpHost),
		addr: fmt.Sprintf("%s:%d", cfg.SmtpHost, cfg.SmtpPort),
		from: cfg.SmtpFromAddress,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	from := msg.From
	if from == "" {
		from = s.from
	}
	if err := smtp.SendMail(s.addr, s.auth, from, msg.To, msg.Raw(time.Now())); err != nil {
		return fmt.Errorf("smtp error: %w", err)
	}
	zap.L().Info("email sent via SMTP", zap.Strings("to", msg.To), zap.String("template", msg.TemplateID))
	return nil
}

// LoggingSender only logs messages. Used when SMTP is not configured.
type LoggingSender struct{}

func (s *LoggingSender) Send(ctx context.Context, msg *Message) error {
	zap.L().Info("email (logged only)",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("template", msg.TemplateID),
		zap.String("body", msg.Body),
	)
	return nil
}
