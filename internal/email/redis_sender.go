package email

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MockEmailTTL is how long a captured email stays readable.
const MockEmailTTL = 5 * time.Minute

// MockEmailKey is where RedisSender stores the latest email to recipient for templateID.
func MockEmailKey(recipient, templateID string) string {
	return fmt.Sprintf("mockemail:%s:%s", strings.ToLower(recipient), templateID)
}

// CapturedEmail is the JSON stored by RedisSender.
type CapturedEmail struct {
	To         string `json:"to"`
	From       string `json:"from"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	TemplateID string `json:"template_id"`
	SentAt     string `json:"sent_at"`
}

// RedisSender captures emails in Redis so integration tests can read them back.
type RedisSender struct {
	client redis.UniversalClient
}

func NewRedisSender(client redis.UniversalClient) Sender {
	return &RedisSender{client: client}
}

func (s *RedisSender) Send(ctx context.Context, msg *Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("email has no recipients")
	}
	captured := CapturedEmail{
		To:         strings.Join(msg.To, ", "),
		From:       msg.From,
		Subject:    msg.Subject,
		Body:       msg.Body,
		TemplateID: msg.TemplateID,
		SentAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(captured)
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	key := MockEmailKey(msg.To[0], msg.TemplateID)
	if err := s.client.Set(ctx, key, data, MockEmailTTL).Err(); err != nil {
		return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
	}
	zap.L().Debug("mock email stored", zap.String("key", key))
	return nil
}
