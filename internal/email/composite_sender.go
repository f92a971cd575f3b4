package email

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// CompositeEmailSender delivers through a primary sender and copies every
// message to zero or more mirrors. Only the primary's outcome is returned:
// a task retried because the log file was unwritable would mail the user twice.
type CompositeEmailSender struct {
	primary Sender
	mirrors []Sender
}

func NewCompositeEmailSender(primary Sender) *CompositeEmailSender {
	return &CompositeEmailSender{primary: primary}
}

// AddSender registers a best-effort mirror. Nil is ignored.
func (cs *CompositeEmailSender) AddSender(sender Sender) {
	if sender != nil {
		cs.mirrors = append(cs.mirrors, sender)
	}
}

func (cs *CompositeEmailSender) Send(ctx context.Context, msg *Message) error {
	if cs.primary == nil {
		return errors.New("composite email sender has no primary sender")
	}
	if err := cs.primary.Send(ctx, msg); err != nil {
		return err
	}
	for _, m := range cs.mirrors {
		if err := m.Send(ctx, msg); err != nil {
			zap.L().Warn("email mirror failed", zap.String("template_id", msg.TemplateID), zap.Error(err))
		}
	}
	return nil
}
