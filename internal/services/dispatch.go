package services

import (
	"context"

	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

// Mailer queues templated emails for background delivery.
type Mailer interface {
	EnqueueEmail(ctx context.Context, to, templateID string, data map[string]any) error
}

// ImageQueue schedules processing of an uploaded ad image.
type ImageQueue interface {
	EnqueueImageProcess(ctx context.Context, adID, imageID utils.SixID, key string) error
}
