package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"github.com/returnordie/til-i-allt-sub001/internal/services"
	"github.com/returnordie/til-i-allt-sub001/internal/storage"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

const thumbQuality = 80

// ProcessedImage is the output of NormalizeImage.
type ProcessedImage struct {
	Format  string // "jpeg" or "png"
	Main    []byte // nil when the original already fits
	Thumb   []byte // always JPEG
	Resized bool
}

// NormalizeImage downscales data to fit maxDim and renders a thumbSize
// thumbnail. The main image keeps its format. Formats other than JPEG and
// PNG return image.ErrFormat.
func NormalizeImage(data []byte, maxDim, thumbSize int) (*ProcessedImage, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	out := &ProcessedImage{Format: format}

	b := img.Bounds()
	if maxDim > 0 && (b.Dx() > maxDim || b.Dy() > maxDim) {
		img = resize.Thumbnail(uint(maxDim), uint(maxDim), img, resize.Lanczos3)
		var buf bytes.Buffer
		if err := encode(&buf, img, format); err != nil {
			return nil, err
		}
		out.Main = buf.Bytes()
		out.Resized = true
	}

	thumb := resize.Thumbnail(uint(thumbSize), uint(thumbSize), img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: thumbQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	out.Thumb = buf.Bytes()
	return out, nil
}

func encode(w io.Writer, img image.Image, format string) error {
	switch format {
	case "png":
		return png.Encode(w, img)
	case "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 85})
	}
	return fmt.Errorf("cannot encode %s: %w", format, image.ErrFormat)
}

// HandleImageProcessTask downscales an uploaded ad image in place, stores its
// thumbnail next to it and marks the image processed on the ad.
func (p *TaskProcessor) HandleImageProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ImageTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return done(TypeImageProcess, fmt.Errorf("failed to unmarshal image task payload: %v: %w", err, asynq.SkipRetry))
	}
	adID, err := utils.ParseSixID(payload.AdID)
	if err != nil {
		return done(TypeImageProcess, fmt.Errorf("invalid ad id %q: %w", payload.AdID, asynq.SkipRetry))
	}
	imageID, err := utils.ParseSixID(payload.ImageID)
	if err != nil {
		return done(TypeImageProcess, fmt.Errorf("invalid image id %q: %w", payload.ImageID, asynq.SkipRetry))
	}
	log := zap.L().With(zap.String("ad_id", payload.AdID), zap.String("key", payload.Key))

	body, contentType, err := p.storage.GetObject(ctx, payload.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			log.Warn("image object missing, dropping task")
			return done(TypeImageProcess, fmt.Errorf("%v: %w", err, asynq.SkipRetry))
		}
		return done(TypeImageProcess, fmt.Errorf("failed to download image: %w", err))
	}
	maxBytes := int64(p.cfg.ImageMaxSizeMB) << 20
	data, err := io.ReadAll(io.LimitReader(body, maxBytes+1))
	body.Close()
	if err != nil {
		return done(TypeImageProcess, fmt.Errorf("failed to read image: %w", err))
	}
	if int64(len(data)) > maxBytes {
		return done(TypeImageProcess, fmt.Errorf("image exceeds %d bytes: %w", maxBytes, asynq.SkipRetry))
	}

	size := int64(len(data))
	thumbKey := ""
	processed, err := NormalizeImage(data, p.cfg.ImageMaxDimension, p.thumbSize())
	switch {
	case errors.Is(err, image.ErrFormat):
		// webp and friends are served as uploaded
		log.Info("image format not decodable, keeping original", zap.String("content_type", contentType))
	case err != nil:
		return done(TypeImageProcess, fmt.Errorf("corrupt image %s: %v: %w", payload.Key, err, asynq.SkipRetry))
	default:
		if processed.Resized {
			if err := p.storage.PutObject(ctx, payload.Key, contentType, bytes.NewReader(processed.Main), int64(len(processed.Main))); err != nil {
				return done(TypeImageProcess, fmt.Errorf("failed to store resized image: %w", err))
			}
			size = int64(len(processed.Main))
		}
		thumbKey = storage.ThumbKey(payload.Key)
		if err := p.storage.PutObject(ctx, thumbKey, "image/jpeg", bytes.NewReader(processed.Thumb), int64(len(processed.Thumb))); err != nil {
			return done(TypeImageProcess, fmt.Errorf("failed to store thumbnail: %w", err))
		}
	}

	if err := p.ads.MarkImageProcessed(ctx, adID, imageID, thumbKey, size); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			// the ad or image was removed while we worked
			if thumbKey != "" {
				_ = p.storage.DeleteObject(ctx, thumbKey)
			}
			log.Info("image no longer on ad, discarding output")
			return done(TypeImageProcess, fmt.Errorf("%v: %w", err, asynq.SkipRetry))
		}
		return done(TypeImageProcess, fmt.Errorf("failed to mark image processed: %w", err))
	}
	log.Info("image processed", zap.Int64("size", size), zap.String("thumb_key", thumbKey))
	return done(TypeImageProcess, nil)
}

func (p *TaskProcessor) thumbSize() int {
	if p.cfg.ImageThumbSize > 0 {
		return p.cfg.ImageThumbSize
	}
	return 400
}
