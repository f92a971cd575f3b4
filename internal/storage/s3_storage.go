package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/returnordie/til-i-allt-sub001/internal/config"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

// ErrObjectNotFound is returned when a key does not exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

// IS3Storage is the object store used for ad images.
type IS3Storage interface {
	PutObject(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	GetObject(ctx context.Context, key string) (io.ReadCloser, string, error)
	DeleteObject(ctx context.Context, key string) error
	PresignGetURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	PublicURL(key string) string
}

type s3Storage struct {
	cfg           *config.Config
	s3Client      *s3.Client
	presignClient *s3.PresignClient
}

// NewS3Client builds an S3 client from static credentials. AwsEndpoint
// points it at an S3-compatible store such as MinIO.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	awsCfg, err := aws_config.LoadDefaultConfig(ctx,
		aws_config.WithRegion(cfg.AwsRegion),
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.AwsEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AwsEndpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func NewS3Storage(cfg *config.Config, client *s3.Client) IS3Storage {
	return &s3Storage{
		cfg:           cfg,
		s3Client:      client,
		presignClient: s3.NewPresignClient(client),
	}
}

// AdImageKey returns a fresh object key under the ad's prefix.
func AdImageKey(adID utils.SixID, ext string) string {
	return fmt.Sprintf("ads/%s/%s.%s", adID, uuid.NewString(), strings.ToLower(ext))
}

// ThumbKey derives the thumbnail key for an image key.
func ThumbKey(key string) string {
	if i := strings.LastIndex(key, "."); i > strings.LastIndex(key, "/") {
		return key[:i] + "_thumb.jpg"
	}
	return key + "_thumb.jpg"
}

func (s *s3Storage) PutObject(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.AwsS3Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

func (s *s3Storage) GetObject(ctx context.Context, key string) (io.ReadCloser, string, error) {
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.AwsS3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, "", fmt.Errorf("%s: %w", key, ErrObjectNotFound)
		}
		return nil, "", fmt.Errorf("failed to get object %s: %w", key, err)
	}
	return out.Body, aws.ToString(out.ContentType), nil
}

func (s *s3Storage) DeleteObject(ctx context.Context, key string) error {
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.AwsS3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func (s *s3Storage) PresignGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.AwsS3Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign GET for %s: %w", key, err)
	}
	return req.URL, nil
}

// PublicURL joins the configured CDN/bucket base with key.
func (s *s3Storage) PublicURL(key string) string {
	if s.cfg.ImageBaseS3URL == "" {
		return key
	}
	return strings.TrimRight(s.cfg.ImageBaseS3URL, "/") + "/" + key
}
