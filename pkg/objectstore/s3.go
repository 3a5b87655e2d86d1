package objectstore

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultDownloadURLExpiry bounds presigned links when no public base URL is configured.
const DefaultDownloadURLExpiry = 7 * 24 * time.Hour

// Config describes an S3 or S3-compatible bucket.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL, when set, is joined with the object key instead of presigning.
	PublicBaseURL string
	KeyPrefix     string
}

// S3Storage uploads submission files to an S3 bucket.
type S3Storage struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	cfg           Config
	logger        zerolog.Logger
	now           func() time.Time
}

// NewS3Storage creates the S3 storage backend. Static credentials are used when
// provided, otherwise the default AWS credential chain applies.
func NewS3Storage(ctx context.Context, cfg Config, logger zerolog.Logger) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket must be provided")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		cfg:           cfg,
		logger:        logger.With().Str("component", "s3_storage").Str("bucket", cfg.Bucket).Logger(),
		now:           time.Now,
	}, nil
}

// Upload stores the object and returns a URL students and teachers can open.
func (s *S3Storage) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	key := objectKey(s.cfg.KeyPrefix, name, s.now(), uuid.NewString())

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   reader,
	}
	if contentType := mime.TypeByExtension(filepath.Ext(name)); contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	s.logger.Info().Str("key", key).Msg("file uploaded to s3")

	if s.cfg.PublicBaseURL != "" {
		return publicURL(s.cfg.PublicBaseURL, key), nil
	}

	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(DefaultDownloadURLExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", key, err)
	}

	return req.URL, nil
}

// objectKey places uploads under prefix/yyyy/mm/ with a unique id so names never collide.
func objectKey(prefix, name string, at time.Time, id string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == "/" || base == "" {
		base = "upload.bin"
	}
	return path.Join(strings.Trim(prefix, "/"), at.UTC().Format("2006/01"), id+"-"+base)
}

func publicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
