package service

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/internal/observability"
)

// DefaultAttachmentMaxSizeMB bounds submission files when no limit is configured.
const DefaultAttachmentMaxSizeMB = 25

// allowedAttachmentTypes lists the document, image and archive formats
// students may attach.
var allowedAttachmentTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"text/plain",
	"text/markdown",
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/webp",
	"application/zip",
}

// FileStorage abstracts upload destinations.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// AttachmentService validates submission files and hands them to storage.
type AttachmentService interface {
	Store(ctx context.Context, file *multipart.FileHeader) (models.Attachment, error)
}

type attachmentService struct {
	storage FileStorage
	logger  zerolog.Logger
	maxSize int64
	tracer  trace.Tracer
}

// NewAttachmentService constructs an attachment service.
func NewAttachmentService(storage FileStorage, maxSizeMB int, logger zerolog.Logger) AttachmentService {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultAttachmentMaxSizeMB
	}
	return &attachmentService{
		storage: storage,
		logger:  logger.With().Str("component", "attachment_service").Logger(),
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		tracer:  otel.Tracer("github.com/noah-isme/gema-lms-api/internal/service/attachment"),
	}
}

func (s *attachmentService) Store(ctx context.Context, file *multipart.FileHeader) (models.Attachment, error) {
	ctx, span := s.tracer.Start(ctx, "attachment.store")
	defer span.End()

	span.SetAttributes(attribute.Int64("attachment.max_bytes", s.maxSize))

	start := time.Now()
	defer func() {
		observability.AttachmentLatency().Observe(time.Since(start).Seconds())
	}()

	if file == nil {
		err := fmt.Errorf("%w: file is required", ErrValidation)
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return models.Attachment{}, err
	}
	span.SetAttributes(
		attribute.String("attachment.original_name", strings.TrimSpace(file.Filename)),
		attribute.Int64("attachment.request_size", file.Size),
	)

	if file.Size > s.maxSize {
		return models.Attachment{}, s.reject(span, "size", ErrAttachmentTooLarge)
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		return models.Attachment{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return models.Attachment{}, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(buf.Len()) > s.maxSize {
		return models.Attachment{}, s.reject(span, "size", ErrAttachmentTooLarge)
	}
	if buf.Len() == 0 {
		return models.Attachment{}, s.reject(span, "empty", fmt.Errorf("%w: file is empty", ErrValidation))
	}

	fileType, ok := detectAllowedType(buf.Bytes())
	span.SetAttributes(attribute.String("attachment.detected_mime", fileType))
	if !ok {
		return models.Attachment{}, s.reject(span, "type", fmt.Errorf("%w: %s", ErrAttachmentTypeNotAllowed, fileType))
	}

	if fileType == "application/zip" || strings.Contains(fileType, "openxmlformats") {
		if err := s.scanArchive(buf.Bytes()); err != nil {
			return models.Attachment{}, s.reject(span, "scan", err)
		}
	}

	checksum := sha256.Sum256(buf.Bytes())
	sanitizedName := sanitizeFileName(file.Filename)

	url, err := s.storage.Upload(ctx, sanitizedName, bytes.NewReader(buf.Bytes()))
	if err != nil {
		observability.AttachmentRejected().WithLabelValues("storage").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return models.Attachment{}, fmt.Errorf("failed to upload file: %w", err)
	}

	observability.AttachmentsStored().WithLabelValues(fileType).Inc()
	span.SetStatus(codes.Ok, "stored")
	s.logger.Debug().Str("file_name", sanitizedName).Str("mime_type", fileType).Int("size_bytes", buf.Len()).Msg("attachment stored")

	return models.Attachment{
		FileName:  sanitizedName,
		FileURL:   url,
		SizeBytes: int64(buf.Len()),
		MimeType:  fileType,
		Checksum:  hex.EncodeToString(checksum[:]),
	}, nil
}

func (s *attachmentService) reject(span trace.Span, reason string, err error) error {
	observability.AttachmentRejected().WithLabelValues(reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, "rejected: "+reason)
	return err
}

func (s *attachmentService) scanArchive(payload []byte) error {
	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return ErrAttachmentScanFailed
	}
	var totalUncompressed uint64
	for _, f := range reader.File {
		totalUncompressed += f.UncompressedSize64
		if totalUncompressed > uint64(s.maxSize*20) {
			return fmt.Errorf("zip archive uncompressed size too large: %w", ErrAttachmentScanFailed)
		}
	}
	return nil
}

// detectAllowedType sniffs the payload and walks up the MIME hierarchy until
// an allowed type is found. It returns the detected type when none matches.
func detectAllowedType(payload []byte) (string, bool) {
	detected := mimetype.Detect(payload)
	for m := detected; m != nil; m = m.Parent() {
		base := baseMime(m.String())
		if slices.Contains(allowedAttachmentTypes, base) {
			return base, true
		}
	}
	return baseMime(detected.String()), false
}

func baseMime(value string) string {
	base, _, _ := strings.Cut(value, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

func sanitizeFileName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("submission-%d", time.Now().Unix())
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	return base + ext
}
