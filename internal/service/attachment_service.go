package service

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"gemini-chat-be/internal/constant"
	"gemini-chat-be/internal/dto"
	"gemini-chat-be/internal/entity"
	"gemini-chat-be/internal/metrics"
	"gemini-chat-be/internal/pkg/logger"
	"gemini-chat-be/pkg/store"

	"github.com/gabriel-vasile/mimetype"
)

const genericMimeType = "application/octet-stream"

// Types the upload box accepts: PNG, JPEG, WebP and GIF images plus PDF documents.
var allowedMimeTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
	"image/gif":       true,
	"application/pdf": true,
}

type IAttachmentService interface {
	Prepare(data []byte, declaredMime, filename string) (*entity.Attachment, error)
	AddPending(ctx context.Context, sess *store.Session, files []dto.UploadedFile) *dto.AttachmentsResponse
	ClearPending(ctx context.Context, sess *store.Session)
	PendingNames(sess *store.Session) []string
}

type attachmentService struct {
	maxBytes int64
	notifier *notifier
}

func NewAttachmentService(maxBytes int64, publisher IPublisherService, log logger.ILogger) IAttachmentService {
	return &attachmentService{
		maxBytes: maxBytes,
		notifier: newNotifier(publisher, log),
	}
}

// Prepare turns raw upload bytes into an attachment. The declared MIME type wins unless it is
// missing or generic, in which case the content is sniffed.
func (s *attachmentService) Prepare(data []byte, declaredMime, filename string) (*entity.Attachment, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyAttachment, filename)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrAttachmentTooLarge, filename, s.maxBytes)
	}

	mimeType := normalizeMimeType(declaredMime)
	if mimeType == "" || mimeType == genericMimeType {
		mimeType = normalizeMimeType(mimetype.Detect(data).String())
	}
	if mimeType == "" || mimeType == genericMimeType {
		return nil, fmt.Errorf("%w: %s", ErrMissingMimeType, filename)
	}
	if !allowedMimeTypes[mimeType] {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedMimeType, filename, mimeType)
	}

	return &entity.Attachment{
		MimeType:         mimeType,
		Data:             data,
		OriginalFilename: filename,
	}, nil
}

// AddPending prepares each upload and queues the accepted ones for the next prompt. Files already
// pending or already uploaded in this session are skipped.
func (s *attachmentService) AddPending(ctx context.Context, sess *store.Session, files []dto.UploadedFile) *dto.AttachmentsResponse {
	res := &dto.AttachmentsResponse{
		Accepted: []string{},
		Skipped:  []string{},
		Rejected: []dto.RejectedAttachment{},
	}

	pending := make(map[string]bool, len(sess.PendingAttachments))
	for _, a := range sess.PendingAttachments {
		pending[a.OriginalFilename] = true
	}

	for _, f := range files {
		if pending[f.Filename] || sess.HasUploaded(f.Filename) {
			res.Skipped = append(res.Skipped, f.Filename)
			continue
		}

		attachment, err := s.Prepare(f.Data, f.MimeType, f.Filename)
		if err != nil {
			metrics.AttachmentsTotal.WithLabelValues(normalizeMimeType(f.MimeType), "rejected").Inc()
			res.Rejected = append(res.Rejected, dto.RejectedAttachment{Filename: f.Filename, Reason: err.Error()})
			s.notifier.notify(ctx, sess, constant.NoticeWarning, fmt.Sprintf("Skipping %s: %v", f.Filename, err))
			continue
		}

		metrics.AttachmentsTotal.WithLabelValues(attachment.MimeType, "accepted").Inc()
		sess.PendingAttachments = append(sess.PendingAttachments, *attachment)
		sess.MarkUploaded(f.Filename)
		pending[f.Filename] = true
		res.Accepted = append(res.Accepted, f.Filename)
	}

	res.Pending = s.PendingNames(sess)
	return res
}

func (s *attachmentService) ClearPending(ctx context.Context, sess *store.Session) {
	sess.ClearAttachments()
}

func (s *attachmentService) PendingNames(sess *store.Session) []string {
	names := make([]string, 0, len(sess.PendingAttachments))
	for i, a := range sess.PendingAttachments {
		name := a.OriginalFilename
		if name == "" {
			name = fmt.Sprintf("File %d", i+1)
		}
		names = append(names, name)
	}
	return names
}

func normalizeMimeType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(value); err == nil {
		return strings.ToLower(parsed)
	}
	return strings.ToLower(value)
}
