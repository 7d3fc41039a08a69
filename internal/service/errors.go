package service

import (
	"errors"

	"gemini-chat-be/internal/repository/contract"
)

var (
	ErrMissingMimeType     = errors.New("attachment has no detectable MIME type")
	ErrUnsupportedMimeType = errors.New("attachment type is not supported")
	ErrEmptyAttachment     = errors.New("attachment is empty")
	ErrAttachmentTooLarge  = errors.New("attachment is too large")

	ErrConversationNotFound  = contract.ErrConversationNotFound
	ErrCorruptConversation   = contract.ErrCorruptConversation
	ErrInvalidConversationId = contract.ErrInvalidConversationId
	ErrWriteFailure          = errors.New("could not save conversation")

	ErrEmptyPrompt          = errors.New("prompt is empty")
	ErrClientNotConfigured  = errors.New("model client is not configured")
	ErrGenerationInProgress = errors.New("a response is still being generated")

	ErrInvalidSettings = errors.New("invalid settings")
)
