package serverutils

import (
	"errors"

	"gemini-chat-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

var statusBySentinel = []struct {
	err    error
	status int
}{
	{service.ErrConversationNotFound, fiber.StatusNotFound},
	{service.ErrCorruptConversation, fiber.StatusUnprocessableEntity},
	{service.ErrInvalidConversationId, fiber.StatusBadRequest},
	{service.ErrGenerationInProgress, fiber.StatusConflict},
	{service.ErrClientNotConfigured, fiber.StatusPreconditionFailed},
	{service.ErrMissingMimeType, fiber.StatusUnsupportedMediaType},
	{service.ErrUnsupportedMimeType, fiber.StatusUnsupportedMediaType},
	{service.ErrAttachmentTooLarge, fiber.StatusRequestEntityTooLarge},
	{service.ErrEmptyAttachment, fiber.StatusBadRequest},
	{service.ErrEmptyPrompt, fiber.StatusBadRequest},
	{service.ErrInvalidSettings, fiber.StatusBadRequest},
	{service.ErrWriteFailure, fiber.StatusInternalServerError},
}

// StatusFor maps a service error to the HTTP status it is rendered with.
func StatusFor(err error) int {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return fiber.StatusBadRequest
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}
	for _, s := range statusBySentinel {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return fiber.StatusInternalServerError
}

func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		status := StatusFor(err)

		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			return ctx.Status(status).JSON(BaseResponse[map[string]string]{
				Success: false,
				Code:    status,
				Message: "Validation failed",
				Data:    validationErr.Fields,
			})
		}

		return ctx.Status(status).JSON(ErrorResponse(status, err.Error()))
	}
}
