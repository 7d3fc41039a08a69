package controller

import (
	"bufio"
	"encoding/json"
	"fmt"

	"gemini-chat-be/internal/dto"
	"gemini-chat-be/internal/pkg/logger"
	"gemini-chat-be/internal/pkg/serverutils"
	"gemini-chat-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	SendMessage(ctx *fiber.Ctx) error
}

type chatController struct {
	service service.IGenerationService
	logger  logger.ILogger
}

func NewChatController(service service.IGenerationService, log logger.ILogger) IChatController {
	return &chatController{service: service, logger: log}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat")
	h.Post("/messages", c.SendMessage)
}

// SendMessage streams the model's answer as server-sent events: fragment, status, done.
func (c *chatController) SendMessage(ctx *fiber.Ctx) error {
	sess := serverutils.CurrentSession(ctx)

	var req dto.SendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	stream, err := c.service.Send(ctx.UserContext(), sess, req.Prompt)
	if err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	sessionId := sess.ID
	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		for evt := range stream.Events() {
			if err := writeEvent(w, evt); err != nil {
				c.logger.Warn("ChatController", "Client went away, cancelling generation", map[string]interface{}{
					"session_id": sessionId,
					"error":      err.Error(),
				})
				stream.Cancel()
				break
			}
		}
		stream.Wait()
	}))

	return nil
}

func writeEvent(w *bufio.Writer, evt service.StreamEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
		return err
	}
	return w.Flush()
}
