package controller

import (
	"gemini-chat-be/internal/dto"
	"gemini-chat-be/internal/pkg/serverutils"
	"gemini-chat-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ISessionController interface {
	RegisterRoutes(r fiber.Router)
	Show(ctx *fiber.Ctx) error
	Models(ctx *fiber.Ctx) error
	UpdateCredential(ctx *fiber.Ctx) error
	UpdateSettings(ctx *fiber.Ctx) error
}

type sessionController struct {
	service service.ISessionService
}

func NewSessionController(service service.ISessionService) ISessionController {
	return &sessionController{service: service}
}

func (c *sessionController) RegisterRoutes(r fiber.Router) {
	r.Get("/session", c.Show)
	r.Get("/models", c.Models)

	h := r.Group("/settings")
	h.Put("/credential", c.UpdateCredential)
	h.Patch("", c.UpdateSettings)
}

func (c *sessionController) Show(ctx *fiber.Ctx) error {
	sess := serverutils.CurrentSession(ctx)
	return ctx.JSON(serverutils.SuccessResponse("Session", c.service.Snapshot(sess)))
}

func (c *sessionController) Models(ctx *fiber.Ctx) error {
	sess := serverutils.CurrentSession(ctx)
	return ctx.JSON(serverutils.SuccessResponse("Available models", c.service.AvailableModels(sess)))
}

func (c *sessionController) UpdateCredential(ctx *fiber.Ctx) error {
	sess := serverutils.CurrentSession(ctx)

	var req dto.UpdateCredentialRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	c.service.UpdateCredential(ctx.UserContext(), sess, req.ApiKey)
	return ctx.JSON(serverutils.SuccessResponse("Credential updated", c.service.Snapshot(sess)))
}

func (c *sessionController) UpdateSettings(ctx *fiber.Ctx) error {
	sess := serverutils.CurrentSession(ctx)

	var req dto.UpdateSettingsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.service.UpdateSettings(ctx.UserContext(), sess, &req); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Settings updated", c.service.Snapshot(sess)))
}
