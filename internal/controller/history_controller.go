package controller

import (
	"fmt"
	"io"

	"gemini-chat-be/internal/dto"
	"gemini-chat-be/internal/pkg/serverutils"
	"gemini-chat-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IHistoryController interface {
	RegisterRoutes(r fiber.Router)
	GetAll(ctx *fiber.Ctx) error
	Create(ctx *fiber.Ctx) error
	Load(ctx *fiber.Ctx) error
	BeginRename(ctx *fiber.Ctx) error
	CancelRename(ctx *fiber.Ctx) error
	Rename(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	Export(ctx *fiber.Ctx) error
	Import(ctx *fiber.Ctx) error
	ClearMessages(ctx *fiber.Ctx) error
}

type historyController struct {
	service service.IHistoryService
}

func NewHistoryController(service service.IHistoryService) IHistoryController {
	return &historyController{service: service}
}

func (c *historyController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chats")
	h.Get("", c.GetAll)
	h.Post("", c.Create)
	h.Post("/import", c.Import)
	h.Get("/current/export", c.Export)
	h.Delete("/current/messages", c.ClearMessages)
	h.Post("/:id/load", c.Load)
	h.Post("/:id/renaming", c.BeginRename)
	h.Delete("/:id/renaming", c.CancelRename)
	h.Put("/:id/name", c.Rename)
	h.Delete("/:id", c.Delete)
}

func (c *historyController) GetAll(ctx *fiber.Ctx) error {
	sess := serverutils.CurrentSession(ctx)

	summaries, err := c.service.List(ctx.UserContext())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Saved chats", dto.NewConversationSummaries(summaries, sess.Conversation.Id)))
}

func (c *historyController) Create(ctx *fiber.Ctx) error {
	sess := serverutils.CurrentSession(ctx)

	if err := c.service.NewChat(ctx.UserContext(), sess); err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Started new chat", dto.NewConversationResponse(sess.Conversation)))
}

func (c *historyController) Load(ctx *fiber.Ctx) error {
	sess := serverutils.CurrentSession(ctx)

	if err := c.service.Load(ctx.UserContext(), sess, ctx.Params("id")); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Chat loaded", dto.NewConversationResponse(sess.Conversation)))
}

func (c *historyController) BeginRename(ctx *fiber.Ctx) error {
	sess := serverutils.CurrentSession(ctx)
	c.service.BeginRename(sess, ctx.Params("id"))
	return ctx.JSON(serverutils.SuccessResponse[any]("Renaming", nil))
}

func (c *historyController) CancelRename(ctx *fiber.Ctx) error {
	sess := serverutils.CurrentSession(ctx)
	c.service.CancelRename(sess)
	return ctx.JSON(serverutils.SuccessResponse[any]("Rename cancelled", nil))
}

func (c *historyController) Rename(ctx *fiber.Ctx) error {
	sess := serverutils.CurrentSession(ctx)

	var req dto.RenameConversationRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	renamed, err := c.service.Rename(ctx.UserContext(), sess, ctx.Params("id"), req.Name)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Rename handled", dto.RenameResponse{Renamed: renamed}))
}

func (c *historyController) Delete(ctx *fiber.Ctx) error {
	sess := serverutils.CurrentSession(ctx)

	deleted, err := c.service.Delete(ctx.UserContext(), sess, ctx.Params("id"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Chat deleted", dto.DeleteConversationResponse{
		Deleted:      deleted,
		Conversation: dto.NewConversationResponse(sess.Conversation),
	}))
}

func (c *historyController) Export(ctx *fiber.Ctx) error {
	sess := serverutils.CurrentSession(ctx)

	filename, data, err := c.service.Export(sess)
	if err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	ctx.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	return ctx.Send(data)
}

// Import accepts either a multipart "file" field or the JSON document as the raw body.
func (c *historyController) Import(ctx *fiber.Ctx) error {
	sess := serverutils.CurrentSession(ctx)

	data, err := importPayload(ctx)
	if err != nil {
		return err
	}

	conversation, err := c.service.Import(ctx.UserContext(), sess, data, ctx.QueryBool("overwrite", false))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Chat imported", dto.NewConversationResponse(conversation)))
}

func importPayload(ctx *fiber.Ctx) ([]byte, error) {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		body := ctx.Body()
		if len(body) == 0 {
			return nil, fiber.NewError(fiber.StatusBadRequest, "No chat file provided")
		}
		return append([]byte(nil), body...), nil
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	defer file.Close()

	return io.ReadAll(file)
}

func (c *historyController) ClearMessages(ctx *fiber.Ctx) error {
	sess := serverutils.CurrentSession(ctx)

	if err := c.service.ClearMessages(ctx.UserContext(), sess); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Messages cleared", dto.NewConversationResponse(sess.Conversation)))
}
