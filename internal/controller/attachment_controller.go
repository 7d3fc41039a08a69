package controller

import (
	"io"

	"gemini-chat-be/internal/dto"
	"gemini-chat-be/internal/pkg/serverutils"
	"gemini-chat-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IAttachmentController interface {
	RegisterRoutes(r fiber.Router)
	Upload(ctx *fiber.Ctx) error
	Clear(ctx *fiber.Ctx) error
}

type attachmentController struct {
	service service.IAttachmentService
}

func NewAttachmentController(service service.IAttachmentService) IAttachmentController {
	return &attachmentController{service: service}
}

func (c *attachmentController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/attachments")
	h.Post("", c.Upload)
	h.Delete("", c.Clear)
}

func (c *attachmentController) Upload(ctx *fiber.Ctx) error {
	sess := serverutils.CurrentSession(ctx)

	form, err := ctx.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Expected multipart form with 'files'")
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "No files uploaded")
	}

	files := make([]dto.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		files = append(files, dto.UploadedFile{
			Filename: fh.Filename,
			MimeType: fh.Header.Get(fiber.HeaderContentType),
			Data:     data,
		})
	}

	res := c.service.AddPending(ctx.UserContext(), sess, files)
	return ctx.JSON(serverutils.SuccessResponse("Attachments processed", res))
}

func (c *attachmentController) Clear(ctx *fiber.Ctx) error {
	sess := serverutils.CurrentSession(ctx)
	c.service.ClearPending(ctx.UserContext(), sess)
	return ctx.JSON(serverutils.SuccessResponse("Attachments cleared", c.service.PendingNames(sess)))
}
