package http

import (
	"github.com/gofiber/fiber/v2"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/pkg/response"
)

// PreviewHandler runs the full triage on an ad-hoc message body.
type PreviewHandler struct {
	preview in.PreviewService
}

func NewPreviewHandler(preview in.PreviewService) *PreviewHandler {
	return &PreviewHandler{preview: preview}
}

func (h *PreviewHandler) Register(router fiber.Router) {
	router.Post("/triage/preview", h.Preview)
}

type previewRequest struct {
	MessageBody string `json:"message_body"`
	Tone        string `json:"tone"`
}

func (h *PreviewHandler) Preview(c *fiber.Ctx) error {
	var req previewRequest
	if err := ParseBody(c, &req); err != nil {
		return err
	}

	result, err := h.preview.Preview(c.UserContext(), req.MessageBody, domain.Tone(req.Tone))
	if err != nil {
		return err
	}
	return response.OK(c, result)
}
