package http

import (
	"github.com/gofiber/fiber/v2"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/pkg/response"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// MessageHandler serves the review API for inbound messages.
type MessageHandler struct {
	triage    in.TriageService
	assistant in.ReplyAssistant
}

func NewMessageHandler(triage in.TriageService, assistant in.ReplyAssistant) *MessageHandler {
	return &MessageHandler{triage: triage, assistant: assistant}
}

func (h *MessageHandler) Register(router fiber.Router) {
	messages := router.Group("/messages")
	messages.Get("/", h.List)
	messages.Get("/stats", h.Stats)
	messages.Get("/:id", h.Get)
	messages.Post("/:id/suggest-reply", h.SuggestReply)
	messages.Post("/:id/status", h.UpdateStatus)
	messages.Post("/:id/classify", h.Reclassify)
	messages.Post("/:id/reply", h.SendReply)

	router.Get("/teams", h.ListTeams)
}

// List returns messages newest first with classification and team.
func (h *MessageHandler) List(c *fiber.Ctx) error {
	p := response.GetPagination(c, defaultPageSize, maxPageSize)
	page := &domain.PageRequest{Page: p.Page, PageSize: p.PageSize}

	views, total, err := h.triage.ListMessages(c.UserContext(), page)
	if err != nil {
		return err
	}

	pr := domain.NewPageResponse(page.Page, page.PageSize, total)
	return response.OKWithMeta(c, views, &response.Meta{
		Total:      total,
		Page:       pr.Page,
		PageSize:   pr.PageSize,
		TotalPages: pr.TotalPages,
		HasMore:    pr.Page < pr.TotalPages,
	})
}

func (h *MessageHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.triage.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return response.OK(c, stats)
}

func (h *MessageHandler) Get(c *fiber.Ctx) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return err
	}
	view, err := h.triage.GetMessage(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.OK(c, view)
}

type suggestReplyRequest struct {
	Tone string `json:"tone"`
}

func (h *MessageHandler) SuggestReply(c *fiber.Ctx) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return err
	}
	var req suggestReplyRequest
	if err := ParseBody(c, &req); err != nil {
		return err
	}

	suggestion, err := h.assistant.SuggestReply(c.UserContext(), id, domain.Tone(req.Tone))
	if err != nil {
		return err
	}
	return response.OK(c, suggestion)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *MessageHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return err
	}
	var req updateStatusRequest
	if err := ParseBody(c, &req); err != nil {
		return err
	}

	msg, err := h.triage.UpdateStatus(c.UserContext(), id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(MessageResponse{Message: "Message status updated.", Data: msg})
}

func (h *MessageHandler) Reclassify(c *fiber.Ctx) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return err
	}
	var req in.ReclassifyInput
	if err := ParseBody(c, &req); err != nil {
		return err
	}

	cls, err := h.triage.Reclassify(c.UserContext(), id, &req)
	if err != nil {
		return err
	}
	return c.JSON(MessageResponse{Message: "Message reclassified successfully.", Data: cls})
}

type sendReplyRequest struct {
	ReplyContent string `json:"reply_content"`
}

func (h *MessageHandler) SendReply(c *fiber.Ctx) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return err
	}
	var req sendReplyRequest
	if err := ParseBody(c, &req); err != nil {
		return err
	}

	msg, err := h.triage.SendReply(c.UserContext(), id, req.ReplyContent)
	if err != nil {
		return err
	}
	return c.JSON(MessageResponse{Message: "Reply sent successfully (simulated).", Data: msg})
}

func (h *MessageHandler) ListTeams(c *fiber.Ctx) error {
	teams, err := h.triage.ListTeams(c.UserContext())
	if err != nil {
		return err
	}
	return response.OK(c, teams)
}
