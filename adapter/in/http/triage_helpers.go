// Package http exposes the webhook and the internal API over Fiber.
package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"triage_server/pkg/apperr"
)

// ParamID parses a positive int64 route parameter.
func ParamID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.InvalidInput(name, "must be a positive integer")
	}
	return id, nil
}

// ParseBody decodes a JSON body into dst.
func ParseBody(c *fiber.Ctx, dst any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(dst); err != nil {
		return apperr.BadRequest("invalid request body").WithError(err)
	}
	return nil
}

// MessageResponse is the acknowledgement body used by action endpoints.
type MessageResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}
