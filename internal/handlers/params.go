package handlers

import (
	"disputedesk/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// uuidParam parses a path parameter, writing a 400 on failure.
func uuidParam(c *fiber.Ctx, name string) (uuid.UUID, bool, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, false, utils.BadRequest(c, "invalid "+name)
	}
	return id, true, nil
}
