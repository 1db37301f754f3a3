package utils

import (
	"errors"

	"disputedesk/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ClaimsKey is the fiber.Ctx local holding the authenticated claims.
const ClaimsKey = "claims"

// GetUserClaims extracts the user claims from the Fiber context.
func GetUserClaims(c *fiber.Ctx) (*models.UserClaims, error) {
	v := c.Locals(ClaimsKey)
	if v == nil {
		return nil, errors.New("claims not found in context")
	}

	claims, ok := v.(*models.UserClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	return claims, nil
}

// ActorID returns the authenticated user's id, or "anonymous".
func ActorID(c *fiber.Ctx) string {
	claims, _ := GetUserClaims(c)
	return claims.Actor()
}
