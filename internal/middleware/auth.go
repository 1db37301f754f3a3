// Package middleware provides HTTP middleware for the console API: bearer
// token authentication and permission checks on the authenticated claims.
package middleware

import (
	"strings"

	"disputedesk/internal/models"
	"disputedesk/internal/services/auth"
	"disputedesk/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// AuthMiddleware validates bearer tokens and stores the claims on the context.
type AuthMiddleware struct {
	authService auth.Service
	log         *logrus.Logger
}

func NewAuthMiddleware(authService auth.Service, log *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		log:         log,
	}
}

// Handler rejects requests without a live access token. The token is read
// from the Authorization header, or from the access_token query parameter
// for EventSource clients that cannot set headers.
func (m *AuthMiddleware) Handler(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return utils.Unauthorized(c, "missing authorization header")
	}

	claims, err := m.authService.Authenticate(c.UserContext(), token)
	if err != nil {
		m.log.WithError(err).WithField("path", c.Path()).Debug("authentication failed")
		return utils.HandleError(c, err)
	}

	c.Locals(utils.ClaimsKey, claims)
	return c.Next()
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if header == "" {
		return c.Query("access_token")
	}
	return ""
}

// HasPermission returns a middleware that checks for a specific permission.
func HasPermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := utils.GetUserClaims(c)
		if err != nil {
			return utils.Unauthorized(c, "unauthorized")
		}

		if claims.Role == models.RoleAdmin || claims.HasPermission(permission) {
			return c.Next()
		}

		return utils.Forbidden(c, "insufficient permissions")
	}
}
