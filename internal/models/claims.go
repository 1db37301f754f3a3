package models

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// UserClaims is the JWT payload of an operator session. Refresh tokens carry
// no permissions; they are re-derived from the role when the pair is rotated.
type UserClaims struct {
	jwt.RegisteredClaims
	UserID       string   `json:"user_id"`
	Email        string   `json:"email"`
	Role         string   `json:"role"`
	Permissions  []string `json:"permissions"`
	TokenVersion int      `json:"token_version"`
}

func (c *UserClaims) HasPermission(permission string) bool {
	return slices.Contains(c.Permissions, permission)
}

// Actor is the identity recorded on audit entries and resolutions.
func (c *UserClaims) Actor() string {
	if c == nil || c.UserID == "" {
		return "anonymous"
	}
	return c.UserID
}
