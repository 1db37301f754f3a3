package utils

import (
	"testing"

	"disputedesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseTokens(t *testing.T) {
	claims := &models.UserClaims{
		UserID:       "u-1",
		Email:        "ops@example.com",
		Role:         models.RoleOperator,
		TokenVersion: 4,
		Permissions:  []string{models.PermissionAlertRead},
	}
	access, refresh, err := GenerateTokens(claims, "a", "r")
	require.NoError(t, err)

	_, parsed, err := ParseToken(access, "a")
	require.NoError(t, err)
	assert.Equal(t, "u-1", parsed.Subject)
	assert.Equal(t, 4, parsed.TokenVersion)
	assert.True(t, parsed.HasPermission(models.PermissionAlertRead))

	_, parsed, err = ParseToken(refresh, "r")
	require.NoError(t, err)
	assert.Empty(t, parsed.Permissions)

	_, _, err = ParseToken(access, "r")
	assert.Error(t, err)

	_, _, err = GenerateTokens(claims, "", "r")
	assert.Error(t, err)
}
