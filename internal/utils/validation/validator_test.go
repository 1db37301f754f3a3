package validation

import (
	"testing"

	apperrors "disputedesk/internal/errors"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Name  string `json:"name" validate:"required"`
	Role  string `json:"role" validate:"omitempty,oneof=admin operator"`
	Score int    `json:"score" validate:"gte=0,lte=100"`
}

func TestStruct(t *testing.T) {
	assert.NoError(t, Struct(&sample{Name: "ops", Role: "admin", Score: 50}))

	err := Struct(&sample{Role: "root", Score: 101})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "role must be one of [admin operator]")
	assert.Contains(t, err.Error(), "score must be at most 100")
}
