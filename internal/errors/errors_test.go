package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("submit resolution: %w", ErrInvalidState.WithMessage("alert expired"))

	assert.True(t, stderrors.Is(wrapped, ErrInvalidState))
	assert.False(t, stderrors.Is(wrapped, ErrNotFound))
	assert.Equal(t, "INVALID_STATE", CodeOf(wrapped))
	assert.Contains(t, wrapped.Error(), "alert expired")
}

func TestDomainError_WrapKeepsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := ErrDependencyUnavailable.Wrap(cause)

	assert.True(t, stderrors.Is(err, ErrDependencyUnavailable))
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, "a required dependency is unavailable: connection refused", err.Error())
}

func TestUnavailable(t *testing.T) {
	assert.Nil(t, Unavailable(nil))

	domain := ErrNotFound.WithMessage("alert not found")
	assert.Same(t, domain, Unavailable(domain))

	raw := stderrors.New("i/o timeout")
	got := Unavailable(raw)
	assert.True(t, stderrors.Is(got, ErrDependencyUnavailable))
	assert.Equal(t, "", CodeOf(raw))
}
