package utils

import (
	"errors"

	apperrors "disputedesk/internal/errors"

	"github.com/gofiber/fiber/v2"
)

// Respond sends a JSON response with the specified status code.
func Respond(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(data)
}

// Success sends a successful JSON response.
func Success(c *fiber.Ctx, data interface{}) error {
	return Respond(c, fiber.StatusOK, data)
}

func Created(c *fiber.Ctx, data interface{}) error {
	return Respond(c, fiber.StatusCreated, data)
}

// BadRequest sends a JSON error response with status 400.
func BadRequest(c *fiber.Ctx, message string) error {
	return Respond(c, fiber.StatusBadRequest, fiber.Map{"error": message, "code": apperrors.ErrValidation.Code})
}

// Unauthorized sends a JSON error response with status 401.
func Unauthorized(c *fiber.Ctx, message string) error {
	return Respond(c, fiber.StatusUnauthorized, fiber.Map{"error": message, "code": apperrors.ErrUnauthorized.Code})
}

// Forbidden sends a JSON error response with status 403.
func Forbidden(c *fiber.Ctx, message string) error {
	return Respond(c, fiber.StatusForbidden, fiber.Map{"error": message, "code": apperrors.ErrForbidden.Code})
}

// InternalError sends a JSON error response with status 500.
func InternalError(c *fiber.Ctx, message string) error {
	return Respond(c, fiber.StatusInternalServerError, fiber.Map{"error": message})
}

var statusByCode = map[string]int{
	apperrors.ErrNotFound.Code:              fiber.StatusNotFound,
	apperrors.ErrWalletNotFound.Code:        fiber.StatusNotFound,
	apperrors.ErrInvalidState.Code:          fiber.StatusConflict,
	apperrors.ErrAlreadyResolved.Code:       fiber.StatusConflict,
	apperrors.ErrInvalidAction.Code:         fiber.StatusUnprocessableEntity,
	apperrors.ErrInvalidAmount.Code:         fiber.StatusUnprocessableEntity,
	apperrors.ErrInsufficientBalance.Code:   fiber.StatusUnprocessableEntity,
	apperrors.ErrValidation.Code:            fiber.StatusBadRequest,
	apperrors.ErrUnauthorized.Code:          fiber.StatusUnauthorized,
	apperrors.ErrForbidden.Code:             fiber.StatusForbidden,
	apperrors.ErrPartialFailure.Code:        fiber.StatusAccepted,
	apperrors.ErrDependencyUnavailable.Code: fiber.StatusServiceUnavailable,
}

// StatusFor maps a domain error to its HTTP status. Unknown errors are 500.
func StatusFor(err error) int {
	if status, ok := statusByCode[apperrors.CodeOf(err)]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

// HandleError writes err as {"error", "code"}. Dependency and unknown
// failures are reported without their cause.
func HandleError(c *fiber.Ctx, err error) error {
	status := StatusFor(err)
	var de *apperrors.DomainError
	if !errors.As(err, &de) || status >= fiber.StatusInternalServerError {
		code := apperrors.CodeOf(err)
		if code == "" {
			return InternalError(c, "internal server error")
		}
		return Respond(c, status, fiber.Map{"error": "service temporarily unavailable", "code": code})
	}
	return Respond(c, status, fiber.Map{"error": de.Message, "code": de.Code})
}
