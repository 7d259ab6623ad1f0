package handler

import (
	"errors"

	"github.com/alexizher/onboarding-back-sub000/internal/auth/service"
	autherror "github.com/alexizher/onboarding-back-sub000/internal/errors"
	"github.com/gofiber/fiber/v2"
)

func statusForError(err error) int {
	switch {
	case errors.Is(err, autherror.ErrAccountLocked),
		errors.Is(err, autherror.ErrResetTokenBlocked):
		return fiber.StatusLocked
	case errors.Is(err, autherror.ErrRateLimited),
		errors.Is(err, autherror.ErrResetRateLimited),
		errors.Is(err, autherror.ErrResetTokenCooldown):
		return fiber.StatusTooManyRequests
	case errors.Is(err, autherror.ErrEmailAlreadyInUse):
		return fiber.StatusConflict
	case errors.Is(err, autherror.ErrResetTokenInvalid):
		return fiber.StatusBadRequest
	case errors.Is(err, autherror.ErrInvalidCredentials),
		errors.Is(err, autherror.ErrTokenInvalid),
		errors.Is(err, autherror.ErrTokenExpired),
		errors.Is(err, autherror.ErrTokenRevoked),
		errors.Is(err, autherror.ErrRefreshTokenNotFound),
		errors.Is(err, autherror.ErrRefreshTokenRevoked),
		errors.Is(err, autherror.ErrRefreshTokenExpired),
		errors.Is(err, autherror.ErrDeviceFingerprintMismatch),
		errors.Is(err, autherror.ErrSessionNotFound):
		return fiber.StatusUnauthorized
	}
	return fiber.StatusInternalServerError
}

// writeError maps domain errors onto the REST surface. Infrastructure
// failures are never echoed to the caller.
func writeError(c *fiber.Ctx, err error) error {
	status := statusForError(err)

	body := fiber.Map{"error": err.Error()}
	if status == fiber.StatusInternalServerError {
		body["error"] = "internal server error"
	}
	if remaining, ok := service.RemainingLockout(err); ok {
		body["retry_after_seconds"] = int(remaining.Seconds())
	}

	return c.Status(status).JSON(body)
}
