package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrAccountInactive    = errors.New("account is deactivated")
	ErrRateLimited        = errors.New("too many failed login attempts")
	ErrEmailAlreadyInUse  = errors.New("email already in use")

	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")

	ErrRefreshTokenNotFound      = errors.New("refresh token not found")
	ErrRefreshTokenRevoked       = errors.New("refresh token revoked")
	ErrRefreshTokenExpired       = errors.New("refresh token expired")
	ErrDeviceFingerprintMismatch = errors.New("device fingerprint mismatch")

	ErrResetTokenInvalid  = errors.New("password reset token invalid")
	ErrResetTokenBlocked  = errors.New("password reset token blocked")
	ErrResetTokenCooldown = errors.New("password reset token in cooldown")
	ErrResetRateLimited   = errors.New("too many password reset requests")

	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionLimitReached is informational only: the registry resolves an
	// overflow by revoking prior sessions, it never rejects the new login.
	ErrSessionLimitReached = errors.New("session limit reached")
)

// AccountLockedError carries the remaining lockout duration for display. It
// unwraps to ErrAccountLocked so callers can match with errors.Is.
type AccountLockedError struct {
	Remaining time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account temporarily locked, try again in %s", e.Remaining.Round(time.Minute))
}

func (e *AccountLockedError) Unwrap() error { return ErrAccountLocked }
