package domain

//go:generate mockgen -destination=../../mocks/mock_repository.go -package=mocks github.com/alexizher/onboarding-back-sub000/internal/auth/domain UserRepository,SessionRepository,RefreshTokenRepository,RevocationRepository,LoginAttemptRepository,ResetTokenRepository,SecurityEventRepository

import (
	"context"
	"time"
)

// Clock abstracts time.Now so expiry and window logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	// UpdateLockoutState is a conditional update guarded by the row version.
	// It returns false without error when the version no longer matches.
	UpdateLockoutState(ctx context.Context, userID string, attempts, level int, until *time.Time, expectedVersion int) (bool, error)
	UpsertTrustedDevice(ctx context.Context, userID, fingerprint, userAgent, ip string) error
	AppendPasswordHistory(ctx context.Context, userID, passwordHash string) error
}

type SessionRepository interface {
	// CreateEnforcingCap inserts the session; if the identity already has
	// maxActive active sessions, every prior active session is deactivated in
	// the same transaction. Returns how many sessions were deactivated.
	CreateEnforcingCap(ctx context.Context, session *Session, maxActive int) (int, error)
	GetActiveByFingerprint(ctx context.Context, fingerprint string) (*Session, error)
	GetActiveByUserID(ctx context.Context, userID string) ([]Session, error)
	Touch(ctx context.Context, sessionID string, at time.Time) error
	Deactivate(ctx context.Context, sessionID, userID string) error
	DeactivateAll(ctx context.Context, userID string) (int, error)
	DeactivateOthers(ctx context.Context, userID, keepFingerprint string) (int, error)
	DeactivateExpired(ctx context.Context, now time.Time, inactivityTimeout time.Duration) (int, error)
}

type RefreshTokenRepository interface {
	Store(ctx context.Context, token *RefreshToken) error
	GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeAllByUserID(ctx context.Context, userID string, at time.Time) (int, error)
	GetActiveCountByUserID(ctx context.Context, userID string) (int, error)
	DeleteOldestByUserID(ctx context.Context, userID string) error
	RevokeExpired(ctx context.Context, now time.Time) (int, error)
}

type RevocationRepository interface {
	Revoke(ctx context.Context, entry *RevokedToken) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type LoginAttemptRepository interface {
	Record(ctx context.Context, attempt *LoginAttempt) error
	CountFailedByIP(ctx context.Context, ip string, since time.Time) (int, error)
	CountFailedByEmail(ctx context.Context, email string, since time.Time) (int, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type ResetTokenRepository interface {
	Store(ctx context.Context, token *PasswordResetToken) error
	GetByToken(ctx context.Context, token string) (*PasswordResetToken, error)
	CountIssuedSince(ctx context.Context, userID string, since time.Time) (int, error)
	// InvalidateActiveByUserID expires every still-usable token for the
	// identity without marking it used or blocked.
	InvalidateActiveByUserID(ctx context.Context, userID string, now time.Time) (int, error)
	IncrementValidationCount(ctx context.Context, id string) error
	// RegisterFailedAttempt atomically increments and returns the failure
	// counter so concurrent confirms cannot both observe a sub-threshold value.
	RegisterFailedAttempt(ctx context.Context, id string) (int, error)
	Block(ctx context.Context, id, reason string, cooldownUntil time.Time) error
	// MarkUsed is a conditional update on the unused row. It returns false
	// without error when another consume already claimed the token.
	MarkUsed(ctx context.Context, id string, at time.Time, ip, userAgent string) (bool, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type SecurityEventRepository interface {
	Record(ctx context.Context, event *SecurityEvent) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}
