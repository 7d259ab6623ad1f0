package domain

import "time"

// RefreshToken holds the hashed form of a renewal token. The raw value is
// handed to the client exactly once and never persisted.
type RefreshToken struct {
	ID                string
	UserID            string
	TokenHash         string
	DeviceFingerprint string
	IPAddress         string
	UserAgent         string
	ExpiresAt         time.Time
	CreatedAt         time.Time
	Revoked           bool
	RevokedAt         *time.Time
}

// RevokedToken is a blacklist entry keyed by the jti claim embedded in a
// bearer token at issuance. Append-only.
type RevokedToken struct {
	TokenID   string
	UserID    string
	Reason    string
	RevokedAt time.Time
}
