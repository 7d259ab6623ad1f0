package domain

import "time"

// Session tracks one authenticated device. The bearer token itself is never
// stored; sessions are looked up by its keyed fingerprint.
type Session struct {
	ID               string
	UserID           string
	TokenFingerprint string
	IPAddress        string
	UserAgent        string
	Active           bool
	CreatedAt        time.Time
	ExpiresAt        time.Time
	LastActivityAt   time.Time
}
