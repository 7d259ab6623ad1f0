package domain

import "time"

// PasswordResetToken is a single-use capability. Once Used or Blocked it is
// permanently inert regardless of expiry.
type PasswordResetToken struct {
	ID              string
	Token           string
	UserID          string
	ExpiresAt       time.Time
	Used            bool
	UsedAt          *time.Time
	UsedFromIP      string
	UsedFromAgent   string
	FailedAttempts  int
	Blocked         bool
	BlockedReason   string
	CooldownUntil   *time.Time
	ValidationCount int
	IssuedIP        string
	IssuedUserAgent string
	CreatedAt       time.Time
}

func (t *PasswordResetToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

func (t *PasswordResetToken) CoolingDown(now time.Time) bool {
	return t.CooldownUntil != nil && now.Before(*t.CooldownUntil)
}
