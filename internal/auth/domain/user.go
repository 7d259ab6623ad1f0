package domain

import "time"

type User struct {
	ID                  string
	Username            string
	Email               string
	PasswordHash        string
	Active              bool
	RoleID              int
	RoleName            string
	FailedLoginAttempts int
	LockoutLevel        int
	LockoutUntil        *time.Time
	Version             int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Locked reports whether the account is still inside its lockout window.
// A non-zero LockoutLevel with an elapsed LockoutUntil means the account is
// usable again but keeps its escalation history until a successful login.
func (u *User) Locked(now time.Time) bool {
	return u.LockoutUntil != nil && now.Before(*u.LockoutUntil)
}

type PasswordHistoryEntry struct {
	ID           string
	UserID       string
	PasswordHash string
	CreatedAt    time.Time
}

type TrustedDevice struct {
	ID          string
	UserID      string
	Fingerprint string
	UserAgent   string
	IPAddress   string
	LastSeen    time.Time
	CreatedAt   time.Time
}
