package domain

import "time"

// SecurityEvent is the persisted form of an audit event. UserID is nil for
// events raised before identity resolution (unknown email, malformed token).
type SecurityEvent struct {
	ID        string
	UserID    *string
	EventType string
	IPAddress string
	UserAgent string
	Detail    string
	Severity  string
	CreatedAt time.Time
}
