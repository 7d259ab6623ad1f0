package domain

import "time"

// LoginAttempt is an append-only record used for sliding-window throttling.
// Email may be empty when the request never carried one.
type LoginAttempt struct {
	ID            string
	Email         string
	IPAddress     string
	UserAgent     string
	Successful    bool
	FailureReason string
	AttemptTime   time.Time
}
