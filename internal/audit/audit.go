package audit

import (
	"context"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Event is one security-relevant occurrence. UserID is empty when the event
// precedes identity resolution (unknown email, malformed token).
type Event struct {
	UserID    string
	Type      string
	IPAddress string
	UserAgent string
	Detail    string
	Severity  Severity
	At        time.Time
}

// Sink receives dispatched events. Implementations must tolerate concurrent
// calls from the dispatcher goroutine only.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}
