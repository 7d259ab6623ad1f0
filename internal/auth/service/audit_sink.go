package service

import (
	"context"
	"log"

	"github.com/alexizher/onboarding-back-sub000/internal/audit"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
	"github.com/google/uuid"
)

// PersistedSink writes dispatched audit events to the security_events table.
type PersistedSink struct {
	events domain.SecurityEventRepository
	clock  domain.Clock
}

func NewPersistedSink(events domain.SecurityEventRepository, clock domain.Clock) *PersistedSink {
	return &PersistedSink{events: events, clock: clock}
}

func (s *PersistedSink) Emit(ctx context.Context, event audit.Event) {
	record := &domain.SecurityEvent{
		ID:        uuid.NewString(),
		EventType: event.Type,
		IPAddress: event.IPAddress,
		UserAgent: event.UserAgent,
		Detail:    event.Detail,
		Severity:  string(event.Severity),
		CreatedAt: event.At,
	}
	if event.UserID != "" {
		userID := event.UserID
		record.UserID = &userID
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.clock.Now()
	}

	// Audit persistence must never take down the flow that emitted the event.
	if err := s.events.Record(ctx, record); err != nil {
		log.Printf("warn: failed to persist security event %s: %v", event.Type, err)
	}
}

func emit(d *audit.Dispatcher, clock domain.Clock, userID, eventType, ip, userAgent, detail string, severity audit.Severity) {
	d.Emit(context.Background(), audit.Event{
		UserID:    userID,
		Type:      eventType,
		IPAddress: ip,
		UserAgent: userAgent,
		Detail:    detail,
		Severity:  severity,
		At:        clock.Now(),
	})
}
