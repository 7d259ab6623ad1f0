package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alexizher/onboarding-back-sub000/internal/audit"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
	autherror "github.com/alexizher/onboarding-back-sub000/internal/errors"
	"github.com/alexizher/onboarding-back-sub000/internal/notify"
	"github.com/alexizher/onboarding-back-sub000/pkg/constant"
	"github.com/google/uuid"
)

// SessionService is the registry of live device sessions per identity.
type SessionService struct {
	sessions          domain.SessionRepository
	maxConcurrent     int
	absoluteLifetime  time.Duration
	inactivityTimeout time.Duration
	clock             domain.Clock
	auditor           *audit.Dispatcher
	bus               notify.Publisher
}

func NewSessionService(sessions domain.SessionRepository, maxConcurrent int,
	absoluteLifetime, inactivityTimeout time.Duration, clock domain.Clock,
	auditor *audit.Dispatcher, bus notify.Publisher) *SessionService {
	return &SessionService{
		sessions:          sessions,
		maxConcurrent:     maxConcurrent,
		absoluteLifetime:  absoluteLifetime,
		inactivityTimeout: inactivityTimeout,
		clock:             clock,
		auditor:           auditor,
		bus:               bus,
	}
}

// Create registers a session for a freshly issued bearer token. When the
// identity is at the concurrency cap, every prior active session is revoked
// before the new one is created.
func (s *SessionService) Create(ctx context.Context, userID, tokenFingerprint, ip, userAgent string) (*domain.Session, error) {
	now := s.clock.Now()
	session := &domain.Session{
		ID:               uuid.NewString(),
		UserID:           userID,
		TokenFingerprint: tokenFingerprint,
		IPAddress:        ip,
		UserAgent:        userAgent,
		Active:           true,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.absoluteLifetime),
		LastActivityAt:   now,
	}

	deactivated, err := s.sessions.CreateEnforcingCap(ctx, session, s.maxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if deactivated > 0 {
		emit(s.auditor, s.clock, userID, constant.EventSessionsRevoked, ip, userAgent,
			"session cap reached, revoked "+strconv.Itoa(deactivated)+" prior sessions", audit.SeverityMedium)
		s.publish(userID, "", notify.KindForcedLogout)
	}
	emit(s.auditor, s.clock, userID, constant.EventSessionCreated, ip, userAgent, "", audit.SeverityLow)
	s.publish(userID, session.ID, notify.KindSessionCreated)

	return session, nil
}

// Validate checks a presented token's session and refreshes its activity
// timestamp. An inactivity breach deactivates the session on the spot.
func (s *SessionService) Validate(ctx context.Context, tokenFingerprint string) (*domain.Session, error) {
	session, err := s.sessions.GetActiveByFingerprint(ctx, tokenFingerprint)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, autherror.ErrSessionNotFound
	}

	now := s.clock.Now()
	if now.After(session.ExpiresAt) || now.After(session.LastActivityAt.Add(s.inactivityTimeout)) {
		if err := s.sessions.Deactivate(ctx, session.ID, session.UserID); err != nil {
			return nil, err
		}
		s.publish(session.UserID, session.ID, notify.KindSessionRevoked)
		return nil, autherror.ErrSessionNotFound
	}

	if err := s.sessions.Touch(ctx, session.ID, now); err != nil {
		return nil, err
	}
	session.LastActivityAt = now

	return session, nil
}

func (s *SessionService) List(ctx context.Context, userID string) ([]domain.Session, error) {
	return s.sessions.GetActiveByUserID(ctx, userID)
}

func (s *SessionService) Invalidate(ctx context.Context, sessionID, userID string) error {
	if err := s.sessions.Deactivate(ctx, sessionID, userID); err != nil {
		return autherror.ErrSessionNotFound
	}
	s.publish(userID, sessionID, notify.KindSessionRevoked)
	return nil
}

func (s *SessionService) InvalidateByFingerprint(ctx context.Context, tokenFingerprint string) error {
	session, err := s.sessions.GetActiveByFingerprint(ctx, tokenFingerprint)
	if err != nil {
		return err
	}
	if session == nil {
		return autherror.ErrSessionNotFound
	}
	return s.Invalidate(ctx, session.ID, session.UserID)
}

func (s *SessionService) InvalidateAll(ctx context.Context, userID string) (int, error) {
	n, err := s.sessions.DeactivateAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.publish(userID, "", notify.KindForcedLogout)
	}
	return n, nil
}

// CloseOthers keeps only the session behind the given fingerprint.
func (s *SessionService) CloseOthers(ctx context.Context, userID, keepFingerprint string) (int, error) {
	n, err := s.sessions.DeactivateOthers(ctx, userID, keepFingerprint)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.publish(userID, "", notify.KindForcedLogout)
	}
	return n, nil
}

// SweepExpired deactivates sessions past absolute expiry or the inactivity
// threshold, independent of validation traffic.
func (s *SessionService) SweepExpired(ctx context.Context) (int, error) {
	return s.sessions.DeactivateExpired(ctx, s.clock.Now(), s.inactivityTimeout)
}

func (s *SessionService) publish(userID, sessionID, kind string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(notify.Message{
		UserID:    userID,
		SessionID: sessionID,
		Kind:      kind,
		At:        s.clock.Now(),
	})
}
