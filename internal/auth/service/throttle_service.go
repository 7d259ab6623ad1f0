package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
)

// ThrottleService aggregates login outcomes over a trailing window, keyed by
// IP and by email. It is deliberately independent of account lockout: it
// defends against distributed brute force, not single-account abuse.
type ThrottleService struct {
	attempts            domain.LoginAttemptRepository
	window              time.Duration
	captchaThreshold    int
	ipBlockThreshold    int
	emailBlockThreshold int
	clock               domain.Clock
}

func NewThrottleService(attempts domain.LoginAttemptRepository, window time.Duration,
	captchaThreshold, ipBlockThreshold, emailBlockThreshold int, clock domain.Clock) *ThrottleService {
	return &ThrottleService{
		attempts:            attempts,
		window:              window,
		captchaThreshold:    captchaThreshold,
		ipBlockThreshold:    ipBlockThreshold,
		emailBlockThreshold: emailBlockThreshold,
		clock:               clock,
	}
}

// Record appends a login outcome. Recording must happen for every attempt,
// whatever the result.
func (s *ThrottleService) Record(ctx context.Context, email, ip, userAgent string, success bool, failureReason string) error {
	return s.attempts.Record(ctx, &domain.LoginAttempt{
		Email:         email,
		IPAddress:     ip,
		UserAgent:     userAgent,
		Successful:    success,
		FailureReason: failureReason,
		AttemptTime:   s.clock.Now(),
	})
}

// CaptchaRequired reports whether either dimension crossed the low threshold
// inside the window.
func (s *ThrottleService) CaptchaRequired(ctx context.Context, ip, email string) (bool, error) {
	since := s.clock.Now().Add(-s.window)

	ipCount, err := s.attempts.CountFailedByIP(ctx, ip, since)
	if err != nil {
		return false, fmt.Errorf("failed to check login attempts: %w", err)
	}
	if ipCount >= s.captchaThreshold {
		return true, nil
	}

	if email == "" {
		return false, nil
	}
	emailCount, err := s.attempts.CountFailedByEmail(ctx, email, since)
	if err != nil {
		return false, fmt.Errorf("failed to check login attempts: %w", err)
	}
	return emailCount >= s.captchaThreshold, nil
}

// Blocked reports whether the IP or the email crossed its block threshold in
// the window. A blocked request must be rejected before any credential check.
func (s *ThrottleService) Blocked(ctx context.Context, ip, email string) (bool, error) {
	since := s.clock.Now().Add(-s.window)

	ipCount, err := s.attempts.CountFailedByIP(ctx, ip, since)
	if err != nil {
		return false, fmt.Errorf("failed to check login attempts: %w", err)
	}
	if ipCount >= s.ipBlockThreshold {
		return true, nil
	}

	if email == "" {
		return false, nil
	}
	emailCount, err := s.attempts.CountFailedByEmail(ctx, email, since)
	if err != nil {
		return false, fmt.Errorf("failed to check login attempts: %w", err)
	}
	return emailCount >= s.emailBlockThreshold, nil
}

// SweepBefore prunes attempt records past the retention horizon.
func (s *ThrottleService) SweepBefore(ctx context.Context, retention time.Duration) (int, error) {
	return s.attempts.DeleteBefore(ctx, s.clock.Now().Add(-retention))
}
