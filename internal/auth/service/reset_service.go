package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/alexizher/onboarding-back-sub000/internal/audit"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
	autherror "github.com/alexizher/onboarding-back-sub000/internal/errors"
	"github.com/alexizher/onboarding-back-sub000/pkg/constant"
	"github.com/google/uuid"
)

// ResetService guards the out-of-band password recovery path: single-use,
// rate-limited, self-blocking tokens.
type ResetService struct {
	users             domain.UserRepository
	resets            domain.ResetTokenRepository
	tokenExpiry       time.Duration
	maxPerWindow      int
	issueWindow       time.Duration
	maxFailedAttempts int
	cooldown          time.Duration
	clock             domain.Clock
	auditor           *audit.Dispatcher
}

func NewResetService(users domain.UserRepository, resets domain.ResetTokenRepository,
	tokenExpiry time.Duration, maxPerWindow int, issueWindow time.Duration,
	maxFailedAttempts int, cooldown time.Duration, clock domain.Clock,
	auditor *audit.Dispatcher) *ResetService {
	return &ResetService{
		users:             users,
		resets:            resets,
		tokenExpiry:       tokenExpiry,
		maxPerWindow:      maxPerWindow,
		issueWindow:       issueWindow,
		maxFailedAttempts: maxFailedAttempts,
		cooldown:          cooldown,
		clock:             clock,
		auditor:           auditor,
	}
}

// Issue creates a reset token for the account behind the email. The caller
// must present a uniform response whether or not the email exists; an empty
// token with a nil error means "pretend it worked".
func (s *ResetService) Issue(ctx context.Context, email, ip, userAgent string) (string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user == nil || !user.Active {
		emit(s.auditor, s.clock, "", constant.EventResetDenied, ip, userAgent,
			"reset requested for unknown or inactive email", audit.SeverityLow)
		return "", nil
	}

	now := s.clock.Now()
	issued, err := s.resets.CountIssuedSince(ctx, user.ID, now.Add(-s.issueWindow))
	if err != nil {
		return "", err
	}
	if issued >= s.maxPerWindow {
		emit(s.auditor, s.clock, user.ID, constant.EventResetDenied, ip, userAgent,
			"reset issue rate limit reached", audit.SeverityMedium)
		return "", autherror.ErrResetRateLimited
	}

	// Prior still-valid tokens die the moment a new one is requested.
	if _, err := s.resets.InvalidateActiveByUserID(ctx, user.ID, now); err != nil {
		return "", err
	}

	raw, err := generateRawToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}

	token := &domain.PasswordResetToken{
		ID:              uuid.NewString(),
		Token:           raw,
		UserID:          user.ID,
		ExpiresAt:       now.Add(s.tokenExpiry),
		IssuedIP:        ip,
		IssuedUserAgent: userAgent,
		CreatedAt:       now,
	}
	if err := s.resets.Store(ctx, token); err != nil {
		return "", err
	}

	emit(s.auditor, s.clock, user.ID, constant.EventResetRequested, ip, userAgent, "", audit.SeverityLow)

	return raw, nil
}

// Validate checks a token without consuming it. Every call bumps the
// validation counter. An IP or user-agent different from issuance is logged
// as suspicious but does not fail validation.
func (s *ResetService) Validate(ctx context.Context, raw, ip, userAgent string) (*domain.PasswordResetToken, error) {
	token, err := s.resets.GetByToken(ctx, raw)
	if err != nil {
		return nil, err
	}
	if token == nil {
		emit(s.auditor, s.clock, "", constant.EventResetDenied, ip, userAgent,
			"unknown reset token presented", audit.SeverityMedium)
		return nil, autherror.ErrResetTokenInvalid
	}

	if err := s.resets.IncrementValidationCount(ctx, token.ID); err != nil {
		log.Printf("warn: failed to bump validation counter for reset token %s: %v", token.ID, err)
	}

	if err := s.tokenState(token); err != nil {
		return nil, err
	}

	if ip != token.IssuedIP || userAgent != token.IssuedUserAgent {
		emit(s.auditor, s.clock, token.UserID, constant.EventSuspiciousReset, ip, userAgent,
			"reset token presented from a different origin than issuance", audit.SeverityMedium)
	}

	return token, nil
}

// Consume redeems the token and swaps in the new password hash. Repeated
// failures block the token and, as a precaution, kill every outstanding reset
// token for the identity.
func (s *ResetService) Consume(ctx context.Context, raw, newPasswordHash, ip, userAgent string) (string, error) {
	token, err := s.resets.GetByToken(ctx, raw)
	if err != nil {
		return "", err
	}
	if token == nil {
		emit(s.auditor, s.clock, "", constant.EventResetDenied, ip, userAgent,
			"unknown reset token presented for consumption", audit.SeverityMedium)
		return "", autherror.ErrResetTokenInvalid
	}

	if stateErr := s.tokenState(token); stateErr != nil {
		if err := s.punishFailure(ctx, token, ip, userAgent); err != nil {
			return "", err
		}
		return "", stateErr
	}

	now := s.clock.Now()
	claimed, err := s.resets.MarkUsed(ctx, token.ID, now, ip, userAgent)
	if err != nil {
		return "", err
	}
	if !claimed {
		// Another consume won the conditional update between our read and the
		// claim; the password hash must not be touched.
		emit(s.auditor, s.clock, token.UserID, constant.EventResetDenied, ip, userAgent,
			"reset token consumed concurrently", audit.SeverityHigh)
		return "", autherror.ErrResetTokenInvalid
	}
	// Sibling tokens become worthless the moment one is redeemed.
	if _, err := s.resets.InvalidateActiveByUserID(ctx, token.UserID, now); err != nil {
		return "", err
	}

	if err := s.users.UpdatePasswordHash(ctx, token.UserID, newPasswordHash); err != nil {
		return "", err
	}
	if err := s.users.AppendPasswordHistory(ctx, token.UserID, newPasswordHash); err != nil {
		log.Printf("warn: failed to append password history for user %s: %v", token.UserID, err)
	}

	emit(s.auditor, s.clock, token.UserID, constant.EventResetConsumed, ip, userAgent, "", audit.SeverityMedium)

	return token.UserID, nil
}

// SweepExpired removes rows whose expiry is past the retention horizon.
func (s *ResetService) SweepExpired(ctx context.Context, retention time.Duration) (int, error) {
	return s.resets.DeleteExpiredBefore(ctx, s.clock.Now().Add(-retention))
}

// tokenState maps a token's flags to the error taxonomy. Used and blocked
// are permanent; cooldown and expiry are time-driven.
func (s *ResetService) tokenState(token *domain.PasswordResetToken) error {
	now := s.clock.Now()
	switch {
	case token.Blocked && token.CoolingDown(now):
		return autherror.ErrResetTokenCooldown
	case token.Blocked:
		return autherror.ErrResetTokenBlocked
	case token.Used:
		return autherror.ErrResetTokenInvalid
	case token.Expired(now):
		return autherror.ErrResetTokenInvalid
	}
	return nil
}

func (s *ResetService) punishFailure(ctx context.Context, token *domain.PasswordResetToken, ip, userAgent string) error {
	if token.Blocked || token.Used {
		return nil
	}

	failures, err := s.resets.RegisterFailedAttempt(ctx, token.ID)
	if err != nil {
		return err
	}
	if failures < s.maxFailedAttempts {
		return nil
	}

	now := s.clock.Now()
	if err := s.resets.Block(ctx, token.ID, "too many failed confirmation attempts", now.Add(s.cooldown)); err != nil {
		return err
	}
	if _, err := s.resets.InvalidateActiveByUserID(ctx, token.UserID, now); err != nil {
		return err
	}

	emit(s.auditor, s.clock, token.UserID, constant.EventResetBlocked, ip, userAgent,
		"reset token blocked after repeated failed confirmations", audit.SeverityHigh)

	return nil
}
