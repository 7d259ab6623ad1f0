package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/alexizher/onboarding-back-sub000/internal/audit"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/dto"
	autherror "github.com/alexizher/onboarding-back-sub000/internal/errors"
	"github.com/alexizher/onboarding-back-sub000/pkg/constant"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// UserService orchestrates the authentication pipeline: throttle → credential
// store → lockout → token issue → session registry → refresh manager, with
// every step feeding the audit sink.
type UserService struct {
	repo         domain.UserRepository
	tokenService TokenGenerator
	sessions     *SessionService
	refresh      *RefreshService
	lockout      *LockoutService
	throttle     *ThrottleService
	resets       *ResetService
	auditor      *audit.Dispatcher
	clock        domain.Clock
}

func NewUserService(repo domain.UserRepository, tokenService TokenGenerator,
	sessions *SessionService, refresh *RefreshService, lockout *LockoutService,
	throttle *ThrottleService, resets *ResetService, auditor *audit.Dispatcher,
	clock domain.Clock) *UserService {
	return &UserService{
		repo:         repo,
		tokenService: tokenService,
		sessions:     sessions,
		refresh:      refresh,
		lockout:      lockout,
		throttle:     throttle,
		resets:       resets,
		auditor:      auditor,
		clock:        clock,
	}
}

func (s *UserService) Register(ctx context.Context, input dto.RegisterInput) (*domain.User, error) {
	existingUser, err := s.repo.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if existingUser != nil {
		return nil, autherror.ErrEmailAlreadyInUse
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()

	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hashedPassword),
		Active:       true,
		RoleID:       constant.DefaultUserRoleID,
		RoleName:     constant.DefaultUserRoleName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// Login runs the full authentication pipeline. The throttle rejects before
// any credential work; the lockout short-circuits before password
// verification; the attempt is recorded whatever the outcome.
func (s *UserService) Login(ctx context.Context, input dto.LoginInput) (*dto.LoginResponse, error) {
	blocked, err := s.throttle.Blocked(ctx, input.IPAddress, input.Email)
	if err != nil {
		return nil, err
	}
	if blocked {
		s.recordFailure(ctx, input, constant.FailureReasonThrottled)
		emit(s.auditor, s.clock, "", constant.EventLoginBlocked, input.IPAddress, input.UserAgent,
			"login rejected by attempt throttle", audit.SeverityHigh)
		return nil, autherror.ErrRateLimited
	}

	user, err := s.repo.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.recordFailure(ctx, input, constant.FailureReasonBadCredentials)
		emit(s.auditor, s.clock, "", constant.EventLoginFailure, input.IPAddress, input.UserAgent,
			"unknown email", audit.SeverityLow)
		return nil, autherror.ErrInvalidCredentials
	}
	if !user.Active {
		s.recordFailure(ctx, input, constant.FailureReasonInactive)
		emit(s.auditor, s.clock, user.ID, constant.EventLoginFailure, input.IPAddress, input.UserAgent,
			"deactivated account", audit.SeverityMedium)
		return nil, autherror.ErrInvalidCredentials
	}

	if lockErr := s.lockout.Check(user); lockErr != nil {
		s.recordFailure(ctx, input, constant.FailureReasonLocked)
		// An attempt against a locked account escalates the lockout.
		if err := s.lockout.RegisterFailure(ctx, user, input.IPAddress, input.UserAgent); err != nil {
			log.Printf("warn: failed to escalate lockout for user %s: %v", user.ID, err)
		}
		return nil, lockErr
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)) != nil {
		s.recordFailure(ctx, input, constant.FailureReasonBadCredentials)
		if err := s.lockout.RegisterFailure(ctx, user, input.IPAddress, input.UserAgent); err != nil {
			log.Printf("warn: failed to register login failure for user %s: %v", user.ID, err)
		}
		emit(s.auditor, s.clock, user.ID, constant.EventLoginFailure, input.IPAddress, input.UserAgent,
			"wrong password", audit.SeverityMedium)
		return nil, autherror.ErrInvalidCredentials
	}

	if err := s.lockout.RegisterSuccess(ctx, user); err != nil {
		return nil, err
	}

	accessToken, _, _, err := s.tokenService.Generate(user)
	if err != nil {
		return nil, err
	}

	if _, err := s.sessions.Create(ctx, user.ID, s.tokenService.Fingerprint(accessToken),
		input.IPAddress, input.UserAgent); err != nil {
		return nil, err
	}

	rawRefresh, _, err := s.refresh.Issue(ctx, user.ID, input.Fingerprint, input.IPAddress, input.UserAgent)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpsertTrustedDevice(ctx, user.ID, input.Fingerprint, input.UserAgent, input.IPAddress); err != nil {
		return nil, err
	}

	// The login already succeeded; losing the attempt record only costs the
	// throttle one data point.
	if err := s.throttle.Record(ctx, input.Email, input.IPAddress, input.UserAgent, true, ""); err != nil {
		log.Printf("warn: failed to record login attempt for %s: %v", input.Email, err)
	}

	emit(s.auditor, s.clock, user.ID, constant.EventLoginSuccess, input.IPAddress, input.UserAgent,
		"", audit.SeverityLow)

	return &dto.LoginResponse{
		Success:      true,
		UserID:       user.ID,
		Email:        user.Email,
		Username:     user.Username,
		Token:        accessToken,
		RefreshToken: rawRefresh,
		TokenType:    constant.DefaultTokenType,
		ExpiresIn:    int(s.tokenService.GetAccessTokenExpiry().Seconds()),
	}, nil
}

// CaptchaRequired is the extra-friction query consumed by the login endpoint.
func (s *UserService) CaptchaRequired(ctx context.Context, ip, email string) (bool, error) {
	return s.throttle.CaptchaRequired(ctx, ip, email)
}

// LockoutMessage renders the user-facing lockout reason, empty when the
// account is not locked.
func (s *UserService) LockoutMessage(ctx context.Context, email string) (string, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil || user == nil {
		return "", err
	}
	return s.lockout.Message(user), nil
}

// Refresh rotates the renewal token and issues a fresh bearer plus session.
func (s *UserService) Refresh(ctx context.Context, input dto.RefreshInput) (*dto.TokenResponse, error) {
	old, err := s.refresh.Validate(ctx, input.RefreshToken)
	if err != nil {
		return nil, err
	}

	if old.DeviceFingerprint != input.Fingerprint {
		emit(s.auditor, s.clock, old.UserID, constant.EventTokenRevoked, input.IPAddress, input.UserAgent,
			"refresh token presented with mismatched device fingerprint", audit.SeverityHigh)
		return nil, autherror.ErrDeviceFingerprintMismatch
	}

	if err := s.refresh.RevokeByID(ctx, old.ID); err != nil {
		return nil, fmt.Errorf("failed to revoke token: %w", err)
	}

	user, err := s.repo.GetByID(ctx, old.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active {
		return nil, autherror.ErrRefreshTokenNotFound
	}

	accessToken, _, _, err := s.tokenService.Generate(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate new tokens: %w", err)
	}

	if _, err := s.sessions.Create(ctx, user.ID, s.tokenService.Fingerprint(accessToken),
		input.IPAddress, input.UserAgent); err != nil {
		return nil, err
	}

	rawRefresh, _, err := s.refresh.Issue(ctx, user.ID, input.Fingerprint, input.IPAddress, input.UserAgent)
	if err != nil {
		return nil, err
	}

	emit(s.auditor, s.clock, user.ID, constant.EventTokenRefreshed, input.IPAddress, input.UserAgent,
		"", audit.SeverityLow)

	return &dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		TokenType:    constant.DefaultTokenType,
		ExpiresIn:    int(s.tokenService.GetAccessTokenExpiry().Seconds()),
	}, nil
}

// Logout blacklists the bearer's jti and deactivates its session.
func (s *UserService) Logout(ctx context.Context, rawToken, ip, userAgent string) error {
	claims, err := s.tokenService.Verify(ctx, rawToken)
	if err != nil {
		return err
	}

	if err := s.tokenService.RevokeID(ctx, claims.ID, claims.UserID, constant.RevocationReasonLogout); err != nil {
		return err
	}

	err = s.sessions.InvalidateByFingerprint(ctx, s.tokenService.Fingerprint(rawToken))
	if err != nil && !errors.Is(err, autherror.ErrSessionNotFound) {
		return err
	}

	emit(s.auditor, s.clock, claims.UserID, constant.EventLogout, ip, userAgent, "", audit.SeverityLow)

	return nil
}

func (s *UserService) Sessions(ctx context.Context, userID string) ([]dto.SessionOutput, error) {
	sessions, err := s.sessions.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]dto.SessionOutput, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, dto.SessionOutput{
			ID:             sess.ID,
			IPAddress:      sess.IPAddress,
			UserAgent:      sess.UserAgent,
			CreatedAt:      sess.CreatedAt,
			ExpiresAt:      sess.ExpiresAt,
			LastActivityAt: sess.LastActivityAt,
		})
	}
	return out, nil
}

// CloseOtherSessions keeps only the session behind the presented bearer.
func (s *UserService) CloseOtherSessions(ctx context.Context, userID, rawToken string) (int, error) {
	return s.sessions.CloseOthers(ctx, userID, s.tokenService.Fingerprint(rawToken))
}

// ChangePassword swaps the hash and revokes every other session and all
// renewal tokens; the presented bearer stays valid.
func (s *UserService) ChangePassword(ctx context.Context, userID, rawToken string, input dto.ChangePasswordInput) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return autherror.ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.CurrentPassword)) != nil {
		emit(s.auditor, s.clock, userID, constant.EventLoginFailure, input.IPAddress, input.UserAgent,
			"password change with wrong current password", audit.SeverityMedium)
		return autherror.ErrInvalidCredentials
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if err := s.repo.UpdatePasswordHash(ctx, userID, string(hashedPassword)); err != nil {
		return err
	}
	if err := s.repo.AppendPasswordHistory(ctx, userID, string(hashedPassword)); err != nil {
		log.Printf("warn: failed to append password history for user %s: %v", userID, err)
	}

	if _, err := s.sessions.CloseOthers(ctx, userID, s.tokenService.Fingerprint(rawToken)); err != nil {
		return err
	}
	if _, err := s.refresh.RevokeAll(ctx, userID); err != nil {
		return err
	}

	emit(s.auditor, s.clock, userID, constant.EventPasswordChanged, input.IPAddress, input.UserAgent,
		"", audit.SeverityMedium)

	return nil
}

// RequestPasswordReset issues a reset token. The raw token is only surfaced
// to non-production callers; the HTTP layer presents a uniform response
// regardless of outcome to prevent account enumeration.
func (s *UserService) RequestPasswordReset(ctx context.Context, input dto.ResetRequestInput) (string, error) {
	return s.resets.Issue(ctx, input.Email, input.IPAddress, input.UserAgent)
}

// ConfirmPasswordReset consumes the token, installs the new password and, as
// a precaution, kills every session and renewal token of the identity.
func (s *UserService) ConfirmPasswordReset(ctx context.Context, input dto.ResetConfirmInput) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	userID, err := s.resets.Consume(ctx, input.Token, string(hashedPassword), input.IPAddress, input.UserAgent)
	if err != nil {
		return err
	}

	if _, err := s.sessions.InvalidateAll(ctx, userID); err != nil {
		return err
	}
	if _, err := s.refresh.RevokeAll(ctx, userID); err != nil {
		return err
	}

	return nil
}

// UnlockAccount is the administrative lockout reset.
func (s *UserService) UnlockAccount(ctx context.Context, userID, operatorID, reason string) error {
	return s.lockout.Unlock(ctx, userID, operatorID, reason)
}

// ForceLogout revokes every session and renewal token of a user.
func (s *UserService) ForceLogout(ctx context.Context, userID, operatorID string) error {
	if _, err := s.sessions.InvalidateAll(ctx, userID); err != nil {
		return err
	}
	if _, err := s.refresh.RevokeAll(ctx, userID); err != nil {
		return err
	}

	emit(s.auditor, s.clock, userID, constant.EventSessionsRevoked, "", "",
		"all sessions revoked by operator "+operatorID, audit.SeverityMedium)

	return nil
}

// RemainingLockout exposes the remaining lockout duration for API responses.
func RemainingLockout(err error) (time.Duration, bool) {
	var locked *autherror.AccountLockedError
	if errors.As(err, &locked) {
		return locked.Remaining, true
	}
	return 0, false
}

func (s *UserService) recordFailure(ctx context.Context, input dto.LoginInput, reason string) {
	if err := s.throttle.Record(ctx, input.Email, input.IPAddress, input.UserAgent, false, reason); err != nil {
		log.Printf("warn: failed to record login attempt for %s: %v", input.Email, err)
	}
}
