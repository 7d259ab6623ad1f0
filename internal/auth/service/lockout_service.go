package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alexizher/onboarding-back-sub000/internal/audit"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
	autherror "github.com/alexizher/onboarding-back-sub000/internal/errors"
	"github.com/alexizher/onboarding-back-sub000/pkg/constant"
)

// lockoutRetries bounds the optimistic-concurrency retry loop. Conflicts only
// happen when the same identity is being mutated concurrently, so a couple of
// rereads is plenty.
const lockoutRetries = 3

var errLockoutConflict = errors.New("lockout state contended beyond retry budget")

// LockoutService drives the per-identity progressive lockout state machine.
// All field mutations go through a version-guarded conditional update so two
// concurrent attempts can never both pass a threshold check.
type LockoutService struct {
	users     domain.UserRepository
	threshold int
	maxLevel  int
	clock     domain.Clock
	auditor   *audit.Dispatcher
}

func NewLockoutService(users domain.UserRepository, threshold, maxLevel int,
	clock domain.Clock, auditor *audit.Dispatcher) *LockoutService {
	return &LockoutService{
		users:     users,
		threshold: threshold,
		maxLevel:  maxLevel,
		clock:     clock,
		auditor:   auditor,
	}
}

// Duration grows as 2^level hours; past the configured max level it is
// pinned to 24h.
func (s *LockoutService) lockoutDuration(level int) time.Duration {
	if level > s.maxLevel {
		return 24 * time.Hour
	}
	return time.Duration(1<<uint(level)) * time.Hour
}

// Check returns an AccountLockedError while the account is inside its
// lockout window. Callers must check before verifying the password.
func (s *LockoutService) Check(user *domain.User) error {
	now := s.clock.Now()
	if user.Locked(now) {
		return &autherror.AccountLockedError{Remaining: user.LockoutUntil.Sub(now)}
	}
	return nil
}

// Message renders the user-facing lockout reason for the login endpoint.
func (s *LockoutService) Message(user *domain.User) string {
	now := s.clock.Now()
	if !user.Locked(now) {
		return ""
	}
	remaining := user.LockoutUntil.Sub(now).Round(time.Minute)
	if remaining < time.Minute {
		remaining = time.Minute
	}
	return fmt.Sprintf("Account temporarily locked. Try again in %s.", remaining)
}

// RegisterFailure advances the state machine after a failed authentication
// attempt. An attempt made while the lockout window is still open escalates;
// otherwise the counter grows until the threshold trips a (re-)lock. The
// escalation level survives window expiry, so a re-lock continues the
// progression rather than starting over.
func (s *LockoutService) RegisterFailure(ctx context.Context, user *domain.User, ip, userAgent string) error {
	for i := 0; i < lockoutRetries; i++ {
		now := s.clock.Now()

		var (
			attempts int
			level    int
			until    *time.Time
		)

		switch {
		case user.Locked(now):
			level = user.LockoutLevel + 1
			t := now.Add(s.lockoutDuration(level))
			until = &t
			attempts = 0
		case user.FailedLoginAttempts+1 >= s.threshold:
			level = user.LockoutLevel + 1
			t := now.Add(s.lockoutDuration(level))
			until = &t
			attempts = 0
		default:
			attempts = user.FailedLoginAttempts + 1
			level = user.LockoutLevel
			until = user.LockoutUntil
		}

		ok, err := s.users.UpdateLockoutState(ctx, user.ID, attempts, level, until, user.Version)
		if err != nil {
			return err
		}
		if ok {
			if until != nil && level != user.LockoutLevel {
				s.auditLock(user, level, *until, ip, userAgent)
			}
			return nil
		}

		// Version moved underneath us; reload and reapply.
		fresh, err := s.users.GetByID(ctx, user.ID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return autherror.ErrInvalidCredentials
		}
		user = fresh
	}
	return errLockoutConflict
}

// RegisterSuccess is the only transition back to a clean ACTIVE state: it
// clears the counter, the escalation level, and the lockout timestamp.
func (s *LockoutService) RegisterSuccess(ctx context.Context, user *domain.User) error {
	if user.FailedLoginAttempts == 0 && user.LockoutLevel == 0 && user.LockoutUntil == nil {
		return nil
	}
	for i := 0; i < lockoutRetries; i++ {
		ok, err := s.users.UpdateLockoutState(ctx, user.ID, 0, 0, nil, user.Version)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		fresh, err := s.users.GetByID(ctx, user.ID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return autherror.ErrInvalidCredentials
		}
		user = fresh
	}
	return errLockoutConflict
}

// Unlock is the administrative escape hatch: unconditional reset, logged with
// the operator identity.
func (s *LockoutService) Unlock(ctx context.Context, userID, operatorID, reason string) error {
	for i := 0; i < lockoutRetries; i++ {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return autherror.ErrInvalidCredentials
		}

		ok, err := s.users.UpdateLockoutState(ctx, userID, 0, 0, nil, user.Version)
		if err != nil {
			return err
		}
		if ok {
			emit(s.auditor, s.clock, userID, constant.EventAccountUnlocked, "", "",
				"manually unlocked by operator "+operatorID+": "+reason, audit.SeverityMedium)
			return nil
		}
	}
	return errLockoutConflict
}

func (s *LockoutService) auditLock(user *domain.User, level int, until time.Time, ip, userAgent string) {
	detail := "level " + strconv.Itoa(level) + ", locked until " + until.UTC().Format(time.RFC3339)
	if level == 1 {
		emit(s.auditor, s.clock, user.ID, constant.EventAccountLocked, ip, userAgent, detail, audit.SeverityHigh)
		return
	}
	emit(s.auditor, s.clock, user.ID, constant.EventLockoutEscalated, ip, userAgent, detail, audit.SeverityCritical)
}
