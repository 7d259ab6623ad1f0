package service

import (
	"context"
	"log"
	"time"

	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
)

// blacklistSlack keeps revoked-token rows around a little past the point
// where the bearer itself would have expired, so clock skew between nodes
// cannot resurrect a revoked token.
const blacklistSlack = time.Hour

// Sweeper runs the periodic cleanup passes: expired sessions, expired and
// revoked tokens, stale login attempts, dead reset tokens and audit rows past
// retention. Everything it removes is already inert; sweeping only keeps the
// tables small.
type Sweeper struct {
	sessions    *SessionService
	throttle    *ThrottleService
	resets      *ResetService
	refreshRepo domain.RefreshTokenRepository
	revocations domain.RevocationRepository
	events      domain.SecurityEventRepository

	interval          time.Duration
	accessTokenExpiry time.Duration
	attemptRetention  time.Duration
	eventRetention    time.Duration
	clock             domain.Clock
}

func NewSweeper(sessions *SessionService, throttle *ThrottleService, resets *ResetService,
	refreshRepo domain.RefreshTokenRepository, revocations domain.RevocationRepository,
	events domain.SecurityEventRepository, interval, accessTokenExpiry, attemptRetention,
	eventRetention time.Duration, clock domain.Clock) *Sweeper {
	return &Sweeper{
		sessions:          sessions,
		throttle:          throttle,
		resets:            resets,
		refreshRepo:       refreshRepo,
		revocations:       revocations,
		events:            events,
		interval:          interval,
		accessTokenExpiry: accessTokenExpiry,
		attemptRetention:  attemptRetention,
		eventRetention:    eventRetention,
		clock:             clock,
	}
}

// Run blocks until ctx is cancelled, sweeping every interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep executes a single cleanup pass. Failures in one pass never stop the
// others.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.clock.Now()

	if n, err := s.sessions.SweepExpired(ctx); err != nil {
		log.Printf("warn: session sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("sweeper: deactivated %d expired sessions", n)
	}

	if n, err := s.refreshRepo.RevokeExpired(ctx, now); err != nil {
		log.Printf("warn: refresh token sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("sweeper: revoked %d expired refresh tokens", n)
	}

	if n, err := s.revocations.DeleteRevokedBefore(ctx, now.Add(-(s.accessTokenExpiry + blacklistSlack))); err != nil {
		log.Printf("warn: revocation blacklist sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("sweeper: pruned %d stale blacklist entries", n)
	}

	if n, err := s.throttle.SweepBefore(ctx, s.attemptRetention); err != nil {
		log.Printf("warn: login attempt sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("sweeper: pruned %d old login attempts", n)
	}

	// Reset tokens keep their audit trail (used/blocked flags, counters) for
	// the same horizon as security events before the rows are pruned.
	if n, err := s.resets.SweepExpired(ctx, s.eventRetention); err != nil {
		log.Printf("warn: reset token sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("sweeper: pruned %d dead reset tokens", n)
	}

	if n, err := s.events.DeleteBefore(ctx, now.Add(-s.eventRetention)); err != nil {
		log.Printf("warn: security event sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("sweeper: pruned %d security events past retention", n)
	}
}
