package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
	autherror "github.com/alexizher/onboarding-back-sub000/internal/errors"
	"github.com/google/uuid"
)

// RefreshService issues and validates renewal tokens. Only the keyed digest
// of a token is ever stored; lookup is always by hash.
type RefreshService struct {
	tokens    domain.RefreshTokenRepository
	hashKey   []byte
	expiry    time.Duration
	maxActive int
	clock     domain.Clock
}

func NewRefreshService(tokens domain.RefreshTokenRepository, hashKey string,
	expiry time.Duration, maxActive int, clock domain.Clock) *RefreshService {
	return &RefreshService{
		tokens:    tokens,
		hashKey:   []byte(hashKey),
		expiry:    expiry,
		maxActive: maxActive,
		clock:     clock,
	}
}

// generateRawToken returns a random Base64URL token (32 bytes).
func generateRawToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *RefreshService) hash(raw string) string {
	mac := hmac.New(sha256.New, s.hashKey)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// Issue creates a renewal token and returns the raw value exactly once.
func (s *RefreshService) Issue(ctx context.Context, userID, deviceFingerprint, ip, userAgent string) (string, *domain.RefreshToken, error) {
	raw, err := generateRawToken()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := s.clock.Now()
	rt := &domain.RefreshToken{
		ID:                uuid.NewString(),
		UserID:            userID,
		TokenHash:         s.hash(raw),
		DeviceFingerprint: deviceFingerprint,
		IPAddress:         ip,
		UserAgent:         userAgent,
		ExpiresAt:         now.Add(s.expiry),
		CreatedAt:         now,
		Revoked:           false,
	}

	if err := s.tokens.Store(ctx, rt); err != nil {
		return "", nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	// Keep the per-user active set bounded; losing the oldest token only
	// forces an extra login on that device.
	activeCount, err := s.tokens.GetActiveCountByUserID(ctx, userID)
	if err == nil && activeCount > s.maxActive {
		if err := s.tokens.DeleteOldestByUserID(ctx, userID); err != nil {
			log.Printf("warn: failed to delete oldest refresh token for user %s: %v", userID, err)
		}
	}

	return raw, rt, nil
}

// Validate re-hashes and looks up by hash, failing closed on anything but a
// live row.
func (s *RefreshService) Validate(ctx context.Context, raw string) (*domain.RefreshToken, error) {
	rt, err := s.tokens.GetByHash(ctx, s.hash(raw))
	if err != nil {
		return nil, err
	}
	if rt == nil {
		return nil, autherror.ErrRefreshTokenNotFound
	}
	if rt.Revoked {
		return nil, autherror.ErrRefreshTokenRevoked
	}
	if s.clock.Now().After(rt.ExpiresAt) {
		return nil, autherror.ErrRefreshTokenExpired
	}
	return rt, nil
}

func (s *RefreshService) Revoke(ctx context.Context, raw string) error {
	rt, err := s.tokens.GetByHash(ctx, s.hash(raw))
	if err != nil {
		return err
	}
	if rt == nil {
		return autherror.ErrRefreshTokenNotFound
	}
	return s.tokens.Revoke(ctx, rt.ID, s.clock.Now())
}

func (s *RefreshService) RevokeByID(ctx context.Context, id string) error {
	return s.tokens.Revoke(ctx, id, s.clock.Now())
}

// RevokeAll is the security-incident response: every outstanding renewal
// token for the identity dies at once.
func (s *RefreshService) RevokeAll(ctx context.Context, userID string) (int, error) {
	return s.tokens.RevokeAllByUserID(ctx, userID, s.clock.Now())
}
