package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
	"github.com/jackc/pgx/v5"
)

type RefreshTokenRepository struct {
	db Querier
}

func NewRefreshTokenRepository(db Querier) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Store(ctx context.Context, rt *domain.RefreshToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, device_fingerprint, ip_address, user_agent, expires_at, created_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rt.ID, rt.UserID, rt.TokenHash, rt.DeviceFingerprint, rt.IPAddress,
		rt.UserAgent, rt.ExpiresAt, rt.CreatedAt, rt.Revoked)
	return err
}

// GetByHash returns the row whatever its state; callers decide between
// revoked and expired. Lookup is only ever by hash, never by raw value.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, token_hash, device_fingerprint, ip_address, user_agent,
		       expires_at, created_at, revoked, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1
		LIMIT 1;
	`, tokenHash)

	var rt domain.RefreshToken
	err := row.Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &rt.DeviceFingerprint, &rt.IPAddress,
		&rt.UserAgent, &rt.ExpiresAt, &rt.CreatedAt, &rt.Revoked, &rt.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get refresh token by hash: %w", err)
	}

	return &rt, nil
}

func (r *RefreshTokenRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND NOT revoked
	`, id, at)
	return err
}

func (r *RefreshTokenRepository) RevokeAllByUserID(ctx context.Context, userID string, at time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND NOT revoked
	`, userID, at)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *RefreshTokenRepository) GetActiveCountByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM refresh_tokens
		WHERE user_id = $1 AND NOT revoked AND expires_at > now()
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active refresh tokens: %w", err)
	}
	return count, nil
}

func (r *RefreshTokenRepository) DeleteOldestByUserID(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM refresh_tokens
		WHERE id = (
			SELECT id FROM refresh_tokens
			WHERE user_id = $1 AND NOT revoked
			ORDER BY created_at ASC
			LIMIT 1
		)
	`, userID)
	return err
}

// RevokeExpired marks expired-but-unrevoked rows revoked for bookkeeping.
func (r *RefreshTokenRepository) RevokeExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $1
		WHERE NOT revoked AND expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

type RevocationRepository struct {
	db Querier
}

func NewRevocationRepository(db Querier) *RevocationRepository {
	return &RevocationRepository{db: db}
}

// Revoke is an idempotent insert keyed by jti.
func (r *RevocationRepository) Revoke(ctx context.Context, entry *domain.RevokedToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO revoked_tokens (token_id, user_id, reason, revoked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_id) DO NOTHING
	`, entry.TokenID, entry.UserID, entry.Reason, entry.RevokedAt)
	return err
}

func (r *RevocationRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_id = $1)
	`, tokenID).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return revoked, nil
}

// DeleteRevokedBefore bounds blacklist storage. Entries older than the
// maximum bearer lifetime guard nothing: those tokens are expired anyway.
func (r *RevocationRepository) DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM revoked_tokens WHERE revoked_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
