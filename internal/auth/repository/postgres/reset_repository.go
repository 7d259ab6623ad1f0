package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
	"github.com/jackc/pgx/v5"
)

type ResetTokenRepository struct {
	db Querier
}

func NewResetTokenRepository(db Querier) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

func (r *ResetTokenRepository) Store(ctx context.Context, t *domain.PasswordResetToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO password_reset_tokens (id, token, user_id, expires_at, issued_ip, issued_user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.Token, t.UserID, t.ExpiresAt, t.IssuedIP, t.IssuedUserAgent, t.CreatedAt)
	return err
}

func (r *ResetTokenRepository) GetByToken(ctx context.Context, token string) (*domain.PasswordResetToken, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, token, user_id, expires_at, used, used_at, used_from_ip, used_from_agent,
		       failed_attempts, blocked, blocked_reason, cooldown_until, validation_count,
		       issued_ip, issued_user_agent, created_at
		FROM password_reset_tokens
		WHERE token = $1
		LIMIT 1;
	`, token)

	var t domain.PasswordResetToken
	err := row.Scan(&t.ID, &t.Token, &t.UserID, &t.ExpiresAt, &t.Used, &t.UsedAt,
		&t.UsedFromIP, &t.UsedFromAgent, &t.FailedAttempts, &t.Blocked, &t.BlockedReason,
		&t.CooldownUntil, &t.ValidationCount, &t.IssuedIP, &t.IssuedUserAgent, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get reset token: %w", err)
	}

	return &t, nil
}

func (r *ResetTokenRepository) CountIssuedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM password_reset_tokens
		WHERE user_id = $1 AND created_at > $2
	`, userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count issued reset tokens: %w", err)
	}
	return count, nil
}

// InvalidateActiveByUserID force-expires every still-usable token. Used and
// blocked rows are left untouched so their audit trail survives.
func (r *ResetTokenRepository) InvalidateActiveByUserID(ctx context.Context, userID string, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE password_reset_tokens SET expires_at = $2
		WHERE user_id = $1 AND NOT used AND NOT blocked AND expires_at > $2
	`, userID, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *ResetTokenRepository) IncrementValidationCount(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE password_reset_tokens SET validation_count = validation_count + 1 WHERE id = $1
	`, id)
	return err
}

// RegisterFailedAttempt increments and returns the counter in one statement
// so concurrent confirms each observe a distinct value.
func (r *ResetTokenRepository) RegisterFailedAttempt(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.db.QueryRow(ctx, `
		UPDATE password_reset_tokens SET failed_attempts = failed_attempts + 1
		WHERE id = $1
		RETURNING failed_attempts
	`, id).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("failed to register reset attempt: %w", err)
	}
	return attempts, nil
}

func (r *ResetTokenRepository) Block(ctx context.Context, id, reason string, cooldownUntil time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE password_reset_tokens SET blocked = TRUE, blocked_reason = $2, cooldown_until = $3
		WHERE id = $1
	`, id, reason, cooldownUntil)
	return err
}

// MarkUsed claims the token for exactly one consume. The NOT used guard makes
// the claim atomic; a zero row count means another consume won the race.
func (r *ResetTokenRepository) MarkUsed(ctx context.Context, id string, at time.Time, ip, userAgent string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE password_reset_tokens SET used = TRUE, used_at = $2, used_from_ip = $3, used_from_agent = $4
		WHERE id = $1 AND NOT used
	`, id, at, ip, userAgent)
	if err != nil {
		return false, fmt.Errorf("failed to mark reset token used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ResetTokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM password_reset_tokens WHERE expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
