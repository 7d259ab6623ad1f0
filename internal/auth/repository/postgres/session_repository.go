package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
	"github.com/jackc/pgx/v5"
)

type SessionRepository struct {
	db Querier
}

func NewSessionRepository(db Querier) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, token_fingerprint, ip_address, user_agent, active,
		       created_at, expires_at, last_activity_at`

// CreateEnforcingCap inserts the session inside a transaction that locks the
// identity row first, so two concurrent logins for the same user cannot both
// pass the count check. Overflow deactivates every prior active session.
func (r *SessionRepository) CreateEnforcingCap(ctx context.Context, session *domain.Session, maxActive int) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin session transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var version int
	err = tx.QueryRow(ctx, `SELECT version FROM users WHERE id = $1 FOR UPDATE`, session.UserID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to lock user row: %w", err)
	}

	var active int
	err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE user_id = $1 AND active`, session.UserID).Scan(&active)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}

	deactivated := 0
	if active >= maxActive {
		tag, err := tx.Exec(ctx, `UPDATE sessions SET active = FALSE WHERE user_id = $1 AND active`, session.UserID)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate overflowing sessions: %w", err)
		}
		deactivated = int(tag.RowsAffected())
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (id, user_id, token_fingerprint, ip_address, user_agent, active, created_at, expires_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, session.ID, session.UserID, session.TokenFingerprint, session.IPAddress, session.UserAgent,
		session.Active, session.CreatedAt, session.ExpiresAt, session.LastActivityAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit session transaction: %w", err)
	}

	return deactivated, nil
}

func (r *SessionRepository) GetActiveByFingerprint(ctx context.Context, fingerprint string) (*domain.Session, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE token_fingerprint = $1 AND active
		LIMIT 1;
	`, fingerprint)

	var s domain.Session
	err := row.Scan(&s.ID, &s.UserID, &s.TokenFingerprint, &s.IPAddress, &s.UserAgent,
		&s.Active, &s.CreatedAt, &s.ExpiresAt, &s.LastActivityAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session by fingerprint: %w", err)
	}

	return &s, nil
}

func (r *SessionRepository) GetActiveByUserID(ctx context.Context, userID string) ([]domain.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1 AND active
		ORDER BY created_at DESC;
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.TokenFingerprint, &s.IPAddress, &s.UserAgent,
			&s.Active, &s.CreatedAt, &s.ExpiresAt, &s.LastActivityAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

func (r *SessionRepository) Touch(ctx context.Context, sessionID string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE sessions SET last_activity_at = $2 WHERE id = $1
	`, sessionID, at)
	return err
}

func (r *SessionRepository) Deactivate(ctx context.Context, sessionID, userID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions SET active = FALSE WHERE id = $1 AND user_id = $2 AND active
	`, sessionID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *SessionRepository) DeactivateAll(ctx context.Context, userID string) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions SET active = FALSE WHERE user_id = $1 AND active
	`, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *SessionRepository) DeactivateOthers(ctx context.Context, userID, keepFingerprint string) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions SET active = FALSE
		WHERE user_id = $1 AND active AND token_fingerprint <> $2
	`, userID, keepFingerprint)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// DeactivateExpired is the sweep: absolute expiry and inactivity are both
// evaluated against the passed instant so tests can pin the clock.
func (r *SessionRepository) DeactivateExpired(ctx context.Context, now time.Time, inactivityTimeout time.Duration) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions SET active = FALSE
		WHERE active AND (expires_at < $1 OR last_activity_at < $2)
	`, now, now.Add(-inactivityTimeout))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
