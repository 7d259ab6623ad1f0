package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
)

type LoginAttemptRepository struct {
	db Querier
}

func NewLoginAttemptRepository(db Querier) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *domain.LoginAttempt) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO login_attempts (id, email, ip_address, user_agent, successful, failure_reason, attempt_time)
		VALUES (gen_random_uuid(), NULLIF($1, ''), $2, $3, $4, NULLIF($5, ''), $6)
	`, attempt.Email, attempt.IPAddress, attempt.UserAgent, attempt.Successful,
		attempt.FailureReason, attempt.AttemptTime)
	return err
}

func (r *LoginAttemptRepository) CountFailedByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM login_attempts
		WHERE ip_address = $1 AND NOT successful AND attempt_time > $2
	`, ip, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed attempts by IP: %w", err)
	}
	return count, nil
}

func (r *LoginAttemptRepository) CountFailedByEmail(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND NOT successful AND attempt_time > $2
	`, email, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed attempts by email: %w", err)
	}
	return count, nil
}

func (r *LoginAttemptRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM login_attempts WHERE attempt_time < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
