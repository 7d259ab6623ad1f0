package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the repositories use. Tests substitute
// a pgxmock pool.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type UserRepository struct {
	db Querier
}

func NewUserRepository(db Querier) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `u.id, u.username, u.email, u.password_hash, u.active, u.role_id, r.name,
		       u.failed_login_attempts, u.lockout_level, u.lockout_until, u.version,
		       u.created_at, u.updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Active,
		&user.RoleID, &user.RoleName, &user.FailedLoginAttempts, &user.LockoutLevel,
		&user.LockoutUntil, &user.Version, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE u.email = $1
		LIMIT 1;
	`
	return scanUser(r.db.QueryRow(ctx, query, email))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1
		LIMIT 1;
	`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO users (id, username, email, password_hash, active, role_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, user.ID, user.Username, user.Email, user.PasswordHash, user.Active, user.RoleID,
		user.CreatedAt, user.UpdatedAt)

	return err
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1
	`, userID, passwordHash)
	return err
}

// UpdateLockoutState performs the optimistic-concurrency-controlled write of
// the lockout fields. It reports false when the row version moved underneath
// the caller, who is expected to re-read and retry.
func (r *UserRepository) UpdateLockoutState(ctx context.Context, userID string, attempts, level int,
	until *time.Time, expectedVersion int) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET failed_login_attempts = $2, lockout_level = $3, lockout_until = $4,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $5
	`, userID, attempts, level, until, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("failed to update lockout state: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *UserRepository) UpsertTrustedDevice(ctx context.Context, userID, fingerprint, userAgent, ip string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO trusted_devices (
			id, user_id, device_fingerprint, user_agent, ip_address, last_seen, created_at
		) VALUES (
			gen_random_uuid(), $1, $2, $3, $4, now(), now()
		)
		ON CONFLICT (user_id, device_fingerprint)
		DO UPDATE SET
			last_seen = now(),
			ip_address = EXCLUDED.ip_address,
			user_agent = EXCLUDED.user_agent
	`, userID, fingerprint, userAgent, ip)
	return err
}

func (r *UserRepository) AppendPasswordHistory(ctx context.Context, userID, passwordHash string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO password_history (id, user_id, password_hash, created_at)
		VALUES (gen_random_uuid(), $1, $2, now())
	`, userID, passwordHash)
	return err
}
