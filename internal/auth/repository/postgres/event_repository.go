package postgres

import (
	"context"
	"time"

	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
)

type SecurityEventRepository struct {
	db Querier
}

func NewSecurityEventRepository(db Querier) *SecurityEventRepository {
	return &SecurityEventRepository{db: db}
}

func (r *SecurityEventRepository) Record(ctx context.Context, event *domain.SecurityEvent) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO security_events (id, user_id, event_type, ip_address, user_agent, detail, severity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, event.UserID, event.EventType, event.IPAddress, event.UserAgent,
		event.Detail, event.Severity, event.CreatedAt)
	return err
}

func (r *SecurityEventRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM security_events WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
