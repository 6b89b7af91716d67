package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/stonemart/internal/models"
)

func (r *repo) CreateNotification(ctx context.Context, n *models.Notification) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO notifications (id, user_id, type, title, body, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.UserID, n.Type, n.Title, n.Body, n.Reference, n.CreatedAt,
	)
	return translate(err, "insert notification")
}

func scanNotification(row pgx.Row) (*models.Notification, error) {
	var n models.Notification
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Reference, &n.CreatedAt, &n.ReadAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *repo) ListNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, user_id, type, title, body, reference, created_at, read_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC LIMIT 100`, userID)
	return collect(rows, err, "list notifications", scanNotification)
}

func (r *repo) MarkNotificationRead(ctx context.Context, id, userID string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE notifications SET read_at = NOW()
		WHERE id = $1 AND user_id = $2 AND read_at IS NULL`, id, userID)
	if err != nil {
		return false, translate(err, "mark notification read")
	}
	return tag.RowsAffected() == 1, nil
}

// AppendEvent is idempotent on event id so redelivered events are harmless.
func (r *repo) AppendEvent(ctx context.Context, e *models.Event) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO event_log (id, type, entity_id, actor_id, data, at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.Type, e.EntityID, e.ActorID, e.Data, e.At,
	)
	return translate(err, "append event")
}
