package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/stonemart/internal/models"
)

const channelColumns = `c.id, c.name, c.kind, c.created_at,
	ARRAY(SELECT m.user_id FROM channel_members m WHERE m.channel_id = c.id ORDER BY m.user_id)`

func scanChannel(row pgx.Row) (*models.Channel, error) {
	var c models.Channel
	if err := row.Scan(&c.ID, &c.Name, &c.Kind, &c.CreatedAt, &c.Members); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateChannel writes the channel and its member rows in one statement.
func (r *repo) CreateChannel(ctx context.Context, c *models.Channel) error {
	_, err := r.q.Exec(ctx, `
		WITH ch AS (
			INSERT INTO channels (id, name, kind, created_at) VALUES ($1, $2, $3, $4) RETURNING id
		)
		INSERT INTO channel_members (channel_id, user_id)
		SELECT ch.id, member FROM ch, unnest($5::text[]) AS member`,
		c.ID, c.Name, c.Kind, c.CreatedAt, c.Members,
	)
	return translate(err, "insert channel")
}

func (r *repo) GetChannel(ctx context.Context, id string) (*models.Channel, error) {
	c, err := scanChannel(r.q.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels c WHERE c.id = $1`, id))
	return c, translate(err, "get channel")
}

func (r *repo) FindDirectChannel(ctx context.Context, a, b string) (*models.Channel, error) {
	c, err := scanChannel(r.q.QueryRow(ctx, `
		SELECT `+channelColumns+` FROM channels c
		WHERE c.kind = 'direct'
			AND (SELECT COUNT(*) FROM channel_members m WHERE m.channel_id = c.id) = 2
			AND EXISTS (SELECT 1 FROM channel_members m WHERE m.channel_id = c.id AND m.user_id = $1)
			AND EXISTS (SELECT 1 FROM channel_members m WHERE m.channel_id = c.id AND m.user_id = $2)
		ORDER BY c.created_at
		LIMIT 1`, a, b))
	return c, translate(err, "find direct channel")
}

func (r *repo) CreateMessage(ctx context.Context, m *models.Message) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO messages (id, channel_id, sender_id, kind, text, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ChannelID, m.SenderID, m.Kind, m.Text, m.Metadata, m.CreatedAt,
	)
	return translate(err, "insert message")
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	if err := row.Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.Kind, &m.Text, &m.Metadata, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repo) ListMessages(ctx context.Context, channelID string, page models.Page) ([]models.Message, error) {
	limit, offset := limitOffset(page)
	rows, err := r.q.Query(ctx, `
		SELECT id, channel_id, sender_id, kind, text, metadata, created_at
		FROM messages WHERE channel_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, channelID, limit, offset)
	return collect(rows, err, "list messages", scanMessage)
}
