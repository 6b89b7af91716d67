package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/stonemart/internal/models"
)

const disputeColumns = `id, order_id, buyer_id, vendor_id, created_by, channel_id, reason, status,
	COALESCE(resolved_by, ''), resolved_at, created_at, updated_at`

func scanDispute(row pgx.Row) (*models.Dispute, error) {
	var d models.Dispute
	err := row.Scan(&d.ID, &d.OrderID, &d.BuyerID, &d.VendorID, &d.CreatedBy, &d.ChannelID, &d.Reason, &d.Status,
		&d.ResolvedBy, &d.ResolvedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repo) CreateDispute(ctx context.Context, d *models.Dispute) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO disputes (id, order_id, buyer_id, vendor_id, created_by, channel_id, reason, status,
			resolved_by, resolved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		d.ID, d.OrderID, d.BuyerID, d.VendorID, d.CreatedBy, d.ChannelID, d.Reason, d.Status,
		nullable(d.ResolvedBy), d.ResolvedAt, d.CreatedAt, d.UpdatedAt,
	)
	return translate(err, "insert dispute")
}

func (r *repo) GetDispute(ctx context.Context, id string) (*models.Dispute, error) {
	d, err := scanDispute(r.q.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id))
	return d, translate(err, "get dispute")
}

func (r *repo) GetOpenDispute(ctx context.Context, orderID string) (*models.Dispute, error) {
	d, err := scanDispute(r.q.QueryRow(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE order_id = $1 AND status = 'open'`, orderID))
	return d, translate(err, "get open dispute")
}

func (r *repo) SettleDispute(ctx context.Context, d *models.Dispute, from models.DisputeStatus) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE disputes SET status = $2, resolved_by = $3, resolved_at = $4, updated_at = $5
		WHERE id = $1 AND status = $6`,
		d.ID, d.Status, nullable(d.ResolvedBy), d.ResolvedAt, d.UpdatedAt, from,
	)
	if err != nil {
		return false, translate(err, "settle dispute")
	}
	return tag.RowsAffected() == 1, nil
}

const disputeFilter = ` WHERE ($1 = '' OR buyer_id = $1 OR vendor_id = $1 OR created_by = $1)
	AND ($2 = '' OR status = $2)`

func (r *repo) ListDisputes(ctx context.Context, f models.DisputeFilter, page models.Page) ([]models.Dispute, int, error) {
	limit, offset := limitOffset(page)
	args := []any{f.Member, string(f.Status)}

	rows, err := r.q.Query(ctx, `SELECT `+disputeColumns+` FROM disputes`+disputeFilter+`
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`, append(args, limit, offset)...)
	disputes, err := collect(rows, err, "list disputes", scanDispute)
	if err != nil {
		return nil, 0, err
	}
	total, err := r.count(ctx, "count disputes", `SELECT COUNT(*) FROM disputes`+disputeFilter, args...)
	return disputes, total, err
}
