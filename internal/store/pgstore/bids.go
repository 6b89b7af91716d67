package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/stonemart/internal/models"
)

const bidColumns = `id, bidder_id, listing_id, seller_id, amount, quantity, message, status, seller_response,
	awaiting_action, COALESCE(invoice_id, ''), valid_until, created_at, updated_at`

func scanBid(row pgx.Row) (*models.Bid, error) {
	var b models.Bid
	err := row.Scan(&b.ID, &b.BidderID, &b.ListingID, &b.SellerID, &b.Amount, &b.Quantity, &b.Message, &b.Status,
		&b.SellerResponse, &b.AwaitingAction, &b.InvoiceID, &b.ValidUntil, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) CreateBid(ctx context.Context, b *models.Bid) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO bids (id, bidder_id, listing_id, seller_id, amount, quantity, message, status,
			seller_response, awaiting_action, invoice_id, valid_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		b.ID, b.BidderID, b.ListingID, b.SellerID, b.Amount, b.Quantity, b.Message, b.Status,
		b.SellerResponse, b.AwaitingAction, nullable(b.InvoiceID), b.ValidUntil, b.CreatedAt, b.UpdatedAt,
	)
	return translate(err, "insert bid")
}

func (r *repo) GetBid(ctx context.Context, id string) (*models.Bid, error) {
	b, err := scanBid(r.q.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, id))
	return b, translate(err, "get bid")
}

func (r *repo) LockBid(ctx context.Context, id string) (*models.Bid, error) {
	b, err := scanBid(r.q.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`+r.forUpdate(), id))
	return b, translate(err, "lock bid")
}

func (r *repo) UpdateBid(ctx context.Context, b *models.Bid) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE bids
		SET amount = $2, quantity = $3, message = $4, status = $5, seller_response = $6,
			awaiting_action = $7, invoice_id = $8, valid_until = $9, updated_at = $10
		WHERE id = $1`,
		b.ID, b.Amount, b.Quantity, b.Message, b.Status, b.SellerResponse,
		b.AwaitingAction, nullable(b.InvoiceID), b.ValidUntil, b.UpdatedAt,
	)
	return affected(tag, err, "update bid")
}

func (r *repo) HasPendingBid(ctx context.Context, bidderID, listingID string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bids WHERE bidder_id = $1 AND listing_id = $2 AND status = 'pending'
		)`, bidderID, listingID).Scan(&exists)
	return exists, translate(err, "has pending bid")
}

const bidFilter = ` WHERE ($1 = '' OR bidder_id = $1)
	AND ($2 = '' OR seller_id = $2)
	AND ($3 = '' OR listing_id = $3)
	AND ($4 = '' OR status = $4)`

func (r *repo) ListBids(ctx context.Context, f models.BidFilter, page models.Page) ([]models.Bid, int, error) {
	limit, offset := limitOffset(page)
	args := []any{f.BidderID, f.SellerID, f.ListingID, string(f.Status)}

	rows, err := r.q.Query(ctx, `SELECT `+bidColumns+` FROM bids`+bidFilter+`
		ORDER BY created_at DESC LIMIT $5 OFFSET $6`, append(args, limit, offset)...)
	bids, err := collect(rows, err, "list bids", scanBid)
	if err != nil {
		return nil, 0, err
	}
	total, err := r.count(ctx, "count bids", `SELECT COUNT(*) FROM bids`+bidFilter, args...)
	return bids, total, err
}

func (r *repo) RejectPendingBids(ctx context.Context, listingID, exceptID string, resp models.SellerResponse) ([]models.Bid, error) {
	rows, err := r.q.Query(ctx, `
		UPDATE bids
		SET status = 'rejected', seller_response = $3, awaiting_action = '', updated_at = $4
		WHERE listing_id = $1 AND id <> $2 AND status = 'pending'
		RETURNING `+bidColumns,
		listingID, exceptID, resp, resp.RespondedAt,
	)
	return collect(rows, err, "reject pending bids", scanBid)
}

func (r *repo) ExpireBids(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE bids SET status = 'expired', awaiting_action = '', updated_at = $1
		WHERE status = 'pending' AND valid_until < $1`, now)
	if err != nil {
		return 0, translate(err, "expire bids")
	}
	return int(tag.RowsAffected()), nil
}
