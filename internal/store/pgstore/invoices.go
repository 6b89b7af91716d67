package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/stonemart/internal/models"
)

const invoiceColumns = `id, invoice_number, bid_id, COALESCE(order_id, ''), buyer_id, seller_id, listing_id,
	quantity, unit_price, subtotal, shipping_cost, total_amount, currency, status, notes,
	COALESCE(channel_id, ''), COALESCE(message_id, ''), COALESCE(payment_intent_id, ''), sent_at, paid_at, created_at`

func scanInvoice(row pgx.Row) (*models.Invoice, error) {
	var i models.Invoice
	err := row.Scan(&i.ID, &i.InvoiceNumber, &i.BidID, &i.OrderID, &i.BuyerID, &i.SellerID, &i.ListingID,
		&i.Quantity, &i.UnitPrice, &i.Subtotal, &i.ShippingCost, &i.TotalAmount, &i.Currency, &i.Status, &i.Notes,
		&i.ChannelID, &i.MessageID, &i.PaymentIntentID, &i.SentAt, &i.PaidAt, &i.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *repo) CreateInvoice(ctx context.Context, i *models.Invoice) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO invoices (id, invoice_number, bid_id, order_id, buyer_id, seller_id, listing_id,
			quantity, unit_price, subtotal, shipping_cost, total_amount, currency, status, notes,
			channel_id, message_id, payment_intent_id, sent_at, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		i.ID, i.InvoiceNumber, i.BidID, nullable(i.OrderID), i.BuyerID, i.SellerID, i.ListingID,
		i.Quantity, i.UnitPrice, i.Subtotal, i.ShippingCost, i.TotalAmount, i.Currency, i.Status, i.Notes,
		nullable(i.ChannelID), nullable(i.MessageID), nullable(i.PaymentIntentID), i.SentAt, i.PaidAt, i.CreatedAt,
	)
	return translate(err, "insert invoice")
}

func (r *repo) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	i, err := scanInvoice(r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	return i, translate(err, "get invoice")
}

func (r *repo) UpdateInvoice(ctx context.Context, i *models.Invoice) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE invoices
		SET order_id = $2, status = $3, channel_id = $4, message_id = $5, payment_intent_id = $6, paid_at = $7
		WHERE id = $1`,
		i.ID, nullable(i.OrderID), i.Status, nullable(i.ChannelID), nullable(i.MessageID),
		nullable(i.PaymentIntentID), i.PaidAt,
	)
	return affected(tag, err, "update invoice")
}

func (r *repo) ListInvoicesForBid(ctx context.Context, bidID string) ([]models.Invoice, error) {
	rows, err := r.q.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE bid_id = $1 ORDER BY created_at DESC`, bidID)
	return collect(rows, err, "list invoices", scanInvoice)
}
