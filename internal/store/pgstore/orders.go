package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/stonemart/internal/models"
)

const orderColumns = `id, order_number, buyer_id, seller_id, listing_id, COALESCE(bid_id, ''), COALESCE(job_id, ''),
	quantity, unit_price, total_amount, shipping_cost, final_amount, shipping_address, payment, delivery, notes,
	status, completion, cancellation, created_at, updated_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.BuyerID, &o.SellerID, &o.ListingID, &o.BidID, &o.JobID,
		&o.Quantity, &o.UnitPrice, &o.TotalAmount, &o.ShippingCost, &o.FinalAmount, &o.ShippingAddress,
		&o.Payment, &o.Delivery, &o.Notes, &o.Status, &o.Completion, &o.Cancellation, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repo) NextOrderSeq(ctx context.Context) (int64, error) {
	var n int64
	err := r.q.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&n)
	return n, translate(err, "next order seq")
}

func (r *repo) CreateOrder(ctx context.Context, o *models.Order) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO orders (id, order_number, buyer_id, seller_id, listing_id, bid_id, job_id,
			quantity, unit_price, total_amount, shipping_cost, final_amount, shipping_address, payment, delivery,
			notes, status, completion, cancellation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		o.ID, o.OrderNumber, o.BuyerID, o.SellerID, o.ListingID, nullable(o.BidID), nullable(o.JobID),
		o.Quantity, o.UnitPrice, o.TotalAmount, o.ShippingCost, o.FinalAmount, o.ShippingAddress, o.Payment, o.Delivery,
		o.Notes, o.Status, o.Completion, o.Cancellation, o.CreatedAt, o.UpdatedAt,
	)
	return translate(err, "insert order")
}

func (r *repo) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	return o, translate(err, "get order")
}

func (r *repo) LockOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`+r.forUpdate(), id))
	return o, translate(err, "lock order")
}

func (r *repo) GetOrderByBid(ctx context.Context, bidID string) (*models.Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE bid_id = $1`, bidID))
	return o, translate(err, "get order by bid")
}

func (r *repo) UpdateOrder(ctx context.Context, o *models.Order) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE orders
		SET job_id = $2, quantity = $3, unit_price = $4, total_amount = $5, shipping_cost = $6, final_amount = $7,
			shipping_address = $8, payment = $9, delivery = $10, notes = $11, status = $12, completion = $13,
			cancellation = $14, updated_at = $15
		WHERE id = $1`,
		o.ID, nullable(o.JobID), o.Quantity, o.UnitPrice, o.TotalAmount, o.ShippingCost, o.FinalAmount,
		o.ShippingAddress, o.Payment, o.Delivery, o.Notes, o.Status, o.Completion,
		o.Cancellation, o.UpdatedAt,
	)
	return affected(tag, err, "update order")
}

const orderFilter = ` WHERE ($1 = '' OR buyer_id = $1)
	AND ($2 = '' OR seller_id = $2)
	AND ($3 = '' OR status = $3)`

func (r *repo) ListOrders(ctx context.Context, f models.OrderFilter, page models.Page) ([]models.Order, int, error) {
	limit, offset := limitOffset(page)
	args := []any{f.BuyerID, f.SellerID, string(f.Status)}

	rows, err := r.q.Query(ctx, `SELECT `+orderColumns+` FROM orders`+orderFilter+`
		ORDER BY created_at DESC LIMIT $4 OFFSET $5`, append(args, limit, offset)...)
	orders, err := collect(rows, err, "list orders", scanOrder)
	if err != nil {
		return nil, 0, err
	}
	total, err := r.count(ctx, "count orders", `SELECT COUNT(*) FROM orders`+orderFilter, args...)
	return orders, total, err
}
