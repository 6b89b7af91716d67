package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/stonemart/internal/models"
)

const listingColumns = `id, seller_id, title, price, quantity, unit, shipping_cost, lead_time_days,
	is_active, is_sold, COALESCE(sold_to, ''), COALESCE(sold_price, 0), sold_at, created_at, updated_at`

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	err := row.Scan(&l.ID, &l.SellerID, &l.Title, &l.Price, &l.Quantity, &l.Unit, &l.ShippingCost, &l.LeadTimeDays,
		&l.IsActive, &l.IsSold, &l.SoldTo, &l.SoldPrice, &l.SoldAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *repo) CreateListing(ctx context.Context, l *models.Listing) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO listings (id, seller_id, title, price, quantity, unit, shipping_cost, lead_time_days,
			is_active, is_sold, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		l.ID, l.SellerID, l.Title, l.Price, l.Quantity, l.Unit, l.ShippingCost, l.LeadTimeDays,
		l.IsActive, l.IsSold, l.CreatedAt, l.UpdatedAt,
	)
	return translate(err, "insert listing")
}

func (r *repo) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	l, err := scanListing(r.q.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
	return l, translate(err, "get listing")
}

func (r *repo) LockListing(ctx context.Context, id string) (*models.Listing, error) {
	l, err := scanListing(r.q.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`+r.forUpdate(), id))
	return l, translate(err, "lock listing")
}

func (r *repo) ListListings(ctx context.Context, activeOnly bool, page models.Page) ([]models.Listing, int, error) {
	limit, offset := limitOffset(page)
	const where = ` WHERE (NOT $1 OR (is_active AND NOT is_sold))`
	rows, err := r.q.Query(ctx, `SELECT `+listingColumns+` FROM listings`+where+`
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, activeOnly, limit, offset)
	listings, err := collect(rows, err, "list listings", scanListing)
	if err != nil {
		return nil, 0, err
	}
	total, err := r.count(ctx, "count listings", `SELECT COUNT(*) FROM listings`+where, activeOnly)
	return listings, total, err
}

func (r *repo) MarkListingSold(ctx context.Context, id string, sale models.Sale) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE listings
		SET is_sold = TRUE, is_active = FALSE, sold_to = $2, sold_price = $3, sold_at = $4, updated_at = $4
		WHERE id = $1 AND is_active AND NOT is_sold`,
		id, sale.BuyerID, sale.Price, sale.At,
	)
	if err != nil {
		return false, translate(err, "mark listing sold")
	}
	return tag.RowsAffected() == 1, nil
}
