package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/stonemart/internal/models"
)

const jobColumns = `id, vendor_id, buyer_id, listing_id, COALESCE(order_id, ''), COALESCE(driver_id, ''),
	COALESCE(shipment_id, ''), origin, destination, pickup_contact, delivery_contact, cargo, price, visible_to,
	status, status_history, notes, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.VendorID, &j.BuyerID, &j.ListingID, &j.OrderID, &j.DriverID,
		&j.ShipmentID, &j.Origin, &j.Destination, &j.PickupContact, &j.DeliveryContact, &j.Cargo, &j.Price, &j.VisibleTo,
		&j.Status, &j.History, &j.Notes, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *repo) CreateJob(ctx context.Context, j *models.Job) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO jobs (id, vendor_id, buyer_id, listing_id, order_id, driver_id, shipment_id, origin, destination,
			pickup_contact, delivery_contact, cargo, price, visible_to, status, status_history, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		j.ID, j.VendorID, j.BuyerID, j.ListingID, nullable(j.OrderID), nullable(j.DriverID), nullable(j.ShipmentID),
		j.Origin, j.Destination, j.PickupContact, j.DeliveryContact, j.Cargo, j.Price, j.VisibleTo,
		j.Status, j.History, j.Notes, j.CreatedAt, j.UpdatedAt,
	)
	return translate(err, "insert job")
}

func (r *repo) GetJob(ctx context.Context, id string) (*models.Job, error) {
	j, err := scanJob(r.q.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	return j, translate(err, "get job")
}

func (r *repo) LockJob(ctx context.Context, id string) (*models.Job, error) {
	j, err := scanJob(r.q.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`+r.forUpdate(), id))
	return j, translate(err, "lock job")
}

func (r *repo) UpdateJob(ctx context.Context, j *models.Job) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE jobs
		SET driver_id = $2, shipment_id = $3, status = $4, status_history = $5, notes = $6, updated_at = $7
		WHERE id = $1`,
		j.ID, nullable(j.DriverID), nullable(j.ShipmentID), j.Status, j.History, j.Notes, j.UpdatedAt,
	)
	return affected(tag, err, "update job")
}

func (r *repo) AssignJob(ctx context.Context, id, driverID string, entry models.JobStatusEntry) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE jobs
		SET driver_id = $2, status = 'assigned', status_history = status_history || jsonb_build_array($3::jsonb),
			updated_at = $4
		WHERE id = $1 AND status = 'open'`,
		id, driverID, entry, entry.UpdatedAt,
	)
	if err != nil {
		return false, translate(err, "assign job")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) ListJobs(ctx context.Context, f models.JobFilter) ([]models.Job, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE ($1 = '' OR vendor_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC`, f.VendorID, string(f.Status))
	return collect(rows, err, "list jobs", scanJob)
}

func (r *repo) ListDriverJobs(ctx context.Context, driverID string) ([]models.Job, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE (status = 'open' AND visible_to = 'all') OR driver_id = $1
		ORDER BY created_at DESC`, driverID)
	return collect(rows, err, "list driver jobs", scanJob)
}
