package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/stonemart/internal/models"
)

const shipmentColumns = `id, job_id, COALESCE(order_id, ''), driver_id, vehicle_id, origin, destination, status,
	status_history, current_lat, current_lng, last_location_update, pickup_time, estimated_delivery,
	actual_delivery, items, created_at, updated_at`

func scanShipment(row pgx.Row) (*models.Shipment, error) {
	var (
		s        models.Shipment
		lat, lng *float64
	)
	err := row.Scan(&s.ID, &s.JobID, &s.OrderID, &s.DriverID, &s.VehicleID, &s.Origin, &s.Destination, &s.Status,
		&s.History, &lat, &lng, &s.LastLocationUpdate, &s.PickupTime, &s.EstimatedDelivery,
		&s.ActualDelivery, &s.Items, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		s.CurrentLocation = &models.GeoPoint{Lat: *lat, Lng: *lng}
	}
	return &s, nil
}

func splitPoint(p *models.GeoPoint) (lat, lng any) {
	if p == nil {
		return nil, nil
	}
	return p.Lat, p.Lng
}

func (r *repo) CreateShipment(ctx context.Context, s *models.Shipment) error {
	lat, lng := splitPoint(s.CurrentLocation)
	_, err := r.q.Exec(ctx, `
		INSERT INTO shipments (id, job_id, order_id, driver_id, vehicle_id, origin, destination, status,
			status_history, current_lat, current_lng, last_location_update, pickup_time, estimated_delivery,
			actual_delivery, items, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		s.ID, s.JobID, nullable(s.OrderID), s.DriverID, s.VehicleID, s.Origin, s.Destination, s.Status,
		s.History, lat, lng, s.LastLocationUpdate, s.PickupTime, s.EstimatedDelivery,
		s.ActualDelivery, s.Items, s.CreatedAt, s.UpdatedAt,
	)
	return translate(err, "insert shipment")
}

func (r *repo) GetShipment(ctx context.Context, id string) (*models.Shipment, error) {
	s, err := scanShipment(r.q.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1`, id))
	return s, translate(err, "get shipment")
}

func (r *repo) LockShipment(ctx context.Context, id string) (*models.Shipment, error) {
	s, err := scanShipment(r.q.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1`+r.forUpdate(), id))
	return s, translate(err, "lock shipment")
}

// UpdateShipment leaves the location columns alone; those move only
// through SetShipmentLocation.
func (r *repo) UpdateShipment(ctx context.Context, s *models.Shipment) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE shipments
		SET order_id = $2, vehicle_id = $3, status = $4, status_history = $5, pickup_time = $6,
			estimated_delivery = $7, actual_delivery = $8, items = $9, updated_at = $10
		WHERE id = $1`,
		s.ID, nullable(s.OrderID), s.VehicleID, s.Status, s.History, s.PickupTime,
		s.EstimatedDelivery, s.ActualDelivery, s.Items, s.UpdatedAt,
	)
	return affected(tag, err, "update shipment")
}

func (r *repo) SetShipmentLocation(ctx context.Context, id string, p models.GeoPoint, at time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE shipments
		SET current_lat = $2, current_lng = $3, last_location_update = $4, updated_at = NOW()
		WHERE id = $1 AND (last_location_update IS NULL OR last_location_update <= $4)`,
		id, p.Lat, p.Lng, at,
	)
	if err != nil {
		return false, translate(err, "set shipment location")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) InsertLocationPing(ctx context.Context, p *models.LocationPing) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO location_pings (driver_id, shipment_id, lat, lng, speed, heading, accuracy, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.DriverID, p.ShipmentID, p.Point.Lat, p.Point.Lng, p.Speed, p.Heading, p.Accuracy, p.RecordedAt,
	)
	return translate(err, "insert location ping")
}

func scanPing(row pgx.Row) (*models.LocationPing, error) {
	var p models.LocationPing
	err := row.Scan(&p.DriverID, &p.ShipmentID, &p.Point.Lat, &p.Point.Lng, &p.Speed, &p.Heading, &p.Accuracy, &p.RecordedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) ListLocationPings(ctx context.Context, q models.LocationQuery) ([]models.LocationPing, error) {
	var limit any
	if q.Limit > 0 {
		limit = q.Limit
	}
	rows, err := r.q.Query(ctx, `
		SELECT driver_id, shipment_id, lat, lng, speed, heading, accuracy, recorded_at
		FROM location_pings
		WHERE shipment_id = $1
			AND ($2::timestamptz IS NULL OR recorded_at >= $2)
			AND ($3::timestamptz IS NULL OR recorded_at <= $3)
		ORDER BY recorded_at DESC
		LIMIT $4`, q.ShipmentID, q.From, q.To, limit)
	return collect(rows, err, "list location pings", scanPing)
}

func (r *repo) PruneLocationPings(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM location_pings WHERE recorded_at < $1`, before)
	if err != nil {
		return 0, translate(err, "prune location pings")
	}
	return tag.RowsAffected(), nil
}
