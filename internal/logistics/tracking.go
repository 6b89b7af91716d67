package logistics

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/authz"
	"github.com/sudo-init-do/stonemart/internal/events"
	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store"
)

// maxClockSkew bounds how far in the future a device timestamp may be.
const maxClockSkew = time.Minute

type LocationInput struct {
	ShipmentID string     `json:"shipmentId"`
	Latitude   *float64   `json:"latitude"`
	Longitude  *float64   `json:"longitude"`
	Speed      *float64   `json:"speed"`
	Heading    *float64   `json:"heading"`
	Accuracy   *float64   `json:"accuracy"`
	RecordedAt *time.Time `json:"timestamp"`
}

// ReportLocation records a driver position. The shipment's current location
// follows the newest timestamp seen, whatever order pings arrive in.
func (s *Service) ReportLocation(ctx context.Context, actor models.Actor, in LocationInput) (*models.LocationPing, error) {
	if err := authz.Require(actor, authz.LocationReport); err != nil {
		return nil, err
	}
	if in.ShipmentID == "" || in.Latitude == nil || in.Longitude == nil {
		return nil, apperr.Invalid("shipmentId, latitude and longitude are required")
	}
	point := models.GeoPoint{Lat: *in.Latitude, Lng: *in.Longitude}
	if !point.Valid() {
		return nil, apperr.Invalid("Invalid coordinates")
	}

	sh, err := loadShipment(ctx, s.store, in.ShipmentID)
	if err != nil {
		return nil, err
	}
	if sh.DriverID != actor.ID {
		return nil, apperr.Forbidden("Not assigned to this shipment")
	}
	if sh.Status.Terminal() {
		return nil, apperr.Conflict("Shipment is already %s", sh.Status)
	}

	now := s.now()
	at := now
	if in.RecordedAt != nil && !in.RecordedAt.IsZero() && in.RecordedAt.Before(now.Add(maxClockSkew)) {
		at = in.RecordedAt.UTC()
	}
	ping := &models.LocationPing{
		DriverID:   actor.ID,
		ShipmentID: sh.ID,
		Point:      point,
		Speed:      in.Speed,
		Heading:    in.Heading,
		Accuracy:   in.Accuracy,
		RecordedAt: at,
	}

	applied, err := s.store.SetShipmentLocation(ctx, sh.ID, point, at)
	if err != nil {
		return nil, apperr.Fatal(err, "Error updating location")
	}
	if err := s.store.InsertLocationPing(ctx, ping); err != nil {
		return nil, apperr.Fatal(err, "Error updating location")
	}

	lg := s.log.WithFields(logrus.Fields{"shipment_id": sh.ID, "applied": applied})
	if s.cache != nil {
		if _, err := s.cache.Put(ctx, *ping); err != nil {
			lg.WithError(err).Warn("location cache not updated")
		}
	}
	lg.Debug("location reported")
	if applied {
		s.publish(ctx, events.New(events.LocationUpdated, sh.ID, actor.ID, map[string]any{
			"lat": point.Lat,
			"lng": point.Lng,
		}))
	}
	return ping, nil
}

// viewShipment loads a shipment the actor is allowed to see: its driver,
// the job's vendor or buyer, or an admin.
func (s *Service) viewShipment(ctx context.Context, actor models.Actor, id string) (*models.Shipment, error) {
	sh, err := loadShipment(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() || actor.ID == sh.DriverID {
		return sh, nil
	}
	job, err := s.store.GetJob(ctx, sh.JobID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Fatal(err, "failed to load job")
	}
	if job != nil && (actor.ID == job.VendorID || actor.ID == job.BuyerID) {
		return sh, nil
	}
	return nil, apperr.Forbidden("Not authorized to view this shipment")
}

func (s *Service) GetShipment(ctx context.Context, actor models.Actor, id string) (*models.Shipment, error) {
	return s.viewShipment(ctx, actor, id)
}

// CurrentLocation returns the newest known point, preferring the cache.
func (s *Service) CurrentLocation(ctx context.Context, actor models.Actor, shipmentID string) (*models.LocationPing, error) {
	sh, err := s.viewShipment(ctx, actor, shipmentID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		p, err := s.cache.Latest(ctx, sh.ID)
		if err != nil {
			s.log.WithError(err).WithField("shipment_id", sh.ID).Warn("location cache read failed")
		} else if p != nil {
			return p, nil
		}
	}
	if sh.CurrentLocation == nil || sh.LastLocationUpdate == nil {
		return nil, apperr.NotFound("No location reported yet")
	}
	return &models.LocationPing{
		DriverID:   sh.DriverID,
		ShipmentID: sh.ID,
		Point:      *sh.CurrentLocation,
		RecordedAt: *sh.LastLocationUpdate,
	}, nil
}

type HistoryQuery struct {
	From  *time.Time
	To    *time.Time
	Limit int
}

// GetLocationHistory returns past points, newest first, bounded by limit.
func (s *Service) GetLocationHistory(ctx context.Context, actor models.Actor, shipmentID string, q HistoryQuery) ([]models.LocationPing, error) {
	if q.Limit < 0 {
		return nil, apperr.Invalid("limit must be positive")
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return nil, apperr.Invalid("from must be before to")
	}
	sh, err := s.viewShipment(ctx, actor, shipmentID)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	switch {
	case limit == 0:
		limit = models.DefaultHistoryLimit
	case limit > models.MaxHistoryLimit:
		limit = models.MaxHistoryLimit
	}
	pings, err := s.store.ListLocationPings(ctx, models.LocationQuery{ShipmentID: sh.ID, From: q.From, To: q.To, Limit: limit})
	if err != nil {
		return nil, apperr.Fatal(err, "Error fetching location history")
	}
	return pings, nil
}

// PruneLocationHistory drops location pings recorded before the cutoff.
func (s *Service) PruneLocationHistory(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.store.PruneLocationPings(ctx, before)
	if err != nil {
		return 0, apperr.Fatal(err, "failed to prune location history")
	}
	s.log.WithFields(logrus.Fields{"removed": n, "before": before.Format(time.RFC3339)}).Info("location history pruned")
	return n, nil
}

// Watch streams live location updates for a shipment the actor may view.
func (s *Service) Watch(ctx context.Context, actor models.Actor, shipmentID string) (<-chan models.LocationPing, func() error, error) {
	sh, err := s.viewShipment(ctx, actor, shipmentID)
	if err != nil {
		return nil, nil, err
	}
	if s.cache == nil {
		return nil, nil, apperr.Conflict("Live tracking is not available")
	}
	ch, stop := s.cache.Subscribe(ctx, sh.ID)
	return ch, stop, nil
}
