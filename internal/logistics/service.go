// Package logistics coordinates cargo jobs, the shipments they spawn and
// driver location tracking.
package logistics

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/stonemart/internal/alerts"
	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/events"
	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store"
)

// LocationCache holds the latest point per shipment and streams updates.
// cache.Locations implements it; a nil cache disables both.
type LocationCache interface {
	Put(ctx context.Context, p models.LocationPing) (bool, error)
	Latest(ctx context.Context, shipmentID string) (*models.LocationPing, error)
	Subscribe(ctx context.Context, shipmentID string) (<-chan models.LocationPing, func() error)
}

const (
	defaultDeliveryWindow = 4 * time.Hour
	defaultCargoUnit      = "kg"
)

type Service struct {
	store  store.Store
	cache  LocationCache
	notify alerts.Notifier
	events events.Publisher
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(s store.Store, cache LocationCache, notify alerts.Notifier, pub events.Publisher, log logrus.FieldLogger) *Service {
	return &Service{
		store:  s,
		cache:  cache,
		notify: notify,
		events: pub,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) tx(ctx context.Context, failure string, fn func(store.Repo) error) error {
	err := s.store.WithTx(ctx, fn)
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Fatal(err, failure)
}

func (s *Service) notifyUser(ctx context.Context, n alerts.Notice) {
	if n.UserID == "" {
		return
	}
	if err := s.notify.NotifyUser(ctx, n); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"user_id": n.UserID, "type": n.Type}).Warn("notification not queued")
	}
}

func (s *Service) publish(ctx context.Context, e models.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.WithError(err).WithField("event", e.Type).Warn("event not published")
	}
}

func loadJob(ctx context.Context, r store.Jobs, id string) (*models.Job, error) {
	j, err := r.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Job not found")
	}
	if err != nil {
		return nil, apperr.Fatal(err, "failed to load job")
	}
	return j, nil
}

func lockJob(ctx context.Context, r store.Jobs, id string) (*models.Job, error) {
	j, err := r.LockJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Job not found")
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func loadShipment(ctx context.Context, r store.Shipments, id string) (*models.Shipment, error) {
	sh, err := r.GetShipment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Shipment not found")
	}
	if err != nil {
		return nil, apperr.Fatal(err, "failed to load shipment")
	}
	return sh, nil
}
