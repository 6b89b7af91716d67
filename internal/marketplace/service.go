// Package marketplace turns a buyer's proposal into a binding sale: the
// listing inventory guard, bid negotiation, the order lifecycle and the
// invoice handoff.
package marketplace

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

// Channels is the messaging collaborator used by the invoice handoff.
type Channels interface {
	EnsureDirect(ctx context.Context, a, b string) (*models.Channel, error)
	Post(ctx context.Context, channelID, senderID string, kind models.MessageKind, text string, meta map[string]any) (*models.Message, error)
}

type Options struct {
	// BidValidity is how long a new bid stays acceptable.
	BidValidity time.Duration
	Currency    string
}

const (
	defaultBidValidity  = 7 * 24 * time.Hour
	defaultDeliveryDays = 7
)

type Service struct {
	store    store.Store
	channels Channels
	notify   alerts.Notifier
	events   events.Publisher
	log      logrus.FieldLogger
	opts     Options
	now      func() time.Time
}

func NewService(s store.Store, channels Channels, notify alerts.Notifier, pub events.Publisher, log logrus.FieldLogger, opts Options) *Service {
	if opts.BidValidity <= 0 {
		opts.BidValidity = defaultBidValidity
	}
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	return &Service{
		store:    s,
		channels: channels,
		notify:   notify,
		events:   pub,
		log:      log,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// tx runs fn atomically. Taxonomy errors pass through; anything else is
// reported as a fatal failure with the given message.
func (s *Service) tx(ctx context.Context, failure string, fn func(store.Repo) error) error {
	err := s.store.WithTx(ctx, fn)
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if ctx.Err() != nil {
		return apperr.Fatal(err, "request canceled")
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
