// Package disputes runs the dispute workflow: a buyer contests an order, a
// channel with the buyer, the vendor and every admin is opened, and an
// admin settles it.
package disputes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/stonemart/internal/alerts"
	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/authz"
	"github.com/sudo-init-do/stonemart/internal/events"
	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store"
)

const MaxReasonLen = 2000

// Channels is the messaging collaborator.
type Channels interface {
	CreateGroup(ctx context.Context, name string, kind models.ChannelKind, members []string) (*models.Channel, error)
	Post(ctx context.Context, channelID, senderID string, kind models.MessageKind, text string, meta map[string]any) (*models.Message, error)
}

type Service struct {
	store    store.Repo
	channels Channels
	notify   alerts.Notifier
	events   events.Publisher
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(s store.Repo, channels Channels, notify alerts.Notifier, pub events.Publisher, log logrus.FieldLogger) *Service {
	return &Service{store: s, channels: channels, notify: notify, events: pub, log: log, now: time.Now}
}

// Open starts a dispute on an order. Only the order's buyer or an admin may
// open one, and an order has at most one open dispute.
func (s *Service) Open(ctx context.Context, actor models.Actor, orderID, reason string) (*models.Dispute, error) {
	if err := authz.Require(actor, authz.DisputeOpen); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if orderID == "" || reason == "" {
		return nil, apperr.Invalid("Order ID and reason are required")
	}
	if len(reason) > MaxReasonLen {
		return nil, apperr.Invalid("reason cannot exceed %d characters", MaxReasonLen)
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Order not found")
	}
	if err != nil {
		return nil, apperr.Fatal(err, "failed to load order")
	}
	if order.BuyerID != actor.ID && !actor.IsAdmin() {
		return nil, apperr.Forbidden("Only the buyer can open a dispute")
	}
	if err := s.alreadyOpen(ctx, orderID); err != nil {
		return nil, err
	}

	admins, err := s.store.ListUserIDs(ctx, models.RoleAdmin, false)
	if err != nil {
		return nil, apperr.Fatal(err, "failed to load admins")
	}
	members := append([]string{order.BuyerID, order.SellerID, actor.ID}, admins...)
	ch, err := s.channels.CreateGroup(ctx, fmt.Sprintf("Dispute: %s", order.OrderNumber), models.ChannelDispute, members)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	d := &models.Dispute{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		BuyerID:   order.BuyerID,
		VendorID:  order.SellerID,
		CreatedBy: actor.ID,
		ChannelID: ch.ID,
		Reason:    reason,
		Status:    models.DisputeOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateDispute(ctx, d); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// lost a race with another open; the channel stays orphaned
			if err := s.alreadyOpen(ctx, orderID); err != nil {
				return nil, err
			}
			return nil, apperr.Conflict("A dispute is already open for this order")
		}
		return nil, apperr.Fatal(err, "failed to open dispute")
	}

	lg := s.log.WithFields(logrus.Fields{"dispute_id": d.ID, "order_id": order.ID})
	lg.Info("dispute opened")

	notice := alerts.Notice{
		Type:      alerts.NoticeDisputeOpened,
		Title:     "Dispute opened",
		Body:      fmt.Sprintf("A dispute was opened on order %s", order.OrderNumber),
		Reference: d.ID,
	}
	vendorNotice := notice
	vendorNotice.UserID = order.SellerID
	if err := s.notify.NotifyUser(ctx, vendorNotice); err != nil {
		lg.WithError(err).Warn("vendor dispute notification not queued")
	}
	if err := s.notify.NotifyRole(ctx, models.RoleAdmin, false, notice); err != nil {
		lg.WithError(err).Warn("admin dispute notification not queued")
	}
	s.publish(ctx, events.New(events.DisputeOpened, d.ID, actor.ID, map[string]any{
		"order_id":   order.ID,
		"channel_id": ch.ID,
	}))
	return d, nil
}

func (s *Service) alreadyOpen(ctx context.Context, orderID string) error {
	existing, err := s.store.GetOpenDispute(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperr.Fatal(err, "failed to check existing disputes")
	}
	return apperr.Conflict("A dispute is already open for this order").With("disputeId", existing.ID)
}

var outcomeMessages = map[models.DisputeStatus]string{
	models.DisputeResolved: "Dispute Resolved Successfully",
	models.DisputeClosed:   "Dispute Closed Successfully",
}

// UpdateStatus lets an admin settle a dispute. Resolved and closed are
// terminal; entering either posts a system message into the channel.
func (s *Service) UpdateStatus(ctx context.Context, actor models.Actor, id string, next models.DisputeStatus) (*models.Dispute, error) {
	if err := authz.Require(actor, authz.DisputeUpdate); err != nil {
		return nil, err
	}
	if !next.Valid() {
		return nil, apperr.Invalid("Invalid status. Must be one of: open, resolved, closed")
	}

	d, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status.Terminal() {
		return nil, apperr.Conflict("Dispute is already %s", d.Status)
	}
	if next == d.Status {
		return nil, apperr.Conflict("Dispute is already %s", next)
	}

	from := d.Status
	now := s.now().UTC()
	d.Status = next
	d.ResolvedBy = actor.ID
	d.ResolvedAt = &now
	d.UpdatedAt = now
	ok, err := s.store.SettleDispute(ctx, d, from)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Dispute not found")
	}
	if err != nil {
		return nil, apperr.Fatal(err, "failed to update dispute")
	}
	if !ok {
		cur, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, apperr.Conflict("Dispute is already %s", cur.Status)
	}

	lg := s.log.WithFields(logrus.Fields{"dispute_id": d.ID, "status": next})
	lg.Info("dispute status updated")

	if _, err := s.channels.Post(ctx, d.ChannelID, actor.ID, models.MessageSystem, outcomeMessages[next], map[string]any{
		"dispute_id": d.ID,
		"status":     string(next),
	}); err != nil {
		lg.WithError(err).Warn("dispute outcome message not posted")
	}
	for _, to := range []string{d.BuyerID, d.VendorID} {
		err := s.notify.NotifyUser(ctx, alerts.Notice{
			UserID:    to,
			Type:      alerts.NoticeDisputeUpdated,
			Title:     "Dispute updated",
			Body:      outcomeMessages[next],
			Reference: d.ID,
		})
		if err != nil {
			lg.WithError(err).Warn("dispute notification not queued")
		}
	}
	s.publish(ctx, events.New(events.DisputeStatus, d.ID, actor.ID, map[string]any{"status": string(next)}))
	return d, nil
}

// Get returns a dispute to one of its parties or an admin.
func (s *Service) Get(ctx context.Context, actor models.Actor, id string) (*models.Dispute, error) {
	d, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Involves(actor.ID) && !actor.IsAdmin() {
		return nil, apperr.Forbidden("You are not a party to this dispute")
	}
	return d, nil
}

// ListMine returns disputes where the user is buyer, vendor or creator.
func (s *Service) ListMine(ctx context.Context, actor models.Actor, page models.Page) ([]models.Dispute, int, error) {
	items, total, err := s.store.ListDisputes(ctx, models.DisputeFilter{Member: actor.ID}, page)
	if err != nil {
		return nil, 0, apperr.Fatal(err, "failed to load disputes")
	}
	return items, total, nil
}

// List is the admin view over every dispute, optionally by status.
func (s *Service) List(ctx context.Context, actor models.Actor, status models.DisputeStatus, page models.Page) ([]models.Dispute, int, error) {
	if err := authz.Require(actor, authz.DisputeAdmin); err != nil {
		return nil, 0, err
	}
	if status != "" && !status.Valid() {
		return nil, 0, apperr.Invalid("Invalid status filter")
	}
	items, total, err := s.store.ListDisputes(ctx, models.DisputeFilter{Status: status}, page)
	if err != nil {
		return nil, 0, apperr.Fatal(err, "failed to load disputes")
	}
	return items, total, nil
}

func (s *Service) load(ctx context.Context, id string) (*models.Dispute, error) {
	d, err := s.store.GetDispute(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Dispute not found")
	}
	if err != nil {
		return nil, apperr.Fatal(err, "failed to load dispute")
	}
	return d, nil
}

func (s *Service) publish(ctx context.Context, e models.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.WithError(err).WithField("event", e.Type).Warn("event not published")
	}
}
