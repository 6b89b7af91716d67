// Package payments opens payment intents for orders and applies the
// processor's verdict back onto the order, its invoice and its bid.
package payments

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/stonemart/internal/alerts"
	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/authz"
	"github.com/sudo-init-do/stonemart/internal/events"
	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store"
)

const (
	minAmountCents = 50
	maxAmountCents = 99999999
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Result is the processor's report for one intent.
type Result struct {
	OrderID  string  `json:"order_id"`
	IntentID string  `json:"intent_id"`
	Status   Outcome `json:"status"`
}

type Service struct {
	store    store.Store
	gateway  Gateway
	notify   alerts.Notifier
	events   events.Publisher
	log      logrus.FieldLogger
	currency string
	now      func() time.Time
}

func NewService(s store.Store, gw Gateway, notify alerts.Notifier, pub events.Publisher, log logrus.FieldLogger, currency string) *Service {
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		store:    s,
		gateway:  gw,
		notify:   notify,
		events:   pub,
		log:      log,
		currency: currency,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CreatePaymentIntent asks the gateway for an intent covering the order's
// final amount and records it as the order's pending transaction.
func (s *Service) CreatePaymentIntent(ctx context.Context, actor models.Actor, orderID string) (*Intent, error) {
	if err := authz.Require(actor, authz.OrderPay); err != nil {
		return nil, err
	}
	order, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Order not found")
	}
	if err != nil {
		return nil, apperr.Fatal(err, "Failed to create payment intent")
	}
	if err := payable(order, actor); err != nil {
		return nil, err
	}
	cents := toCents(order.FinalAmount)
	switch {
	case cents < minAmountCents:
		return nil, apperr.Invalid("Payment amount must be at least 0.50")
	case cents > maxAmountCents:
		return nil, apperr.Invalid("Payment amount exceeds the processor limit")
	}

	intent, err := s.gateway.CreateIntent(ctx, IntentRequest{
		OrderID:     order.ID,
		BuyerID:     actor.ID,
		AmountCents: cents,
		Currency:    s.currency,
	})
	if err != nil {
		return nil, apperr.Fatal(err, "Failed to create payment intent")
	}

	err = s.store.WithTx(ctx, func(tx store.Repo) error {
		o, err := tx.LockOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := payable(o, actor); err != nil {
			return err
		}
		now := s.now()
		o.Payment.Status = models.PaymentPending
		o.Payment.TransactionID = intent.ID
		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if inv := openInvoice(ctx, tx, o); inv != nil {
			inv.PaymentIntentID = intent.ID
			return tx.UpdateInvoice(ctx, inv)
		}
		return nil
	})
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, apperr.Fatal(err, "Failed to create payment intent")
	}

	s.log.WithFields(logrus.Fields{"order_id": order.ID, "intent_id": intent.ID, "amount": cents}).Info("payment intent created")
	return intent, nil
}

func payable(o *models.Order, actor models.Actor) error {
	switch {
	case o.BuyerID != actor.ID:
		return apperr.Forbidden("Not authorized to pay for this order")
	case o.Payment.Status == models.PaymentPaid:
		return apperr.Conflict("Order already paid")
	case o.Status != models.OrderActive:
		return apperr.Conflict("Cannot pay for a %s order", o.Status)
	}
	return nil
}

// openInvoice finds the invoice sent for the order's bid, if any.
func openInvoice(ctx context.Context, tx store.Repo, o *models.Order) *models.Invoice {
	if o.BidID == "" {
		return nil
	}
	invs, err := tx.ListInvoicesForBid(ctx, o.BidID)
	if err != nil {
		return nil
	}
	for i := range invs {
		if invs[i].Status == models.InvoiceSent {
			return &invs[i]
		}
	}
	return nil
}

// ApplyResult records the processor's verdict. Repeated reports for an
// already paid order are accepted and change nothing.
func (s *Service) ApplyResult(ctx context.Context, r Result) (*models.Order, error) {
	if r.OrderID == "" || r.IntentID == "" {
		return nil, apperr.Invalid("order_id and intent_id are required")
	}
	if r.Status != OutcomeSucceeded && r.Status != OutcomeFailed {
		return nil, apperr.Invalid("status must be succeeded or failed")
	}

	var (
		order   *models.Order
		changed bool
	)
	err := s.store.WithTx(ctx, func(tx store.Repo) error {
		o, err := tx.LockOrder(ctx, r.OrderID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Order not found")
		}
		if err != nil {
			return err
		}
		order = o
		if o.Payment.TransactionID != r.IntentID {
			return apperr.Conflict("Payment intent does not match the order")
		}
		if o.Payment.Status == models.PaymentPaid {
			return nil
		}

		now := s.now()
		changed = true
		o.UpdatedAt = now
		if r.Status == OutcomeFailed {
			o.Payment.Status = models.PaymentFailed
			return tx.UpdateOrder(ctx, o)
		}

		o.Payment.Status = models.PaymentPaid
		o.Payment.PaidAt = &now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if inv := openInvoice(ctx, tx, o); inv != nil {
			inv.Status = models.InvoicePaid
			inv.PaidAt = &now
			inv.PaymentIntentID = r.IntentID
			if err := tx.UpdateInvoice(ctx, inv); err != nil {
				return err
			}
		}
		if o.BidID == "" {
			return nil
		}
		bid, err := tx.LockBid(ctx, o.BidID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		bid.AwaitingAction = ""
		bid.UpdatedAt = now
		return tx.UpdateBid(ctx, bid)
	})
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, apperr.Fatal(err, "Failed to record payment")
	}

	lg := s.log.WithFields(logrus.Fields{"order_id": order.ID, "intent_id": r.IntentID, "status": r.Status})
	if !changed {
		lg.Debug("payment report ignored")
		return order, nil
	}
	lg.Info("payment recorded")

	title, body := "Payment received", "Payment for order "+order.OrderNumber+" was received"
	if r.Status == OutcomeFailed {
		title, body = "Payment failed", "Payment for order "+order.OrderNumber+" did not go through"
	}
	for _, uid := range []string{order.BuyerID, order.SellerID} {
		if err := s.notify.NotifyUser(ctx, alerts.Notice{
			UserID:    uid,
			Type:      alerts.NoticePaymentUpdate,
			Title:     title,
			Body:      body,
			Reference: order.ID,
		}); err != nil {
			lg.WithError(err).Warn("notification not queued")
		}
	}
	if r.Status == OutcomeSucceeded {
		if err := s.events.Publish(ctx, events.New(events.OrderPaid, order.ID, order.BuyerID, map[string]any{
			"intent_id": r.IntentID,
			"amount":    order.FinalAmount,
		})); err != nil {
			lg.WithError(err).Warn("event not published")
		}
	}
	return order, nil
}
