package marketplace

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
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

const invoiceLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func invoiceNumber(at time.Time) string {
	var b strings.Builder
	for range 4 {
		b.WriteByte(invoiceLetters[rand.IntN(len(invoiceLetters))])
	}
	return fmt.Sprintf("INV-%d-%s", at.UnixMilli(), b.String())
}

type InvoiceInput struct {
	Quantity     *int     `json:"quantity"`
	UnitPrice    *float64 `json:"unitPrice"`
	ShippingCost *float64 `json:"shippingCost"`
	Currency     string   `json:"currency"`
	Notes        string   `json:"notes"`
}

// SendInvoice bills the buyer for an accepted bid and drops the invoice
// into the buyer/vendor conversation.
func (s *Service) SendInvoice(ctx context.Context, actor models.Actor, bidID string, in InvoiceInput) (*models.Invoice, error) {
	if err := authz.Require(actor, authz.InvoiceSend); err != nil {
		return nil, err
	}
	switch {
	case in.Quantity != nil && *in.Quantity < 1:
		return nil, apperr.Invalid("Quantity must be at least 1")
	case in.UnitPrice != nil && *in.UnitPrice <= 0:
		return nil, apperr.Invalid("Unit price must be greater than 0")
	case in.ShippingCost != nil && *in.ShippingCost < 0:
		return nil, apperr.Invalid("Shipping cost cannot be negative")
	}

	var (
		inv     *models.Invoice
		listing *models.Listing
	)
	err := s.tx(ctx, "Error sending invoice", func(tx store.Repo) error {
		bid, err := lockBid(ctx, tx, bidID)
		if err != nil {
			return err
		}
		if bid.SellerID != actor.ID {
			return apperr.Forbidden("Not authorized to invoice this bid")
		}
		if bid.Status != models.BidAccepted {
			return apperr.Conflict("Only accepted bids can be invoiced")
		}
		existing, err := tx.ListInvoicesForBid(ctx, bid.ID)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.Blocking() {
				return apperr.Conflict("Invoice already sent for this bid").With("invoiceId", e.ID)
			}
		}
		if listing, err = loadListing(ctx, tx, bid.ListingID); err != nil {
			return err
		}

		qty, price, shipping := bid.Quantity, bid.Amount, listing.ShippingCost
		var orderID string
		if o, err := tx.GetOrderByBid(ctx, bid.ID); err == nil {
			orderID, shipping = o.ID, o.ShippingCost
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if in.Quantity != nil {
			qty = *in.Quantity
		}
		if in.UnitPrice != nil {
			price = *in.UnitPrice
		}
		if in.ShippingCost != nil {
			shipping = *in.ShippingCost
		}
		currency := strings.ToLower(strings.TrimSpace(in.Currency))
		if currency == "" {
			currency = s.opts.Currency
		}

		now := s.now()
		inv = &models.Invoice{
			ID:            uuid.NewString(),
			InvoiceNumber: invoiceNumber(now),
			BidID:         bid.ID,
			OrderID:       orderID,
			BuyerID:       bid.BidderID,
			SellerID:      bid.SellerID,
			ListingID:     bid.ListingID,
			Quantity:      qty,
			UnitPrice:     price,
			Subtotal:      price * float64(qty),
			ShippingCost:  shipping,
			Currency:      currency,
			Status:        models.InvoiceSent,
			Notes:         strings.TrimSpace(in.Notes),
			SentAt:        now,
			CreatedAt:     now,
		}
		inv.TotalAmount = inv.Subtotal + inv.ShippingCost
		if err := tx.CreateInvoice(ctx, inv); err != nil {
			return err
		}

		bid.InvoiceID = inv.ID
		bid.AwaitingAction = models.PartyBuyer
		bid.UpdatedAt = now
		return tx.UpdateBid(ctx, bid)
	})
	if err != nil {
		return nil, err
	}

	lg := s.log.WithFields(logrus.Fields{"invoice_id": inv.ID, "bid_id": inv.BidID})
	lg.Info("invoice sent")
	s.postInvoice(ctx, lg, inv, listing)

	s.notifyUser(ctx, alerts.Notice{
		UserID:    inv.BuyerID,
		Type:      alerts.NoticeInvoiceSent,
		Title:     "Invoice received",
		Body:      fmt.Sprintf("%s for %s: %.2f %s", inv.InvoiceNumber, listing.Title, inv.TotalAmount, strings.ToUpper(inv.Currency)),
		Reference: inv.ID,
	})
	s.publish(ctx, events.New(events.InvoiceSent, inv.ID, actor.ID, map[string]any{
		"bid_id":       inv.BidID,
		"total_amount": inv.TotalAmount,
		"currency":     inv.Currency,
	}))
	return inv, nil
}

// postInvoice puts the invoice message in the direct channel. The invoice
// stands without it, so failures are only logged.
func (s *Service) postInvoice(ctx context.Context, lg logrus.FieldLogger, inv *models.Invoice, listing *models.Listing) {
	ch, err := s.channels.EnsureDirect(ctx, inv.SellerID, inv.BuyerID)
	if err != nil {
		lg.WithError(err).Warn("invoice channel unavailable")
		return
	}
	msg, err := s.channels.Post(ctx, ch.ID, inv.SellerID, models.MessageInvoice,
		fmt.Sprintf("Invoice %s for %s", inv.InvoiceNumber, listing.Title),
		map[string]any{
			"invoiceId":     inv.ID,
			"invoiceNumber": inv.InvoiceNumber,
			"bidId":         inv.BidID,
			"productId":     inv.ListingID,
			"quantity":      inv.Quantity,
			"unitPrice":     inv.UnitPrice,
			"shippingCost":  inv.ShippingCost,
			"totalAmount":   inv.TotalAmount,
			"currency":      inv.Currency,
		})
	if err != nil {
		lg.WithError(err).Warn("invoice message not posted")
		return
	}
	inv.ChannelID, inv.MessageID = ch.ID, msg.ID
	if err := s.store.UpdateInvoice(ctx, inv); err != nil {
		lg.WithError(err).Warn("invoice message link not saved")
	}
}

// GetInvoice shows an invoice to its buyer, seller or an admin.
func (s *Service) GetInvoice(ctx context.Context, actor models.Actor, id string) (*models.Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Invoice not found")
	}
	if err != nil {
		return nil, apperr.Fatal(err, "failed to load invoice")
	}
	if actor.ID != inv.BuyerID && actor.ID != inv.SellerID && !actor.IsAdmin() {
		return nil, apperr.Forbidden("Not authorized to view this invoice")
	}
	return inv, nil
}
