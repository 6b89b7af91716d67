package marketplace

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

func orderNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("ORD-%d-%04d", at.UnixMilli(), seq%10000)
}

// materialize seeds an order from an accepted bid and the listing's
// shipping terms.
func materialize(bid *models.Bid, listing *models.Listing, seq int64, now time.Time) *models.Order {
	o := newOrder(listing, bid.BidderID, bid.Quantity, bid.Amount, listing.ShippingCost, seq, now)
	o.BidID = bid.ID
	return o
}

func newOrder(listing *models.Listing, buyerID string, qty int, unitPrice, shipping float64, seq int64, now time.Time) *models.Order {
	days := listing.LeadTimeDays
	if days <= 0 {
		days = defaultDeliveryDays
	}
	eta := now.AddDate(0, 0, days)
	o := &models.Order{
		ID:           uuid.NewString(),
		OrderNumber:  orderNumber(now, seq),
		BuyerID:      buyerID,
		SellerID:     listing.SellerID,
		ListingID:    listing.ID,
		Quantity:     qty,
		UnitPrice:    unitPrice,
		ShippingCost: shipping,
		Payment:      models.Payment{Method: models.PaymentCash, Status: models.PaymentPending},
		Delivery:     models.Delivery{Method: models.DeliveryPickup, EstimatedDelivery: &eta},
		Status:       models.OrderActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	o.Recompute()
	return o
}

// CreateOrder builds the order for an accepted bid whose cascade order is
// missing.
func (s *Service) CreateOrder(ctx context.Context, actor models.Actor, bidID string) (*models.Order, error) {
	if err := authz.Require(actor, authz.OrderCreate); err != nil {
		return nil, err
	}
	if bidID == "" {
		return nil, apperr.Invalid("Bid ID is required")
	}

	var order *models.Order
	err := s.tx(ctx, "Error creating order", func(tx store.Repo) error {
		bid, err := lockBid(ctx, tx, bidID)
		if err != nil {
			return err
		}
		if bid.SellerID != actor.ID {
			return apperr.Forbidden("Not authorized to create order for this bid")
		}
		if bid.Status != models.BidAccepted {
			return apperr.Conflict("Bid must be accepted to create an order")
		}
		if _, err := tx.GetOrderByBid(ctx, bid.ID); err == nil {
			return apperr.Conflict("Order already exists for this bid")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		listing, err := loadListing(ctx, tx, bid.ListingID)
		if err != nil {
			return err
		}
		seq, err := tx.NextOrderSeq(ctx)
		if err != nil {
			return err
		}
		order = materialize(bid, listing, seq, s.now())
		if err := tx.CreateOrder(ctx, order); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.Conflict("Order already exists for this bid")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.orderCreated(ctx, actor, order)
	return order, nil
}

type DirectOrderInput struct {
	ListingID    string   `json:"productId"`
	BuyerID      string   `json:"buyerId"`
	Quantity     int      `json:"quantity"`
	UnitPrice    float64  `json:"unitPrice"`
	ShippingCost *float64 `json:"shippingCost"`
}

// CreateDirectOrder records a sale the seller arranged without a bid. The
// listing stays on sale; only the accept cascade marks it sold.
func (s *Service) CreateDirectOrder(ctx context.Context, actor models.Actor, in DirectOrderInput) (*models.Order, error) {
	if err := authz.Require(actor, authz.OrderCreate); err != nil {
		return nil, err
	}
	switch {
	case in.ListingID == "" || in.BuyerID == "" || in.Quantity == 0 || in.UnitPrice == 0:
		return nil, apperr.Invalid("Missing required fields: productId, buyerId, quantity, unitPrice")
	case in.Quantity < 1:
		return nil, apperr.Invalid("Quantity must be at least 1")
	case in.UnitPrice < 0:
		return nil, apperr.Invalid("Unit price must be greater than 0")
	case in.ShippingCost != nil && *in.ShippingCost < 0:
		return nil, apperr.Invalid("Shipping cost cannot be negative")
	}

	listing, err := loadListing(ctx, s.store, in.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != actor.ID {
		return nil, apperr.Forbidden("Not authorized to sell this product")
	}
	if in.BuyerID == actor.ID {
		return nil, apperr.Conflict("You cannot sell to yourself")
	}
	if !listing.Sellable() {
		return nil, apperr.Conflict("Product is no longer available")
	}
	if in.Quantity > listing.Quantity {
		return nil, apperr.Conflict("Requested quantity exceeds available quantity")
	}
	if _, err := s.store.GetUser(ctx, in.BuyerID); errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Buyer not found")
	} else if err != nil {
		return nil, apperr.Fatal(err, "Error creating order")
	}

	shipping := listing.ShippingCost
	if in.ShippingCost != nil {
		shipping = *in.ShippingCost
	}
	var order *models.Order
	err = s.tx(ctx, "Error creating order", func(tx store.Repo) error {
		seq, err := tx.NextOrderSeq(ctx)
		if err != nil {
			return err
		}
		order = newOrder(listing, in.BuyerID, in.Quantity, in.UnitPrice, shipping, seq, s.now())
		return tx.CreateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	s.orderCreated(ctx, actor, order)
	return order, nil
}

func (s *Service) orderCreated(ctx context.Context, actor models.Actor, o *models.Order) {
	s.log.WithFields(logrus.Fields{"order_id": o.ID, "order_number": o.OrderNumber}).Info("order created")
	s.notifyUser(ctx, alerts.Notice{
		UserID:    o.BuyerID,
		Type:      alerts.NoticeOrderStatus,
		Title:     "New order",
		Body:      fmt.Sprintf("Order %s was created for %.2f", o.OrderNumber, o.FinalAmount),
		Reference: o.ID,
	})
	s.publish(ctx, events.New(events.OrderCreated, o.ID, actor.ID, map[string]any{
		"bid_id":       o.BidID,
		"order_number": o.OrderNumber,
		"final_amount": o.FinalAmount,
	}))
}

// actorSide maps the caller onto the order. Admins act as SideAdmin.
func actorSide(o *models.Order, actor models.Actor) (models.Side, bool) {
	if side, ok := o.SideOf(actor.ID); ok {
		return side, true
	}
	if actor.IsAdmin() {
		return models.SideAdmin, true
	}
	return "", false
}

type StatusInput struct {
	Status models.OrderStatus `json:"status"`
	Notes  string             `json:"notes"`
	Reason string             `json:"reason"`
}

// UpdateOrderStatus completes or cancels an Active order.
func (s *Service) UpdateOrderStatus(ctx context.Context, actor models.Actor, orderID string, in StatusInput) (*models.Order, error) {
	if err := authz.Require(actor, authz.OrderUpdate); err != nil {
		return nil, err
	}
	if !in.Status.Valid() {
		return nil, apperr.Invalid("Invalid status. Must be Active, Completed, or Canceled")
	}

	var order *models.Order
	err := s.tx(ctx, "Error updating order status", func(tx store.Repo) error {
		var err error
		if order, err = lockOrder(ctx, tx, orderID); err != nil {
			return err
		}
		side, ok := actorSide(order, actor)
		if !ok {
			return apperr.Forbidden("Not authorized to update this order")
		}
		if !order.Status.CanTransitionTo(in.Status) {
			return apperr.Conflict("Cannot change order status from %s to %s", order.Status, in.Status)
		}
		now := s.now()
		if in.Status == models.OrderCompleted {
			order.Complete(side, strings.TrimSpace(in.Notes), now)
		} else {
			order.Cancel(side, strings.TrimSpace(in.Reason), now)
		}
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	s.orderStatusChanged(ctx, actor, order)
	return order, nil
}

func (s *Service) orderStatusChanged(ctx context.Context, actor models.Actor, o *models.Order) {
	s.log.WithFields(logrus.Fields{"order_id": o.ID, "status": o.Status}).Info("order status changed")
	for _, uid := range []string{o.BuyerID, o.SellerID} {
		if uid == actor.ID {
			continue
		}
		s.notifyUser(ctx, alerts.Notice{
			UserID:    uid,
			Type:      alerts.NoticeOrderStatus,
			Title:     "Order " + string(o.Status),
			Body:      fmt.Sprintf("Order %s is now %s", o.OrderNumber, o.Status),
			Reference: o.ID,
		})
	}
	typ := events.OrderCompleted
	if o.Status == models.OrderCanceled {
		typ = events.OrderCanceled
	}
	s.publish(ctx, events.New(typ, o.ID, actor.ID, nil))
}

type PaymentPatch struct {
	Method        *models.PaymentMethod `json:"method"`
	Status        *models.PaymentStatus `json:"status"`
	TransactionID *string               `json:"transactionId"`
	Notes         *string               `json:"notes"`
}

type DeliveryPatch struct {
	Method            *models.DeliveryMethod `json:"method"`
	TrackingNumber    *string                `json:"trackingNumber"`
	Carrier           *string                `json:"carrier"`
	EstimatedDelivery *time.Time             `json:"estimatedDelivery"`
	Notes             *string                `json:"notes"`
}

type DetailsInput struct {
	ShippingAddress *models.Address `json:"shippingAddress"`
	Payment         *PaymentPatch   `json:"payment"`
	Delivery        *DeliveryPatch  `json:"delivery"`
	Notes           *string         `json:"notes"`
}

// UpdateOrderDetails merges the given sub-records into an Active order.
// Notes land in the caller's own slot.
func (s *Service) UpdateOrderDetails(ctx context.Context, actor models.Actor, orderID string, in DetailsInput) (*models.Order, error) {
	if err := authz.Require(actor, authz.OrderUpdate); err != nil {
		return nil, err
	}
	if p := in.Payment; p != nil {
		if p.Method != nil && !p.Method.Valid() {
			return nil, apperr.Invalid("Invalid payment method")
		}
		if p.Status != nil && !p.Status.Valid() {
			return nil, apperr.Invalid("Invalid payment status")
		}
	}
	if d := in.Delivery; d != nil && d.Method != nil && !d.Method.Valid() {
		return nil, apperr.Invalid("Invalid delivery method")
	}

	var order *models.Order
	err := s.tx(ctx, "Error updating order", func(tx store.Repo) error {
		var err error
		if order, err = lockOrder(ctx, tx, orderID); err != nil {
			return err
		}
		side, ok := actorSide(order, actor)
		if !ok {
			return apperr.Forbidden("Not authorized to update this order")
		}
		if order.Status != models.OrderActive {
			return apperr.Conflict("Cannot update a %s order", strings.ToLower(string(order.Status)))
		}
		now := s.now()
		if in.ShippingAddress != nil {
			addr := *in.ShippingAddress
			order.ShippingAddress = &addr
		}
		if p := in.Payment; p != nil {
			mergePayment(&order.Payment, p, now)
		}
		if d := in.Delivery; d != nil {
			mergeDelivery(&order.Delivery, d)
		}
		if in.Notes != nil {
			switch side {
			case models.SideBuyer:
				order.Notes.Buyer = *in.Notes
			case models.SideSeller:
				order.Notes.Seller = *in.Notes
			}
		}
		order.UpdatedAt = now
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func mergePayment(dst *models.Payment, p *PaymentPatch, now time.Time) {
	if p.Method != nil {
		dst.Method = *p.Method
	}
	if p.Status != nil {
		dst.Status = *p.Status
		if dst.Status == models.PaymentPaid && dst.PaidAt == nil {
			dst.PaidAt = &now
		}
	}
	if p.TransactionID != nil {
		dst.TransactionID = *p.TransactionID
	}
	if p.Notes != nil {
		dst.Notes = *p.Notes
	}
}

func mergeDelivery(dst *models.Delivery, d *DeliveryPatch) {
	if d.Method != nil {
		dst.Method = *d.Method
	}
	if d.TrackingNumber != nil {
		dst.TrackingNumber = *d.TrackingNumber
	}
	if d.Carrier != nil {
		dst.Carrier = *d.Carrier
	}
	if d.EstimatedDelivery != nil {
		eta := d.EstimatedDelivery.UTC()
		dst.EstimatedDelivery = &eta
	}
	if d.Notes != nil {
		dst.Notes = *d.Notes
	}
}

type RatingInput struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

// AddRating fills the caller's rating slot on a completed order. Each slot
// is written once.
func (s *Service) AddRating(ctx context.Context, actor models.Actor, orderID string, in RatingInput) (*models.Order, error) {
	if err := authz.Require(actor, authz.OrderRate); err != nil {
		return nil, err
	}
	if in.Rating < 1 || in.Rating > 5 {
		return nil, apperr.Invalid("Rating must be between 1 and 5")
	}

	var order *models.Order
	err := s.tx(ctx, "Error adding rating", func(tx store.Repo) error {
		var err error
		if order, err = lockOrder(ctx, tx, orderID); err != nil {
			return err
		}
		side, ok := order.SideOf(actor.ID)
		if !ok {
			return apperr.Forbidden("Not authorized to rate this order")
		}
		if order.Status != models.OrderCompleted {
			return apperr.Conflict("Can only rate completed orders")
		}
		if order.Completion == nil {
			order.Completion = &models.Completion{CompletedAt: order.UpdatedAt}
		}
		slot := &order.Completion.BuyerRating
		if side == models.SideSeller {
			slot = &order.Completion.SellerRating
		}
		if *slot != nil {
			return apperr.Conflict("You have already rated this order")
		}
		now := s.now()
		*slot = &models.Rating{Rating: in.Rating, Review: strings.TrimSpace(in.Review), RatedAt: now}
		order.UpdatedAt = now
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.New(events.OrderRated, order.ID, actor.ID, map[string]any{"rating": in.Rating}))
	return order, nil
}

// GetOrder shows an order to its participants and admins.
func (s *Service) GetOrder(ctx context.Context, actor models.Actor, id string) (*models.Order, error) {
	o, err := loadOrder(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if _, ok := actorSide(o, actor); !ok {
		return nil, apperr.Forbidden("Not authorized to view this order")
	}
	return o, nil
}

func (s *Service) ListSellerOrders(ctx context.Context, actor models.Actor, status models.OrderStatus, page models.Page) ([]models.Order, int, error) {
	return s.listOrders(ctx, models.OrderFilter{SellerID: actor.ID, Status: status}, page)
}

func (s *Service) ListBuyerOrders(ctx context.Context, actor models.Actor, status models.OrderStatus, page models.Page) ([]models.Order, int, error) {
	return s.listOrders(ctx, models.OrderFilter{BuyerID: actor.ID, Status: status}, page)
}

func (s *Service) listOrders(ctx context.Context, f models.OrderFilter, page models.Page) ([]models.Order, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Invalid("Invalid status filter")
	}
	items, total, err := s.store.ListOrders(ctx, f, page)
	if err != nil {
		return nil, 0, apperr.Fatal(err, "Error fetching orders")
	}
	return items, total, nil
}

func loadOrder(ctx context.Context, r store.Orders, id string) (*models.Order, error) {
	o, err := r.GetOrder(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Order not found")
	}
	if err != nil {
		return nil, apperr.Fatal(err, "failed to load order")
	}
	return o, nil
}

func lockOrder(ctx context.Context, r store.Orders, id string) (*models.Order, error) {
	o, err := r.LockOrder(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Order not found")
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}
