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

const (
	acceptedResponse        = "Bid accepted"
	rejectedResponse        = "Bid rejected"
	anotherAcceptedResponse = "Another bid was accepted"
)

type ProposeInput struct {
	ListingID string  `json:"productId"`
	Amount    float64 `json:"bidAmount"`
	Quantity  int     `json:"quantity"`
	Message   string  `json:"message"`
}

// Propose opens a pending bid on an active, unsold listing.
func (s *Service) Propose(ctx context.Context, actor models.Actor, in ProposeInput) (*models.Bid, error) {
	if err := authz.Require(actor, authz.BidPropose); err != nil {
		return nil, err
	}
	in.Message = strings.TrimSpace(in.Message)
	switch {
	case in.ListingID == "" || in.Amount == 0 || in.Quantity == 0:
		return nil, apperr.Invalid("Missing required fields: productId, bidAmount, quantity")
	case in.Amount < 0:
		return nil, apperr.Invalid("Bid amount must be greater than 0")
	case in.Quantity < 1:
		return nil, apperr.Invalid("Quantity must be at least 1")
	case len(in.Message) > models.MaxBidMessageLen:
		return nil, apperr.Invalid("Message cannot exceed %d characters", models.MaxBidMessageLen)
	}

	listing, err := loadListing(ctx, s.store, in.ListingID)
	if err != nil {
		return nil, err
	}
	if !listing.Sellable() {
		return nil, apperr.Conflict("Product is not available for bidding")
	}
	if listing.SellerID == actor.ID {
		return nil, apperr.Conflict("You cannot bid on your own product")
	}
	if in.Quantity > listing.Quantity {
		return nil, apperr.Conflict("Requested quantity exceeds available quantity")
	}
	pending, err := s.store.HasPendingBid(ctx, actor.ID, listing.ID)
	if err != nil {
		return nil, apperr.Fatal(err, "Error creating bid")
	}
	if pending {
		return nil, apperr.Conflict("You already have a pending bid on this product")
	}

	now := s.now()
	bid := &models.Bid{
		ID:             uuid.NewString(),
		BidderID:       actor.ID,
		ListingID:      listing.ID,
		SellerID:       listing.SellerID,
		Amount:         in.Amount,
		Quantity:       in.Quantity,
		Message:        in.Message,
		Status:         models.BidPending,
		AwaitingAction: models.PartyVendor,
		ValidUntil:     now.Add(s.opts.BidValidity),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateBid(ctx, bid); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflict("You already have a pending bid on this product")
		}
		return nil, apperr.Fatal(err, "Error creating bid")
	}

	s.log.WithFields(logrus.Fields{"bid_id": bid.ID, "listing_id": listing.ID}).Info("bid proposed")
	s.notifyUser(ctx, alerts.Notice{
		UserID:    listing.SellerID,
		Type:      alerts.NoticeBidReceived,
		Title:     "New bid received",
		Body:      fmt.Sprintf("%d %s of %s at %.2f", bid.Quantity, listing.Unit, listing.Title, bid.Amount),
		Reference: bid.ID,
	})
	s.publish(ctx, events.New(events.BidProposed, bid.ID, actor.ID, map[string]any{
		"listing_id": listing.ID,
		"amount":     bid.Amount,
		"quantity":   bid.Quantity,
	}))
	return bid, nil
}

type CounterInput struct {
	Amount   *float64 `json:"bidAmount"`
	Quantity *int     `json:"quantity"`
	Message  *string  `json:"message"`
}

// Counter changes a pending bid's terms and passes the turn to the other
// party. Only the party whose turn it is may counter.
func (s *Service) Counter(ctx context.Context, actor models.Actor, bidID string, in CounterInput) (*models.Bid, error) {
	if err := authz.Require(actor, authz.BidCounter); err != nil {
		return nil, err
	}
	if in.Amount == nil && in.Quantity == nil && in.Message == nil {
		return nil, apperr.Invalid("Provide a new bidAmount, quantity or message")
	}
	if in.Amount != nil && *in.Amount <= 0 {
		return nil, apperr.Invalid("Bid amount must be greater than 0")
	}
	if in.Quantity != nil && *in.Quantity < 1 {
		return nil, apperr.Invalid("Quantity must be at least 1")
	}
	if in.Message != nil && len(strings.TrimSpace(*in.Message)) > models.MaxBidMessageLen {
		return nil, apperr.Invalid("Message cannot exceed %d characters", models.MaxBidMessageLen)
	}

	var (
		bid   *models.Bid
		party models.Party
	)
	err := s.tx(ctx, "Error countering bid", func(tx store.Repo) error {
		var err error
		if bid, err = lockBid(ctx, tx, bidID); err != nil {
			return err
		}
		var ok bool
		if party, ok = bid.PartyOf(actor.ID); !ok {
			return apperr.Forbidden("Not authorized to counter this bid")
		}
		now := s.now()
		if err := checkPending(bid, now); err != nil {
			return err
		}
		if bid.AwaitingAction != "" && bid.AwaitingAction != party {
			return apperr.Conflict("Not your turn to respond")
		}
		if in.Quantity != nil {
			listing, err := loadListing(ctx, tx, bid.ListingID)
			if err != nil {
				return err
			}
			if *in.Quantity > listing.Quantity {
				return apperr.Conflict("Requested quantity exceeds available quantity")
			}
			bid.Quantity = *in.Quantity
		}
		if in.Amount != nil {
			bid.Amount = *in.Amount
		}
		if in.Message != nil {
			msg := strings.TrimSpace(*in.Message)
			if party == models.PartyVendor {
				bid.SellerResponse = &models.SellerResponse{Message: msg, RespondedAt: now}
			} else {
				bid.Message = msg
			}
		}
		bid.AwaitingAction = party.Other()
		bid.UpdatedAt = now
		return tx.UpdateBid(ctx, bid)
	})
	if err != nil {
		return nil, err
	}

	to := bid.SellerID
	if party == models.PartyVendor {
		to = bid.BidderID
	}
	s.notifyUser(ctx, alerts.Notice{
		UserID:    to,
		Type:      alerts.NoticeBidCountered,
		Title:     "Counter offer received",
		Body:      fmt.Sprintf("New terms: %d at %.2f", bid.Quantity, bid.Amount),
		Reference: bid.ID,
	})
	s.publish(ctx, events.New(events.BidCountered, bid.ID, actor.ID, map[string]any{
		"amount":          bid.Amount,
		"quantity":        bid.Quantity,
		"awaiting_action": string(bid.AwaitingAction),
	}))
	return bid, nil
}

// Accept runs the acceptance cascade in one transaction: the bid is
// accepted, competing pending bids are rejected, the listing is marked sold
// and the order is created. Either all of it commits or none of it does.
func (s *Service) Accept(ctx context.Context, actor models.Actor, bidID, message string) (*models.Bid, *models.Order, error) {
	if err := authz.Require(actor, authz.BidAccept); err != nil {
		return nil, nil, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = acceptedResponse
	}

	var (
		bid      *models.Bid
		order    *models.Order
		rejected []models.Bid
	)
	err := s.tx(ctx, "Error accepting bid", func(tx store.Repo) error {
		// Lock order is listing, then bid, then competing bids.
		peek, err := loadBid(ctx, tx, bidID)
		if err != nil {
			return err
		}
		if peek.SellerID != actor.ID {
			return apperr.Forbidden("Not authorized to accept this bid")
		}
		listing, err := lockListing(ctx, tx, peek.ListingID)
		if err != nil {
			return err
		}
		if bid, err = lockBid(ctx, tx, bidID); err != nil {
			return err
		}
		if !listing.Sellable() {
			return apperr.Conflict("Product is no longer available")
		}
		now := s.now()
		if err := checkPending(bid, now); err != nil {
			return err
		}
		seq, err := tx.NextOrderSeq(ctx)
		if err != nil {
			return err
		}

		bid.Status = models.BidAccepted
		bid.SellerResponse = &models.SellerResponse{Message: message, RespondedAt: now}
		bid.AwaitingAction = ""
		bid.UpdatedAt = now
		if err := tx.UpdateBid(ctx, bid); err != nil {
			return err
		}

		rejected, err = tx.RejectPendingBids(ctx, listing.ID, bid.ID, models.SellerResponse{
			Message:     anotherAcceptedResponse,
			RespondedAt: now,
		})
		if err != nil {
			return err
		}

		sold, err := tx.MarkListingSold(ctx, listing.ID, models.Sale{BuyerID: bid.BidderID, Price: bid.Amount, At: now})
		if err != nil {
			return err
		}
		if !sold {
			return apperr.Conflict("Product is no longer available")
		}

		order = materialize(bid, listing, seq, now)
		if err := tx.CreateOrder(ctx, order); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.Conflict("Order already exists for this bid")
			}
			return err
		}
		return nil
	})
	if err != nil {
		if apperr.Is(err, apperr.KindFatal) {
			s.log.WithError(err).WithField("bid_id", bidID).Error("bid acceptance rolled back")
		}
		return nil, nil, err
	}

	lg := s.log.WithFields(logrus.Fields{"bid_id": bid.ID, "order_id": order.ID, "listing_id": bid.ListingID})
	lg.WithField("rejected", len(rejected)).Info("bid accepted")

	s.notifyUser(ctx, alerts.Notice{
		UserID:    bid.BidderID,
		Type:      alerts.NoticeBidAccepted,
		Title:     "Your bid was accepted",
		Body:      fmt.Sprintf("Order %s has been created", order.OrderNumber),
		Reference: order.ID,
	})
	for _, r := range rejected {
		s.notifyUser(ctx, alerts.Notice{
			UserID:    r.BidderID,
			Type:      alerts.NoticeBidRejected,
			Title:     "Your bid was not accepted",
			Body:      anotherAcceptedResponse,
			Reference: r.ID,
		})
		s.publish(ctx, events.New(events.BidRejected, r.ID, actor.ID, map[string]any{"reason": anotherAcceptedResponse}))
	}
	s.publish(ctx, events.New(events.BidAccepted, bid.ID, actor.ID, map[string]any{
		"listing_id": bid.ListingID,
		"order_id":   order.ID,
	}))
	s.publish(ctx, events.New(events.OrderCreated, order.ID, actor.ID, map[string]any{
		"bid_id":       bid.ID,
		"order_number": order.OrderNumber,
		"final_amount": order.FinalAmount,
	}))
	return bid, order, nil
}

// Reject declines a pending bid.
func (s *Service) Reject(ctx context.Context, actor models.Actor, bidID, message string) (*models.Bid, error) {
	if err := authz.Require(actor, authz.BidReject); err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = rejectedResponse
	}

	var bid *models.Bid
	err := s.tx(ctx, "Error rejecting bid", func(tx store.Repo) error {
		var err error
		if bid, err = lockBid(ctx, tx, bidID); err != nil {
			return err
		}
		if bid.SellerID != actor.ID {
			return apperr.Forbidden("Not authorized to reject this bid")
		}
		if bid.Status != models.BidPending {
			return apperr.Conflict("Bid is no longer pending")
		}
		now := s.now()
		bid.Status = models.BidRejected
		bid.SellerResponse = &models.SellerResponse{Message: message, RespondedAt: now}
		bid.AwaitingAction = ""
		bid.UpdatedAt = now
		return tx.UpdateBid(ctx, bid)
	})
	if err != nil {
		return nil, err
	}

	s.notifyUser(ctx, alerts.Notice{
		UserID:    bid.BidderID,
		Type:      alerts.NoticeBidRejected,
		Title:     "Your bid was rejected",
		Body:      message,
		Reference: bid.ID,
	})
	s.publish(ctx, events.New(events.BidRejected, bid.ID, actor.ID, map[string]any{"reason": message}))
	return bid, nil
}

// Withdraw lets the bidder pull a pending bid.
func (s *Service) Withdraw(ctx context.Context, actor models.Actor, bidID string) (*models.Bid, error) {
	if err := authz.Require(actor, authz.BidWithdraw); err != nil {
		return nil, err
	}

	var bid *models.Bid
	err := s.tx(ctx, "Error withdrawing bid", func(tx store.Repo) error {
		var err error
		if bid, err = lockBid(ctx, tx, bidID); err != nil {
			return err
		}
		if bid.BidderID != actor.ID {
			return apperr.Forbidden("Not authorized to withdraw this bid")
		}
		if bid.Status != models.BidPending {
			return apperr.Conflict("Bid is no longer pending")
		}
		bid.Status = models.BidWithdrawn
		bid.AwaitingAction = ""
		bid.UpdatedAt = s.now()
		return tx.UpdateBid(ctx, bid)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.New(events.BidWithdrawn, bid.ID, actor.ID, nil))
	return bid, nil
}

// GetBid shows a bid to its bidder, the seller or an admin.
func (s *Service) GetBid(ctx context.Context, actor models.Actor, id string) (*models.Bid, error) {
	bid, err := loadBid(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if _, ok := bid.PartyOf(actor.ID); !ok && !actor.IsAdmin() {
		return nil, apperr.Forbidden("Not authorized to view this bid")
	}
	return bid, nil
}

// ListBidsForListing is the seller's view of the bids on one product.
func (s *Service) ListBidsForListing(ctx context.Context, actor models.Actor, listingID string, status models.BidStatus, page models.Page) ([]models.Bid, int, error) {
	if err := authz.Require(actor, authz.BidReview); err != nil {
		return nil, 0, err
	}
	if err := checkStatusFilter(status); err != nil {
		return nil, 0, err
	}
	listing, err := loadListing(ctx, s.store, listingID)
	if err != nil {
		return nil, 0, err
	}
	if listing.SellerID != actor.ID && !actor.IsAdmin() {
		return nil, 0, apperr.Forbidden("Not authorized to view bids for this product")
	}
	return s.listBids(ctx, models.BidFilter{ListingID: listingID, Status: status}, page)
}

// ListMyBids returns the bids the actor has placed.
func (s *Service) ListMyBids(ctx context.Context, actor models.Actor, status models.BidStatus, page models.Page) ([]models.Bid, int, error) {
	if err := checkStatusFilter(status); err != nil {
		return nil, 0, err
	}
	return s.listBids(ctx, models.BidFilter{BidderID: actor.ID, Status: status}, page)
}

// ListVendorProposals returns bids received across all of a vendor's
// listings.
func (s *Service) ListVendorProposals(ctx context.Context, actor models.Actor, status models.BidStatus, page models.Page) ([]models.Bid, int, error) {
	if err := authz.Require(actor, authz.BidReview); err != nil {
		return nil, 0, err
	}
	if err := checkStatusFilter(status); err != nil {
		return nil, 0, err
	}
	return s.listBids(ctx, models.BidFilter{SellerID: actor.ID, Status: status}, page)
}

func (s *Service) listBids(ctx context.Context, f models.BidFilter, page models.Page) ([]models.Bid, int, error) {
	items, total, err := s.store.ListBids(ctx, f, page)
	if err != nil {
		return nil, 0, apperr.Fatal(err, "Error fetching bids")
	}
	return items, total, nil
}

// ExpireStaleBids moves pending bids past their validity to expired.
func (s *Service) ExpireStaleBids(ctx context.Context) (int, error) {
	n, err := s.store.ExpireBids(ctx, s.now())
	if err != nil {
		return 0, apperr.Fatal(err, "failed to expire bids")
	}
	if n > 0 {
		s.log.WithField("count", n).Info("stale bids expired")
	}
	return n, nil
}

func checkPending(bid *models.Bid, now time.Time) error {
	if bid.Status != models.BidPending {
		return apperr.Conflict("Bid is no longer pending")
	}
	if bid.Expired(now) {
		return apperr.Conflict("Bid has expired")
	}
	return nil
}

func checkStatusFilter(status models.BidStatus) error {
	if status != "" && !status.Valid() {
		return apperr.Invalid("Invalid status filter")
	}
	return nil
}

func loadBid(ctx context.Context, r store.Bids, id string) (*models.Bid, error) {
	bid, err := r.GetBid(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Bid not found")
	}
	if err != nil {
		return nil, apperr.Fatal(err, "failed to load bid")
	}
	return bid, nil
}

func lockBid(ctx context.Context, r store.Bids, id string) (*models.Bid, error) {
	bid, err := r.LockBid(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Bid not found")
	}
	if err != nil {
		return nil, err
	}
	return bid, nil
}
