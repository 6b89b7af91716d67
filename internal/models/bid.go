package models

import "time"

type BidStatus string

const (
	BidPending   BidStatus = "pending"
	BidAccepted  BidStatus = "accepted"
	BidRejected  BidStatus = "rejected"
	BidWithdrawn BidStatus = "withdrawn"
	BidExpired   BidStatus = "expired"
)

func (s BidStatus) Valid() bool {
	switch s {
	case BidPending, BidAccepted, BidRejected, BidWithdrawn, BidExpired:
		return true
	}
	return false
}

// Terminal bids accept no further mutation.
func (s BidStatus) Terminal() bool {
	return s != BidPending
}

// Party is one side of a bid negotiation.
type Party string

const (
	PartyBuyer  Party = "buyer"
	PartyVendor Party = "vendor"
)

func (p Party) Other() Party {
	if p == PartyBuyer {
		return PartyVendor
	}
	return PartyBuyer
}

const MaxBidMessageLen = 500

type SellerResponse struct {
	Message     string    `json:"message"`
	RespondedAt time.Time `json:"responded_at"`
}

type Bid struct {
	ID             string          `json:"id"`
	BidderID       string          `json:"bidder_id"`
	ListingID      string          `json:"listing_id"`
	SellerID       string          `json:"seller_id"`
	Amount         float64         `json:"amount"`
	Quantity       int             `json:"quantity"`
	Message        string          `json:"message,omitempty"`
	Status         BidStatus       `json:"status"`
	SellerResponse *SellerResponse `json:"seller_response,omitempty"`
	AwaitingAction Party           `json:"awaiting_action,omitempty"`
	InvoiceID      string          `json:"invoice_id,omitempty"`
	ValidUntil     time.Time       `json:"valid_until"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Expired reports whether a pending bid has outlived its validity window.
func (b *Bid) Expired(now time.Time) bool {
	return b.Status == BidPending && !b.ValidUntil.IsZero() && now.After(b.ValidUntil)
}

// PartyOf returns the negotiation side the user plays on this bid.
func (b *Bid) PartyOf(userID string) (Party, bool) {
	switch userID {
	case b.BidderID:
		return PartyBuyer, true
	case b.SellerID:
		return PartyVendor, true
	}
	return "", false
}

type BidFilter struct {
	BidderID  string
	SellerID  string
	ListingID string
	Status    BidStatus
}
