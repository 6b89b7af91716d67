package models

import "time"

type InvoiceStatus string

const (
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

type Invoice struct {
	ID              string        `json:"id"`
	InvoiceNumber   string        `json:"invoice_number"`
	BidID           string        `json:"bid_id"`
	OrderID         string        `json:"order_id,omitempty"`
	BuyerID         string        `json:"buyer_id"`
	SellerID        string        `json:"seller_id"`
	ListingID       string        `json:"listing_id"`
	Quantity        int           `json:"quantity"`
	UnitPrice       float64       `json:"unit_price"`
	Subtotal        float64       `json:"subtotal"`
	ShippingCost    float64       `json:"shipping_cost"`
	TotalAmount     float64       `json:"total_amount"`
	Currency        string        `json:"currency"`
	Status          InvoiceStatus `json:"status"`
	Notes           string        `json:"notes,omitempty"`
	ChannelID       string        `json:"channel_id,omitempty"`
	MessageID       string        `json:"message_id,omitempty"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty"`
	SentAt          time.Time     `json:"sent_at"`
	PaidAt          *time.Time    `json:"paid_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Blocking reports whether this invoice prevents sending another for the
// same bid.
func (i *Invoice) Blocking() bool {
	return i.Status == InvoiceSent || i.Status == InvoicePaid
}
