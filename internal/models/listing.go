package models

import "time"

// Listing is a catalog item as seen by the inventory guard.
type Listing struct {
	ID           string     `json:"id"`
	SellerID     string     `json:"seller_id"`
	Title        string     `json:"title"`
	Price        float64    `json:"price"`
	Quantity     int        `json:"quantity"`
	Unit         string     `json:"unit"`
	ShippingCost float64    `json:"shipping_cost"`
	LeadTimeDays int        `json:"lead_time_days,omitempty"`
	IsActive     bool       `json:"is_active"`
	IsSold       bool       `json:"is_sold"`
	SoldTo       string     `json:"sold_to,omitempty"`
	SoldPrice    float64    `json:"sold_price,omitempty"`
	SoldAt       *time.Time `json:"sold_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Sellable reports whether the listing can still take bids.
func (l *Listing) Sellable() bool {
	return l.IsActive && !l.IsSold
}

// Sale is what the inventory guard records when a listing is sold.
type Sale struct {
	BuyerID string
	Price   float64
	At      time.Time
}
