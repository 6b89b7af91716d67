package models

import "time"

type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeResolved DisputeStatus = "resolved"
	DisputeClosed   DisputeStatus = "closed"
)

func (s DisputeStatus) Valid() bool {
	switch s {
	case DisputeOpen, DisputeResolved, DisputeClosed:
		return true
	}
	return false
}

func (s DisputeStatus) Terminal() bool {
	return s == DisputeResolved || s == DisputeClosed
}

type Dispute struct {
	ID         string        `json:"id"`
	OrderID    string        `json:"order_id"`
	BuyerID    string        `json:"buyer_id"`
	VendorID   string        `json:"vendor_id"`
	CreatedBy  string        `json:"created_by"`
	ChannelID  string        `json:"channel_id"`
	Reason     string        `json:"reason"`
	Status     DisputeStatus `json:"status"`
	ResolvedBy string        `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Involves reports whether the user is a party to the dispute.
func (d *Dispute) Involves(userID string) bool {
	return userID == d.BuyerID || userID == d.VendorID || userID == d.CreatedBy
}

type DisputeFilter struct {
	// Member matches buyer, vendor or creator.
	Member string
	Status DisputeStatus
}
