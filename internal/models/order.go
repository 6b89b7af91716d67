package models

import "time"

type OrderStatus string

const (
	OrderActive    OrderStatus = "Active"
	OrderCompleted OrderStatus = "Completed"
	OrderCanceled  OrderStatus = "Canceled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderActive, OrderCompleted, OrderCanceled:
		return true
	}
	return false
}

// CanTransitionTo only allows leaving Active.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return s == OrderActive && (next == OrderCompleted || next == OrderCanceled)
}

// Side names who acted on an order.
type Side string

const (
	SideBuyer     Side = "buyer"
	SideSeller    Side = "seller"
	SideAdmin     Side = "admin"
	SideLogistics Side = "logistics"
)

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCheck        PaymentMethod = "check"
	PaymentCard         PaymentMethod = "card"
	PaymentOther        PaymentMethod = "other"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentBankTransfer, PaymentCheck, PaymentCard, PaymentOther:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type DeliveryMethod string

const (
	DeliveryPickup   DeliveryMethod = "pickup"
	DeliveryDelivery DeliveryMethod = "delivery"
	DeliveryShipping DeliveryMethod = "shipping"
)

func (m DeliveryMethod) Valid() bool {
	switch m {
	case DeliveryPickup, DeliveryDelivery, DeliveryShipping:
		return true
	}
	return false
}

type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
	ZipCode string `json:"zip_code,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

type Payment struct {
	Method        PaymentMethod `json:"method"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	Notes         string        `json:"notes,omitempty"`
}

type Delivery struct {
	Method            DeliveryMethod `json:"method"`
	TrackingNumber    string         `json:"tracking_number,omitempty"`
	Carrier           string         `json:"carrier,omitempty"`
	EstimatedDelivery *time.Time     `json:"estimated_delivery,omitempty"`
	ActualDelivery    *time.Time     `json:"actual_delivery,omitempty"`
	Notes             string         `json:"notes,omitempty"`
}

type OrderNotes struct {
	Buyer  string `json:"buyer,omitempty"`
	Seller string `json:"seller,omitempty"`
}

type Rating struct {
	Rating  int       `json:"rating"`
	Review  string    `json:"review,omitempty"`
	RatedAt time.Time `json:"rated_at"`
}

type Completion struct {
	CompletedBy  Side      `json:"completed_by"`
	CompletedAt  time.Time `json:"completed_at"`
	Notes        string    `json:"notes,omitempty"`
	BuyerRating  *Rating   `json:"buyer_rating,omitempty"`
	SellerRating *Rating   `json:"seller_rating,omitempty"`
}

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundCompleted RefundStatus = "completed"
)

type Cancellation struct {
	Reason       string       `json:"reason"`
	CanceledBy   Side         `json:"canceled_by"`
	CanceledAt   time.Time    `json:"canceled_at"`
	RefundAmount float64      `json:"refund_amount"`
	RefundStatus RefundStatus `json:"refund_status"`
}

const DefaultCancelReason = "No reason provided"

type Order struct {
	ID              string        `json:"id"`
	OrderNumber     string        `json:"order_number"`
	BuyerID         string        `json:"buyer_id"`
	SellerID        string        `json:"seller_id"`
	ListingID       string        `json:"listing_id"`
	BidID           string        `json:"bid_id,omitempty"`
	JobID           string        `json:"job_id,omitempty"`
	Quantity        int           `json:"quantity"`
	UnitPrice       float64       `json:"unit_price"`
	TotalAmount     float64       `json:"total_amount"`
	ShippingCost    float64       `json:"shipping_cost"`
	FinalAmount     float64       `json:"final_amount"`
	ShippingAddress *Address      `json:"shipping_address,omitempty"`
	Payment         Payment       `json:"payment"`
	Delivery        Delivery      `json:"delivery"`
	Notes           OrderNotes    `json:"notes"`
	Status          OrderStatus   `json:"status"`
	Completion      *Completion   `json:"completion,omitempty"`
	Cancellation    *Cancellation `json:"cancellation,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Recompute derives the totals from unit price, quantity and shipping.
func (o *Order) Recompute() {
	o.TotalAmount = o.UnitPrice * float64(o.Quantity)
	o.FinalAmount = o.TotalAmount + o.ShippingCost
}

// SideOf reports whether the user is the buyer or the seller.
func (o *Order) SideOf(userID string) (Side, bool) {
	switch userID {
	case o.BuyerID:
		return SideBuyer, true
	case o.SellerID:
		return SideSeller, true
	}
	return "", false
}

type OrderFilter struct {
	BuyerID  string
	SellerID string
	Status   OrderStatus
}

// Complete moves an Active order to Completed.
func (o *Order) Complete(by Side, notes string, at time.Time) {
	o.Status = OrderCompleted
	o.Completion = &Completion{CompletedBy: by, CompletedAt: at, Notes: notes}
	o.UpdatedAt = at
}

// Cancel moves an Active order to Canceled with a pending refund of the
// full final amount.
func (o *Order) Cancel(by Side, reason string, at time.Time) {
	if reason == "" {
		reason = DefaultCancelReason
	}
	o.Status = OrderCanceled
	o.Cancellation = &Cancellation{
		Reason:       reason,
		CanceledBy:   by,
		CanceledAt:   at,
		RefundAmount: o.FinalAmount,
		RefundStatus: RefundPending,
	}
	o.UpdatedAt = at
}
