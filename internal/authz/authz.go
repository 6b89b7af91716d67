// Package authz holds the role capability table for every trade operation.
// Ownership checks (is this the listing's seller, the job's driver) stay
// with the operation; this table answers only "may this role attempt it".
package authz

import (
	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/models"
)

type Action string

const (
	ListingCreate Action = "listing.create"

	BidPropose  Action = "bid.propose"
	BidCounter  Action = "bid.counter"
	BidAccept   Action = "bid.accept"
	BidReject   Action = "bid.reject"
	BidWithdraw Action = "bid.withdraw"
	BidReview   Action = "bid.review"

	OrderCreate Action = "order.create"
	OrderUpdate Action = "order.update"
	OrderRate   Action = "order.rate"
	OrderPay    Action = "order.pay"

	InvoiceSend Action = "invoice.send"

	JobPost         Action = "job.post"
	JobClaim        Action = "job.claim"
	JobUpdateStatus Action = "job.update_status"
	JobBrowse       Action = "job.browse"
	JobVendorList   Action = "job.vendor_list"
	LocationReport  Action = "location.report"

	DisputeOpen   Action = "dispute.open"
	DisputeUpdate Action = "dispute.update"
	DisputeAdmin  Action = "dispute.admin"

	KYCSubmit Action = "kyc.submit"
	KYCReview Action = "kyc.review"
)

var (
	buyers  = []models.Role{models.RoleBuyer, models.RoleVendor}
	parties = []models.Role{models.RoleBuyer, models.RoleVendor, models.RoleAdmin}
)

var capabilities = map[Action][]models.Role{
	ListingCreate: {models.RoleVendor, models.RoleAdmin},

	BidPropose:  buyers,
	BidCounter:  buyers,
	BidAccept:   {models.RoleVendor},
	BidReject:   {models.RoleVendor},
	BidWithdraw: buyers,
	BidReview:   {models.RoleVendor, models.RoleAdmin},

	OrderCreate: {models.RoleVendor},
	OrderUpdate: parties,
	OrderRate:   buyers,
	OrderPay:    buyers,

	InvoiceSend: {models.RoleVendor},

	JobPost:         {models.RoleVendor, models.RoleAdmin},
	JobClaim:        {models.RoleDriver},
	JobUpdateStatus: {models.RoleVendor, models.RoleDriver, models.RoleAdmin},
	JobBrowse:       {models.RoleDriver, models.RoleAdmin},
	JobVendorList:   {models.RoleVendor, models.RoleAdmin},
	LocationReport:  {models.RoleDriver},

	DisputeOpen:   {models.RoleBuyer, models.RoleAdmin},
	DisputeUpdate: {models.RoleAdmin},
	DisputeAdmin:  {models.RoleAdmin},

	KYCSubmit: {models.RoleDriver},
	KYCReview: {models.RoleAdmin},
}

var denials = map[Action]string{
	ListingCreate:   "Only vendors can create listings",
	BidAccept:       "Only the seller can accept bids",
	BidReject:       "Only the seller can reject bids",
	BidReview:       "Only the seller can view bids for this product",
	OrderCreate:     "Only sellers can create orders",
	InvoiceSend:     "Only vendors can send invoices",
	JobPost:         "Only vendors can create cargo jobs",
	JobClaim:        "Only drivers can accept jobs",
	JobBrowse:       "Access restricted to drivers",
	JobVendorList:   "Access restricted to vendors",
	LocationReport:  "Only drivers can report locations",
	DisputeOpen:     "Only the buyer can open a dispute",
	DisputeUpdate:   "Admin access only",
	DisputeAdmin:    "Admin access only",
	JobUpdateStatus: "Not authorized to update this job",
	KYCSubmit:       "KYC is available for driver accounts only.",
	KYCReview:       "Admin access only",
}

// Can reports whether the actor's role may attempt the action.
func Can(actor models.Actor, action Action) bool {
	for _, r := range capabilities[action] {
		if r == actor.Role {
			return true
		}
	}
	return false
}

// Require returns a Forbidden error when the actor's role may not attempt
// the action.
func Require(actor models.Actor, action Action) error {
	if Can(actor, action) {
		return nil
	}
	msg, ok := denials[action]
	if !ok {
		msg = "You are not allowed to perform this action"
	}
	return apperr.Forbidden("%s", msg)
}
