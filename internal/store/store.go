// Package store defines persistence for the trade lifecycle. Every
// multi-entity write goes through WithTx so a failed cascade leaves no
// partial state behind.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sudo-init-do/stonemart/internal/models"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate")
)

type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, role models.Role, page models.Page) ([]models.User, int, error)
	UpdateUserRole(ctx context.Context, id string, role models.Role) error
	SetUserActive(ctx context.Context, id string, active bool) error
	SetPushToken(ctx context.Context, id, token string) error
	// ListUserIDs returns active users with the role, optionally only those
	// with a registered push channel.
	ListUserIDs(ctx context.Context, role models.Role, withPushToken bool) ([]string, error)
}

type Listings interface {
	CreateListing(ctx context.Context, l *models.Listing) error
	GetListing(ctx context.Context, id string) (*models.Listing, error)
	LockListing(ctx context.Context, id string) (*models.Listing, error)
	ListListings(ctx context.Context, activeOnly bool, page models.Page) ([]models.Listing, int, error)
	// MarkListingSold flips an active, unsold listing to sold. It reports
	// false when the listing was no longer sellable.
	MarkListingSold(ctx context.Context, id string, sale models.Sale) (bool, error)
}

type Bids interface {
	CreateBid(ctx context.Context, b *models.Bid) error
	GetBid(ctx context.Context, id string) (*models.Bid, error)
	LockBid(ctx context.Context, id string) (*models.Bid, error)
	UpdateBid(ctx context.Context, b *models.Bid) error
	HasPendingBid(ctx context.Context, bidderID, listingID string) (bool, error)
	ListBids(ctx context.Context, f models.BidFilter, page models.Page) ([]models.Bid, int, error)
	// RejectPendingBids rejects every pending bid on the listing except one
	// and returns the bids it rejected.
	RejectPendingBids(ctx context.Context, listingID, exceptID string, resp models.SellerResponse) ([]models.Bid, error)
	ExpireBids(ctx context.Context, now time.Time) (int, error)
}

type Orders interface {
	NextOrderSeq(ctx context.Context) (int64, error)
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	LockOrder(ctx context.Context, id string) (*models.Order, error)
	GetOrderByBid(ctx context.Context, bidID string) (*models.Order, error)
	UpdateOrder(ctx context.Context, o *models.Order) error
	ListOrders(ctx context.Context, f models.OrderFilter, page models.Page) ([]models.Order, int, error)
}

type Invoices interface {
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	GetInvoice(ctx context.Context, id string) (*models.Invoice, error)
	UpdateInvoice(ctx context.Context, inv *models.Invoice) error
	ListInvoicesForBid(ctx context.Context, bidID string) ([]models.Invoice, error)
}

type Jobs interface {
	CreateJob(ctx context.Context, j *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	LockJob(ctx context.Context, id string) (*models.Job, error)
	UpdateJob(ctx context.Context, j *models.Job) error
	// AssignJob moves an open job to assigned for the driver. It reports
	// false when the job was no longer open.
	AssignJob(ctx context.Context, id, driverID string, entry models.JobStatusEntry) (bool, error)
	ListJobs(ctx context.Context, f models.JobFilter) ([]models.Job, error)
	// ListDriverJobs returns open public jobs plus the driver's own jobs.
	ListDriverJobs(ctx context.Context, driverID string) ([]models.Job, error)
}

type Shipments interface {
	CreateShipment(ctx context.Context, s *models.Shipment) error
	GetShipment(ctx context.Context, id string) (*models.Shipment, error)
	LockShipment(ctx context.Context, id string) (*models.Shipment, error)
	UpdateShipment(ctx context.Context, s *models.Shipment) error
	// SetShipmentLocation stores the point unless a newer one is already
	// recorded. It reports whether the point was applied.
	SetShipmentLocation(ctx context.Context, id string, p models.GeoPoint, at time.Time) (bool, error)
	InsertLocationPing(ctx context.Context, p *models.LocationPing) error
	ListLocationPings(ctx context.Context, q models.LocationQuery) ([]models.LocationPing, error)
	PruneLocationPings(ctx context.Context, before time.Time) (int64, error)
}

type Disputes interface {
	CreateDispute(ctx context.Context, d *models.Dispute) error
	GetDispute(ctx context.Context, id string) (*models.Dispute, error)
	GetOpenDispute(ctx context.Context, orderID string) (*models.Dispute, error)
	// SettleDispute writes d only while the stored dispute is still in
	// status from. It reports false when another writer got there first.
	SettleDispute(ctx context.Context, d *models.Dispute, from models.DisputeStatus) (bool, error)
	ListDisputes(ctx context.Context, f models.DisputeFilter, page models.Page) ([]models.Dispute, int, error)
}

type Channels interface {
	CreateChannel(ctx context.Context, c *models.Channel) error
	GetChannel(ctx context.Context, id string) (*models.Channel, error)
	FindDirectChannel(ctx context.Context, a, b string) (*models.Channel, error)
	CreateMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, channelID string, page models.Page) ([]models.Message, error)
}

type Notifications interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) (bool, error)
}

type KYC interface {
	GetKYC(ctx context.Context, userID string) (*models.KYC, error)
	// SaveKYC inserts or replaces the user's record.
	SaveKYC(ctx context.Context, k *models.KYC) error
	// ReviewKYC writes the verdict only while the record is pending and
	// reports false otherwise.
	ReviewKYC(ctx context.Context, k *models.KYC) (bool, error)
	ListKYC(ctx context.Context, status models.KYCStatus, page models.Page) ([]models.KYC, int, error)
}

type EventLog interface {
	AppendEvent(ctx context.Context, e *models.Event) error
}

// Repo is the full set of persistence operations.
type Repo interface {
	Users
	Listings
	Bids
	Orders
	Invoices
	Jobs
	Shipments
	Disputes
	Channels
	Notifications
	KYC
	EventLog
}

// Store is a Repo that can also run a function atomically. If fn returns
// an error nothing it wrote is kept.
type Store interface {
	Repo
	WithTx(ctx context.Context, fn func(Repo) error) error
}
