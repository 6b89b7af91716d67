// Package memstore is an in-memory store.Store. Transactions run against a
// copy of the data set under a single lock and replace it on success.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store"
)

type data struct {
	users         map[string]models.User
	listings      map[string]models.Listing
	bids          map[string]models.Bid
	orders        map[string]models.Order
	invoices      map[string]models.Invoice
	jobs          map[string]models.Job
	shipments     map[string]models.Shipment
	disputes      map[string]models.Dispute
	channels      map[string]models.Channel
	kyc           map[string]models.KYC
	pings         []models.LocationPing
	messages      []models.Message
	notifications []models.Notification
	events        []models.Event
	orderSeq      int64
}

func newData() *data {
	return &data{
		users:     map[string]models.User{},
		listings:  map[string]models.Listing{},
		bids:      map[string]models.Bid{},
		orders:    map[string]models.Order{},
		invoices:  map[string]models.Invoice{},
		jobs:      map[string]models.Job{},
		shipments: map[string]models.Shipment{},
		disputes:  map[string]models.Dispute{},
		channels:  map[string]models.Channel{},
		kyc:       map[string]models.KYC{},
	}
}

// clone copies the maps and slices. Stored values are never mutated in
// place, so sharing their inner slices is safe.
func (d *data) clone() *data {
	return &data{
		users:         maps.Clone(d.users),
		listings:      maps.Clone(d.listings),
		bids:          maps.Clone(d.bids),
		orders:        maps.Clone(d.orders),
		invoices:      maps.Clone(d.invoices),
		jobs:          maps.Clone(d.jobs),
		shipments:     maps.Clone(d.shipments),
		disputes:      maps.Clone(d.disputes),
		channels:      maps.Clone(d.channels),
		kyc:           maps.Clone(d.kyc),
		pings:         slices.Clone(d.pings),
		messages:      slices.Clone(d.messages),
		notifications: slices.Clone(d.notifications),
		events:        slices.Clone(d.events),
		orderSeq:      d.orderSeq,
	}
}

type repo struct {
	mu *sync.Mutex
	d  *data
}

func (r *repo) lock() func() {
	if r.mu == nil {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

type Store struct {
	repo
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{repo: repo{mu: &sync.Mutex{}, d: newData()}}
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Repo) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &repo{d: s.d.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.d = tx.d
	return nil
}

func paginate[T any](items []T, page models.Page) []T {
	p := page.Normalize()
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func newestFirst[T any](items []T, created func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		return created(items[i]).After(created(items[j]))
	})
}

// Users

func (r *repo) CreateUser(_ context.Context, u *models.User) error {
	defer r.lock()()
	for _, existing := range r.d.users {
		if existing.Email == u.Email {
			return store.ErrDuplicate
		}
	}
	r.d.users[u.ID] = *u
	return nil
}

func (r *repo) GetUser(_ context.Context, id string) (*models.User, error) {
	defer r.lock()()
	u, ok := r.d.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (r *repo) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	defer r.lock()()
	for _, u := range r.d.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *repo) ListUsers(_ context.Context, role models.Role, page models.Page) ([]models.User, int, error) {
	defer r.lock()()
	var out []models.User
	for _, u := range r.d.users {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	newestFirst(out, func(u models.User) time.Time { return u.CreatedAt })
	return paginate(out, page), len(out), nil
}

func (r *repo) updateUser(id string, fn func(*models.User)) error {
	u, ok := r.d.users[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(&u)
	r.d.users[id] = u
	return nil
}

func (r *repo) UpdateUserRole(_ context.Context, id string, role models.Role) error {
	defer r.lock()()
	return r.updateUser(id, func(u *models.User) { u.Role = role })
}

func (r *repo) SetUserActive(_ context.Context, id string, active bool) error {
	defer r.lock()()
	return r.updateUser(id, func(u *models.User) { u.IsActive = active })
}

func (r *repo) SetPushToken(_ context.Context, id, token string) error {
	defer r.lock()()
	return r.updateUser(id, func(u *models.User) { u.PushToken = token })
}

func (r *repo) ListUserIDs(_ context.Context, role models.Role, withPushToken bool) ([]string, error) {
	defer r.lock()()
	var ids []string
	for _, u := range r.d.users {
		if u.Role != role || !u.IsActive {
			continue
		}
		if withPushToken && u.PushToken == "" {
			continue
		}
		ids = append(ids, u.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// Listings

func (r *repo) CreateListing(_ context.Context, l *models.Listing) error {
	defer r.lock()()
	if _, ok := r.d.listings[l.ID]; ok {
		return store.ErrDuplicate
	}
	r.d.listings[l.ID] = *l
	return nil
}

func (r *repo) GetListing(_ context.Context, id string) (*models.Listing, error) {
	defer r.lock()()
	l, ok := r.d.listings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &l, nil
}

func (r *repo) LockListing(ctx context.Context, id string) (*models.Listing, error) {
	return r.GetListing(ctx, id)
}

func (r *repo) ListListings(_ context.Context, activeOnly bool, page models.Page) ([]models.Listing, int, error) {
	defer r.lock()()
	var out []models.Listing
	for _, l := range r.d.listings {
		if activeOnly && !l.Sellable() {
			continue
		}
		out = append(out, l)
	}
	newestFirst(out, func(l models.Listing) time.Time { return l.CreatedAt })
	return paginate(out, page), len(out), nil
}

func (r *repo) MarkListingSold(_ context.Context, id string, sale models.Sale) (bool, error) {
	defer r.lock()()
	l, ok := r.d.listings[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if !l.Sellable() {
		return false, nil
	}
	at := sale.At
	l.IsSold = true
	l.IsActive = false
	l.SoldTo = sale.BuyerID
	l.SoldPrice = sale.Price
	l.SoldAt = &at
	l.UpdatedAt = at
	r.d.listings[id] = l
	return true, nil
}

// Bids

func (r *repo) CreateBid(_ context.Context, b *models.Bid) error {
	defer r.lock()()
	if b.Status == models.BidPending && r.hasPending(b.BidderID, b.ListingID) {
		return store.ErrDuplicate
	}
	r.d.bids[b.ID] = *b
	return nil
}

func (r *repo) GetBid(_ context.Context, id string) (*models.Bid, error) {
	defer r.lock()()
	b, ok := r.d.bids[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (r *repo) LockBid(ctx context.Context, id string) (*models.Bid, error) {
	return r.GetBid(ctx, id)
}

func (r *repo) UpdateBid(_ context.Context, b *models.Bid) error {
	defer r.lock()()
	if _, ok := r.d.bids[b.ID]; !ok {
		return store.ErrNotFound
	}
	r.d.bids[b.ID] = *b
	return nil
}

func (r *repo) hasPending(bidderID, listingID string) bool {
	for _, b := range r.d.bids {
		if b.BidderID == bidderID && b.ListingID == listingID && b.Status == models.BidPending {
			return true
		}
	}
	return false
}

func (r *repo) HasPendingBid(_ context.Context, bidderID, listingID string) (bool, error) {
	defer r.lock()()
	return r.hasPending(bidderID, listingID), nil
}

func (r *repo) ListBids(_ context.Context, f models.BidFilter, page models.Page) ([]models.Bid, int, error) {
	defer r.lock()()
	var out []models.Bid
	for _, b := range r.d.bids {
		if f.BidderID != "" && b.BidderID != f.BidderID {
			continue
		}
		if f.SellerID != "" && b.SellerID != f.SellerID {
			continue
		}
		if f.ListingID != "" && b.ListingID != f.ListingID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		out = append(out, b)
	}
	newestFirst(out, func(b models.Bid) time.Time { return b.CreatedAt })
	return paginate(out, page), len(out), nil
}

func (r *repo) RejectPendingBids(_ context.Context, listingID, exceptID string, resp models.SellerResponse) ([]models.Bid, error) {
	defer r.lock()()
	var rejected []models.Bid
	for id, b := range r.d.bids {
		if b.ListingID != listingID || b.ID == exceptID || b.Status != models.BidPending {
			continue
		}
		sr := resp
		b.Status = models.BidRejected
		b.SellerResponse = &sr
		b.AwaitingAction = ""
		b.UpdatedAt = resp.RespondedAt
		r.d.bids[id] = b
		rejected = append(rejected, b)
	}
	return rejected, nil
}

func (r *repo) ExpireBids(_ context.Context, now time.Time) (int, error) {
	defer r.lock()()
	n := 0
	for id, b := range r.d.bids {
		if !b.Expired(now) {
			continue
		}
		b.Status = models.BidExpired
		b.AwaitingAction = ""
		b.UpdatedAt = now
		r.d.bids[id] = b
		n++
	}
	return n, nil
}

// Orders

func (r *repo) NextOrderSeq(_ context.Context) (int64, error) {
	defer r.lock()()
	r.d.orderSeq++
	return r.d.orderSeq, nil
}

func (r *repo) CreateOrder(_ context.Context, o *models.Order) error {
	defer r.lock()()
	if o.BidID != "" {
		for _, existing := range r.d.orders {
			if existing.BidID == o.BidID {
				return store.ErrDuplicate
			}
		}
	}
	r.d.orders[o.ID] = *o
	return nil
}

func (r *repo) GetOrder(_ context.Context, id string) (*models.Order, error) {
	defer r.lock()()
	o, ok := r.d.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (r *repo) LockOrder(ctx context.Context, id string) (*models.Order, error) {
	return r.GetOrder(ctx, id)
}

func (r *repo) GetOrderByBid(_ context.Context, bidID string) (*models.Order, error) {
	defer r.lock()()
	for _, o := range r.d.orders {
		if o.BidID == bidID {
			return &o, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *repo) UpdateOrder(_ context.Context, o *models.Order) error {
	defer r.lock()()
	if _, ok := r.d.orders[o.ID]; !ok {
		return store.ErrNotFound
	}
	r.d.orders[o.ID] = *o
	return nil
}

func (r *repo) ListOrders(_ context.Context, f models.OrderFilter, page models.Page) ([]models.Order, int, error) {
	defer r.lock()()
	var out []models.Order
	for _, o := range r.d.orders {
		if f.BuyerID != "" && o.BuyerID != f.BuyerID {
			continue
		}
		if f.SellerID != "" && o.SellerID != f.SellerID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
	}
	newestFirst(out, func(o models.Order) time.Time { return o.CreatedAt })
	return paginate(out, page), len(out), nil
}

// Invoices

func (r *repo) CreateInvoice(_ context.Context, inv *models.Invoice) error {
	defer r.lock()()
	r.d.invoices[inv.ID] = *inv
	return nil
}

func (r *repo) GetInvoice(_ context.Context, id string) (*models.Invoice, error) {
	defer r.lock()()
	inv, ok := r.d.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &inv, nil
}

func (r *repo) UpdateInvoice(_ context.Context, inv *models.Invoice) error {
	defer r.lock()()
	if _, ok := r.d.invoices[inv.ID]; !ok {
		return store.ErrNotFound
	}
	r.d.invoices[inv.ID] = *inv
	return nil
}

func (r *repo) ListInvoicesForBid(_ context.Context, bidID string) ([]models.Invoice, error) {
	defer r.lock()()
	var out []models.Invoice
	for _, inv := range r.d.invoices {
		if inv.BidID == bidID {
			out = append(out, inv)
		}
	}
	newestFirst(out, func(i models.Invoice) time.Time { return i.CreatedAt })
	return out, nil
}

// Jobs

func (r *repo) CreateJob(_ context.Context, j *models.Job) error {
	defer r.lock()()
	cp := *j
	cp.History = slices.Clone(j.History)
	r.d.jobs[j.ID] = cp
	return nil
}

func (r *repo) GetJob(_ context.Context, id string) (*models.Job, error) {
	defer r.lock()()
	j, ok := r.d.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	j.History = slices.Clone(j.History)
	return &j, nil
}

func (r *repo) LockJob(ctx context.Context, id string) (*models.Job, error) {
	return r.GetJob(ctx, id)
}

func (r *repo) UpdateJob(_ context.Context, j *models.Job) error {
	defer r.lock()()
	if _, ok := r.d.jobs[j.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *j
	cp.History = slices.Clone(j.History)
	r.d.jobs[j.ID] = cp
	return nil
}

func (r *repo) AssignJob(_ context.Context, id, driverID string, entry models.JobStatusEntry) (bool, error) {
	defer r.lock()()
	j, ok := r.d.jobs[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if j.Status != models.JobOpen {
		return false, nil
	}
	j.DriverID = driverID
	j.Status = models.JobAssigned
	j.History = append(slices.Clone(j.History), entry)
	j.UpdatedAt = entry.UpdatedAt
	r.d.jobs[id] = j
	return true, nil
}

func (r *repo) ListJobs(_ context.Context, f models.JobFilter) ([]models.Job, error) {
	defer r.lock()()
	var out []models.Job
	for _, j := range r.d.jobs {
		if f.VendorID != "" && j.VendorID != f.VendorID {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		out = append(out, j)
	}
	newestFirst(out, func(j models.Job) time.Time { return j.CreatedAt })
	return out, nil
}

func (r *repo) ListDriverJobs(_ context.Context, driverID string) ([]models.Job, error) {
	defer r.lock()()
	var out []models.Job
	for _, j := range r.d.jobs {
		open := j.Status == models.JobOpen && j.VisibleTo == models.VisibleToAll
		if open || j.DriverID == driverID {
			out = append(out, j)
		}
	}
	newestFirst(out, func(j models.Job) time.Time { return j.CreatedAt })
	return out, nil
}

// Shipments

func (r *repo) CreateShipment(_ context.Context, s *models.Shipment) error {
	defer r.lock()()
	for _, existing := range r.d.shipments {
		if existing.JobID == s.JobID {
			return store.ErrDuplicate
		}
	}
	r.d.shipments[s.ID] = cloneShipment(*s)
	return nil
}

func (r *repo) GetShipment(_ context.Context, id string) (*models.Shipment, error) {
	defer r.lock()()
	s, ok := r.d.shipments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	s = cloneShipment(s)
	return &s, nil
}

func (r *repo) LockShipment(ctx context.Context, id string) (*models.Shipment, error) {
	return r.GetShipment(ctx, id)
}

func (r *repo) UpdateShipment(_ context.Context, s *models.Shipment) error {
	defer r.lock()()
	if _, ok := r.d.shipments[s.ID]; !ok {
		return store.ErrNotFound
	}
	r.d.shipments[s.ID] = cloneShipment(*s)
	return nil
}

func (r *repo) SetShipmentLocation(_ context.Context, id string, p models.GeoPoint, at time.Time) (bool, error) {
	defer r.lock()()
	s, ok := r.d.shipments[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if s.LastLocationUpdate != nil && s.LastLocationUpdate.After(at) {
		return false, nil
	}
	pt := p
	ts := at
	s.CurrentLocation = &pt
	s.LastLocationUpdate = &ts
	s.UpdatedAt = at
	r.d.shipments[id] = s
	return true, nil
}

func (r *repo) InsertLocationPing(_ context.Context, p *models.LocationPing) error {
	defer r.lock()()
	r.d.pings = append(r.d.pings, *p)
	return nil
}

func (r *repo) ListLocationPings(_ context.Context, q models.LocationQuery) ([]models.LocationPing, error) {
	defer r.lock()()
	var out []models.LocationPing
	for _, p := range r.d.pings {
		if p.ShipmentID != q.ShipmentID {
			continue
		}
		if q.From != nil && p.RecordedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && p.RecordedAt.After(*q.To) {
			continue
		}
		out = append(out, p)
	}
	newestFirst(out, func(p models.LocationPing) time.Time { return p.RecordedAt })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *repo) PruneLocationPings(_ context.Context, before time.Time) (int64, error) {
	defer r.lock()()
	kept := r.d.pings[:0:0]
	var n int64
	for _, p := range r.d.pings {
		if p.RecordedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, p)
	}
	r.d.pings = kept
	return n, nil
}

func cloneShipment(s models.Shipment) models.Shipment {
	s.History = slices.Clone(s.History)
	s.Items = slices.Clone(s.Items)
	return s
}

// Disputes

func (r *repo) CreateDispute(_ context.Context, d *models.Dispute) error {
	defer r.lock()()
	if d.Status == models.DisputeOpen {
		for _, existing := range r.d.disputes {
			if existing.OrderID == d.OrderID && existing.Status == models.DisputeOpen {
				return store.ErrDuplicate
			}
		}
	}
	r.d.disputes[d.ID] = *d
	return nil
}

func (r *repo) GetDispute(_ context.Context, id string) (*models.Dispute, error) {
	defer r.lock()()
	d, ok := r.d.disputes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &d, nil
}

func (r *repo) GetOpenDispute(_ context.Context, orderID string) (*models.Dispute, error) {
	defer r.lock()()
	for _, d := range r.d.disputes {
		if d.OrderID == orderID && d.Status == models.DisputeOpen {
			return &d, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *repo) SettleDispute(_ context.Context, d *models.Dispute, from models.DisputeStatus) (bool, error) {
	defer r.lock()()
	cur, ok := r.d.disputes[d.ID]
	if !ok {
		return false, store.ErrNotFound
	}
	if cur.Status != from {
		return false, nil
	}
	r.d.disputes[d.ID] = *d
	return true, nil
}

func (r *repo) ListDisputes(_ context.Context, f models.DisputeFilter, page models.Page) ([]models.Dispute, int, error) {
	defer r.lock()()
	var out []models.Dispute
	for _, d := range r.d.disputes {
		if f.Member != "" && !d.Involves(f.Member) {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		out = append(out, d)
	}
	newestFirst(out, func(d models.Dispute) time.Time { return d.CreatedAt })
	return paginate(out, page), len(out), nil
}

// Channels

func (r *repo) CreateChannel(_ context.Context, c *models.Channel) error {
	defer r.lock()()
	cp := *c
	cp.Members = slices.Clone(c.Members)
	r.d.channels[c.ID] = cp
	return nil
}

func (r *repo) GetChannel(_ context.Context, id string) (*models.Channel, error) {
	defer r.lock()()
	c, ok := r.d.channels[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c.Members = slices.Clone(c.Members)
	return &c, nil
}

func (r *repo) FindDirectChannel(_ context.Context, a, b string) (*models.Channel, error) {
	defer r.lock()()
	for _, c := range r.d.channels {
		if c.Kind == models.ChannelDirect && len(c.Members) == 2 && c.HasMember(a) && c.HasMember(b) {
			c.Members = slices.Clone(c.Members)
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *repo) CreateMessage(_ context.Context, m *models.Message) error {
	defer r.lock()()
	cp := *m
	cp.Metadata = maps.Clone(m.Metadata)
	r.d.messages = append(r.d.messages, cp)
	return nil
}

func (r *repo) ListMessages(_ context.Context, channelID string, page models.Page) ([]models.Message, error) {
	defer r.lock()()
	var out []models.Message
	for _, m := range r.d.messages {
		if m.ChannelID == channelID {
			out = append(out, m)
		}
	}
	newestFirst(out, func(m models.Message) time.Time { return m.CreatedAt })
	return paginate(out, page), nil
}

// Notifications

func (r *repo) CreateNotification(_ context.Context, n *models.Notification) error {
	defer r.lock()()
	r.d.notifications = append(r.d.notifications, *n)
	return nil
}

func (r *repo) ListNotifications(_ context.Context, userID string) ([]models.Notification, error) {
	defer r.lock()()
	var out []models.Notification
	for _, n := range r.d.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	newestFirst(out, func(n models.Notification) time.Time { return n.CreatedAt })
	return out, nil
}

func (r *repo) MarkNotificationRead(_ context.Context, id, userID string) (bool, error) {
	defer r.lock()()
	for i, n := range r.d.notifications {
		if n.ID == id && n.UserID == userID && n.ReadAt == nil {
			now := time.Now()
			r.d.notifications[i].ReadAt = &now
			return true, nil
		}
	}
	return false, nil
}

// KYC

func (r *repo) GetKYC(_ context.Context, userID string) (*models.KYC, error) {
	defer r.lock()()
	k, ok := r.d.kyc[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &k, nil
}

func (r *repo) SaveKYC(_ context.Context, k *models.KYC) error {
	defer r.lock()()
	r.d.kyc[k.UserID] = *k
	return nil
}

func (r *repo) ReviewKYC(_ context.Context, k *models.KYC) (bool, error) {
	defer r.lock()()
	cur, ok := r.d.kyc[k.UserID]
	if !ok || cur.Status != models.KYCPending {
		return false, nil
	}
	cur.Status = k.Status
	cur.RejectionReason = k.RejectionReason
	cur.ReviewedBy = k.ReviewedBy
	cur.ReviewedAt = k.ReviewedAt
	r.d.kyc[k.UserID] = cur
	return true, nil
}

func (r *repo) ListKYC(_ context.Context, status models.KYCStatus, page models.Page) ([]models.KYC, int, error) {
	defer r.lock()()
	var out []models.KYC
	for _, k := range r.d.kyc {
		if status == "" || k.Status == status {
			out = append(out, k)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return paginate(out, page), len(out), nil
}

// Events

func (r *repo) AppendEvent(_ context.Context, e *models.Event) error {
	defer r.lock()()
	for _, existing := range r.d.events {
		if existing.ID == e.ID {
			return nil
		}
	}
	r.d.events = append(r.d.events, *e)
	return nil
}

// Events returns the archived events, oldest first.
func (s *Store) Events() []models.Event {
	defer s.lock()()
	return slices.Clone(s.d.events)
}
