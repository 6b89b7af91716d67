package marketplace

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/stonemart/internal/alerts"
	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/events"
	"github.com/sudo-init-do/stonemart/internal/messaging"
	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store"
	"github.com/sudo-init-do/stonemart/internal/store/memstore"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []alerts.Notice
}

func (r *recordingNotifier) NotifyUser(_ context.Context, n alerts.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return nil
}

func (r *recordingNotifier) NotifyRole(context.Context, models.Role, bool, alerts.Notice) error {
	return nil
}

func (r *recordingNotifier) to(userID string, typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.notices {
		if x.UserID == userID && x.Type == typ {
			n++
		}
	}
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) count(typ string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func quietLogger() *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	return lg
}

type fixture struct {
	st     *memstore.Store
	svc    *Service
	msgs   *messaging.Service
	notes  *recordingNotifier
	pub    *recordingPublisher
	vendor models.Actor
	buyer  models.Actor
	rival  models.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	f := &fixture{st: st, notes: &recordingNotifier{}, pub: &recordingPublisher{}}

	addUser := func(role models.Role) models.Actor {
		u := &models.User{ID: gofakeit.UUID(), Name: gofakeit.Name(), Email: gofakeit.Email(), Role: role, IsActive: true, CreatedAt: time.Now()}
		require.NoError(t, st.CreateUser(ctx, u))
		return models.Actor{ID: u.ID, Role: role}
	}
	f.vendor = addUser(models.RoleVendor)
	f.buyer = addUser(models.RoleBuyer)
	f.rival = addUser(models.RoleBuyer)

	f.msgs = messaging.NewService(st, messaging.NewHubs(), alerts.Discard{}, quietLogger())
	f.svc = NewService(st, f.msgs, f.notes, f.pub, quietLogger(), Options{})
	return f
}

func (f *fixture) listing(t *testing.T, qty int, shipping float64) *models.Listing {
	t.Helper()
	l, err := f.svc.CreateListing(context.Background(), f.vendor, ListingInput{
		Title:        "Calacatta " + gofakeit.Color() + " slab",
		Price:        90,
		Quantity:     qty,
		ShippingCost: shipping,
	})
	require.NoError(t, err)
	return l
}

func (f *fixture) bid(t *testing.T, who models.Actor, listingID string, amount float64, qty int) *models.Bid {
	t.Helper()
	b, err := f.svc.Propose(context.Background(), who, ProposeInput{ListingID: listingID, Amount: amount, Quantity: qty, Message: gofakeit.Sentence(6)})
	require.NoError(t, err)
	return b
}

func TestCreateListingDefaults(t *testing.T) {
	f := newFixture(t)
	l := f.listing(t, 100, 0)
	assert.Equal(t, "sqft", l.Unit)
	assert.True(t, l.Sellable())

	_, err := f.svc.CreateListing(context.Background(), f.buyer, ListingInput{Title: "x", Price: 1, Quantity: 1})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = f.svc.GetListing(context.Background(), "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestProposeGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, 50, 0)

	tests := []struct {
		name  string
		actor models.Actor
		in    ProposeInput
		kind  apperr.Kind
	}{
		{"missing fields", f.buyer, ProposeInput{ListingID: l.ID}, apperr.KindInvalidRequest},
		{"negative amount", f.buyer, ProposeInput{ListingID: l.ID, Amount: -3, Quantity: 1}, apperr.KindInvalidRequest},
		{"negative quantity", f.buyer, ProposeInput{ListingID: l.ID, Amount: 3, Quantity: -1}, apperr.KindInvalidRequest},
		{"unknown listing", f.buyer, ProposeInput{ListingID: "nope", Amount: 3, Quantity: 1}, apperr.KindNotFound},
		{"self bid", f.vendor, ProposeInput{ListingID: l.ID, Amount: 3, Quantity: 1}, apperr.KindConflict},
		{"too many", f.buyer, ProposeInput{ListingID: l.ID, Amount: 3, Quantity: 51}, apperr.KindConflict},
		{"driver", models.Actor{ID: gofakeit.UUID(), Role: models.RoleDriver}, ProposeInput{ListingID: l.ID, Amount: 3, Quantity: 1}, apperr.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Propose(ctx, tt.actor, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	long := ProposeInput{ListingID: l.ID, Amount: 3, Quantity: 1, Message: gofakeit.LetterN(models.MaxBidMessageLen + 1)}
	_, err := f.svc.Propose(ctx, f.buyer, long)
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))

	b := f.bid(t, f.buyer, l.ID, 40, 10)
	assert.Equal(t, models.BidPending, b.Status)
	assert.Equal(t, models.PartyVendor, b.AwaitingAction)
	assert.WithinDuration(t, time.Now().Add(defaultBidValidity), b.ValidUntil, time.Minute)
	assert.Equal(t, 1, f.notes.to(f.vendor.ID, alerts.NoticeBidReceived))

	_, err = f.svc.Propose(ctx, f.buyer, ProposeInput{ListingID: l.ID, Amount: 41, Quantity: 10})
	require.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, "You already have a pending bid on this product", messageOf(t, err))
}

func TestAcceptCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, 2500, 150)

	win := f.bid(t, f.buyer, l.ID, 85, 25)
	lose := f.bid(t, f.rival, l.ID, 80, 30)

	bid, order, err := f.svc.Accept(ctx, f.vendor, win.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.BidAccepted, bid.Status)
	require.NotNil(t, bid.SellerResponse)
	assert.Equal(t, "Bid accepted", bid.SellerResponse.Message)
	assert.Empty(t, bid.AwaitingAction)

	sold, err := f.st.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, sold.IsSold)
	assert.False(t, sold.IsActive)
	assert.Equal(t, f.buyer.ID, sold.SoldTo)
	assert.Equal(t, 85.0, sold.SoldPrice)

	assert.Equal(t, 2125.0, order.TotalAmount)
	assert.Equal(t, 2275.0, order.FinalAmount)
	assert.Equal(t, win.ID, order.BidID)
	assert.Equal(t, models.OrderActive, order.Status)
	assert.Regexp(t, `^ORD-\d+-\d{4}$`, order.OrderNumber)
	require.NotNil(t, order.Delivery.EstimatedDelivery)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, defaultDeliveryDays), *order.Delivery.EstimatedDelivery, time.Minute)

	other, err := f.st.GetBid(ctx, lose.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BidRejected, other.Status)
	assert.Equal(t, "Another bid was accepted", other.SellerResponse.Message)

	assert.Equal(t, 1, f.notes.to(f.buyer.ID, alerts.NoticeBidAccepted))
	assert.Equal(t, 1, f.notes.to(f.rival.ID, alerts.NoticeBidRejected))
	assert.Equal(t, 1, f.pub.count(events.BidAccepted))
	assert.Equal(t, 1, f.pub.count(events.OrderCreated))

	_, err = f.svc.Propose(ctx, f.rival, ProposeInput{ListingID: l.ID, Amount: 90, Quantity: 1})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestAcceptTwiceLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, 100, 0)
	b := f.bid(t, f.buyer, l.ID, 70, 5)

	_, first, err := f.svc.Accept(ctx, f.vendor, b.ID, "Deal")
	require.NoError(t, err)

	_, _, err = f.svc.Accept(ctx, f.vendor, b.ID, "Deal again")
	require.True(t, apperr.Is(err, apperr.KindConflict))

	orders, total, err := f.st.ListOrders(ctx, models.OrderFilter{SellerID: f.vendor.ID}, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, first.ID, orders[0].ID)
	got, err := f.st.GetBid(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Deal", got.SellerResponse.Message)
}

func TestConcurrentAcceptSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, 100, 0)
	bids := []*models.Bid{
		f.bid(t, f.buyer, l.ID, 70, 5),
		f.bid(t, f.rival, l.ID, 72, 5),
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		errs []error
	)
	for _, b := range bids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _, err := f.svc.Accept(ctx, f.vendor, id, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			errs = append(errs, err)
		}(b.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	require.Len(t, errs, 1)
	assert.True(t, apperr.Is(errs[0], apperr.KindConflict))
	assert.Equal(t, "Product is no longer available", messageOf(t, errs[0]))

	_, total, err := f.st.ListOrders(ctx, models.OrderFilter{SellerID: f.vendor.ID}, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	all, _, err := f.st.ListBids(ctx, models.BidFilter{ListingID: l.ID}, models.Page{})
	require.NoError(t, err)
	accepted := 0
	for _, b := range all {
		if b.Status == models.BidAccepted {
			accepted++
		} else {
			assert.Equal(t, models.BidRejected, b.Status)
		}
	}
	assert.Equal(t, 1, accepted)
}

// failingOrders hands out transaction repos whose CreateOrder fails.
type failingOrders struct {
	*memstore.Store
}

type failingOrdersTx struct {
	store.Repo
}

func (failingOrdersTx) CreateOrder(context.Context, *models.Order) error {
	return errors.New("disk full")
}

func (s failingOrders) WithTx(ctx context.Context, fn func(store.Repo) error) error {
	return s.Store.WithTx(ctx, func(tx store.Repo) error {
		return fn(failingOrdersTx{tx})
	})
}

func TestAcceptRollsBackWhenOrderFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, 100, 0)
	win := f.bid(t, f.buyer, l.ID, 70, 5)
	other := f.bid(t, f.rival, l.ID, 68, 5)

	svc := NewService(failingOrders{f.st}, f.msgs, f.notes, f.pub, quietLogger(), Options{})
	_, _, err := svc.Accept(ctx, f.vendor, win.ID, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindFatal, apperr.KindOf(err))
	assert.Equal(t, "Error accepting bid", messageOf(t, err))

	got, err := f.st.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.False(t, got.IsSold)
	assert.True(t, got.IsActive)

	for _, id := range []string{win.ID, other.ID} {
		b, err := f.st.GetBid(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.BidPending, b.Status)
		assert.Nil(t, b.SellerResponse)
	}

	_, total, err := f.st.ListOrders(ctx, models.OrderFilter{SellerID: f.vendor.ID}, models.Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, f.notes.to(f.buyer.ID, alerts.NoticeBidAccepted))
	assert.Zero(t, f.pub.count(events.BidAccepted))
}

func TestAcceptGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, 100, 0)
	b := f.bid(t, f.buyer, l.ID, 70, 5)

	_, _, err := f.svc.Accept(ctx, f.buyer, b.ID, "")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	otherVendor := models.Actor{ID: gofakeit.UUID(), Role: models.RoleVendor}
	_, _, err = f.svc.Accept(ctx, otherVendor, b.ID, "")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, _, err = f.svc.Accept(ctx, f.vendor, "missing", "")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	f.svc.now = func() time.Time { return time.Now().UTC().Add(defaultBidValidity + time.Hour) }
	_, _, err = f.svc.Accept(ctx, f.vendor, b.ID, "")
	require.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, "Bid has expired", messageOf(t, err))

	n, err := f.svc.ExpireStaleBids(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := f.st.GetBid(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BidExpired, got.Status)

	listing, err := f.st.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.False(t, listing.IsSold)
}

func TestCounterTurnGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, 100, 0)
	b := f.bid(t, f.buyer, l.ID, 60, 10)

	price := 65.0
	_, err := f.svc.Counter(ctx, f.buyer, b.ID, CounterInput{Amount: &price})
	require.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, "Not your turn to respond", messageOf(t, err))

	price = 75
	msg := "Best I can do"
	got, err := f.svc.Counter(ctx, f.vendor, b.ID, CounterInput{Amount: &price, Message: &msg})
	require.NoError(t, err)
	assert.Equal(t, 75.0, got.Amount)
	assert.Equal(t, models.PartyBuyer, got.AwaitingAction)
	require.NotNil(t, got.SellerResponse)
	assert.Equal(t, msg, got.SellerResponse.Message)
	assert.Equal(t, 1, f.notes.to(f.buyer.ID, alerts.NoticeBidCountered))

	qty := 12
	got, err = f.svc.Counter(ctx, f.buyer, b.ID, CounterInput{Quantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, 12, got.Quantity)
	assert.Equal(t, models.PartyVendor, got.AwaitingAction)

	_, err = f.svc.Counter(ctx, f.rival, b.ID, CounterInput{Quantity: &qty})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	tooMany := 101
	_, err = f.svc.Counter(ctx, f.vendor, b.ID, CounterInput{Quantity: &tooMany})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = f.svc.Counter(ctx, f.vendor, b.ID, CounterInput{})
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))
}

func TestRejectAndWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, 100, 0)
	b1 := f.bid(t, f.buyer, l.ID, 60, 10)
	b2 := f.bid(t, f.rival, l.ID, 61, 10)

	_, err := f.svc.Reject(ctx, f.buyer, b1.ID, "")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	got, err := f.svc.Reject(ctx, f.vendor, b1.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.BidRejected, got.Status)
	assert.Equal(t, "Bid rejected", got.SellerResponse.Message)

	_, err = f.svc.Reject(ctx, f.vendor, b1.ID, "")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	_, err = f.svc.Withdraw(ctx, f.buyer, b1.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = f.svc.Withdraw(ctx, f.buyer, b2.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	got, err = f.svc.Withdraw(ctx, f.rival, b2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BidWithdrawn, got.Status)

	// a terminal bid frees the buyer to bid again
	f.bid(t, f.buyer, l.ID, 62, 10)
}

func TestBidQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, 100, 0)
	b := f.bid(t, f.buyer, l.ID, 60, 10)
	f.bid(t, f.rival, l.ID, 61, 10)

	items, total, err := f.svc.ListBidsForListing(ctx, f.vendor, l.ID, "", models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	_, _, err = f.svc.ListBidsForListing(ctx, models.Actor{ID: gofakeit.UUID(), Role: models.RoleVendor}, l.ID, "", models.Page{})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, _, err = f.svc.ListBidsForListing(ctx, f.vendor, l.ID, "bogus", models.Page{})
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))

	items, total, err = f.svc.ListMyBids(ctx, f.buyer, models.BidPending, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, b.ID, items[0].ID)

	_, total, err = f.svc.ListVendorProposals(ctx, f.vendor, "", models.Page{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, err = f.svc.GetBid(ctx, f.rival, b.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = f.svc.GetBid(ctx, models.Actor{ID: gofakeit.UUID(), Role: models.RoleAdmin}, b.ID)
	assert.NoError(t, err)
}

func acceptedOrder(t *testing.T, f *fixture) *models.Order {
	t.Helper()
	l := f.listing(t, 500, 40)
	b := f.bid(t, f.buyer, l.ID, 85, 25)
	_, o, err := f.svc.Accept(context.Background(), f.vendor, b.ID, "")
	require.NoError(t, err)
	return o
}

func TestRatingRequiresCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := acceptedOrder(t, f)

	_, err := f.svc.AddRating(ctx, f.buyer, o.ID, RatingInput{Rating: 5})
	require.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, "Can only rate completed orders", messageOf(t, err))

	_, err = f.svc.UpdateOrderStatus(ctx, f.buyer, o.ID, StatusInput{Status: models.OrderCompleted, Notes: "All slabs intact"})
	require.NoError(t, err)

	_, err = f.svc.AddRating(ctx, f.buyer, o.ID, RatingInput{Rating: 6})
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))

	got, err := f.svc.AddRating(ctx, f.buyer, o.ID, RatingInput{Rating: 5, Review: "Great stone"})
	require.NoError(t, err)
	require.NotNil(t, got.Completion.BuyerRating)
	assert.Equal(t, 5, got.Completion.BuyerRating.Rating)
	assert.Nil(t, got.Completion.SellerRating)

	_, err = f.svc.AddRating(ctx, f.buyer, o.ID, RatingInput{Rating: 4})
	require.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, "You have already rated this order", messageOf(t, err))

	_, err = f.svc.AddRating(ctx, f.vendor, o.ID, RatingInput{Rating: 4})
	assert.NoError(t, err)

	_, err = f.svc.AddRating(ctx, f.rival, o.ID, RatingInput{Rating: 4})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestOrderStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := acceptedOrder(t, f)

	_, err := f.svc.UpdateOrderStatus(ctx, f.buyer, o.ID, StatusInput{Status: "Shipped"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))

	_, err = f.svc.UpdateOrderStatus(ctx, f.rival, o.ID, StatusInput{Status: models.OrderCanceled})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	got, err := f.svc.UpdateOrderStatus(ctx, f.vendor, o.ID, StatusInput{Status: models.OrderCanceled})
	require.NoError(t, err)
	require.NotNil(t, got.Cancellation)
	assert.Equal(t, models.SideSeller, got.Cancellation.CanceledBy)
	assert.Equal(t, models.DefaultCancelReason, got.Cancellation.Reason)
	assert.Equal(t, got.FinalAmount, got.Cancellation.RefundAmount)
	assert.Equal(t, models.RefundPending, got.Cancellation.RefundStatus)
	assert.Equal(t, 1, f.pub.count(events.OrderCanceled))

	_, err = f.svc.UpdateOrderStatus(ctx, f.buyer, o.ID, StatusInput{Status: models.OrderCompleted})
	require.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, "Cannot change order status from Canceled to Completed", messageOf(t, err))

	_, err = f.svc.UpdateOrderDetails(ctx, f.buyer, o.ID, DetailsInput{})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestUpdateOrderDetailsMerges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := acceptedOrder(t, f)

	carrier := "Stone Freight"
	method := models.DeliveryDelivery
	note := "Leave at gate"
	got, err := f.svc.UpdateOrderDetails(ctx, f.buyer, o.ID, DetailsInput{
		ShippingAddress: &models.Address{Street: gofakeit.Street(), City: gofakeit.City()},
		Delivery:        &DeliveryPatch{Method: &method, Carrier: &carrier},
		Notes:           &note,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryDelivery, got.Delivery.Method)
	assert.Equal(t, carrier, got.Delivery.Carrier)
	assert.NotNil(t, got.Delivery.EstimatedDelivery, "untouched fields are kept")
	assert.Equal(t, note, got.Notes.Buyer)
	assert.Empty(t, got.Notes.Seller)
	assert.Equal(t, o.FinalAmount, got.FinalAmount)

	paid := models.PaymentPaid
	got, err = f.svc.UpdateOrderDetails(ctx, f.vendor, o.ID, DetailsInput{Payment: &PaymentPatch{Status: &paid}})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.Payment.Status)
	assert.NotNil(t, got.Payment.PaidAt)

	bad := models.PaymentMethod("barter")
	_, err = f.svc.UpdateOrderDetails(ctx, f.vendor, o.ID, DetailsInput{Payment: &PaymentPatch{Method: &bad}})
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))
}

func TestCreateOrderFromBid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, 100, 0)
	b := f.bid(t, f.buyer, l.ID, 60, 10)

	_, err := f.svc.CreateOrder(ctx, f.vendor, b.ID)
	require.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, "Bid must be accepted to create an order", messageOf(t, err))

	_, _, err = f.svc.Accept(ctx, f.vendor, b.ID, "")
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(ctx, f.vendor, b.ID)
	require.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, "Order already exists for this bid", messageOf(t, err))
}

func TestCreateDirectOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, 100, 25)

	o, err := f.svc.CreateDirectOrder(ctx, f.vendor, DirectOrderInput{ListingID: l.ID, BuyerID: f.buyer.ID, Quantity: 4, UnitPrice: 50})
	require.NoError(t, err)
	assert.Equal(t, 200.0, o.TotalAmount)
	assert.Equal(t, 225.0, o.FinalAmount)
	assert.Empty(t, o.BidID)

	listing, err := f.st.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.False(t, listing.IsSold)

	_, err = f.svc.CreateDirectOrder(ctx, f.vendor, DirectOrderInput{ListingID: l.ID, BuyerID: "ghost", Quantity: 1, UnitPrice: 5})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.GetOrder(ctx, f.rival, o.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	items, total, err := f.svc.ListBuyerOrders(ctx, f.buyer, models.OrderActive, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, o.ID, items[0].ID)
}

func TestSendInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, 500, 40)
	b := f.bid(t, f.buyer, l.ID, 85, 25)

	_, err := f.svc.SendInvoice(ctx, f.vendor, b.ID, InvoiceInput{})
	require.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, "Only accepted bids can be invoiced", messageOf(t, err))

	_, order, err := f.svc.Accept(ctx, f.vendor, b.ID, "")
	require.NoError(t, err)

	_, err = f.svc.SendInvoice(ctx, models.Actor{ID: gofakeit.UUID(), Role: models.RoleVendor}, b.ID, InvoiceInput{})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	inv, err := f.svc.SendInvoice(ctx, f.vendor, b.ID, InvoiceInput{Notes: "Net 30"})
	require.NoError(t, err)
	assert.Regexp(t, `^INV-\d+-[A-Z]{4}$`, inv.InvoiceNumber)
	assert.Equal(t, 2125.0, inv.Subtotal)
	assert.Equal(t, 2165.0, inv.TotalAmount)
	assert.Equal(t, order.ID, inv.OrderID)
	assert.Equal(t, "usd", inv.Currency)
	assert.NotEmpty(t, inv.ChannelID)
	assert.NotEmpty(t, inv.MessageID)

	got, err := f.st.GetBid(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.InvoiceID)
	assert.Equal(t, models.PartyBuyer, got.AwaitingAction)

	msgs, err := f.msgs.List(ctx, f.buyer, inv.ChannelID, models.Page{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MessageInvoice, msgs[0].Kind)
	assert.Equal(t, inv.ID, msgs[0].Metadata["invoiceId"])
	assert.Equal(t, 1, f.notes.to(f.buyer.ID, alerts.NoticeInvoiceSent))

	_, err = f.svc.SendInvoice(ctx, f.vendor, b.ID, InvoiceInput{})
	require.True(t, apperr.Is(err, apperr.KindConflict))
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, inv.ID, ae.Details["invoiceId"])

	_, err = f.svc.GetInvoice(ctx, f.rival, inv.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = f.svc.GetInvoice(ctx, f.buyer, inv.ID)
	assert.NoError(t, err)
}

func messageOf(t *testing.T, err error) string {
	t.Helper()
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	return ae.Message
}
