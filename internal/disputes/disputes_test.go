package disputes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/stonemart/internal/alerts"
	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/events"
	"github.com/sudo-init-do/stonemart/internal/messaging"
	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store/memstore"
)

type recordingNotifier struct {
	mu    sync.Mutex
	users []alerts.Notice
	roles []models.Role
}

func (r *recordingNotifier) NotifyUser(_ context.Context, n alerts.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, n)
	return nil
}

func (r *recordingNotifier) NotifyRole(_ context.Context, role models.Role, _ bool, _ alerts.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles = append(r.roles, role)
	return nil
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

type fixture struct {
	st     *memstore.Store
	svc    *Service
	msgs   *messaging.Service
	notes  *recordingNotifier
	pub    *recordingPublisher
	buyer  models.Actor
	vendor models.Actor
	admin  models.Actor
	order  *models.Order
}

func quietLogger() *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	return lg
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
	f.buyer = addUser(models.RoleBuyer)
	f.vendor = addUser(models.RoleVendor)
	f.admin = addUser(models.RoleAdmin)

	f.order = &models.Order{
		ID:          gofakeit.UUID(),
		OrderNumber: "ORD-1700000000000-0001",
		BuyerID:     f.buyer.ID,
		SellerID:    f.vendor.ID,
		ListingID:   gofakeit.UUID(),
		Quantity:    25,
		UnitPrice:   85,
		Status:      models.OrderActive,
		CreatedAt:   time.Now(),
	}
	f.order.Recompute()
	require.NoError(t, st.CreateOrder(ctx, f.order))

	f.msgs = messaging.NewService(st, messaging.NewHubs(), alerts.Discard{}, quietLogger())
	f.svc = NewService(st, f.msgs, f.notes, f.pub, quietLogger())
	return f
}

func TestOpenDisputeBuildsChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Open(ctx, f.buyer, f.order.ID, "Slabs arrived cracked")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeOpen, d.Status)
	assert.Equal(t, f.vendor.ID, d.VendorID)

	ch, err := f.st.GetChannel(ctx, d.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelDispute, ch.Kind)
	assert.ElementsMatch(t, []string{f.buyer.ID, f.vendor.ID, f.admin.ID}, ch.Members)

	require.Len(t, f.notes.users, 1)
	assert.Equal(t, f.vendor.ID, f.notes.users[0].UserID)
	assert.Equal(t, []models.Role{models.RoleAdmin}, f.notes.roles)
	require.Len(t, f.pub.events, 1)
	assert.Equal(t, events.DisputeOpened, f.pub.events[0].Type)
}

func TestOpenDisputeGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Open(ctx, f.vendor, f.order.ID, "vendor cannot open")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	other := models.Actor{ID: gofakeit.UUID(), Role: models.RoleBuyer}
	_, err = f.svc.Open(ctx, other, f.order.ID, "not my order")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = f.svc.Open(ctx, f.buyer, f.order.ID, "  ")
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))

	_, err = f.svc.Open(ctx, f.buyer, "missing", "where is it")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	// admins may open on behalf of a buyer
	d, err := f.svc.Open(ctx, f.admin, f.order.ID, "Escalated by support")
	require.NoError(t, err)
	assert.Equal(t, f.admin.ID, d.CreatedBy)
	assert.Equal(t, f.buyer.ID, d.BuyerID)
}

func TestSecondOpenDisputeConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Open(ctx, f.buyer, f.order.ID, "Wrong colour")
	require.NoError(t, err)

	_, err = f.svc.Open(ctx, f.buyer, f.order.ID, "Still wrong colour")
	require.True(t, apperr.Is(err, apperr.KindConflict))
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, first.ID, ae.Details["disputeId"])

	// once settled a new dispute can be opened
	_, err = f.svc.UpdateStatus(ctx, f.admin, first.ID, models.DisputeClosed)
	require.NoError(t, err)
	_, err = f.svc.Open(ctx, f.buyer, f.order.ID, "New problem")
	assert.NoError(t, err)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, err := f.svc.Open(ctx, f.buyer, f.order.ID, "Short delivery")
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, f.buyer, d.ID, models.DisputeResolved)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = f.svc.UpdateStatus(ctx, f.admin, d.ID, "escalated")
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))

	_, err = f.svc.UpdateStatus(ctx, f.admin, d.ID, models.DisputeOpen)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	got, err := f.svc.UpdateStatus(ctx, f.admin, d.ID, models.DisputeResolved)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeResolved, got.Status)
	assert.Equal(t, f.admin.ID, got.ResolvedBy)
	require.NotNil(t, got.ResolvedAt)

	msgs, err := f.msgs.List(ctx, f.buyer, d.ChannelID, models.Page{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MessageSystem, msgs[0].Kind)
	assert.Equal(t, "Dispute Resolved Successfully", msgs[0].Text)

	_, err = f.svc.UpdateStatus(ctx, f.admin, d.ID, models.DisputeClosed)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "terminal disputes cannot be reopened or re-settled")
}

// staleReads holds the first two GetDispute callers until both have read,
// so both see the dispute while it is still open.
type staleReads struct {
	*memstore.Store
	mu      sync.Mutex
	n       int
	arrived sync.WaitGroup
}

func newStaleReads(st *memstore.Store) *staleReads {
	r := &staleReads{Store: st}
	r.arrived.Add(2)
	return r
}

func (r *staleReads) GetDispute(ctx context.Context, id string) (*models.Dispute, error) {
	d, err := r.Store.GetDispute(ctx, id)
	r.mu.Lock()
	r.n++
	join := r.n <= 2
	r.mu.Unlock()
	if join {
		r.arrived.Done()
		r.arrived.Wait()
	}
	return d, err
}

func TestConcurrentSettleSingleOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	second := &models.User{ID: gofakeit.UUID(), Name: gofakeit.Name(), Email: gofakeit.Email(), Role: models.RoleAdmin, IsActive: true, CreatedAt: time.Now()}
	require.NoError(t, f.st.CreateUser(ctx, second))
	other := models.Actor{ID: second.ID, Role: models.RoleAdmin}

	d, err := f.svc.Open(ctx, f.buyer, f.order.ID, "Wrong finish delivered")
	require.NoError(t, err)
	svc := NewService(newStaleReads(f.st), f.msgs, f.notes, f.pub, quietLogger())

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	settle := []struct {
		actor models.Actor
		next  models.DisputeStatus
	}{
		{f.admin, models.DisputeResolved},
		{other, models.DisputeClosed},
	}
	for i, s := range settle {
		wg.Add(1)
		go func(i int, actor models.Actor, next models.DisputeStatus) {
			defer wg.Done()
			_, errs[i] = svc.UpdateStatus(ctx, actor, d.ID, next)
		}(i, s.actor, s.next)
	}
	wg.Wait()

	var winner int
	failures := 0
	for i, err := range errs {
		if err == nil {
			winner = i
			continue
		}
		failures++
		require.True(t, apperr.Is(err, apperr.KindConflict), err)
		assert.Contains(t, err.Error(), "Dispute is already")
	}
	require.Equal(t, 1, failures)

	got, err := f.st.GetDispute(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, settle[winner].next, got.Status)
	assert.Equal(t, settle[winner].actor.ID, got.ResolvedBy)

	msgs, err := f.msgs.List(ctx, f.buyer, d.ChannelID, models.Page{})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestListAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, err := f.svc.Open(ctx, f.buyer, f.order.ID, "Late")
	require.NoError(t, err)

	for _, who := range []models.Actor{f.buyer, f.vendor} {
		items, total, err := f.svc.ListMine(ctx, who, models.Page{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, d.ID, items[0].ID)
	}

	stranger := models.Actor{ID: gofakeit.UUID(), Role: models.RoleDriver}
	_, err = f.svc.Get(ctx, stranger, d.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, _, err = f.svc.List(ctx, f.buyer, "", models.Page{})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	items, total, err := f.svc.List(ctx, f.admin, models.DisputeOpen, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, items, 1)
}

func TestOpenDisputeHandlerReturnsExistingID(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(quietLogger())
	e.POST("/disputes", h.OpenDispute, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("user_id", f.buyer.ID)
			c.Set("role", string(f.buyer.Role))
			return next(c)
		}
	})

	open := func() *httptest.ResponseRecorder {
		body := `{"orderId":"` + f.order.ID + `","reason":"` + gofakeit.Sentence(5) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/disputes", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	first := open()
	require.Equal(t, http.StatusCreated, first.Code)
	var created struct {
		Dispute models.Dispute `json:"dispute"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &created))

	second := open()
	require.Equal(t, http.StatusConflict, second.Code)
	var conflict map[string]any
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &conflict))
	assert.Equal(t, created.Dispute.ID, conflict["disputeId"])
	assert.Equal(t, false, conflict["success"])
}
