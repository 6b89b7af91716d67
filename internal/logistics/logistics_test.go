package logistics

import (
	"context"
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
	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store/memstore"
)

type roleCall struct {
	role     models.Role
	pushOnly bool
}

type recordingNotifier struct {
	mu    sync.Mutex
	users []alerts.Notice
	roles []roleCall
}

func (r *recordingNotifier) NotifyUser(_ context.Context, n alerts.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, n)
	return nil
}

func (r *recordingNotifier) NotifyRole(_ context.Context, role models.Role, pushOnly bool, _ alerts.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles = append(r.roles, roleCall{role, pushOnly})
	return nil
}

type memCache struct {
	mu     sync.Mutex
	latest map[string]models.LocationPing
}

func (m *memCache) Put(_ context.Context, p models.LocationPing) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.latest[p.ShipmentID]; ok && cur.RecordedAt.After(p.RecordedAt) {
		return false, nil
	}
	m.latest[p.ShipmentID] = p
	return true, nil
}

func (m *memCache) Latest(_ context.Context, id string) (*models.LocationPing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.latest[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memCache) Subscribe(context.Context, string) (<-chan models.LocationPing, func() error) {
	ch := make(chan models.LocationPing)
	close(ch)
	return ch, func() error { return nil }
}

type fixture struct {
	st      *memstore.Store
	svc     *Service
	notes   *recordingNotifier
	cache   *memCache
	vendor  models.Actor
	buyer   models.Actor
	driverA models.Actor
	driverB models.Actor
	admin   models.Actor
	order   *models.Order
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
	f := &fixture{st: st, notes: &recordingNotifier{}, cache: &memCache{latest: map[string]models.LocationPing{}}}

	actor := func(role models.Role) models.Actor {
		u := &models.User{ID: gofakeit.UUID(), Name: gofakeit.Name(), Email: gofakeit.Email(), Role: role, IsActive: true, CreatedAt: time.Now()}
		require.NoError(t, st.CreateUser(ctx, u))
		return models.Actor{ID: u.ID, Role: role}
	}
	f.vendor = actor(models.RoleVendor)
	f.buyer = actor(models.RoleBuyer)
	f.driverA = actor(models.RoleDriver)
	f.driverB = actor(models.RoleDriver)
	f.admin = actor(models.RoleAdmin)

	listing := &models.Listing{ID: gofakeit.UUID(), SellerID: f.vendor.ID, Title: "Travertine tiles", Price: 40, Quantity: 200, Unit: "sqft", IsActive: true, CreatedAt: time.Now()}
	require.NoError(t, st.CreateListing(ctx, listing))
	f.order = &models.Order{
		ID:          gofakeit.UUID(),
		OrderNumber: "ORD-1700000000000-0007",
		BuyerID:     f.buyer.ID,
		SellerID:    f.vendor.ID,
		ListingID:   listing.ID,
		Quantity:    40,
		UnitPrice:   38,
		Status:      models.OrderActive,
		CreatedAt:   time.Now(),
	}
	f.order.Recompute()
	require.NoError(t, st.CreateOrder(ctx, f.order))

	f.svc = NewService(st, f.cache, f.notes, events.Noop{}, quietLogger())
	return f
}

func place() models.Place {
	return models.Place{
		Address:   gofakeit.Street(),
		City:      gofakeit.City(),
		Latitude:  gofakeit.Latitude(),
		Longitude: gofakeit.Longitude(),
	}
}

func (f *fixture) postJob(t *testing.T) *models.Job {
	t.Helper()
	job, err := f.svc.PostJob(context.Background(), f.vendor, PostJobInput{
		OrderID:     f.order.ID,
		Origin:      place(),
		Destination: place(),
		Cargo:       models.Cargo{Weight: 1200},
		Price:       350,
	})
	require.NoError(t, err)
	return job
}

func assertDriverMatchesStatus(t *testing.T, j *models.Job) {
	t.Helper()
	assert.Equal(t, j.Status.HasDriver(), j.DriverID != "", "driver set iff status is %s", j.Status)
}

func TestPostJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.postJob(t)

	assert.Equal(t, models.JobOpen, job.Status)
	assert.Equal(t, f.buyer.ID, job.BuyerID)
	assert.Equal(t, "kg", job.Cargo.Unit)
	assert.Equal(t, models.VisibleToAll, job.VisibleTo)
	require.Len(t, job.History, 1)
	assertDriverMatchesStatus(t, job)
	assert.Equal(t, []roleCall{{models.RoleDriver, true}}, f.notes.roles)

	o, err := f.st.GetOrder(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, o.JobID)

	_, err = f.svc.PostJob(ctx, f.vendor, PostJobInput{OrderID: f.order.ID, Origin: place(), Destination: place()})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = f.svc.PostJob(ctx, f.vendor, PostJobInput{Origin: place(), Destination: place()})
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))

	// an unsold listing without an explicit buyer has nobody to deliver to
	_, err = f.svc.PostJob(ctx, f.vendor, PostJobInput{ListingID: f.order.ListingID, Origin: place(), Destination: place()})
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))

	viaListing, err := f.svc.PostJob(ctx, f.vendor, PostJobInput{ListingID: f.order.ListingID, BuyerID: f.buyer.ID, Origin: place(), Destination: place(), VisibleTo: models.VisibleToPrivate})
	require.NoError(t, err)
	assert.Empty(t, viaListing.OrderID)
	assert.Len(t, f.notes.roles, 1, "private jobs are not broadcast")

	_, err = f.svc.PostJob(ctx, f.driverA, PostJobInput{OrderID: f.order.ID, Origin: place(), Destination: place()})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	bad := place()
	bad.Latitude = 123
	_, err = f.svc.PostJob(ctx, f.vendor, PostJobInput{OrderID: f.order.ID, Origin: bad, Destination: place()})
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))
}

func TestClaimJobCreatesShipmentOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.postJob(t)

	claimed, sh, err := f.svc.ClaimJob(ctx, f.driverA, job.ID, ClaimInput{VehicleID: "TRK-12"})
	require.NoError(t, err)
	assert.Equal(t, models.JobAssigned, claimed.Status)
	assert.Equal(t, f.driverA.ID, claimed.DriverID)
	assert.Equal(t, sh.ID, claimed.ShipmentID)
	assertDriverMatchesStatus(t, claimed)

	assert.Equal(t, models.ShipmentPickedUp, sh.Status)
	require.Len(t, sh.History, 2)
	assert.Equal(t, models.ShipmentPending, sh.History[0].Status)
	assert.Equal(t, models.ShipmentPickedUp, sh.History[1].Status)
	assert.WithinDuration(t, time.Now().Add(4*time.Hour), sh.EstimatedDelivery, time.Minute)
	require.Len(t, sh.Items, 1)
	assert.Equal(t, "Travertine tiles", sh.Items[0].Name)
	assert.Equal(t, 40, sh.Items[0].Quantity)
	assert.Equal(t, job.Origin.Point(), sh.Origin.Point)

	_, _, err = f.svc.ClaimJob(ctx, f.driverB, job.ID, ClaimInput{})
	require.True(t, apperr.Is(err, apperr.KindConflict))

	_, _, err = f.svc.ClaimJob(ctx, f.vendor, job.ID, ClaimInput{})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestConcurrentClaimsSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.postJob(t)

	const drivers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range drivers {
		d := models.Actor{ID: gofakeit.UUID(), Role: models.RoleDriver}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.ClaimJob(ctx, d, job.ID, ClaimInput{})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				assert.True(t, apperr.Is(err, apperr.KindConflict))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestUpdateJobStatusRejectsSkippedStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.postJob(t)

	_, err := f.svc.UpdateJobStatus(ctx, f.vendor, job.ID, JobStatusInput{Status: models.JobInTransit})
	require.True(t, apperr.Is(err, apperr.KindConflict))
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Cannot change status from open to in_transit", ae.Message)

	got, err := f.st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobOpen, got.Status)
	assert.Len(t, got.History, 1)

	_, err = f.svc.UpdateJobStatus(ctx, f.vendor, job.ID, JobStatusInput{Status: models.JobAssigned})
	assert.True(t, apperr.Is(err, apperr.KindConflict), "assignment goes through a driver claim")

	_, err = f.svc.UpdateJobStatus(ctx, f.vendor, job.ID, JobStatusInput{Status: "lost"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))

	_, err = f.svc.UpdateJobStatus(ctx, f.driverB, job.ID, JobStatusInput{Status: models.JobCancelled})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestDeliveryCompletesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.postJob(t)
	_, sh, err := f.svc.ClaimJob(ctx, f.driverA, job.ID, ClaimInput{})
	require.NoError(t, err)

	got, err := f.svc.UpdateJobStatus(ctx, f.driverA, job.ID, JobStatusInput{Status: models.JobInTransit, Notes: "Loaded"})
	require.NoError(t, err)
	assertDriverMatchesStatus(t, got)
	mid, err := f.st.GetShipment(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentInTransit, mid.Status)
	require.NotNil(t, mid.PickupTime)

	got, err = f.svc.UpdateJobStatus(ctx, f.driverA, job.ID, JobStatusInput{Status: models.JobDelivered})
	require.NoError(t, err)
	assertDriverMatchesStatus(t, got)
	assert.Len(t, got.History, 4)

	done, err := f.st.GetShipment(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentDelivered, done.Status)
	assert.NotNil(t, done.ActualDelivery)

	o, err := f.st.GetOrder(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, o.Status)
	require.NotNil(t, o.Completion)
	assert.Equal(t, models.SideLogistics, o.Completion.CompletedBy)
	assert.NotNil(t, o.Delivery.ActualDelivery)

	_, err = f.svc.UpdateJobStatus(ctx, f.admin, job.ID, JobStatusInput{Status: models.JobCancelled})
	assert.True(t, apperr.Is(err, apperr.KindConflict), "delivered is terminal")
}

func TestCancellationCancelsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.postJob(t)
	_, sh, err := f.svc.ClaimJob(ctx, f.driverA, job.ID, ClaimInput{})
	require.NoError(t, err)

	got, err := f.svc.UpdateJobStatus(ctx, f.vendor, job.ID, JobStatusInput{Status: models.JobCancelled, Notes: "Truck unavailable"})
	require.NoError(t, err)
	assertDriverMatchesStatus(t, got)

	cancelled, err := f.st.GetShipment(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentCancelled, cancelled.Status)

	o, err := f.st.GetOrder(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCanceled, o.Status)
	assert.Equal(t, "Truck unavailable", o.Cancellation.Reason)
	assert.Equal(t, models.SideLogistics, o.Cancellation.CanceledBy)

	notified := false
	for _, n := range f.notes.users {
		if n.UserID == f.driverA.ID && n.Type == alerts.NoticeJobStatus {
			notified = true
		}
	}
	assert.True(t, notified, "the driver hears about the cancellation")
}

func TestReportLocationLastWriteWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.postJob(t)
	_, sh, err := f.svc.ClaimJob(ctx, f.driverA, job.ID, ClaimInput{})
	require.NoError(t, err)

	lat, lng := 41.0082, 28.9784
	newer := time.Now().UTC().Add(-time.Minute)
	_, err = f.svc.ReportLocation(ctx, f.driverA, LocationInput{ShipmentID: sh.ID, Latitude: &lat, Longitude: &lng, RecordedAt: &newer})
	require.NoError(t, err)

	oldLat, oldLng := 40.0, 29.0
	older := newer.Add(-5 * time.Minute)
	_, err = f.svc.ReportLocation(ctx, f.driverA, LocationInput{ShipmentID: sh.ID, Latitude: &oldLat, Longitude: &oldLng, RecordedAt: &older})
	require.NoError(t, err)

	got, err := f.st.GetShipment(ctx, sh.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentLocation)
	assert.Equal(t, lat, got.CurrentLocation.Lat)

	cur, err := f.svc.CurrentLocation(ctx, f.buyer, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, lat, cur.Point.Lat)

	hist, err := f.svc.GetLocationHistory(ctx, f.vendor, sh.ID, HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, lat, hist[0].Point.Lat)

	hist, err = f.svc.GetLocationHistory(ctx, f.vendor, sh.ID, HistoryQuery{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	_, err = f.svc.ReportLocation(ctx, f.driverB, LocationInput{ShipmentID: sh.ID, Latitude: &lat, Longitude: &lng})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	badLat := 95.0
	_, err = f.svc.ReportLocation(ctx, f.driverA, LocationInput{ShipmentID: sh.ID, Latitude: &badLat, Longitude: &lng})
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))

	_, err = f.svc.GetShipment(ctx, f.driverB, sh.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	n, err := f.svc.PruneLocationHistory(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = f.svc.UpdateJobStatus(ctx, f.driverA, job.ID, JobStatusInput{Status: models.JobCancelled})
	require.NoError(t, err)
	_, err = f.svc.ReportLocation(ctx, f.driverA, LocationInput{ShipmentID: sh.ID, Latitude: &lat, Longitude: &lng})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestJobQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.postJob(t)

	jobs, err := f.svc.ListDriverJobs(ctx, f.driverB)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	_, err = f.svc.GetJob(ctx, f.driverB, job.ID)
	assert.NoError(t, err, "open public jobs are browsable")

	_, _, err = f.svc.ClaimJob(ctx, f.driverA, job.ID, ClaimInput{})
	require.NoError(t, err)

	jobs, err = f.svc.ListDriverJobs(ctx, f.driverB)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	_, err = f.svc.GetJob(ctx, f.driverB, job.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	jobs, err = f.svc.ListVendorJobs(ctx, f.vendor, models.JobAssigned)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
	_, err = f.svc.ListVendorJobs(ctx, f.driverA, "")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestJobHandlers(t *testing.T) {
	f := newFixture(t)
	job := f.postJob(t)

	h := NewHandler(f.svc)
	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(quietLogger())
	as := func(a models.Actor) echo.MiddlewareFunc {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				c.Set("user_id", a.ID)
				c.Set("role", string(a.Role))
				return next(c)
			}
		}
	}
	e.POST("/a/jobs/:id/assign", h.ClaimJob, as(f.driverA))
	e.POST("/b/jobs/:id/assign", h.ClaimJob, as(f.driverB))
	e.PATCH("/v/jobs/:id/status", h.UpdateJobStatus, as(f.vendor))

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/a/jobs/"+job.ID+"/assign", `{"vehicleId":"TRK-9"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"shipment"`)

	rec = do(http.MethodPost, "/b/jobs/"+job.ID+"/assign", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(http.MethodPatch, "/v/jobs/"+job.ID+"/status", `{"status":"delivered"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Cannot change status from assigned to delivered")
}
