package messaging

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
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/stonemart/internal/alerts"
	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/models"
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

func quietLogger() *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	return lg
}

func newService(t *testing.T) (*Service, *recordingNotifier) {
	t.Helper()
	n := &recordingNotifier{}
	return NewService(memstore.New(), NewHubs(), n, quietLogger()), n
}

func TestEnsureDirectReusesChannel(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	a, b := gofakeit.UUID(), gofakeit.UUID()

	first, err := svc.EnsureDirect(ctx, a, b)
	require.NoError(t, err)
	again, err := svc.EnsureDirect(ctx, b, a)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, models.ChannelDirect, again.Kind)

	_, err = svc.EnsureDirect(ctx, a, a)
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))
}

func TestCreateGroupDropsDuplicateMembers(t *testing.T) {
	svc, _ := newService(t)
	ch, err := svc.CreateGroup(context.Background(), "Dispute", models.ChannelDispute, []string{"b", "v", "a", "b", ""})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "v", "a"}, ch.Members)

	_, err = svc.CreateGroup(context.Background(), "solo", models.ChannelDispute, []string{"b", "b"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))
}

func TestSendChecksMembershipAndNotifiesOthers(t *testing.T) {
	svc, notes := newService(t)
	ctx := context.Background()
	ch, err := svc.CreateGroup(ctx, "Dispute", models.ChannelDispute, []string{"buyer", "vendor", "admin-1"})
	require.NoError(t, err)

	_, err = svc.Send(ctx, models.Actor{ID: "stranger", Role: models.RoleBuyer}, ch.ID, "hello")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = svc.Send(ctx, models.Actor{ID: "buyer", Role: models.RoleBuyer}, ch.ID, "   ")
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))

	text := gofakeit.Sentence(8)
	m, err := svc.Send(ctx, models.Actor{ID: "buyer", Role: models.RoleBuyer}, ch.ID, text)
	require.NoError(t, err)
	assert.Equal(t, models.MessageText, m.Kind)

	require.Len(t, notes.notices, 2)
	for _, n := range notes.notices {
		assert.NotEqual(t, "buyer", n.UserID)
		assert.Equal(t, alerts.NoticeMessageNew, n.Type)
		assert.Equal(t, ch.ID, n.Reference)
	}

	// admins read any channel
	msgs, err := svc.List(ctx, models.Actor{ID: "other-admin", Role: models.RoleAdmin}, ch.ID, models.Page{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, text, msgs[0].Text)
}

func TestPostToMissingChannel(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Post(context.Background(), "nope", "system", models.MessageSystem, "hi", nil)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

// asUser stands in for the JWT middleware.
func asUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Set("user_id", c.Request().Header.Get("X-User"))
		c.Set("role", c.Request().Header.Get("X-Role"))
		return next(c)
	}
}

func newRouter(svc *Service) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(quietLogger())
	h := NewHandler(svc)
	g := e.Group("/channels", asUser)
	g.GET("/:id/messages", h.ListMessages)
	g.POST("/:id/messages", h.SendMessage)
	g.GET("/:id/ws", h.ChannelWS)
	return e
}

func TestMessageHandlers(t *testing.T) {
	svc, _ := newService(t)
	ch, err := svc.EnsureDirect(context.Background(), "buyer", "vendor")
	require.NoError(t, err)
	e := newRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/channels/"+ch.ID+"/messages", strings.NewReader(`{"text":"is the slab polished?"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-User", "buyer")
	req.Header.Set("X-Role", "buyer")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/channels/"+ch.ID+"/messages?limit=5", nil)
	req.Header.Set("X-User", "driver")
	req.Header.Set("X-Role", "driver")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/channels/"+ch.ID+"/messages?limit=5", nil)
	req.Header.Set("X-User", "vendor")
	req.Header.Set("X-Role", "vendor")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Messages []models.Message `json:"messages"`
		Limit    int              `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "is the slab polished?", body.Messages[0].Text)
	assert.Equal(t, 5, body.Limit)
}

func TestChannelWSReceivesPostedMessages(t *testing.T) {
	svc, _ := newService(t)
	ch, err := svc.EnsureDirect(context.Background(), "buyer", "vendor")
	require.NoError(t, err)

	srv := httptest.NewServer(newRouter(svc))
	defer srv.Close()

	header := http.Header{}
	header.Set("X-User", "vendor")
	header.Set("X-Role", "vendor")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/channels/" + ch.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	read := func() wsEvent {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var evt wsEvent
		require.NoError(t, conn.ReadJSON(&evt))
		return evt
	}

	assert.Equal(t, EventPresenceJoin, read().Type)

	_, err = svc.Post(context.Background(), ch.ID, "system", models.MessageSystem, "invoice ready", nil)
	require.NoError(t, err)

	evt := read()
	assert.Equal(t, EventMessageNew, evt.Type)
	data, ok := evt.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "invoice ready", data["text"])
}
