package user

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store/memstore"
)

func TestPushTokenAndProfile(t *testing.T) {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	st := memstore.New()
	ctx := context.Background()

	driver := &models.User{ID: gofakeit.UUID(), Name: gofakeit.Name(), Email: gofakeit.Email(), Role: models.RoleDriver, IsActive: true, CreatedAt: time.Now()}
	require.NoError(t, st.CreateUser(ctx, driver))

	h := NewHandler(st)
	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(lg)
	e.PUT("/users/me/push-token", h.RegisterPushToken, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("user_id", driver.ID)
			return next(c)
		}
	})
	e.GET("/users/:id/profile", h.GetPublicProfile)

	req := httptest.NewRequest(http.MethodPut, "/users/me/push-token", strings.NewReader(`{"token":"ExponentPushToken[abc]"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	ids, err := st.ListUserIDs(ctx, models.RoleDriver, true)
	require.NoError(t, err)
	assert.Equal(t, []string{driver.ID}, ids)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/"+driver.ID+"/profile", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), driver.Name)
	assert.NotContains(t, rec.Body.String(), driver.Email)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/missing/profile", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
