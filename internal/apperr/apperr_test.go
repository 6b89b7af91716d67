package apperr

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Invalid("price must be positive"), http.StatusBadRequest},
		{NotFound("Bid not found"), http.StatusNotFound},
		{Forbidden("not your bid"), http.StatusForbidden},
		{Conflict("Bid is no longer pending"), http.StatusConflict},
		{Fatal(errors.New("boom"), "failed to accept bid"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err).Status())
		})
	}
}

func TestKindOfUnwraps(t *testing.T) {
	err := fmt.Errorf("marketplace.Accept: %w", Conflict("Product is no longer available"))
	assert.True(t, Is(err, KindConflict))
	assert.False(t, Is(nil, KindConflict))
}

func TestWithDoesNotMutateOriginal(t *testing.T) {
	base := Conflict("dispute already open")
	withID := base.With("disputeId", "d-1")

	assert.Nil(t, base.Details)
	assert.Equal(t, "d-1", withID.Details["disputeId"])
}

func TestHTTPErrorHandler(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	e := echo.New()
	e.HTTPErrorHandler = HTTPErrorHandler(logger)

	e.GET("/conflict", func(c echo.Context) error {
		return Conflict("dispute already open").With("disputeId", "d-1")
	})
	e.GET("/fatal", func(c echo.Context) error {
		return Fatal(errors.New("pq: deadlock detected"), "")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conflict", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"dispute already open","disputeId":"d-1"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fatal", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "deadlock")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
