package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/models"
)

// PageFrom reads ?page= and ?limit= into a normalized page.
func PageFrom(c echo.Context) (models.Page, error) {
	var p models.Page
	err := echo.QueryParamsBinder(c).
		Int("page", &p.Page).
		Int("limit", &p.Limit).
		BindError()
	if err != nil {
		return models.Page{}, apperr.Invalid("page and limit must be integers")
	}
	return p.Normalize(), nil
}
