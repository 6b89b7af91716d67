package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const genericFailure = "something went wrong, please try again"

// HTTPErrorHandler renders taxonomy errors as {"success":false,"error":...}.
// Fatal errors are logged with their cause and answered generically.
func HTTPErrorHandler(logger logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err)
		if status >= http.StatusInternalServerError {
			logger.WithError(err).WithFields(logrus.Fields{
				"method": c.Request().Method,
				"uri":    c.Request().RequestURI,
			}).Error("request failed")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}

func render(err error) (int, echo.Map) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return he.Code, echo.Map{"success": false, "error": msg}
	}

	var e *Error
	if !errors.As(err, &e) || e.Kind == KindFatal {
		msg := genericFailure
		if e != nil && e.Message != "" {
			msg = e.Message
		}
		return http.StatusInternalServerError, echo.Map{"success": false, "error": msg}
	}

	body := echo.Map{"success": false, "error": e.Message}
	for k, v := range e.Details {
		body[k] = v
	}
	return e.Kind.Status(), body
}
