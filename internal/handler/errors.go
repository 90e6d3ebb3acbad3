package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-scheduling/internal/logging"
)

// ErrorHandler renders every error that reaches Echo as {"error": msg}:
// router 404/405s, bind failures and anything a handler returned instead
// of writing.  Unexpected errors become a 500 whose detail is shown only
// when verbose is set.
func ErrorHandler(verbose bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		msg := "internal error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			switch m := he.Message.(type) {
			case string:
				msg = m
			case error:
				msg = m.Error()
			default:
				msg = fmt.Sprint(m)
			}
		} else {
			logging.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
			if verbose {
				msg = err.Error()
			}
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, echo.Map{"error": msg})
		}
		if err != nil {
			logging.Error().Err(err).Msg("write error response")
		}
	}
}
