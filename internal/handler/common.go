package handler

// common.go holds the helpers every handler shares: the DB deadline, JSON
// error replies, identity lookup, path and paging parameters.

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-scheduling/internal/auth"
	"github.com/iliyamo/clinic-scheduling/internal/logging"
	"github.com/iliyamo/clinic-scheduling/internal/middleware"
	"github.com/iliyamo/clinic-scheduling/internal/model"
	"github.com/iliyamo/clinic-scheduling/internal/repository"
)

// dbTimeout bounds the store work of a single request.
const dbTimeout = 5 * time.Second

func dbCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// base carries what every handler needs to answer errors.  Verbose adds the
// underlying error to 500 bodies and is off in production.
type base struct {
	Verbose bool
}

func (base) now() time.Time { return time.Now() }

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"error": msg})
}

// internal logs err and answers 500 with msg.
func (b base) internal(c echo.Context, err error, msg string) error {
	logging.Error().Err(err).Str("path", c.Path()).Msg(msg)
	body := echo.Map{"error": msg}
	if b.Verbose && err != nil {
		body["detail"] = err.Error()
	}
	return c.JSON(http.StatusInternalServerError, body)
}

// storeError maps repository sentinels onto statuses.  notFound is the
// message for a missing row.
func (b base) storeError(c echo.Context, err error, notFound string) error {
	var se *repository.StateError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fail(c, http.StatusNotFound, notFound)
	case errors.Is(err, repository.ErrEmailExists):
		return fail(c, http.StatusConflict, "email already in use")
	case errors.Is(err, repository.ErrConflict):
		return fail(c, http.StatusConflict, "conflict")
	case errors.As(err, &se):
		return fail(c, http.StatusBadRequest, se.Msg)
	case errors.Is(err, repository.ErrTokenInvalid):
		return fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return b.internal(c, err, "database timeout")
	}
	return b.internal(c, err, "database error")
}

// caller returns the identity stored by middleware.Auth.  Routes using it
// are always mounted behind Auth, so a missing identity is a wiring bug.
func caller(c echo.Context) auth.Identity {
	id, _ := middleware.IdentityFrom(c)
	return id
}

// denied answers a guard Deny.
func denied(c echo.Context) error {
	return fail(c, http.StatusForbidden, "forbidden")
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (int64, bool) {
	return positive(c.Param(name))
}

func positive(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// pageParams reads ?page and ?pageSize.
func pageParams(c echo.Context, def, max int) model.Page {
	number, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("pageSize"))
	return model.NewPage(number, size, def, max)
}

// listed is the paged listing envelope.
func listed[T any](c echo.Context, rows []T, total int64, p model.Page) error {
	if rows == nil {
		rows = []T{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"rows":     rows,
		"total":    total,
		"page":     p.Number,
		"pageSize": p.Size,
	})
}
