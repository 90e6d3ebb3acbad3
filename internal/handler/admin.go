package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-scheduling/internal/model"
	"github.com/iliyamo/clinic-scheduling/internal/repository"
)

// AdminHandler serves the administrator back office: bookings, the
// calendar, user management and the dashboard counters.  Every route is
// mounted behind middleware.Require with an admin-only operation.
type AdminHandler struct {
	base
	Users        *repository.UserRepo
	Appointments *repository.AppointmentRepo
	Bookings     *repository.BookingRepo
	Stats        *repository.StatsRepo
}

func NewAdminHandler(verbose bool, u *repository.UserRepo, a *repository.AppointmentRepo, b *repository.BookingRepo, s *repository.StatsRepo) *AdminHandler {
	return &AdminHandler{base: base{Verbose: verbose}, Users: u, Appointments: a, Bookings: b, Stats: s}
}

type moveReq struct {
	Date string `json:"fecha" validate:"required"`
}

type roleReq struct {
	RoleID int64 `json:"rol_id" validate:"required,gt=0"`
}

// ----- bookings -----

// PendingBookings lists booking requests waiting for a decision.
func (h *AdminHandler) PendingBookings(c echo.Context) error {
	p := pageParams(c, 20, 100)
	ctx, cancel := dbCtx(c)
	defer cancel()

	rows, total, err := h.Bookings.ListPending(ctx, p)
	if err != nil {
		return h.internal(c, err, "list bookings failed")
	}
	return listed(c, rows, total, p)
}

// SetBookingStatus accepts or cancels a booking.
func (h *AdminHandler) SetBookingStatus(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid id")
	}
	var req statusReq
	if err := bind(c, &req); err != nil {
		return err
	}
	target := model.BookingStatus(req.Status)
	if !target.AdminSettable() {
		return fail(c, http.StatusBadRequest, "estado must be 2 or 3")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	b, err := h.Bookings.SetStatus(ctx, id, target)
	if err != nil {
		return h.storeError(c, err, "booking not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "row": b})
}

// ----- calendar -----

// window reads the required ?start and ?end bounds.
func window(c echo.Context) (time.Time, time.Time, bool) {
	start, err1 := parseDate(c.QueryParam("start"), time.UTC)
	end, err2 := parseDate(c.QueryParam("end"), time.UTC)
	if err1 != nil || err2 != nil || !start.Before(end) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// BookingEvents returns bookings inside [start, end) for the calendar.
func (h *AdminHandler) BookingEvents(c echo.Context) error {
	start, end, ok := window(c)
	if !ok {
		return fail(c, http.StatusBadRequest, "start and end required")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	rows, err := h.Bookings.CalendarEvents(ctx, start, end)
	if err != nil {
		return h.internal(c, err, "calendar query failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"rows": rows})
}

// AppointmentEvents returns appointments inside [start, end).
func (h *AdminHandler) AppointmentEvents(c echo.Context) error {
	start, end, ok := window(c)
	if !ok {
		return fail(c, http.StatusBadRequest, "start and end required")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	rows, err := h.Appointments.CalendarEvents(ctx, start, end)
	if err != nil {
		return h.internal(c, err, "calendar query failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"rows": rows})
}

// MoveBooking reschedules a booking dragged on the calendar.
func (h *AdminHandler) MoveBooking(c echo.Context) error {
	id, at, err := h.moveTarget(c)
	if err != nil {
		return err
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	b, err := h.Bookings.Move(ctx, id, at)
	if err != nil {
		return h.storeError(c, err, "booking not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "row": b})
}

// MoveAppointment reschedules an appointment.  The calendar snaps to whole
// hours, so minutes and seconds are dropped.
func (h *AdminHandler) MoveAppointment(c echo.Context) error {
	id, at, err := h.moveTarget(c)
	if err != nil {
		return err
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	if err := h.Appointments.Move(ctx, id, at.Truncate(time.Hour)); err != nil {
		return h.storeError(c, err, "appointment not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (h *AdminHandler) moveTarget(c echo.Context) (int64, time.Time, error) {
	id, ok := pathID(c, "id")
	if !ok {
		return 0, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req moveReq
	if err := bind(c, &req); err != nil {
		return 0, time.Time{}, err
	}
	at, err := parseDate(req.Date, time.UTC)
	if err != nil {
		return 0, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid fecha")
	}
	return id, at, nil
}

// ----- users -----

// ListUsers pages through accounts filtered by q, rol_id and activo.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	f := model.UserFilter{Query: c.QueryParam("q"), Page: pageParams(c, 10, 100)}
	f.RoleID, _ = strconv.ParseInt(c.QueryParam("rol_id"), 10, 64)
	f.Active, _ = strconv.ParseInt(c.QueryParam("activo"), 10, 64)

	ctx, cancel := dbCtx(c)
	defer cancel()

	rows, total, err := h.Users.List(ctx, f)
	if err != nil {
		return h.internal(c, err, "list users failed")
	}
	return listed(c, rows, total, f.Page)
}

// ToggleActive flips an account between active and inactive.
func (h *AdminHandler) ToggleActive(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	next, err := h.Users.ToggleActive(ctx, id)
	if err != nil {
		return h.storeError(c, err, "user not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "activo": next})
}

// SetRole changes an account's role.  Rules such as keeping at least one
// administrator are enforced by the database and come back as 400s.
func (h *AdminHandler) SetRole(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid id")
	}
	var req roleReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	if err := h.Users.SetRole(ctx, id, req.RoleID); err != nil {
		return h.storeError(c, err, "user not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "rol_id": req.RoleID})
}

// ----- stats -----

// DashboardStats returns the counters shown on the admin home page.
func (h *AdminHandler) DashboardStats(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	s, err := h.Stats.Get(ctx)
	if err != nil {
		return h.internal(c, err, "stats query failed")
	}
	return c.JSON(http.StatusOK, s)
}
