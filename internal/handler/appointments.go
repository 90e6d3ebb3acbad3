package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-scheduling/internal/auth"
	"github.com/iliyamo/clinic-scheduling/internal/media"
	"github.com/iliyamo/clinic-scheduling/internal/model"
	"github.com/iliyamo/clinic-scheduling/internal/repository"
)

// AppointmentHandler serves appointments (cita) and their images.
type AppointmentHandler struct {
	base
	Appointments *repository.AppointmentRepo
	Images       *repository.ImageRepo
	// MaxImageBytes caps an uploaded attachment.
	MaxImageBytes int64
}

func NewAppointmentHandler(verbose bool, a *repository.AppointmentRepo, i *repository.ImageRepo) *AppointmentHandler {
	return &AppointmentHandler{base: base{Verbose: verbose}, Appointments: a, Images: i, MaxImageBytes: 8 << 20}
}

type appointmentReq struct {
	Title       string  `json:"titulo" validate:"required"`
	Date        string  `json:"fecha" validate:"required"`
	Description *string `json:"descripcion"`
}

func (r *appointmentReq) normalize() {
	r.Title = strings.TrimSpace(r.Title)
	if r.Description != nil {
		d := strings.TrimSpace(*r.Description)
		if d == "" {
			r.Description = nil
		} else {
			r.Description = &d
		}
	}
}

type appointmentUpdateReq struct {
	appointmentReq
	Status int64 `json:"estado" validate:"required,min=1,max=5"`
}

type statusReq struct {
	Status int64 `json:"estado" validate:"required"`
}

// Create stores a request from the caller.  It always starts Pending.
func (h *AppointmentHandler) Create(c echo.Context) error {
	var req appointmentReq
	if err := bind(c, &req); err != nil {
		return err
	}
	at, err := parseDate(req.Date, time.UTC)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid fecha")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	a := &model.Appointment{Title: req.Title, Date: at, Description: req.Description, UserID: caller(c).UserID}
	if err := h.Appointments.Create(ctx, a); err != nil {
		return h.storeError(c, err, "appointment not found")
	}
	return c.JSON(http.StatusCreated, echo.Map{"ok": true, "row": a})
}

// List returns the appointments booked by ?id_cliente or created by
// ?id_usuario.  Clients may only ask for themselves.
func (h *AppointmentHandler) List(c echo.Context) error {
	clientID, byClient := positive(c.QueryParam("id_cliente"))
	userID, byUser := positive(c.QueryParam("id_usuario"))
	if !byClient && !byUser {
		return fail(c, http.StatusBadRequest, "id_cliente or id_usuario required")
	}
	owner := userID
	if byClient {
		owner = clientID
	}
	if !auth.Authorize(caller(c), owner, auth.OpRead).Allowed {
		return denied(c)
	}
	p := pageParams(c, 20, 100)

	ctx, cancel := dbCtx(c)
	defer cancel()

	var (
		rows  []model.Appointment
		total int64
		err   error
	)
	if byClient {
		rows, total, err = h.Appointments.ListByClient(ctx, clientID, p)
	} else {
		rows, total, err = h.Appointments.ListByUser(ctx, userID, p)
	}
	if err != nil {
		return h.internal(c, err, "list appointments failed")
	}
	return listed(c, rows, total, p)
}

// Mine returns every appointment the caller created.
func (h *AppointmentHandler) Mine(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	rows, _, err := h.Appointments.ListByUser(ctx, caller(c).UserID, model.Page{Number: 1, Size: 500})
	if err != nil {
		return h.internal(c, err, "list appointments failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"rows": rows})
}

// Get returns one appointment with its owner and image ids.
func (h *AppointmentHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	a, err := h.Appointments.GetByID(ctx, id)
	if err != nil {
		return h.storeError(c, err, "appointment not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"row": a, "images": a.ImageIDs})
}

// Update overwrites title, date, description and state.
func (h *AppointmentHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid id")
	}
	var req appointmentUpdateReq
	if err := bind(c, &req); err != nil {
		return err
	}
	at, err := parseDate(req.Date, time.UTC)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid fecha")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	a := &model.Appointment{ID: id, Title: req.Title, Date: at, Description: req.Description, Status: model.AppointmentStatus(req.Status)}
	if err := h.Appointments.Update(ctx, a); err != nil {
		return h.storeError(c, err, "appointment not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// Delete removes an appointment and its images.  Owner or admin.
func (h *AppointmentHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	owner, err := h.Appointments.Owner(ctx, id)
	if err != nil {
		return h.storeError(c, err, "appointment not found")
	}
	if !auth.Authorize(caller(c), owner, auth.OpDelete).Allowed {
		return denied(c)
	}
	if err := h.Appointments.Delete(ctx, id); err != nil {
		return h.storeError(c, err, "appointment not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "id_cita": id})
}

// SetStatus changes the state.  Owners may only cancel or ask to postpone.
func (h *AppointmentHandler) SetStatus(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid id")
	}
	var req statusReq
	if err := bind(c, &req); err != nil {
		return err
	}
	target := model.AppointmentStatus(req.Status)
	if !target.Valid() {
		return fail(c, http.StatusBadRequest, "invalid estado")
	}

	who := caller(c)
	// Clients are refused before the lookup so the answer does not reveal
	// which appointments exist.
	if !who.IsAdmin() && !target.ClientSettable() {
		return denied(c)
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	owner, err := h.Appointments.Owner(ctx, id)
	if err != nil {
		if !who.IsAdmin() && errors.Is(err, repository.ErrNotFound) {
			return denied(c)
		}
		return h.storeError(c, err, "appointment not found")
	}
	if !auth.AuthorizeStatusChange(who, owner, target).Allowed {
		return denied(c)
	}
	if err := h.Appointments.SetStatus(ctx, id, target); err != nil {
		return h.storeError(c, err, "appointment not found")
	}
	a, err := h.Appointments.GetByID(ctx, id)
	if err != nil {
		return h.storeError(c, err, "appointment not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "row": a})
}

// UploadImage attaches the multipart "file" to an appointment.
func (h *AppointmentHandler) UploadImage(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid id")
	}
	data, _, err := readUpload(c, "file", h.MaxImageBytes)
	if err != nil {
		return err
	}
	if media.Sniff(data, media.Image) == "application/octet-stream" {
		return fail(c, http.StatusBadRequest, "file is not an image")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	imageID, err := h.Images.AddAppointmentImage(ctx, id, data)
	if err != nil {
		return h.storeError(c, err, "appointment not found")
	}
	return c.JSON(http.StatusCreated, echo.Map{"ok": true, "id": imageID})
}

// Image streams a stored attachment.
func (h *AppointmentHandler) Image(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	data, err := h.Images.AppointmentImage(ctx, id)
	if err != nil {
		return h.storeError(c, err, "image not found")
	}
	return serveBlob(c, data, media.Image, "private, max-age=300")
}

// DeleteImage removes one attachment.
func (h *AppointmentHandler) DeleteImage(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	if err := h.Images.DeleteAppointmentImage(ctx, id); err != nil {
		return h.storeError(c, err, "image not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// AdminList is the filtered administrator listing.  estados defaults to
// Accepted and only_future to 1; to is inclusive of its whole day.
func (h *AppointmentHandler) AdminList(c echo.Context) error {
	f := model.AppointmentFilter{
		Query:      c.QueryParam("q"),
		OnlyFuture: c.QueryParam("only_future") != "0",
		Page:       pageParams(c, 20, 100),
	}
	statuses, err := parseStatuses(c.QueryParam("estados"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid estados")
	}
	if len(statuses) == 0 {
		statuses = []model.AppointmentStatus{model.AppointmentAccepted}
	}
	f.Statuses = statuses
	if s := c.QueryParam("from"); s != "" {
		t, err := parseDate(s, time.UTC)
		if err != nil {
			return fail(c, http.StatusBadRequest, "invalid from")
		}
		f.From = &t
	}
	if s := c.QueryParam("to"); s != "" {
		t, err := parseDate(s, time.UTC)
		if err != nil {
			return fail(c, http.StatusBadRequest, "invalid to")
		}
		t = t.AddDate(0, 0, 1)
		f.To = &t
	}
	return h.adminList(c, f)
}

// Pending lists requests waiting for an administrator.
func (h *AppointmentHandler) Pending(c echo.Context) error {
	return h.adminList(c, model.AppointmentFilter{
		Statuses: []model.AppointmentStatus{model.AppointmentPending},
		Page:     pageParams(c, 50, 100),
	})
}

// Upcoming lists accepted appointments from now on.
func (h *AppointmentHandler) Upcoming(c echo.Context) error {
	now := h.now()
	return h.adminList(c, model.AppointmentFilter{
		Query:    c.QueryParam("q"),
		Statuses: []model.AppointmentStatus{model.AppointmentAccepted},
		From:     &now,
		Page:     pageParams(c, 20, 100),
	})
}

func (h *AppointmentHandler) adminList(c echo.Context, f model.AppointmentFilter) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	rows, total, err := h.Appointments.ListAdmin(ctx, f)
	if err != nil {
		return h.internal(c, err, "list appointments failed")
	}
	return listed(c, rows, total, f.Page)
}

// parseStatuses reads a CSV of appointment states.
func parseStatuses(csv string) ([]model.AppointmentStatus, error) {
	var out []model.AppointmentStatus
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || !model.AppointmentStatus(n).Valid() {
			return nil, strconv.ErrSyntax
		}
		out = append(out, model.AppointmentStatus(n))
	}
	return out, nil
}
