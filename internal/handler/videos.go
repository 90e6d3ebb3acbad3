package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-scheduling/internal/auth"
	"github.com/iliyamo/clinic-scheduling/internal/media"
	"github.com/iliyamo/clinic-scheduling/internal/model"
	"github.com/iliyamo/clinic-scheduling/internal/repository"
)

// streamCacheControl keeps assigned videos out of shared caches.
const streamCacheControl = "private, max-age=0, no-store"

// VideoHandler serves the exercise video catalog and its assignments.
type VideoHandler struct {
	base
	Videos      *repository.VideoRepo
	Assignments *repository.AssignmentRepo
	// MaxVideoBytes caps an upload.
	MaxVideoBytes int64
}

func NewVideoHandler(verbose bool, v *repository.VideoRepo, a *repository.AssignmentRepo, maxVideoMB int) *VideoHandler {
	if maxVideoMB <= 0 {
		maxVideoMB = 10
	}
	return &VideoHandler{base: base{Verbose: verbose}, Videos: v, Assignments: a, MaxVideoBytes: int64(maxVideoMB) << 20}
}

type videoReq struct {
	Goal  string `json:"objetivo" validate:"required"`
	Title string `json:"titulo" validate:"required"`
	URL   string `json:"video_url" validate:"required,url"`
}

func (r *videoReq) normalize() {
	r.Goal = strings.TrimSpace(r.Goal)
	r.Title = strings.TrimSpace(r.Title)
	r.URL = strings.TrimSpace(r.URL)
}

type assignReq struct {
	UserID  int64   `json:"id_usuario" validate:"required,gt=0"`
	VideoID int64   `json:"id_video" validate:"required,gt=0"`
	Note    *string `json:"observacion"`
}

type unassignReq struct {
	UserID  int64 `json:"id_usuario" query:"id_usuario" validate:"required,gt=0"`
	VideoID int64 `json:"id_video" query:"id_video" validate:"required,gt=0"`
}

func streamURL(id int64) string { return "/api/videos/" + strconv.FormatInt(id, 10) + "/stream" }

// List pages through the catalog.
func (h *VideoHandler) List(c echo.Context) error {
	p := pageParams(c, 20, 100)
	ctx, cancel := dbCtx(c)
	defer cancel()

	rows, total, err := h.Videos.List(ctx, c.QueryParam("q"), p)
	if err != nil {
		return h.internal(c, err, "list videos failed")
	}
	return listed(c, rows, total, p)
}

// Create adds a link-only video.
func (h *VideoHandler) Create(c echo.Context) error {
	var req videoReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	v := &model.Video{Goal: req.Goal, Title: req.Title, URL: &req.URL}
	if err := h.Videos.Create(ctx, v); err != nil {
		return h.storeError(c, err, "video not found")
	}
	return c.JSON(http.StatusCreated, v)
}

// Upload stores a video sent as multipart (objetivo, titulo, file).
func (h *VideoHandler) Upload(c echo.Context) error {
	data, fh, err := readUpload(c, "file", h.MaxVideoBytes)
	if err != nil {
		return err
	}
	goal := strings.TrimSpace(c.FormValue("objetivo"))
	title := strings.TrimSpace(c.FormValue("titulo"))
	if goal == "" || title == "" {
		return fail(c, http.StatusBadRequest, "objetivo, titulo and file are required")
	}
	mime := media.Sniff(data, media.Video)
	name := filepath.Base(fh.Filename)
	if name == "." || name == "/" {
		name = "video.bin"
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	v := &model.Video{Goal: goal, Title: title}
	f := &model.VideoFile{Filename: name, MimeType: mime, Data: data}
	if err := h.Videos.CreateWithFile(ctx, v, f); err != nil {
		return h.storeError(c, err, "video not found")
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"ok":         true,
		"id_video":   v.ID,
		"objetivo":   v.Goal,
		"titulo":     v.Title,
		"filename":   f.Filename,
		"mime_type":  f.MimeType,
		"size_bytes": f.SizeBytes,
		"stream_url": streamURL(v.ID),
	})
}

// Delete removes a video with its file and assignments.
func (h *VideoHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	if err := h.Videos.Delete(ctx, id); err != nil {
		return h.storeError(c, err, "video not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "id_video": id})
}

// Stream serves a stored video with Range support to an admin or to a
// client the video is assigned to.  Link-only videos redirect to their
// URL.  GET and HEAD share this handler.
func (h *VideoHandler) Stream(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid id")
	}
	me := caller(c)

	ctx, cancel := dbCtx(c)
	defer cancel()

	v, err := h.Videos.Get(ctx, id)
	if err != nil {
		return h.storeError(c, err, "video not found")
	}
	if !me.IsAdmin() {
		assigned, err := h.Assignments.IsAssigned(ctx, me.UserID, id)
		if err != nil {
			return h.internal(c, err, "assignment lookup failed")
		}
		if !assigned {
			return denied(c)
		}
	}

	f, err := h.Videos.File(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		if v.URL != nil && strings.TrimSpace(*v.URL) != "" {
			c.Response().Header().Set("Cache-Control", streamCacheControl)
			return c.Redirect(http.StatusFound, *v.URL)
		}
		return fail(c, http.StatusNotFound, "video has no content")
	}
	if err != nil {
		return h.internal(c, err, "load video failed")
	}
	return serveBlob(c, f.Data, media.Video, streamCacheControl)
}

// Mine lists the videos assigned to the caller.
func (h *VideoHandler) Mine(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	rows, err := h.Assignments.ListByUser(ctx, caller(c).UserID)
	if err != nil {
		return h.internal(c, err, "list assignments failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"rows": rows})
}

// ----- assignments -----

// Assign creates or refreshes an assignment.
func (h *VideoHandler) Assign(c echo.Context) error {
	var req assignReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	a, err := h.Assignments.Upsert(ctx, req.UserID, req.VideoID, req.Note)
	if err != nil {
		return h.storeError(c, err, "user or video not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "row": a})
}

// Unassign removes an assignment by id.
func (h *VideoHandler) Unassign(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	if err := h.Assignments.DeleteByID(ctx, id); err != nil {
		return h.storeError(c, err, "assignment not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "id": id})
}

// UnassignPair removes the assignment named by id_usuario and id_video,
// given in the query string or the JSON body.
func (h *VideoHandler) UnassignPair(c echo.Context) error {
	var req unassignReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	if err := h.Assignments.DeleteByPair(ctx, req.UserID, req.VideoID); err != nil {
		return h.storeError(c, err, "assignment not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "id_usuario": req.UserID, "id_video": req.VideoID})
}

// ListAssignments lists a user's assignments.  Clients may only list their own.
func (h *VideoHandler) ListAssignments(c echo.Context) error {
	userID, ok := positive(c.QueryParam("id_usuario"))
	if !ok {
		return fail(c, http.StatusBadRequest, "id_usuario required")
	}
	if !auth.Authorize(caller(c), userID, auth.OpRead).Allowed {
		return denied(c)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	rows, err := h.Assignments.ListByUser(ctx, userID)
	if err != nil {
		return h.internal(c, err, "list assignments failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"rows": rows})
}
