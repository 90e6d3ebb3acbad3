package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-scheduling/internal/media"
	"github.com/iliyamo/clinic-scheduling/internal/repository"
)

// ProfileHandler lets the caller edit their own account.
type ProfileHandler struct {
	base
	Users  *repository.UserRepo
	Images *repository.ImageRepo
	// MaxAvatarBytes caps a decoded avatar.
	MaxAvatarBytes int
}

func NewProfileHandler(verbose bool, u *repository.UserRepo, i *repository.ImageRepo) *ProfileHandler {
	return &ProfileHandler{base: base{Verbose: verbose}, Users: u, Images: i, MaxAvatarBytes: 4 << 20}
}

type nameReq struct {
	FullName string `json:"nombre_completo" validate:"required,min=3"`
}

func (r *nameReq) normalize() { r.FullName = strings.TrimSpace(r.FullName) }

type emailReq struct {
	Email string `json:"correo" validate:"required,email"`
}

func (r *emailReq) normalize() { r.Email = repository.NormalizeEmail(r.Email) }

type avatarReq struct {
	Image string `json:"image" validate:"required"`
}

// UpdateName changes the caller's display name.
func (h *ProfileHandler) UpdateName(c echo.Context) error {
	var req nameReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	u, err := h.Users.UpdateName(ctx, caller(c).UserID, req.FullName)
	if err != nil {
		return h.storeError(c, err, "user not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "usuario": u})
}

// UpdateEmail changes the caller's login address.
func (h *ProfileHandler) UpdateEmail(c echo.Context) error {
	var req emailReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	u, err := h.Users.UpdateEmail(ctx, caller(c).UserID, req.Email)
	if err != nil {
		return h.storeError(c, err, "user not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "usuario": u})
}

// UploadAvatar stores a new avatar sent as base64 or a data URL.  Older
// avatars are kept; the latest one wins.
func (h *ProfileHandler) UploadAvatar(c echo.Context) error {
	var req avatarReq
	if err := bind(c, &req); err != nil {
		return err
	}
	data, err := media.DecodeDataURL(req.Image)
	if err != nil || len(data) == 0 {
		return fail(c, http.StatusBadRequest, "invalid image")
	}
	if len(data) > h.MaxAvatarBytes {
		return fail(c, http.StatusRequestEntityTooLarge, "image too large")
	}
	if media.Sniff(data, media.Image) == "application/octet-stream" {
		return fail(c, http.StatusBadRequest, "invalid image")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	id, err := h.Images.AddAvatar(ctx, caller(c).UserID, data)
	if err != nil {
		return h.storeError(c, err, "user not found")
	}
	return c.JSON(http.StatusCreated, echo.Map{"ok": true, "id": id})
}

// Avatar returns the caller's latest avatar.
func (h *ProfileHandler) Avatar(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	data, err := h.Images.LatestAvatar(ctx, caller(c).UserID)
	if err != nil {
		return h.storeError(c, err, "avatar not found")
	}
	return serveBlob(c, data, media.Image, "private, max-age=60")
}
