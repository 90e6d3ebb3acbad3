package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-scheduling/internal/auth"
	"github.com/iliyamo/clinic-scheduling/internal/captcha"
	"github.com/iliyamo/clinic-scheduling/internal/config"
	"github.com/iliyamo/clinic-scheduling/internal/logging"
	"github.com/iliyamo/clinic-scheduling/internal/mail"
	"github.com/iliyamo/clinic-scheduling/internal/middleware"
	"github.com/iliyamo/clinic-scheduling/internal/model"
	"github.com/iliyamo/clinic-scheduling/internal/repository"
	"github.com/iliyamo/clinic-scheduling/internal/utils"
)

// AuthHandler bundles dependencies for the credential endpoints.
type AuthHandler struct {
	base
	Cfg     *config.Config
	Users   *repository.UserRepo
	Resets  *repository.ResetRepo
	Mail    mail.Sender
	Captcha captcha.Verifier
	// Upstream verifies the identity provider token demanded on sign-up
	// when auth.signup_require_jwt is set.
	Upstream auth.Verifier
}

func NewAuthHandler(cfg *config.Config, u *repository.UserRepo, r *repository.ResetRepo, m mail.Sender, cv captcha.Verifier, upstream auth.Verifier) *AuthHandler {
	return &AuthHandler{
		base:     base{Verbose: !cfg.IsProduction()},
		Cfg:      cfg,
		Users:    u,
		Resets:   r,
		Mail:     m,
		Captcha:  cv,
		Upstream: upstream,
	}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"correo" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (r *loginReq) normalize() { r.Email = repository.NormalizeEmail(r.Email) }

type signupReq struct {
	FullName   string `json:"nombre_completo" validate:"required,min=3"`
	Email      string `json:"correo" validate:"required,email"`
	NationalID string `json:"cedula" validate:"required,min=3"`
	Password   string `json:"password" validate:"required,min=8"`
}

func (r *signupReq) normalize() {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Email = repository.NormalizeEmail(r.Email)
	r.NationalID = strings.TrimSpace(r.NationalID)
}

type forgotReq struct {
	Email   string `json:"correo" validate:"required"`
	Captcha string `json:"captcha"`
}

func (r *forgotReq) normalize() { r.Email = repository.NormalizeEmail(r.Email) }

type resetReq struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
	Captcha  string `json:"captcha"`
}

func (r *resetReq) normalize() { r.Token = strings.TrimSpace(r.Token) }

// Login verifies the password and issues a one hour session token.  An
// unknown email and a wrong password get the same answer.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusUnauthorized, "invalid credentials")
		}
		return h.internal(c, err, "query failed")
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return fail(c, http.StatusUnauthorized, "invalid credentials")
	}
	if u.Active != model.UserActive {
		return fail(c, http.StatusForbidden, "account disabled")
	}

	tok, err := utils.NewSessionToken(h.Cfg.Auth.JWTSecret, u.ID, u.Email, u.RoleID, h.Cfg.Auth.SessionTTL)
	if err != nil {
		return h.internal(c, err, "issue token failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "token": tok.Token, "expires": tok.Exp, "usuario": u})
}

// Signup creates a client account.  When configured, the caller must also
// present a token from the upstream identity provider.
func (h *AuthHandler) Signup(c echo.Context) error {
	var claims auth.Claims
	if h.Cfg.Auth.SignupRequireJWT {
		tok := auth.ReadToken(c.Request())
		if tok == "" || h.Upstream == nil {
			return fail(c, http.StatusUnauthorized, "unauthorized")
		}
		var err error
		if claims, err = h.Upstream.Verify(c.Request().Context(), tok); err != nil {
			logging.Debug().Err(err).Msg("signup upstream token rejected")
			return fail(c, http.StatusUnauthorized, "unauthorized")
		}
	}

	var req signupReq
	if err := bind(c, &req); err != nil {
		return err
	}
	hash, err := utils.HashPassword(req.Password, h.Cfg.Auth.BcryptCost)
	if err != nil {
		return h.internal(c, err, "hash password failed")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	id, err := h.Users.Create(ctx, &model.User{
		FullName:     req.FullName,
		Email:        req.Email,
		NationalID:   req.NationalID,
		PasswordHash: hash,
	})
	if err != nil {
		return h.storeError(c, err, "user not found")
	}
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return h.storeError(c, err, "user not found")
	}
	resp := echo.Map{"ok": true, "usuario": u}
	if sub, ok := claims["sub"]; ok {
		resp["claims"] = echo.Map{"sub": sub}
	}
	return c.JSON(http.StatusCreated, resp)
}

// Whoami echoes the verified claims and the identity derived from them.
func (h *AuthHandler) Whoami(c echo.Context) error {
	id := caller(c)
	return c.JSON(http.StatusOK, echo.Map{
		"ok":      true,
		"claims":  middleware.ClaimsFrom(c),
		"user_id": id.UserID,
		"role_id": id.RoleID,
	})
}

// ForgotPassword always answers {ok:true} once the captcha passes so the
// endpoint cannot be used to probe which emails have accounts.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.Captcha.Verify(c.Request().Context(), req.Captcha, c.RealIP()); err != nil {
		return h.captchaFailed(c, err)
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	}
	if err != nil {
		return h.internal(c, err, "query failed")
	}

	rt, err := utils.NewResetToken(h.Cfg.Auth.ResetTTL)
	if err != nil {
		return h.internal(c, err, "issue token failed")
	}
	if err := h.Resets.Store(ctx, u.ID, rt.Hash, rt.Exp); err != nil {
		return h.internal(c, err, "save token failed")
	}
	link := strings.TrimRight(h.Cfg.App.BaseURL, "/") + "/reset.html?token=" + url.QueryEscape(rt.Raw)
	mail.Async(h.Mail, mail.PasswordReset(u.Email, u.FullName, link, h.Cfg.Auth.ResetTTL))
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// ResetPassword consumes a reset token and sets the new password in one
// transaction.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.Captcha.Verify(c.Request().Context(), req.Captcha, c.RealIP()); err != nil {
		return h.captchaFailed(c, err)
	}
	hash, err := utils.HashPassword(req.Password, h.Cfg.Auth.BcryptCost)
	if err != nil {
		return h.internal(c, err, "hash password failed")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	if _, err := h.Resets.Consume(ctx, utils.HashToken(req.Token), hash, h.now()); err != nil {
		if errors.Is(err, repository.ErrTokenInvalid) {
			return fail(c, http.StatusBadRequest, "invalid or expired token")
		}
		return h.internal(c, err, "reset failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (h *AuthHandler) captchaFailed(c echo.Context, err error) error {
	if !errors.Is(err, captcha.ErrMissing) && !errors.Is(err, captcha.ErrRejected) {
		logging.Warn().Err(err).Msg("captcha provider error")
	}
	return fail(c, http.StatusBadRequest, "captcha verification failed")
}
