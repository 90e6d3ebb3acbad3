package router

import (
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/clinic-scheduling/internal/auth"
	"github.com/iliyamo/clinic-scheduling/internal/captcha"
	"github.com/iliyamo/clinic-scheduling/internal/config"
	"github.com/iliyamo/clinic-scheduling/internal/database"
	"github.com/iliyamo/clinic-scheduling/internal/handler"
	"github.com/iliyamo/clinic-scheduling/internal/mail"
	"github.com/iliyamo/clinic-scheduling/internal/middleware"
	"github.com/iliyamo/clinic-scheduling/internal/repository"
	"github.com/iliyamo/clinic-scheduling/internal/utils"
)

const secret = "router-test-secret"

func testServer(t *testing.T) (*echo.Echo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	cfg := &config.Config{
		App:  config.AppConfig{Env: "test", CORSOrigin: "https://clinic.example.com"},
		Auth: config.AuthConfig{JWTSecret: secret, SessionTTL: time.Hour, BcryptCost: 4},
		RateLimit: config.RateLimitConfig{
			Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Hour,
			TTL: time.Hour, KeyStrategy: "ip_route", Prefix: "rl",
		},
		Media: config.MediaConfig{MaxVideoMB: 1},
	}
	d := database.MySQL
	users := repository.NewUserRepo(db, d)
	images := repository.NewImageRepo(db, d)
	appointments := repository.NewAppointmentRepo(db, d)
	sessions := auth.NewAuthenticator(auth.NewHMACVerifier(secret))

	e := New(Deps{
		Config:       cfg,
		DB:           db,
		Auth:         sessions,
		EmailAuth:    sessions.WithEmailFallback(users),
		Metrics:      middleware.NewMetrics(),
		Accounts:     handler.NewAuthHandler(cfg, users, repository.NewResetRepo(db, d), mail.LogSender{}, captcha.Disabled{}, nil),
		Profile:      handler.NewProfileHandler(true, users, images),
		Appointments: handler.NewAppointmentHandler(true, appointments, images),
		Admin:        handler.NewAdminHandler(true, users, appointments, repository.NewBookingRepo(db, d), repository.NewStatsRepo(db, d)),
		Videos:       handler.NewVideoHandler(true, repository.NewVideoRepo(db, d), repository.NewAssignmentRepo(db, d), 1),
	})
	return e, mock
}

func token(t *testing.T, id, role int64) string {
	t.Helper()
	tok, err := utils.NewSessionToken(secret, id, "user@example.com", role, time.Hour)
	require.NoError(t, err)
	return tok.Token
}

func call(e *echo.Echo, method, target, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAdminRouteAccess(t *testing.T) {
	e, mock := testServer(t)

	for _, n := range []int{4, 1, 2} {
		mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(n))
	}
	rec := call(e, http.MethodGet, "/api/admin/stats", token(t, 1, 1))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"usuarios":4,"citas_hoy":1,"videos":2}`, rec.Body.String())

	rec = call(e, http.MethodGet, "/api/admin/stats", token(t, 5, 2))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(e, http.MethodGet, "/api/admin/stats", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(e, http.MethodGet, "/api/admin/stats", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStreamAcceptsQueryToken(t *testing.T) {
	e, mock := testServer(t)
	mock.ExpectQuery("FROM video v").WillReturnError(sql.ErrNoRows)

	rec := call(e, http.MethodGet, "/api/videos/4/stream?jwt="+token(t, 1, 1), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoginIsRateLimited(t *testing.T) {
	e, _ := testServer(t)

	first := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`))
	first.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, first)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	second := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`))
	second.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestOperationalRoutes(t *testing.T) {
	e, mock := testServer(t)

	rec := call(e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	mock.ExpectPing()
	rec = call(e, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	mock.ExpectPing().WillReturnError(errors.New("db down"))
	rec = call(e, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = call(e, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `path="/healthz"`)
}

func TestCORSPreflight(t *testing.T) {
	e, _ := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/videos/4/stream", nil)
	req.Header.Set(echo.HeaderOrigin, "https://clinic.example.com")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
	req.Header.Set(echo.HeaderAccessControlRequestHeaders, "Range")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://clinic.example.com", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowHeaders), "Range")
}

func TestUnknownRouteIsJSON(t *testing.T) {
	e, _ := testServer(t)
	rec := call(e, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not Found"}`, rec.Body.String())
}
