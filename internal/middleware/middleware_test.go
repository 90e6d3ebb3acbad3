package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/clinic-scheduling/internal/auth"
	"github.com/iliyamo/clinic-scheduling/internal/config"
)

const secret = "test-secret"

func token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func serve(e *echo.Echo, method, target, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func whoami(c echo.Context) error {
	id, _ := IdentityFrom(c)
	return c.JSON(http.StatusOK, echo.Map{"user_id": id.UserID, "role_id": id.RoleID})
}

func TestAuthAndRequire(t *testing.T) {
	e := echo.New()
	a := auth.NewAuthenticator(auth.NewHMACVerifier(secret))
	e.GET("/admin", whoami, Auth(a), Require(auth.OpViewStats))
	e.GET("/me", whoami, Auth(a))

	admin := token(t, jwt.MapClaims{"id": 1, "rol_id": 1})
	client := token(t, jwt.MapClaims{"id": 7, "rol_id": 2})

	rec := serve(e, http.MethodGet, "/admin", admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":1,"role_id":1}`, rec.Body.String())

	rec = serve(e, http.MethodGet, "/admin", client)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())

	for _, bad := range []string{"", "garbage", token(t, jwt.MapClaims{"rol_id": 1})} {
		rec = serve(e, http.MethodGet, "/admin", bad)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
	}

	rec = serve(e, http.MethodGet, "/me?jwt="+client, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":7,"role_id":2}`, rec.Body.String())
}

type brokenResolver struct{}

func (brokenResolver) UserIDByEmail(context.Context, string) (int64, error) {
	return 0, errors.New("db down")
}

func TestAuthLookupFailureIsInternal(t *testing.T) {
	e := echo.New()
	a := auth.NewAuthenticator(auth.NewHMACVerifier(secret)).WithEmailFallback(brokenResolver{})
	e.GET("/videos/me", whoami, Auth(a))

	rec := serve(e, http.MethodGet, "/videos/me", token(t, jwt.MapClaims{"email": "a@b.co"}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequireWithoutAuth(t *testing.T) {
	e := echo.New()
	e.GET("/x", whoami, Require(auth.OpManageVideos))
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/x", "").Code)
}

func limitCfg() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            5 * time.Hour,
		KeyStrategy:    "ip_route",
		Prefix:         "rl",
	}
}

func ok(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestTokenBucketLocal(t *testing.T) {
	e := echo.New()
	e.POST("/login", ok, NewTokenBucket(limitCfg(), nil))
	e.POST("/forgot", ok, NewTokenBucket(limitCfg(), nil))

	for i := 0; i < 2; i++ {
		rec := serve(e, http.MethodPost, "/login", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec := serve(e, http.MethodPost, "/login", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "too_many_requests")

	// other routes have their own bucket
	assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/forgot", "").Code)
}

func TestTokenBucketFallsBackWhenRedisDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	e := echo.New()
	e.POST("/login", ok, NewTokenBucket(limitCfg(), rdb))
	assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/login", "").Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/login", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(e, http.MethodPost, "/login", "").Code)
}

func TestTokenBucketDisabled(t *testing.T) {
	cfg := limitCfg()
	cfg.Enabled = false
	e := echo.New()
	e.POST("/login", ok, NewTokenBucket(cfg, nil))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/login", "").Code)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/auth/login")

	cfg := limitCfg()
	assert.Equal(t, "rl:ip:10.1.2.3:route:POST /api/auth/login", buildRateKey(cfg, c))

	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:user:anon", buildRateKey(cfg, c))
	SetIdentity(c, auth.Identity{UserID: 9, RoleID: 2}, nil)
	assert.Equal(t, "rl:user:9", buildRateKey(cfg, c))
}

func TestMetricsRecordsRouteTemplate(t *testing.T) {
	m := NewMetrics()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/videos/:id/stream", ok)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	serve(e, http.MethodGet, "/api/videos/42/stream", "")
	serve(e, http.MethodGet, "/nope", "")

	rec := serve(e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	assert.Contains(t, text, `http_requests_total{method="GET",path="/api/videos/:id/stream",status="200"} 1`)
	assert.Contains(t, text, `status="404"`)
	assert.False(t, strings.Contains(text, "/api/videos/42/stream"), "raw paths must not become labels")
}
