// Package router builds the Echo instance and registers every API route.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/clinic-scheduling/internal/auth"
	"github.com/iliyamo/clinic-scheduling/internal/config"
	"github.com/iliyamo/clinic-scheduling/internal/handler"
	"github.com/iliyamo/clinic-scheduling/internal/middleware"
)

// Deps is everything the routes need, assembled in main.
type Deps struct {
	Config *config.Config
	DB     handler.Pinger
	Redis  *redis.Client // nil keeps rate limit buckets in process

	// Auth authenticates session tokens; EmailAuth additionally resolves
	// tokens that only carry an email claim.
	Auth      *auth.Authenticator
	EmailAuth *auth.Authenticator

	Metrics *middleware.Metrics

	Accounts     *handler.AuthHandler
	Profile      *handler.ProfileHandler
	Appointments *handler.AppointmentHandler
	Admin        *handler.AdminHandler
	Videos       *handler.VideoHandler
}

// New returns a configured Echo with all routes registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsonSerializer{}
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(!d.Config.IsProduction())

	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{d.Config.App.CORSOrigin},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, "Range", echo.HeaderContentType},
		ExposeHeaders: []string{
			"Content-Range", "Accept-Ranges", echo.HeaderContentLength,
		},
	}))
	if d.Metrics != nil {
		e.Use(d.Metrics.Middleware())
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	registerOps(e, d)
	registerAuth(e, d)
	registerClient(e, d)
	registerAdmin(e, d)
	return e
}

// registerOps exposes the probes used by load balancers.
func registerOps(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	if d.DB != nil {
		e.GET("/readyz", handler.Ready(d.DB))
	}
}

// registerAuth mounts /api/auth.  The credential endpoints share one token
// bucket; the key includes the route so each keeps its own budget.
func registerAuth(e *echo.Echo, d Deps) {
	limit := middleware.NewTokenBucket(d.Config.RateLimit, d.Redis)
	a := d.Accounts

	g := e.Group("/api/auth")
	g.POST("/login", a.Login, limit)
	g.POST("/signup", a.Signup)
	g.POST("/password/forgot", a.ForgotPassword, limit)
	g.POST("/password/reset", a.ResetPassword, limit)
	g.GET("/whoami", a.Whoami, middleware.Auth(d.Auth))
}
