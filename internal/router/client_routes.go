package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-scheduling/internal/middleware"
)

// registerClient mounts the routes any signed-in user may call.  Ownership
// checks happen in the handlers.
func registerClient(e *echo.Echo, d Deps) {
	g := e.Group("/api", middleware.Auth(d.Auth))

	me := g.Group("/me")
	me.PUT("", d.Profile.UpdateName)
	me.PUT("/email", d.Profile.UpdateEmail)
	me.POST("/avatar", d.Profile.UploadAvatar)
	me.GET("/avatar", d.Profile.Avatar)

	ap := d.Appointments
	g.POST("/appointments", ap.Create)
	g.GET("/appointments", ap.List)
	g.GET("/appointments/me", ap.Mine)
	g.DELETE("/appointments/:id", ap.Delete)
	g.POST("/appointments/:id/status", ap.SetStatus)

	v := d.Videos
	g.GET("/videos/:id/stream", v.Stream)
	g.HEAD("/videos/:id/stream", v.Stream)
	g.GET("/assignments", v.ListAssignments)

	// The catalog front-end may hold an upstream token without a numeric id.
	e.GET("/api/videos/me", v.Mine, middleware.Auth(d.EmailAuth))
}
