package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-scheduling/internal/auth"
	"github.com/iliyamo/clinic-scheduling/internal/middleware"
)

// registerAdmin mounts the back office.  Every route names the operation
// it performs so the access guard decides, not the route prefix.
func registerAdmin(e *echo.Echo, d Deps) {
	authn := middleware.Auth(d.Auth)
	need := middleware.Require

	ap := d.Appointments
	g := e.Group("/api", authn)
	g.GET("/appointments/:id", ap.Get, need(auth.OpManageAppointments))
	g.PUT("/appointments/:id", ap.Update, need(auth.OpManageAppointments))
	g.POST("/appointments/:id/images", ap.UploadImage, need(auth.OpManageAppointments))
	g.GET("/appointment-images/:id", ap.Image, need(auth.OpManageAppointments))
	g.DELETE("/appointment-images/:id", ap.DeleteImage, need(auth.OpManageAppointments))

	adm := e.Group("/api/admin", authn)

	// ---- Appointments ----
	adm.GET("/appointments", ap.AdminList, need(auth.OpListAllAppointments))
	adm.GET("/appointments/pending", ap.Pending, need(auth.OpListAllAppointments))
	adm.GET("/appointments/upcoming", ap.Upcoming, need(auth.OpListAllAppointments))

	// ---- Bookings and calendar ----
	a := d.Admin
	bk := need(auth.OpManageBookings)
	adm.GET("/bookings/pending", a.PendingBookings, bk)
	adm.POST("/bookings/:id/status", a.SetBookingStatus, bk)
	adm.GET("/calendar/bookings", a.BookingEvents, bk)
	adm.POST("/calendar/bookings/:id/move", a.MoveBooking, bk)
	adm.GET("/calendar/appointments", a.AppointmentEvents, need(auth.OpManageAppointments))
	adm.POST("/calendar/appointments/:id/move", a.MoveAppointment, need(auth.OpManageAppointments))

	// ---- Users ----
	adm.GET("/users", a.ListUsers, need(auth.OpManageUsers))
	adm.POST("/users/:id/toggle-active", a.ToggleActive, need(auth.OpToggleActive))
	adm.POST("/users/:id/role", a.SetRole, need(auth.OpChangeRole))
	adm.GET("/stats", a.DashboardStats, need(auth.OpViewStats))

	// ---- Videos ----
	v := d.Videos
	vid := need(auth.OpManageVideos)
	adm.GET("/videos", v.List, vid)
	adm.POST("/videos", v.Create, vid)
	adm.POST("/videos/upload", v.Upload, vid)
	adm.DELETE("/videos/:id", v.Delete, vid)
	adm.POST("/assignments", v.Assign, vid)
	adm.DELETE("/assignments/:id", v.Unassign, vid)
	adm.DELETE("/assignments", v.UnassignPair, vid)
}
