package middleware

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/clinic-scheduling/internal/auth"
)

// Require returns a middleware that lets the request through only when the
// access guard allows op for the authenticated caller.  It is meant for
// admin-only operations, which need no owner; it must run after Auth.
// A missing identity is a 401, a denial a 403.
func Require(op auth.Operation) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            id, ok := IdentityFrom(c)
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
            }
            if !auth.Authorize(id, 0, op).Allowed {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
            }
            return next(c)
        }
    }
}
