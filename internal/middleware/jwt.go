package middleware

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/clinic-scheduling/internal/auth"
    "github.com/iliyamo/clinic-scheduling/internal/logging"
)

// Auth returns an Echo middleware that authenticates the bearer token (or
// the jwt query parameter) with a and stores the caller's identity on the
// context.  Handlers read it back with IdentityFrom.  Every authentication
// failure is answered with the same 401 body so callers cannot probe which
// check failed.
func Auth(a *auth.Authenticator) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            id, claims, err := a.Request(c.Request())
            if err != nil {
                if auth.IsUnauthenticated(err) {
                    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
                }
                // identity lookup failed for a reason other than a bad token
                logging.Error().Err(err).Str("path", c.Path()).Msg("authenticate")
                return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
            }
            SetIdentity(c, id, claims)
            return next(c)
        }
    }
}
