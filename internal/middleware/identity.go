package middleware

// identity.go holds the context keys shared by the auth middleware and the
// handlers, and the helpers that read them back.

import (
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/clinic-scheduling/internal/auth"
)

const (
    keyUserID   = "user_id"
    keyRole     = "role"
    keyIdentity = "identity"
    keyClaims   = "claims"
)

// SetIdentity stores the authenticated caller on c.
func SetIdentity(c echo.Context, id auth.Identity, claims auth.Claims) {
    c.Set(keyIdentity, id)
    c.Set(keyClaims, claims)
    c.Set(keyUserID, id.UserID)
    c.Set(keyRole, id.RoleID)
}

// IdentityFrom returns the caller stored by Auth.  ok is false on routes
// that are not authenticated.
func IdentityFrom(c echo.Context) (auth.Identity, bool) {
    id, ok := c.Get(keyIdentity).(auth.Identity)
    return id, ok
}

// ClaimsFrom returns the verified claims of the caller, or nil.
func ClaimsFrom(c echo.Context) auth.Claims {
    cl, _ := c.Get(keyClaims).(auth.Claims)
    return cl
}

// userID is the caller id as a rate-limit key part, "anon" when unknown.
func userID(c echo.Context) string {
    if id, ok := IdentityFrom(c); ok && id.UserID > 0 {
        return strconv.FormatInt(id.UserID, 10)
    }
    return "anon"
}
