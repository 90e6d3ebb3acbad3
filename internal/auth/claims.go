package auth

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Claims is the decoded payload of a verified token.
type Claims map[string]any

// RoleAdmin is the only privileged role; every other value is a client.
const RoleAdmin int64 = 1

// Identity is the canonical caller derived from Claims.
type Identity struct {
	UserID int64
	RoleID int64
}

// IsAdmin reports whether the caller has the administrator role.
func (i Identity) IsAdmin() bool { return i.RoleID == RoleAdmin }

// Claim aliases in precedence order.  Different issuers spell the same
// attribute differently; the first present value wins.
var (
	IdentityFields = []string{"id", "user_id", "usuario_id", "sub", "uid"}
	RoleFields     = []string{"rol_id", "role_id", "role", "rol"}
	EmailFields    = []string{"email", "correo", "mail"}
)

// Normalize maps c to an Identity.  It fails with ErrNoIdentity when the
// first identity alias present does not coerce to a positive integer.  A
// missing or non-numeric role yields 0, which is never privileged.
func Normalize(c Claims) (Identity, error) {
	raw, ok := firstPresent(c, IdentityFields)
	if !ok {
		return Identity{}, ErrNoIdentity
	}
	id, ok := toNumber(raw)
	if !ok || id <= 0 || id != math.Trunc(id) || id >= math.MaxInt64 {
		return Identity{}, ErrNoIdentity
	}
	return Identity{UserID: int64(id), RoleID: roleOf(c)}, nil
}

func roleOf(c Claims) int64 {
	raw, ok := firstPresent(c, RoleFields)
	if !ok {
		return 0
	}
	r, ok := toNumber(raw)
	if !ok || r != math.Trunc(r) || math.Abs(r) > math.MaxInt32 {
		return 0
	}
	return int64(r)
}

// EmailFrom returns the first email claim, also looking inside nested
// user/usuario objects, lower-cased.  "" when none is present.
func EmailFrom(c Claims) string {
	if v, ok := firstPresent(c, EmailFields); ok {
		if s, ok := v.(string); ok {
			return strings.ToLower(strings.TrimSpace(s))
		}
	}
	for _, nest := range []string{"user", "usuario"} {
		if m, ok := c[nest].(map[string]any); ok {
			if e := EmailFrom(Claims(m)); e != "" {
				return e
			}
		}
	}
	return ""
}

// firstPresent returns the value of the first field that is set, non-nil
// and, for strings, non-blank.
func firstPresent(c Claims, fields []string) (any, bool) {
	for _, f := range fields {
		v, ok := c[f]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

// toNumber coerces a claim value the way a loosely typed issuer would
// expect: numbers as-is, numeric strings parsed, booleans as 1/0.
func toNumber(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = n
	case bool:
		if t {
			f = 1
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
