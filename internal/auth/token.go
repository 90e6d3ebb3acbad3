package auth

import (
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// TokenQueryParam carries the token for media URLs embedded in <img> and
// <video> tags, where custom headers cannot be set.
const TokenQueryParam = "jwt"

// ReadToken returns the bearer credential of r, or "" when there is none.
// The Authorization header wins over the jwt query parameter.
func ReadToken(r *http.Request) string {
	if h := authorizationHeader(r.Header); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimPrefix(h, bearerPrefix)
	}
	if r.URL != nil {
		if q := r.URL.Query().Get(TokenQueryParam); q != "" {
			return q
		}
	}
	return ""
}

// authorizationHeader also matches keys stored without canonicalization,
// as happens when a header map is filled by hand.
func authorizationHeader(h http.Header) string {
	if v := h.Get("Authorization"); v != "" {
		return v
	}
	for k, vs := range h {
		if len(vs) > 0 && strings.EqualFold(k, "authorization") {
			return vs[0]
		}
	}
	return ""
}
