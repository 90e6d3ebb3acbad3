package auth

import "errors"

var (
	// ErrNoToken means the request carried no credential at all.
	ErrNoToken = errors.New("missing token")
	// ErrInvalidToken covers bad signatures, expiry and malformed tokens.
	// Callers answer 401 without saying which.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNoIdentity means the token verified but names no usable user.
	ErrNoIdentity = errors.New("token carries no user identity")
	// ErrForbidden is a Deny from the access guard.
	ErrForbidden = errors.New("forbidden")
)

// IsUnauthenticated reports whether err should become a 401.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrNoToken) || errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrNoIdentity)
}
