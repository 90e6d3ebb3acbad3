package auth

import (
	"context"
	"errors"
	"net/http"
)

// ErrUserNotFound is returned by an EmailResolver that has no matching user.
var ErrUserNotFound = errors.New("user not found")

// EmailResolver maps an email address to a user id.
type EmailResolver interface {
	UserIDByEmail(ctx context.Context, email string) (int64, error)
}

// Authenticator chains token reading, verification and normalization.
type Authenticator struct {
	verifier Verifier
	emails   EmailResolver
}

// NewAuthenticator uses v to verify tokens.
func NewAuthenticator(v Verifier) *Authenticator {
	return &Authenticator{verifier: v}
}

// WithEmailFallback returns a copy that, when a verified token carries no
// numeric identity, resolves the user from an email claim through r.
func (a *Authenticator) WithEmailFallback(r EmailResolver) *Authenticator {
	cp := *a
	cp.emails = r
	return &cp
}

// Request authenticates the credential carried by r.
func (a *Authenticator) Request(r *http.Request) (Identity, Claims, error) {
	return a.Authenticate(r.Context(), ReadToken(r))
}

// Authenticate verifies token and derives the caller's Identity.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (Identity, Claims, error) {
	if token == "" {
		return Identity{}, nil, ErrNoToken
	}
	claims, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return Identity{}, nil, err
	}
	id, err := Normalize(claims)
	if err == nil {
		return id, claims, nil
	}
	if a.emails == nil {
		return Identity{}, claims, err
	}
	email := EmailFrom(claims)
	if email == "" {
		return Identity{}, claims, ErrNoIdentity
	}
	uid, lerr := a.emails.UserIDByEmail(ctx, email)
	if errors.Is(lerr, ErrUserNotFound) || (lerr == nil && uid <= 0) {
		return Identity{}, claims, ErrNoIdentity
	}
	if lerr != nil {
		return Identity{}, claims, lerr
	}
	return Identity{UserID: uid, RoleID: roleOf(claims)}, claims, nil
}
