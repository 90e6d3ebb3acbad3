// Package repository holds the SQL data access for the clinic API.  Every
// repository speaks both MySQL and Postgres: queries are written with ?
// placeholders and rebound for the configured dialect.
//
// The sentinel errors below let handlers tell failure scenarios apart
// without inspecting driver errors.  ErrNotFound becomes a 404,
// ErrConflict and ErrEmailExists a 409, ErrInvalidState and
// ErrTokenInvalid a 400.
package repository

import (
	"errors"

	"github.com/iliyamo/clinic-scheduling/internal/database"
)

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with an existing row.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned when a sign-up or email change would
// duplicate another account's address.
var ErrEmailExists = errors.New("email already exists")

// ErrTokenInvalid is returned for a password reset token that is unknown,
// already used or expired.  The three cases are deliberately not told apart.
var ErrTokenInvalid = errors.New("invalid or expired token")

// StateError is a business rule enforced by the database itself (a trigger
// or a check constraint), such as "the last administrator cannot be
// demoted".  Its message is safe to show to the caller.
type StateError struct{ Msg string }

func (e *StateError) Error() string { return e.Msg }

// Is lets errors.Is(err, ErrInvalidState) match any StateError.
func (e *StateError) Is(target error) bool { return target == ErrInvalidState }

// ErrInvalidState matches every StateError.
var ErrInvalidState = errors.New("invalid state")

// classify maps driver errors onto the package sentinels.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case database.IsUniqueViolation(err):
		return ErrConflict
	case database.IsRaised(err):
		return &StateError{Msg: database.Message(err)}
	}
	return err
}
