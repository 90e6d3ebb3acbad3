package auth

import "github.com/iliyamo/clinic-scheduling/internal/model"

// Operation names what the caller is trying to do to a resource.
type Operation int

const (
	// Owner-or-admin operations.
	OpRead Operation = iota
	OpUpdate
	OpDelete

	// Administrator-only operations.  Ownership does not matter.
	OpChangeRole
	OpToggleActive
	OpManageUsers
	OpAcceptAppointment
	OpManageAppointments
	OpListAllAppointments
	OpManageBookings
	OpManageVideos
	OpViewStats
)

// AdminOnly reports whether op is closed to clients regardless of ownership.
func (op Operation) AdminOnly() bool { return op >= OpChangeRole }

// Decision is the outcome of an authorization check.  Reason is set on Deny.
type Decision struct {
	Allowed bool
	Reason  error
}

var allow = Decision{Allowed: true}

func deny(reason error) Decision { return Decision{Reason: reason} }

// Err returns nil on Allow and the deny reason otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == nil {
		return ErrForbidden
	}
	return d.Reason
}

// Authorize decides whether actor may perform op on a resource owned by
// ownerID.  Administrators may do anything; clients only touch their own
// resources and never perform admin-only operations.
func Authorize(actor Identity, ownerID int64, op Operation) Decision {
	if actor.IsAdmin() {
		return allow
	}
	if op.AdminOnly() {
		return deny(ErrForbidden)
	}
	if actor.UserID > 0 && actor.UserID == ownerID {
		return allow
	}
	return deny(ErrForbidden)
}

// AuthorizeStatusChange applies the appointment-state rule: administrators
// may set any state, while an owner may only cancel or ask to postpone.
// Validity of target is checked by the caller.
func AuthorizeStatusChange(actor Identity, ownerID int64, target model.AppointmentStatus) Decision {
	if actor.IsAdmin() {
		return allow
	}
	if target == model.AppointmentAccepted {
		return Authorize(actor, ownerID, OpAcceptAppointment)
	}
	if !target.ClientSettable() {
		return deny(ErrForbidden)
	}
	return Authorize(actor, ownerID, OpUpdate)
}
