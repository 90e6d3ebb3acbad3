package model

import "time"

// AppointmentStatus is the lifecycle state stored in cita.estado.
type AppointmentStatus int64

const (
    AppointmentAccepted  AppointmentStatus = 1
    AppointmentCancelled AppointmentStatus = 2
    AppointmentPending   AppointmentStatus = 3 // initial state of a client request
    AppointmentPostponed AppointmentStatus = 4 // client asked to reschedule
    AppointmentFinished  AppointmentStatus = 5
)

// Valid reports whether s is one of the five known states.
func (s AppointmentStatus) Valid() bool {
    return s >= AppointmentAccepted && s <= AppointmentFinished
}

// ClientSettable reports whether a client may move their own appointment
// into s.  Everything else needs an administrator.
func (s AppointmentStatus) ClientSettable() bool {
    return s == AppointmentCancelled || s == AppointmentPostponed
}

// Appointment represents a row of the `cita` table, optionally enriched
// with the owner's name and the ids of attached images.
//
// Fields:
//  ID          – cita.id_cita.
//  Date        – scheduled date and time (fecha).
//  Title       – short subject (titulo).
//  Description – optional free text (descripcion).
//  UserID      – owning client (usuario_id).
//  Status      – lifecycle state (estado).
type Appointment struct {
    ID          int64             `json:"id_cita"`
    Date        time.Time         `json:"fecha"`
    Title       string            `json:"titulo"`
    Description *string           `json:"descripcion"`
    UserID      int64             `json:"usuario_id"`
    Status      AppointmentStatus `json:"estado"`
    CreatedAt   time.Time         `json:"created_at"`
    UpdatedAt   time.Time         `json:"updated_at"`

    UserName  string  `json:"usuario_nombre,omitempty"`
    UserEmail string  `json:"usuario_correo,omitempty"`
    ImageIDs  []int64 `json:"images"`
}

// AppointmentFilter drives the administrator listing.
type AppointmentFilter struct {
    Query      string              // matched against title, owner name and email
    Statuses   []AppointmentStatus // empty = any
    OnlyFuture bool
    From, To   *time.Time
    Page
}

// Booking represents a row of `agendar_cita`, a client's request to attend
// an appointment slot.  Listings join the client and the appointment so the
// front-end can render them without further lookups.
type Booking struct {
    ID            int64         `json:"id"`
    ClientID      int64         `json:"id_cliente"`
    AppointmentID *int64        `json:"id_cita"`
    Date          time.Time     `json:"fecha"`
    Status        BookingStatus `json:"estado"`
    UpdatedAt     *time.Time    `json:"updated_at,omitempty"`

    ClientName  string  `json:"cliente,omitempty"`
    ClientEmail string  `json:"correo,omitempty"`
    Title       string  `json:"titulo,omitempty"`
    Description *string `json:"descripcion,omitempty"`
}

// BookingStatus is stored in agendar_cita.estado.
type BookingStatus int64

const (
    BookingPending   BookingStatus = 1
    BookingAccepted  BookingStatus = 2
    BookingCancelled BookingStatus = 3
)

// AdminSettable reports whether an administrator may resolve a pending
// booking into s.
func (s BookingStatus) AdminSettable() bool {
    return s == BookingAccepted || s == BookingCancelled
}

// CalendarEvent is the shape consumed by the calendar widget.  End is
// always null; the widget draws a default one hour slot.
type CalendarEvent struct {
    ID          int64      `json:"id"`
    Start       time.Time  `json:"start"`
    End         *time.Time `json:"end"`
    Status      int64      `json:"estado"`
    Client      string     `json:"cliente"`
    Email       string     `json:"correo"`
    Title       string     `json:"titulo"`
    Description *string    `json:"descripcion"`
}
