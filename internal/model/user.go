package model

import "time"

// User represents a row of the `usuario` table.  The json tags mirror the
// column names because the web front-end consumes them unchanged.  The
// password hash never leaves the repository layer (json:"-").
//
// Fields:
//  ID           – primary key.
//  FullName     – display name (nombre_completo).
//  Email        – unique login address (correo).
//  NationalID   – identity document number (cedula).
//  PasswordHash – bcrypt (or legacy argon2id) encoded hash.
//  RoleID       – 1 administrator, 2 client.
//  Active       – 1 active, 2 inactive.
type User struct {
    ID           int64     `json:"id"`
    FullName     string    `json:"nombre_completo"`
    Email        string    `json:"correo"`
    NationalID   string    `json:"cedula"`
    PasswordHash string    `json:"-"`
    RoleID       int64     `json:"rol_id"`
    Active       int64     `json:"activo"`
    CreatedAt    time.Time `json:"created_at"`
    UpdatedAt    time.Time `json:"updated_at"`
}

// Account states stored in usuario.activo.
const (
    UserActive   int64 = 1
    UserInactive int64 = 2
)

// Role identifiers stored in usuario.rol_id.
const (
    RoleAdmin  int64 = 1
    RoleClient int64 = 2
)

// UserFilter narrows the administrator's user listing.
type UserFilter struct {
    Query  string // matched against name, email and cedula
    RoleID int64  // 0 = any
    Active int64  // 0 = any
    Page
}

// PasswordReset models a row of `password_reset`.  Only the SHA-256 of the
// emailed token is stored; UsedAt makes the token single-use.
type PasswordReset struct {
    ID        int64
    UserID    int64
    TokenHash string
    ExpiresAt time.Time
    UsedAt    *time.Time
    CreatedAt time.Time
}

// Stats are the dashboard counters.
type Stats struct {
    Users             int64 `json:"usuarios"`
    AppointmentsToday int64 `json:"citas_hoy"`
    Videos            int64 `json:"videos"`
}
