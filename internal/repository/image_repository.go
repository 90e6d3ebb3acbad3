package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/clinic-scheduling/internal/database"
	"github.com/iliyamo/clinic-scheduling/internal/media"
)

// ImageRepo stores pictures: avatars in `imagen_usuario` and appointment
// attachments in `imagenes_cita`.
type ImageRepo struct{ store }

func NewImageRepo(db *sql.DB, d database.Dialect) *ImageRepo { return &ImageRepo{newStore(db, d)} }

// AddAvatar stores a new avatar; the latest one wins.
func (r *ImageRepo) AddAvatar(ctx context.Context, userID int64, data []byte) (int64, error) {
	return r.insertID(ctx, r.db,
		"INSERT INTO imagen_usuario (usuario_id, imagen, created_at) VALUES (?,?,NOW())", "id", userID, data)
}

// LatestAvatar returns the most recent avatar of userID.
func (r *ImageRepo) LatestAvatar(ctx context.Context, userID int64) ([]byte, error) {
	return r.blob(ctx, "SELECT imagen FROM imagen_usuario WHERE usuario_id = ? ORDER BY created_at DESC, id DESC LIMIT 1", userID)
}

// AddAppointmentImage attaches data to an appointment.  ErrNotFound when
// the appointment does not exist.
func (r *ImageRepo) AddAppointmentImage(ctx context.Context, appointmentID int64, data []byte) (int64, error) {
	var one int
	err := r.db.QueryRowContext(ctx, r.q("SELECT 1 FROM cita WHERE id_cita = ?"), appointmentID).Scan(&one)
	if err != nil {
		return 0, notFound(err)
	}
	id, err := r.insertID(ctx, r.db,
		"INSERT INTO imagenes_cita (id_cita, imagen, created_at) VALUES (?,?,NOW())", "id", appointmentID, data)
	if database.IsForeignKeyViolation(err) {
		return 0, ErrNotFound
	}
	return id, err
}

// AppointmentImage returns the bytes of one attachment.
func (r *ImageRepo) AppointmentImage(ctx context.Context, id int64) ([]byte, error) {
	return r.blob(ctx, "SELECT imagen FROM imagenes_cita WHERE id = ? LIMIT 1", id)
}

// DeleteAppointmentImage removes one attachment.
func (r *ImageRepo) DeleteAppointmentImage(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.q("DELETE FROM imagenes_cita WHERE id = ?"), id)
	return affected(res, err)
}

// blob reads a single binary column and normalizes its encoding.  A NULL
// column counts as missing.
func (r *ImageRepo) blob(ctx context.Context, query string, args ...any) ([]byte, error) {
	var raw []byte
	if err := r.db.QueryRowContext(ctx, r.q(query), args...).Scan(&raw); err != nil {
		return nil, notFound(err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	return media.ToBytes(raw)
}
