package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/clinic-scheduling/internal/database"
	"github.com/iliyamo/clinic-scheduling/internal/model"
)

// BookingRepo provides access to `agendar_cita`.
type BookingRepo struct{ store }

func NewBookingRepo(db *sql.DB, d database.Dialect) *BookingRepo {
	return &BookingRepo{newStore(db, d)}
}

const bookingJoin = `FROM agendar_cita ac
		JOIN cita c    ON c.id_cita = ac.id_cita
		JOIN usuario u ON u.id = ac.id_cliente`

// ListPending returns pending bookings, soonest first.
func (r *BookingRepo) ListPending(ctx context.Context, p model.Page) ([]model.Booking, int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, r.q("SELECT COUNT(*) "+bookingJoin+" WHERE ac.estado = ?"), model.BookingPending).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT ac.id, ac.id_cliente, ac.id_cita, ac.fecha, ac.estado,
			u.nombre_completo, u.correo, c.titulo, c.descripcion
		`+bookingJoin+`
		WHERE ac.estado = ?
		ORDER BY ac.fecha ASC
		LIMIT ? OFFSET ?`), model.BookingPending, p.Size, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Booking, 0, p.Size)
	for rows.Next() {
		var (
			b      model.Booking
			citaID sql.NullInt64
			desc   sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.ClientID, &citaID, &b.Date, &b.Status,
			&b.ClientName, &b.ClientEmail, &b.Title, &desc); err != nil {
			return nil, 0, err
		}
		if citaID.Valid {
			id := citaID.Int64
			b.AppointmentID = &id
		}
		b.Description = nullString(desc)
		out = append(out, b)
	}
	return out, total, rows.Err()
}

// SetStatus resolves a booking and returns the updated row.
func (r *BookingRepo) SetStatus(ctx context.Context, id int64, s model.BookingStatus) (*model.Booking, error) {
	res, err := r.db.ExecContext(ctx, r.q("UPDATE agendar_cita SET estado = ?, updated_at = NOW() WHERE id = ?"), s, id)
	if err := affected(res, err); err != nil {
		return nil, err
	}
	return r.get(ctx, id)
}

// Move reschedules a booking and returns the updated row.
func (r *BookingRepo) Move(ctx context.Context, id int64, at time.Time) (*model.Booking, error) {
	res, err := r.db.ExecContext(ctx, r.q("UPDATE agendar_cita SET fecha = ?, updated_at = NOW() WHERE id = ?"), at.UTC(), id)
	if err := affected(res, err); err != nil {
		return nil, err
	}
	return r.get(ctx, id)
}

func (r *BookingRepo) get(ctx context.Context, id int64) (*model.Booking, error) {
	var (
		b         model.Booking
		citaID    sql.NullInt64
		updatedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, r.q("SELECT id, id_cliente, id_cita, fecha, estado, updated_at FROM agendar_cita WHERE id = ?"), id).
		Scan(&b.ID, &b.ClientID, &citaID, &b.Date, &b.Status, &updatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if citaID.Valid {
		v := citaID.Int64
		b.AppointmentID = &v
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		b.UpdatedAt = &t
	}
	return &b, nil
}

// CalendarEvents returns bookings with start <= fecha < end.
func (r *BookingRepo) CalendarEvents(ctx context.Context, start, end time.Time) ([]model.CalendarEvent, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT ac.id, ac.fecha, ac.estado, u.nombre_completo, u.correo, c.titulo, c.descripcion
		`+bookingJoin+`
		WHERE ac.fecha >= ? AND ac.fecha < ?
		ORDER BY ac.fecha ASC`), start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}
