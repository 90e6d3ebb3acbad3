package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/clinic-scheduling/internal/database"
	"github.com/iliyamo/clinic-scheduling/internal/model"
)

// AppointmentRepo provides access to `cita` and its attached images.
type AppointmentRepo struct{ store }

func NewAppointmentRepo(db *sql.DB, d database.Dialect) *AppointmentRepo {
	return &AppointmentRepo{newStore(db, d)}
}

// Create stores a new request from a client.  It always starts Pending.
func (r *AppointmentRepo) Create(ctx context.Context, a *model.Appointment) error {
	id, err := r.insertID(ctx, r.db,
		"INSERT INTO cita (fecha, titulo, descripcion, usuario_id, estado, created_at, updated_at) VALUES (?,?,?,?,?,NOW(),NOW())",
		"id_cita",
		a.Date.UTC(), strings.TrimSpace(a.Title), a.Description, a.UserID, model.AppointmentPending)
	if err != nil {
		return classify(err)
	}
	a.ID, a.Status = id, model.AppointmentPending
	if a.ImageIDs == nil {
		a.ImageIDs = []int64{}
	}
	return nil
}

// GetByID returns the appointment with its owner's name and email and the
// ids of its images, newest first.
func (r *AppointmentRepo) GetByID(ctx context.Context, id int64) (*model.Appointment, error) {
	var (
		a    model.Appointment
		desc sql.NullString
	)
	err := r.db.QueryRowContext(ctx, r.q(`SELECT c.id_cita, c.fecha, c.titulo, c.descripcion, c.usuario_id, c.estado,
			c.created_at, c.updated_at, u.nombre_completo, u.correo
		FROM cita c
		JOIN usuario u ON u.id = c.usuario_id
		WHERE c.id_cita = ?`), id).
		Scan(&a.ID, &a.Date, &a.Title, &desc, &a.UserID, &a.Status, &a.CreatedAt, &a.UpdatedAt, &a.UserName, &a.UserEmail)
	if err != nil {
		return nil, notFound(err)
	}
	a.Description = nullString(desc)

	rows, err := r.db.QueryContext(ctx, r.q("SELECT id FROM imagenes_cita WHERE id_cita = ? ORDER BY id DESC"), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	a.ImageIDs = []int64{}
	for rows.Next() {
		var imgID int64
		if err := rows.Scan(&imgID); err != nil {
			return nil, err
		}
		a.ImageIDs = append(a.ImageIDs, imgID)
	}
	return &a, rows.Err()
}

// Owner returns usuario_id of the appointment.
func (r *AppointmentRepo) Owner(ctx context.Context, id int64) (int64, error) {
	var owner int64
	err := r.db.QueryRowContext(ctx, r.q("SELECT usuario_id FROM cita WHERE id_cita = ?"), id).Scan(&owner)
	return owner, notFound(err)
}

// Update overwrites the editable fields.
func (r *AppointmentRepo) Update(ctx context.Context, a *model.Appointment) error {
	res, err := r.db.ExecContext(ctx,
		r.q("UPDATE cita SET titulo = ?, descripcion = ?, estado = ?, fecha = ?, updated_at = NOW() WHERE id_cita = ?"),
		strings.TrimSpace(a.Title), a.Description, a.Status, a.Date.UTC(), a.ID)
	return affected(res, err)
}

// SetStatus moves the appointment to s.
func (r *AppointmentRepo) SetStatus(ctx context.Context, id int64, s model.AppointmentStatus) error {
	res, err := r.db.ExecContext(ctx, r.q("UPDATE cita SET estado = ?, updated_at = NOW() WHERE id_cita = ?"), s, id)
	return affected(res, err)
}

// Move reschedules the appointment.
func (r *AppointmentRepo) Move(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, r.q("UPDATE cita SET fecha = ?, updated_at = NOW() WHERE id_cita = ?"), at.UTC(), id)
	return affected(res, err)
}

// Delete removes the appointment and its images in one transaction.
func (r *AppointmentRepo) Delete(ctx context.Context, id int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.q("DELETE FROM imagenes_cita WHERE id_cita = ?"), id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, r.q("DELETE FROM cita WHERE id_cita = ?"), id)
		return affected(res, err)
	})
}

// ListByUser returns the appointments a user created, latest first.
func (r *AppointmentRepo) ListByUser(ctx context.Context, userID int64, p model.Page) ([]model.Appointment, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, r.q("SELECT COUNT(*) FROM cita WHERE usuario_id = ?"), userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT id_cita, fecha, titulo, descripcion, usuario_id, estado, created_at, updated_at
		FROM cita
		WHERE usuario_id = ?
		ORDER BY fecha DESC
		LIMIT ? OFFSET ?`), userID, p.Size, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	out, err := r.scanRows(rows, p.Size)
	if err != nil {
		return nil, 0, err
	}
	return out, total, r.attachImages(ctx, out)
}

// ListByClient returns the appointments a client booked through
// agendar_cita.  estado and fecha come from the booking when it has them.
func (r *AppointmentRepo) ListByClient(ctx context.Context, clientID int64, p model.Page) ([]model.Appointment, int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, r.q(`SELECT COUNT(*)
		FROM agendar_cita ac
		JOIN cita c ON c.id_cita = ac.id_cita
		WHERE ac.id_cliente = ?`), clientID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT c.id_cita, COALESCE(ac.fecha, c.fecha) AS fecha, c.titulo, c.descripcion,
			c.usuario_id, ac.estado, c.created_at, c.updated_at
		FROM agendar_cita ac
		JOIN cita c ON c.id_cita = ac.id_cita
		WHERE ac.id_cliente = ?
		ORDER BY fecha DESC
		LIMIT ? OFFSET ?`), clientID, p.Size, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	out, err := r.scanRows(rows, p.Size)
	if err != nil {
		return nil, 0, err
	}
	return out, total, r.attachImages(ctx, out)
}

// ListAdmin is the administrator listing, soonest first, with the owner's
// name and email.  The pending and upcoming views are filters over it.
func (r *AppointmentRepo) ListAdmin(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, int64, error) {
	var (
		conds []string
		args  []any
	)
	if q := strings.TrimSpace(f.Query); q != "" {
		conds = append(conds, "(LOWER(u.nombre_completo) LIKE ? OR LOWER(u.correo) LIKE ? OR LOWER(c.titulo) LIKE ?)")
		args = append(args, like(q), like(q), like(q))
	}
	if len(f.Statuses) > 0 {
		conds = append(conds, "c.estado IN ("+inList(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if f.OnlyFuture {
		conds = append(conds, "c.fecha >= CURRENT_DATE")
	}
	if f.From != nil {
		conds = append(conds, "c.fecha >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		conds = append(conds, "c.fecha < ?")
		args = append(args, f.To.UTC())
	}
	cond := whereClause(conds)

	var total int64
	err := r.db.QueryRowContext(ctx, r.q(`SELECT COUNT(*)
		FROM cita c
		JOIN usuario u ON u.id = c.usuario_id
		WHERE `+cond), args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, r.q(`SELECT c.id_cita, c.fecha, c.titulo, c.descripcion, c.usuario_id, c.estado,
			c.created_at, c.updated_at, u.nombre_completo, u.correo
		FROM cita c
		JOIN usuario u ON u.id = c.usuario_id
		WHERE `+cond+`
		ORDER BY c.fecha ASC
		LIMIT ? OFFSET ?`), append(args, f.Size, f.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Appointment, 0, f.Size)
	for rows.Next() {
		var (
			a    model.Appointment
			desc sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Date, &a.Title, &desc, &a.UserID, &a.Status,
			&a.CreatedAt, &a.UpdatedAt, &a.UserName, &a.UserEmail); err != nil {
			return nil, 0, err
		}
		a.Description = nullString(desc)
		a.ImageIDs = []int64{}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// CalendarEvents returns appointments with start <= fecha < end.
func (r *AppointmentRepo) CalendarEvents(ctx context.Context, start, end time.Time) ([]model.CalendarEvent, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT c.id_cita, c.fecha, c.estado, u.nombre_completo, u.correo, c.titulo, c.descripcion
		FROM cita c
		JOIN usuario u ON u.id = c.usuario_id
		WHERE c.fecha >= ? AND c.fecha < ?
		ORDER BY c.fecha ASC`), start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (r *AppointmentRepo) scanRows(rows *sql.Rows, capacity int) ([]model.Appointment, error) {
	defer rows.Close()
	out := make([]model.Appointment, 0, capacity)
	for rows.Next() {
		var (
			a      model.Appointment
			desc   sql.NullString
			status sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.Date, &a.Title, &desc, &a.UserID, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Description = nullString(desc)
		a.Status = model.AppointmentStatus(status.Int64)
		a.ImageIDs = []int64{}
		out = append(out, a)
	}
	return out, rows.Err()
}

// attachImages fills ImageIDs for every row with one query.
func (r *AppointmentRepo) attachImages(ctx context.Context, list []model.Appointment) error {
	if len(list) == 0 {
		return nil
	}
	idx := make(map[int64][]int, len(list))
	args := make([]any, 0, len(list))
	for i, a := range list {
		if _, seen := idx[a.ID]; !seen {
			args = append(args, a.ID)
		}
		idx[a.ID] = append(idx[a.ID], i)
	}
	rows, err := r.db.QueryContext(ctx,
		r.q("SELECT id, id_cita FROM imagenes_cita WHERE id_cita IN ("+inList(len(args))+") ORDER BY id"), args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id, citaID int64
		if err := rows.Scan(&id, &citaID); err != nil {
			return err
		}
		for _, i := range idx[citaID] {
			list[i].ImageIDs = append(list[i].ImageIDs, id)
		}
	}
	return rows.Err()
}

func scanEvents(rows *sql.Rows) ([]model.CalendarEvent, error) {
	defer rows.Close()
	out := []model.CalendarEvent{}
	for rows.Next() {
		var (
			e    model.CalendarEvent
			desc sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Start, &e.Status, &e.Client, &e.Email, &e.Title, &desc); err != nil {
			return nil, err
		}
		e.Description = nullString(desc)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
