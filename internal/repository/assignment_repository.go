package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/clinic-scheduling/internal/database"
	"github.com/iliyamo/clinic-scheduling/internal/model"
)

// AssignmentRepo links videos to clients (`video_asignacion`).  A pair
// (id_video, id_usuario) is unique.
type AssignmentRepo struct{ store }

func NewAssignmentRepo(db *sql.DB, d database.Dialect) *AssignmentRepo {
	return &AssignmentRepo{newStore(db, d)}
}

const assignmentColumns = "id, id_video, id_usuario, observacion, created_at, updated_at"

// Upsert assigns a video to a user.  An existing pair keeps its row and
// only takes the new note when one is given.  ErrNotFound when the user or
// the video does not exist.
func (r *AssignmentRepo) Upsert(ctx context.Context, userID, videoID int64, note *string) (*model.Assignment, error) {
	var out *model.Assignment
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			r.q("UPDATE video_asignacion SET observacion = COALESCE(?, observacion), updated_at = NOW() WHERE id_usuario = ? AND id_video = ?"),
			note, userID, videoID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			_, err = r.insertID(ctx, tx,
				"INSERT INTO video_asignacion (id_video, id_usuario, observacion, created_at, updated_at) VALUES (?,?,?,NOW(),NOW())",
				"id", videoID, userID, note)
			if database.IsForeignKeyViolation(err) {
				return ErrNotFound
			}
			if err != nil {
				return classify(err)
			}
		}
		out, err = scanAssignment(tx.QueryRowContext(ctx,
			r.q("SELECT "+assignmentColumns+" FROM video_asignacion WHERE id_usuario = ? AND id_video = ?"), userID, videoID))
		return err
	})
	return out, err
}

func scanAssignment(s scanner) (*model.Assignment, error) {
	var (
		a         model.Assignment
		note      sql.NullString
		updatedAt sql.NullTime
	)
	if err := s.Scan(&a.ID, &a.VideoID, &a.UserID, &note, &a.CreatedAt, &updatedAt); err != nil {
		return nil, notFound(err)
	}
	a.Note = nullString(note)
	if updatedAt.Valid {
		t := updatedAt.Time
		a.UpdatedAt = &t
	}
	return &a, nil
}

// DeleteByID removes one assignment.
func (r *AssignmentRepo) DeleteByID(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.q("DELETE FROM video_asignacion WHERE id = ?"), id)
	return affected(res, err)
}

// DeleteByPair removes the assignment of videoID to userID.
func (r *AssignmentRepo) DeleteByPair(ctx context.Context, userID, videoID int64) error {
	res, err := r.db.ExecContext(ctx, r.q("DELETE FROM video_asignacion WHERE id_usuario = ? AND id_video = ?"), userID, videoID)
	return affected(res, err)
}

// ListByUser returns a user's assignments with video title and goal,
// most recently touched first.
func (r *AssignmentRepo) ListByUser(ctx context.Context, userID int64) ([]model.Assignment, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT va.id, va.id_video, va.id_usuario, va.observacion, va.created_at, va.updated_at,
			v.titulo, v.objetivo
		FROM video_asignacion va
		JOIN video v ON v.id_video = va.id_video
		WHERE va.id_usuario = ?
		ORDER BY va.updated_at IS NULL, va.updated_at DESC, v.titulo ASC`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Assignment{}
	for rows.Next() {
		var (
			a         model.Assignment
			note      sql.NullString
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.VideoID, &a.UserID, &note, &a.CreatedAt, &updatedAt, &a.Title, &a.Goal); err != nil {
			return nil, err
		}
		a.Note = nullString(note)
		if updatedAt.Valid {
			t := updatedAt.Time
			a.UpdatedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// IsAssigned reports whether videoID is assigned to userID.
func (r *AssignmentRepo) IsAssigned(ctx context.Context, userID, videoID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		r.q("SELECT COUNT(*) FROM video_asignacion WHERE id_usuario = ? AND id_video = ?"), userID, videoID).Scan(&n)
	return n > 0, err
}
