package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/clinic-scheduling/internal/database"
	"github.com/iliyamo/clinic-scheduling/internal/media"
	"github.com/iliyamo/clinic-scheduling/internal/model"
)

// VideoRepo provides access to the `video` catalog and the uploaded
// binaries in `video_archivo`.
type VideoRepo struct{ store }

func NewVideoRepo(db *sql.DB, d database.Dialect) *VideoRepo { return &VideoRepo{newStore(db, d)} }

// List returns one page of the catalog, newest first.  q matches title and
// goal.
func (r *VideoRepo) List(ctx context.Context, q string, p model.Page) ([]model.Video, int64, error) {
	cond, args := "1=1", []any{}
	if q = strings.TrimSpace(q); q != "" {
		cond = "(LOWER(v.titulo) LIKE ? OR LOWER(v.objetivo) LIKE ?)"
		args = append(args, like(q), like(q))
	}
	var total int64
	if err := r.db.QueryRowContext(ctx, r.q("SELECT COUNT(*) FROM video v WHERE "+cond), args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT v.id_video, v.objetivo, v.titulo, v.video_url, v.created_at, v.updated_at,
			CASE WHEN va.id_video IS NULL THEN 0 ELSE 1 END AS has_file
		FROM video v
		LEFT JOIN video_archivo va ON va.id_video = v.id_video
		WHERE `+cond+`
		ORDER BY v.id_video DESC
		LIMIT ? OFFSET ?`), append(args, p.Size, p.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Video, 0, p.Size)
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *v)
	}
	return out, total, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanVideo(s scanner) (*model.Video, error) {
	var (
		v       model.Video
		url     sql.NullString
		hasFile int
	)
	if err := s.Scan(&v.ID, &v.Goal, &v.Title, &url, &v.CreatedAt, &v.UpdatedAt, &hasFile); err != nil {
		return nil, err
	}
	v.URL = nullString(url)
	v.HasFile = hasFile == 1
	return &v, nil
}

// Get returns one video with its has_file flag.
func (r *VideoRepo) Get(ctx context.Context, id int64) (*model.Video, error) {
	v, err := scanVideo(r.db.QueryRowContext(ctx, r.q(`SELECT v.id_video, v.objetivo, v.titulo, v.video_url, v.created_at, v.updated_at,
			CASE WHEN va.id_video IS NULL THEN 0 ELSE 1 END AS has_file
		FROM video v
		LEFT JOIN video_archivo va ON va.id_video = v.id_video
		WHERE v.id_video = ?`), id))
	if err != nil {
		return nil, notFound(err)
	}
	return v, nil
}

// Create adds a link-only video.
func (r *VideoRepo) Create(ctx context.Context, v *model.Video) error {
	id, err := r.insertID(ctx, r.db,
		"INSERT INTO video (objetivo, titulo, video_url, created_at, updated_at) VALUES (?,?,?,NOW(),NOW())",
		"id_video", strings.TrimSpace(v.Goal), strings.TrimSpace(v.Title), v.URL)
	if err != nil {
		return classify(err)
	}
	v.ID = id
	return nil
}

// CreateWithFile adds a video backed by an uploaded binary.  Both rows are
// written in one transaction.
func (r *VideoRepo) CreateWithFile(ctx context.Context, v *model.Video, f *model.VideoFile) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		id, err := r.insertID(ctx, tx,
			"INSERT INTO video (objetivo, titulo, video_url, created_at, updated_at) VALUES (?,?,NULL,NOW(),NOW())",
			"id_video", strings.TrimSpace(v.Goal), strings.TrimSpace(v.Title))
		if err != nil {
			return classify(err)
		}
		_, err = tx.ExecContext(ctx,
			r.q("INSERT INTO video_archivo (id_video, filename, mime_type, size_bytes, archivo, created_at) VALUES (?,?,?,?,?,NOW())"),
			id, f.Filename, f.MimeType, int64(len(f.Data)), f.Data)
		if err != nil {
			return classify(err)
		}
		v.ID, v.URL, v.HasFile = id, nil, true
		f.VideoID, f.SizeBytes = id, int64(len(f.Data))
		return nil
	})
}

// File returns the stored binary of a video.  ErrNotFound when the video
// is link-only.
func (r *VideoRepo) File(ctx context.Context, videoID int64) (*model.VideoFile, error) {
	var (
		f   = model.VideoFile{VideoID: videoID}
		raw []byte
	)
	err := r.db.QueryRowContext(ctx,
		r.q("SELECT filename, mime_type, size_bytes, archivo FROM video_archivo WHERE id_video = ? LIMIT 1"), videoID).
		Scan(&f.Filename, &f.MimeType, &f.SizeBytes, &raw)
	if err != nil {
		return nil, notFound(err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	if f.Data, err = media.ToBytes(raw); err != nil {
		return nil, err
	}
	return &f, nil
}

// Delete removes a video with its assignments and stored file.
func (r *VideoRepo) Delete(ctx context.Context, id int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.q("DELETE FROM video_asignacion WHERE id_video = ?"), id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, r.q("DELETE FROM video_archivo WHERE id_video = ?"), id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, r.q("DELETE FROM video WHERE id_video = ?"), id)
		return affected(res, err)
	})
}
