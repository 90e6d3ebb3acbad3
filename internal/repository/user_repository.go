package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/clinic-scheduling/internal/auth"
	"github.com/iliyamo/clinic-scheduling/internal/database"
	"github.com/iliyamo/clinic-scheduling/internal/media"
	"github.com/iliyamo/clinic-scheduling/internal/model"
)

// UserRepo reads and writes the `usuario` table.
type UserRepo struct{ store }

func NewUserRepo(db *sql.DB, d database.Dialect) *UserRepo { return &UserRepo{newStore(db, d)} }

const userColumns = "id, nombre_completo, correo, cedula, contrasena_hash, rol_id, activo, created_at, updated_at"

// NormalizeEmail is the canonical form stored in usuario.correo.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Create inserts a client account (rol_id 2, activo 1) and returns its id.
func (r *UserRepo) Create(ctx context.Context, u *model.User) (int64, error) {
	id, err := r.insertID(ctx, r.db,
		"INSERT INTO usuario (nombre_completo, correo, cedula, contrasena_hash, rol_id, activo, created_at, updated_at) VALUES (?,?,?,?,?,?,NOW(),NOW())",
		"id",
		strings.TrimSpace(u.FullName), NormalizeEmail(u.Email), strings.TrimSpace(u.NationalID),
		u.PasswordHash, model.RoleClient, model.UserActive)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	u.ID, u.RoleID, u.Active = id, model.RoleClient, model.UserActive
	return id, nil
}

// GetByEmail fetches a user, password hash included, by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		r.q("SELECT "+userColumns+" FROM usuario WHERE correo = ? LIMIT 1"), NormalizeEmail(email)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		r.q("SELECT "+userColumns+" FROM usuario WHERE id = ? LIMIT 1"), id))
}

func (r *UserRepo) scanOne(row *sql.Row) (*model.User, error) {
	var (
		u    model.User
		hash []byte
		ced  sql.NullString
	)
	if err := row.Scan(&u.ID, &u.FullName, &u.Email, &ced, &hash, &u.RoleID, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	u.NationalID = ced.String
	// legacy rows hold the hash as bytea or a serialized buffer
	if b, err := media.ToBytes(hash); err == nil {
		u.PasswordHash = string(b)
	}
	return &u, nil
}

// UserIDByEmail resolves an email claim to an account id for the
// authenticator's fallback path.
func (r *UserRepo) UserIDByEmail(ctx context.Context, email string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, r.q("SELECT id FROM usuario WHERE correo = ? LIMIT 1"), NormalizeEmail(email)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, auth.ErrUserNotFound
	}
	return id, err
}

// UpdateName changes the display name and returns the fresh row.
func (r *UserRepo) UpdateName(ctx context.Context, id int64, name string) (*model.User, error) {
	res, err := r.db.ExecContext(ctx, r.q("UPDATE usuario SET nombre_completo = ?, updated_at = NOW() WHERE id = ?"),
		strings.TrimSpace(name), id)
	if err := affected(res, err); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// UpdateEmail changes the login address.  ErrEmailExists when another
// account already uses it.
func (r *UserRepo) UpdateEmail(ctx context.Context, id int64, email string) (*model.User, error) {
	email = NormalizeEmail(email)
	var taken int
	err := r.db.QueryRowContext(ctx, r.q("SELECT COUNT(*) FROM usuario WHERE correo = ? AND id <> ?"), email, id).Scan(&taken)
	if err != nil {
		return nil, err
	}
	if taken > 0 {
		return nil, ErrEmailExists
	}
	res, err := r.db.ExecContext(ctx, r.q("UPDATE usuario SET correo = ?, updated_at = NOW() WHERE id = ?"), email, id)
	if err := affected(res, err); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrEmailExists
		}
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// List returns one page of users, newest first, and the total match count.
func (r *UserRepo) List(ctx context.Context, f model.UserFilter) ([]model.User, int64, error) {
	var (
		conds []string
		args  []any
	)
	if q := strings.TrimSpace(f.Query); q != "" {
		conds = append(conds, "(LOWER(nombre_completo) LIKE ? OR LOWER(correo) LIKE ? OR LOWER(cedula) LIKE ?)")
		args = append(args, like(q), like(q), like(q))
	}
	if f.RoleID > 0 {
		conds = append(conds, "rol_id = ?")
		args = append(args, f.RoleID)
	}
	if f.Active > 0 {
		conds = append(conds, "activo = ?")
		args = append(args, f.Active)
	}
	cond := whereClause(conds)

	var total int64
	if err := r.db.QueryRowContext(ctx, r.q("SELECT COUNT(*) FROM usuario WHERE "+cond), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		r.q(`SELECT id, nombre_completo, correo, cedula, rol_id, activo, created_at, updated_at
		FROM usuario WHERE `+cond+`
		ORDER BY id DESC
		LIMIT ? OFFSET ?`),
		append(args, f.Size, f.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.User, 0, f.Size)
	for rows.Next() {
		var (
			u   model.User
			ced sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.FullName, &u.Email, &ced, &u.RoleID, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, err
		}
		u.NationalID = ced.String
		out = append(out, u)
	}
	return out, total, rows.Err()
}

// ToggleActive flips activo between 1 and 2 and returns the new value.
// A trigger refusing the change surfaces as a StateError.
func (r *UserRepo) ToggleActive(ctx context.Context, id int64) (int64, error) {
	var next int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var cur int64
		if err := tx.QueryRowContext(ctx, r.q("SELECT activo FROM usuario WHERE id = ? FOR UPDATE"), id).Scan(&cur); err != nil {
			return notFound(err)
		}
		next = model.UserInactive
		if cur != model.UserActive {
			next = model.UserActive
		}
		_, err := tx.ExecContext(ctx, r.q("UPDATE usuario SET activo = ?, updated_at = NOW() WHERE id = ?"), next, id)
		return classify(err)
	})
	return next, err
}

// SetRole changes rol_id.
func (r *UserRepo) SetRole(ctx context.Context, id, roleID int64) error {
	res, err := r.db.ExecContext(ctx, r.q("UPDATE usuario SET rol_id = ?, updated_at = NOW() WHERE id = ?"), roleID, id)
	return affected(res, err)
}
