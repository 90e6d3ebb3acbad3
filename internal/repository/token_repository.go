package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/clinic-scheduling/internal/database"
)

// ResetRepo persists password reset tokens.  Only the SHA-256 of the
// emailed token is stored; used_at makes each token single-use.
type ResetRepo struct{ store }

func NewResetRepo(db *sql.DB, d database.Dialect) *ResetRepo { return &ResetRepo{newStore(db, d)} }

// Store inserts a token hash for userID.
func (r *ResetRepo) Store(ctx context.Context, userID int64, tokenHash string, exp time.Time) error {
	_, err := r.db.ExecContext(ctx,
		r.q("INSERT INTO password_reset (user_id, token_hash, expires_at, created_at) VALUES (?,?,?,NOW())"),
		userID, tokenHash, exp.UTC())
	return err
}

// Consume validates tokenHash and, in one transaction, stores the new
// password hash and marks the token used.  Unknown, used and expired
// tokens all yield ErrTokenInvalid.
func (r *ResetRepo) Consume(ctx context.Context, tokenHash, passwordHash string, now time.Time) (int64, error) {
	var userID int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var (
			id        int64
			expiresAt time.Time
			usedAt    sql.NullTime
		)
		err := tx.QueryRowContext(ctx,
			r.q("SELECT id, user_id, expires_at, used_at FROM password_reset WHERE token_hash = ? LIMIT 1 FOR UPDATE"),
			tokenHash).Scan(&id, &userID, &expiresAt, &usedAt)
		if err != nil {
			if notFound(err) == ErrNotFound {
				return ErrTokenInvalid
			}
			return err
		}
		if usedAt.Valid || !now.UTC().Before(expiresAt.UTC()) {
			return ErrTokenInvalid
		}
		res, err := tx.ExecContext(ctx, r.q("UPDATE usuario SET contrasena_hash = ?, updated_at = NOW() WHERE id = ?"), passwordHash, userID)
		if err := affected(res, err); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, r.q("UPDATE password_reset SET used_at = NOW() WHERE id = ?"), id)
		return err
	})
	if err != nil {
		return 0, err
	}
	return userID, nil
}
