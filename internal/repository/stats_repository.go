package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/clinic-scheduling/internal/database"
	"github.com/iliyamo/clinic-scheduling/internal/model"
)

// StatsRepo computes the dashboard counters.
type StatsRepo struct{ store }

func NewStatsRepo(db *sql.DB, d database.Dialect) *StatsRepo { return &StatsRepo{newStore(db, d)} }

// Get counts users, today's appointments and catalog videos.
func (r *StatsRepo) Get(ctx context.Context) (model.Stats, error) {
	var s model.Stats
	for _, c := range []struct {
		query string
		dst   *int64
	}{
		{"SELECT COUNT(*) FROM usuario", &s.Users},
		{"SELECT COUNT(*) FROM cita WHERE CAST(fecha AS DATE) = CURRENT_DATE", &s.AppointmentsToday},
		{"SELECT COUNT(*) FROM video", &s.Videos},
	} {
		if err := r.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return model.Stats{}, err
		}
	}
	return s, nil
}
