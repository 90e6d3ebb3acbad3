package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/iliyamo/clinic-scheduling/internal/config"
)

// Dialect captures the few places where MySQL and Postgres disagree:
// placeholder syntax and how an INSERT reports the generated key.
type Dialect int

const (
	MySQL Dialect = iota
	Postgres
)

// ParseDialect maps the configured driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "mysql", "":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	}
	return MySQL, fmt.Errorf("unsupported db driver %q", driver)
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "mysql"
}

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "mysql"
}

// Rebind rewrites ? placeholders into $1..$n for Postgres.  Queries are
// written once with ? and never contain a literal question mark.
func (d Dialect) Rebind(query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// DSN builds the driver connection string from the discrete settings unless
// a full DSN was configured.  A configured MySQL DSN always gets
// clientFoundRows, which the upserts depend on.
func DSN(cfg config.DBConfig, d Dialect) string {
	if cfg.DSN != "" {
		if d != MySQL {
			return cfg.DSN
		}
		mc, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return cfg.DSN // Open reports it
		}
		mc.ClientFoundRows = true
		return mc.FormatDSN()
	}
	if d == Postgres {
		port := cfg.Port
		if port == "" || port == "3306" {
			port = "5432"
		}
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(cfg.User, cfg.Pass),
			Host:   cfg.Host + ":" + port,
			Path:   "/" + cfg.Name,
		}
		q := url.Values{}
		q.Set("sslmode", "prefer")
		q.Set("search_path", "fisio")
		u.RawQuery = q.Encode()
		return u.String()
	}
	auth := cfg.User
	if cfg.Pass != "" {
		auth = fmt.Sprintf("%s:%s", cfg.User, cfg.Pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	// clientFoundRows=true makes RowsAffected count matched rows, as Postgres does
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		auth, cfg.Host, cfg.Port, cfg.Name)
}

// Open connects to the configured store and verifies the connection.
func Open(cfg config.DBConfig) (*sql.DB, Dialect, error) {
	d, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, d, err
	}
	db, err := sql.Open(d.DriverName(), DSN(cfg, d))
	if err != nil {
		return nil, d, err
	}

	// Pool settings
	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, d, err
	}
	return db, d, nil
}
