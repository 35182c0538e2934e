package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect is the SQL flavour spoken by the open connection.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

type DB struct {
	*sql.DB
	dialect Dialect
}

// Options selects and tunes the driver. Driver is postgres, pgx or sqlite.
type Options struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects, pings and returns a DB. It does not migrate.
func Open(ctx context.Context, opts Options) (*DB, error) {
	var (
		driverName string
		dsn        = opts.DSN
		dialect    = DialectPostgres
	)
	switch opts.Driver {
	case "postgres":
		driverName = "postgres"
	case "pgx":
		driverName = "pgx"
	case "sqlite":
		driverName = "sqlite"
		dsn = sqliteDSN(dsn)
		dialect = DialectSQLite
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", opts.Driver)
	}

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		// One connection: sqlite serialises writers anyway, and an in-memory
		// database only lives as long as its connection.
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(0)
	} else {
		if opts.MaxOpenConns > 0 {
			conn.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			conn.SetMaxIdleConns(opts.MaxIdleConns)
		}
		conn.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: conn, dialect: dialect}, nil
}

// OpenSQLite opens a sqlite database at path (":memory:" for tests) and migrates it.
func OpenSQLite(ctx context.Context, path string) (*DB, error) {
	db, err := Open(ctx, Options{Driver: "sqlite", DSN: path})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Dialect() Dialect {
	return db.dialect
}

// sqliteDSN turns on foreign keys and a sortable time format.
func sqliteDSN(dsn string) string {
	if dsn == "" || dsn == ":memory:" {
		dsn = "file::memory:"
	}
	params := []string{}
	if !strings.Contains(dsn, "foreign_keys") {
		params = append(params, "_pragma=foreign_keys(1)")
	}
	if !strings.Contains(dsn, "_time_format") {
		params = append(params, "_time_format=sqlite")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// Rebind rewrites ? placeholders into the connection's native form.
func (db *DB) Rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timestamp normalises times before they are written so both dialects
// store and compare the same instant.
func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
