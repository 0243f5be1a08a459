package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/ttctransit-data/internal/common/logger"
	_ "modernc.org/sqlite"
)

type Driver string

const (
	Postgres Driver = "postgres"
	SQLite   Driver = "sqlite"
)

// ActiveVersion scopes a query to the currently served import generation.
const ActiveVersion = "(SELECT version_id FROM feed_versions WHERE is_active = 1)"

type DB struct {
	conn   *sql.DB
	driver Driver
	logger logger.Logger
}

func New(driver Driver, connStr string, logger logger.Logger) (*DB, error) {
	switch driver {
	case Postgres, SQLite:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	conn, err := sql.Open(string(driver), connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("Database connection established", "driver", driver)

	return &DB{
		conn:   conn,
		driver: driver,
		logger: logger,
	}, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, nil)
}

// DB returns the underlying connection pool
func (db *DB) DB() *sql.DB {
	return db.conn
}

func (db *DB) Driver() Driver {
	return db.driver
}

// Logger returns the logger instance
func (db *DB) Logger() logger.Logger {
	return db.logger
}

// Rebind rewrites ? placeholders into the driver's native form.
func (db *DB) Rebind(query string) string {
	if db.driver != Postgres {
		return query
	}
	return rebindDollar(query)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, db.Rebind(query), args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRowContext(ctx, db.Rebind(query), args...)
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return db.conn.ExecContext(ctx, db.Rebind(query), args...)
}

func rebindDollar(query string) string {
	var sb strings.Builder
	sb.Grow(len(query) + 16)

	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '\'' {
			inQuote = !inQuote
		}
		if c == '?' && !inQuote {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// Placeholders returns "?, ?, ?" with n markers, for IN lists.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
