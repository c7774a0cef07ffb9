package database

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// microsecond precision is the most postgres keeps
	timeLayout = "2006-01-02T15:04:05.000000Z07:00"
)

var (
	ErrAlreadyResolved = errors.New("alert already resolved or deleted")
	ErrNotFound        = errors.New("not found")
)

// Store is the SQL backed alert store. The same queries run on sqlite and
// postgres, placeholders are rewritten for the latter.
type Store struct {
	db     *sql.DB
	driver string
}

var schemas = map[string][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT,
			telegram_chat_id INTEGER,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			coin_id TEXT NOT NULL,
			condition TEXT NOT NULL,
			target_price TEXT NOT NULL,
			triggered INTEGER NOT NULL DEFAULT 0,
			triggered_at TEXT,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_triggered ON alerts(triggered);`,
		`CREATE TABLE IF NOT EXISTS metrics (
			metric_name TEXT PRIMARY KEY,
			metric_value REAL NOT NULL
		);`,
	},
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			email TEXT,
			telegram_chat_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			coin_id TEXT NOT NULL,
			condition TEXT NOT NULL,
			target_price NUMERIC NOT NULL,
			triggered BOOLEAN NOT NULL DEFAULT FALSE,
			triggered_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_triggered ON alerts(triggered);`,
		`CREATE TABLE IF NOT EXISTS metrics (
			metric_name TEXT PRIMARY KEY,
			metric_value DOUBLE PRECISION NOT NULL
		);`,
	},
}

// Open connects to the database and creates the tables when missing.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	schema, ok := schemas[driver]
	if !ok {
		return nil, errors.Errorf("unsupported database driver: %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	if driver == DriverSQLite {
		// a single writer avoids SQLITE_BUSY between the monitor and readers
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to migrate database")
		}
	}

	log.Infof("Database initialized successfully (%s).", driver)
	return &Store{db: db, driver: driver}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind turns ? placeholders into $1..$n for postgres
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
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

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse timestamp %q", raw)
	}
	return t.UTC(), nil
}
