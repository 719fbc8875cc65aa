// Package sqlite implements port.Store on database/sql. It runs on local
// SQLite files (mattn/go-sqlite3) or on a Turso database (libsql).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"                      // SQLite driver
	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("sqlite")

// timeLayout is fixed-width so text columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	session_id  TEXT PRIMARY KEY,
	visitor_id  TEXT NOT NULL,
	status      TEXT NOT NULL,
	referrer    TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	landing_url TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_sessions_created ON chat_sessions(created_at);

CREATE TABLE IF NOT EXISTS chat_messages (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES chat_sessions(session_id),
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, created_at, id);

CREATE TABLE IF NOT EXISTS leads (
	id                  TEXT PRIMARY KEY,
	session_id          TEXT NOT NULL UNIQUE,
	name                TEXT NOT NULL,
	email               TEXT NOT NULL,
	company             TEXT,
	phone               TEXT,
	project_type        TEXT,
	industry            TEXT,
	budget_range        TEXT,
	timeline            TEXT,
	qualification_score INTEGER NOT NULL,
	status              TEXT NOT NULL,
	snapshot            INTEGER NOT NULL,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_leads_created ON leads(created_at);

CREATE TABLE IF NOT EXISTS lead_notifications (
	lead_id          TEXT NOT NULL,
	snapshot         INTEGER NOT NULL,
	kind             TEXT NOT NULL,
	template_variant TEXT NOT NULL,
	provider_id      TEXT NOT NULL DEFAULT '',
	error            TEXT NOT NULL DEFAULT '',
	sent_at          TEXT NOT NULL,
	PRIMARY KEY (lead_id, snapshot, kind)
);
`

// Store is a SQL-backed port.Store.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects with the given driver ("sqlite3" or "libsql"), verifies the
// connection and creates the schema.
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == "sqlite3" {
		// One writer; also keeps ":memory:" databases on a single connection.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s database ping failed: %w", driver, err)
	}

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	logger.Info("sql store ready", zap.String("driver", driver))
	return &Store{db: db, logger: logger}, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// rangeClause appends [from, to) bounds on column to a WHERE clause.
func rangeClause(column string, from, to time.Time, where []string, args []any) ([]string, []any) {
	if !from.IsZero() {
		where = append(where, column+" >= ?")
		args = append(args, formatTime(from))
	}
	if !to.IsZero() {
		where = append(where, column+" < ?")
		args = append(args, formatTime(to))
	}
	return where, args
}
