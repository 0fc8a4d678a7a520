// Package history persists one row per launched cluster session, so
// the interactive prompt can offer recently used host sets again.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const timestampLayout = time.RFC3339

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TEXT NOT NULL,
	hosts TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
`

// Entry is one recorded session launch.
type Entry struct {
	ID        int64
	StartedAt time.Time
	Hosts     []string
}

// Store is the sqlite-backed session history.
type Store struct {
	conn *sql.DB
}

// Open creates (or opens) the history database at path and applies the
// schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory %q: %w", dir, err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database at %q: %w", path, err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to apply history schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Record stores one session launch with the current time.
func (s *Store) Record(ctx context.Context, hosts []string) error {
	if len(hosts) == 0 {
		return fmt.Errorf("cannot record a session without hosts")
	}
	_, err := s.conn.ExecContext(ctx, `
INSERT INTO sessions (started_at, hosts)
VALUES (?, ?)
`, time.Now().UTC().Format(timestampLayout), strings.Join(hosts, " "))
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

// Recent returns up to n sessions, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := s.conn.QueryContext(ctx, `
SELECT id, started_at, hosts
FROM sessions
ORDER BY started_at DESC, id DESC
LIMIT ?
`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query session history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var startedAtRaw, hostsRaw string
		if err := rows.Scan(&e.ID, &startedAtRaw, &hostsRaw); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		e.StartedAt, err = time.Parse(timestampLayout, startedAtRaw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse session timestamp %q: %w", startedAtRaw, err)
		}
		e.Hosts = strings.Fields(hostsRaw)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session history: %w", err)
	}
	return entries, nil
}
