package ticket

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db *sql.DB

	// Now is used for creation timestamps. Defaults to time.Now.
	Now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path and migrates it.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ticket store: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ticket store: open: %w", err)
	}
	// One connection keeps read-modify-write updates serialized.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("ticket store: %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, Now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			id          TEXT NOT NULL UNIQUE COLLATE NOCASE,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT 'pending',
			created_at  TEXT NOT NULL,
			started_at  TEXT,
			stopped_at  TEXT,
			closed_at   TEXT,
			branch      TEXT NOT NULL DEFAULT '',
			error       TEXT NOT NULL DEFAULT '',
			summary     TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
	`)
	if err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, name, description, status, created_at, started_at, stopped_at, closed_at, branch, error, summary FROM tickets`

func (s *SQLiteStore) List(ctx context.Context) ([]*Ticket, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("ticket store: list: %w", err)
	}
	defer rows.Close()

	var tickets []*Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket store: scan: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, idOrName string) (*Ticket, error) {
	row := s.db.QueryRowContext(ctx,
		selectColumns+` WHERE id = ? COLLATE NOCASE OR name = ? COLLATE NOCASE
		ORDER BY CASE WHEN id = ? COLLATE NOCASE THEN 0 ELSE 1 END, seq LIMIT 1`,
		idOrName, idOrName, idOrName)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, idOrName)
	}
	if err != nil {
		return nil, fmt.Errorf("ticket store: get: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) Create(ctx context.Context, id, description string) (*Ticket, error) {
	t, err := newTicket(id, description, s.Now())
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tickets (id, name, description, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, t.ID, t.Name, t.Description, string(t.Status), formatTime(&t.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %s", ErrExists, t.ID)
		}
		return nil, fmt.Errorf("ticket store: create: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, p Patch) (*Ticket, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ticket store: begin: %w", err)
	}
	defer tx.Rollback()

	t, err := scanTicket(tx.QueryRowContext(ctx, selectColumns+` WHERE id = ? COLLATE NOCASE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("ticket store: update: %w", err)
	}
	if err := p.Apply(t); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tickets SET name = ?, description = ?, status = ?, started_at = ?, stopped_at = ?,
			closed_at = ?, branch = ?, error = ?, summary = ?
		WHERE id = ? COLLATE NOCASE
	`, t.Name, t.Description, string(t.Status), formatTime(t.StartedAt), formatTime(t.StoppedAt),
		formatTime(t.ClosedAt), t.Branch, t.Error, t.Summary, t.ID)
	if err != nil {
		return nil, fmt.Errorf("ticket store: update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ticket store: commit: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = ? COLLATE NOCASE`, id)
	if err != nil {
		return false, fmt.Errorf("ticket store: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ticket store: delete: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(row scanner) (*Ticket, error) {
	var (
		t                              Ticket
		status, createdAt              string
		startedAt, stoppedAt, closedAt sql.NullString
	)
	err := row.Scan(&t.ID, &t.Name, &t.Description, &status, &createdAt,
		&startedAt, &stoppedAt, &closedAt, &t.Branch, &t.Error, &t.Summary)
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		t.CreatedAt = ts
	}
	t.StartedAt = parseTime(startedAt)
	t.StoppedAt = parseTime(stoppedAt)
	t.ClosedAt = parseTime(closedAt)
	return &t, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &ts
}
