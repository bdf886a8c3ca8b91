package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/botherd/botherd/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the SQLite database file. Use ":memory:" for in-memory.

type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bot_process(
			bot_id TEXT PRIMARY KEY,
			pid INTEGER NOT NULL,
			command TEXT NOT NULL,
			started_at INTEGER NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) Put(ctx context.Context, rec store.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_process(bot_id, pid, command, started_at)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(bot_id) DO UPDATE SET
			pid=excluded.pid,
			command=excluded.command,
			started_at=excluded.started_at;`,
		rec.BotID, rec.PID, rec.Command, rec.StartedAt.UTC().Unix())
	return err
}

func (s *DB) Get(ctx context.Context, botID string) (store.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT bot_id, pid, command, started_at FROM bot_process WHERE bot_id=?;`, botID)
	return scanRecord(row)
}

func (s *DB) Delete(ctx context.Context, botID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bot_process WHERE bot_id=?;`, botID)
	return err
}

func (s *DB) List(ctx context.Context) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bot_id, pid, command, started_at FROM bot_process ORDER BY bot_id;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]store.Record, 0)
	for rows.Next() {
		var r store.Record
		var ts int64
		if err := rows.Scan(&r.BotID, &r.PID, &r.Command, &ts); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(ts, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecord(row *sql.Row) (store.Record, error) {
	var r store.Record
	var ts int64
	if err := row.Scan(&r.BotID, &r.PID, &r.Command, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Record{}, store.ErrNotFound
		}
		return store.Record{}, err
	}
	r.StartedAt = time.Unix(ts, 0).UTC()
	return r, nil
}
