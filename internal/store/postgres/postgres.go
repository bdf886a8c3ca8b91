package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/botherd/botherd/internal/store"
)

// DB implements store.Store for PostgreSQL via the pgx stdlib driver.
type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bot_process(
			bot_id TEXT PRIMARY KEY,
			pid INTEGER NOT NULL,
			command TEXT NOT NULL,
			started_at BIGINT NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) Put(ctx context.Context, rec store.Record) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO bot_process(bot_id, pid, command, started_at)
		VALUES($1, $2, $3, $4)
		ON CONFLICT(bot_id) DO UPDATE SET
			pid=excluded.pid,
			command=excluded.command,
			started_at=excluded.started_at;`,
		rec.BotID, rec.PID, rec.Command, rec.StartedAt.UTC().Unix())
	return err
}

func (p *DB) Get(ctx context.Context, botID string) (store.Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT bot_id, pid, command, started_at FROM bot_process WHERE bot_id=$1;`, botID)
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

func (p *DB) Delete(ctx context.Context, botID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM bot_process WHERE bot_id=$1;`, botID)
	return err
}

func (p *DB) List(ctx context.Context) ([]store.Record, error) {
	rows, err := p.db.QueryContext(ctx, `
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
