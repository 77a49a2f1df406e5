package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"tableflip.dev/sandlab/pkg/ledger"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	workflow   TEXT NOT NULL,
	date       TEXT NOT NULL,
	unit       TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (workflow, date, unit)
);`

// sqlPersistence keeps one row per record in an SQLite database. Path may be
// a directory, in which case records.db is created inside it.
type sqlPersistence struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
	events hub
}

func openSQLite(path string, logger *zap.Logger) (*sqlPersistence, error) {
	if path == "" {
		return nil, errors.New("store: path is required for sqlite database")
	}
	if info, err := os.Stat(path); (err == nil && info.IsDir()) || filepath.Ext(path) == "" {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("store: ensure base path: %w", err)
		}
		path = filepath.Join(path, "records.db")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %s: %w", path, err)
	}
	// One connection serialises writers; SQLite locks the whole file anyway.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{`PRAGMA journal_mode=WAL`, `PRAGMA busy_timeout=5000`} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: configure sqlite: %w", err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &sqlPersistence{
		db:     db,
		logger: logger.With(zap.String("backend", BackendSQLite), zap.String("path", path)),
		now:    time.Now,
	}, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (p *sqlPersistence) get(ctx context.Context, q queryer, workflow string, key ledger.Key) (*ledger.Record, error) {
	var body string
	err := q.QueryRowContext(ctx,
		`SELECT body FROM records WHERE workflow = ? AND date = ? AND unit = ?`,
		workflow, key.Date, key.Unit).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: select %s: %w", key, err)
	}
	return decode(workflow, key, []byte(body))
}

func (p *sqlPersistence) put(ctx context.Context, tx *sql.Tx, workflow string, rec *ledger.Record) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (workflow, date, unit, body, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (workflow, date, unit) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		workflow, rec.Key.Date, rec.Key.Unit, string(data), rec.Updated.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: upsert %s: %w", rec.Key, err)
	}
	return nil
}

func (p *sqlPersistence) Fetch(ctx context.Context, workflow string, key ledger.Key) (*ledger.Record, error) {
	return p.get(ctx, p.db, workflow, key)
}

func (p *sqlPersistence) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		if errors.Is(err, sql.ErrConnDone) {
			return ErrClosed
		}
		return fmt.Errorf("store: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func (p *sqlPersistence) Merge(ctx context.Context, workflow string, key ledger.Key, table int, delta ledger.Document) (*ledger.Record, ledger.MergeReport, error) {
	var (
		rec *ledger.Record
		rep ledger.MergeReport
	)
	err := p.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		rec, err = p.get(ctx, tx, workflow, key)
		if errors.Is(err, ErrNotFound) {
			rec, err = ledger.NewRecord(key), nil
		}
		if err != nil {
			return err
		}
		rep = apply(rec, table, delta, p.now())
		if !rep.Changed() {
			return nil
		}
		return p.put(ctx, tx, workflow, rec)
	})
	if err != nil {
		return nil, ledger.MergeReport{}, err
	}
	if rep.Changed() {
		p.logger.Debug("merged", zap.String("workflow", workflow), zap.Stringer("key", key), zap.Int("table", table))
		p.events.publish(Event{Type: EventRecordChanged, Workflow: workflow, Key: key})
	}
	return rec, rep, nil
}

func (p *sqlPersistence) EnsureDay(ctx context.Context, workflow string, key ledger.Key) (bool, error) {
	rec := ledger.NewRecord(key)
	rec.Updated = p.now()
	data, err := encode(rec)
	if err != nil {
		return false, err
	}
	res, err := p.db.ExecContext(ctx,
		`INSERT INTO records (workflow, date, unit, body, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (workflow, date, unit) DO NOTHING`,
		workflow, key.Date, key.Unit, string(data), rec.Updated.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("store: ensure %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: ensure %s: %w", key, err)
	}
	if n > 0 {
		p.events.publish(Event{Type: EventRecordChanged, Workflow: workflow, Key: key})
	}
	return n > 0, nil
}

func (p *sqlPersistence) Keys(ctx context.Context, workflow string) ([]ledger.Key, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT date, unit FROM records WHERE workflow = ? ORDER BY date, unit`, workflow)
	if err != nil {
		return nil, fmt.Errorf("store: list keys: %w", err)
	}
	defer rows.Close()
	var keys []ledger.Key
	for rows.Next() {
		var k ledger.Key
		if err := rows.Scan(&k.Date, &k.Unit); err != nil {
			return nil, fmt.Errorf("store: scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (p *sqlPersistence) Watch(ctx context.Context) (<-chan Event, error) {
	if err := p.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store: watch: %w", err)
	}
	return p.events.watch(ctx), nil
}

func (p *sqlPersistence) Close() error {
	p.events.close()
	return p.db.Close()
}
