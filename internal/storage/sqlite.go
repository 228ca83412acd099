package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/sentimentiq/backend/internal/domain"
)

// SQLiteArea is a storage area persisted to a SQLite database file.
type SQLiteArea struct {
	conn    *sql.DB
	writeMu sync.Mutex
	hub     *hub
}

// OpenSQLite opens (or creates) the database at path and initializes the schema.
func OpenSQLite(path string) (*SQLiteArea, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and writes serialized.
	conn.SetMaxOpenConns(1)

	a := &SQLiteArea{conn: conn, hub: newHub()}
	if err := a.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return a, nil
}

func (a *SQLiteArea) initSchema() error {
	_, err := a.conn.Exec(`
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`)
	return err
}

// Close closes the database connection.
func (a *SQLiteArea) Close() error {
	return a.conn.Close()
}

// Name returns the area name.
func (a *SQLiteArea) Name() string { return AreaLocal }

// Get returns the raw JSON of every requested key that is present.
// With no keys it returns the whole area.
func (a *SQLiteArea) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	query := `SELECT key, value FROM kv`
	args := make([]any, 0, len(keys))
	if len(keys) > 0 {
		query += ` WHERE key IN (?` + strings.Repeat(`, ?`, len(keys)-1) + `)`
		for _, k := range keys {
			args = append(args, k)
		}
	}

	rows, err := a.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	out := make(map[string][]byte, len(keys))
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan kv row: %w", err)
		}
		out[k] = []byte(v)
	}
	return out, rows.Err()
}

// Set upserts every value in one transaction, then publishes one change per key.
func (a *SQLiteArea) Set(ctx context.Context, values map[string]any) error {
	encoded, err := encodeValues(values)
	if err != nil {
		return fmt.Errorf("encode storage values: %w", err)
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	tx, err := a.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	changes := make([]domain.StorageChange, 0, len(encoded))
	for k, v := range encoded {
		old, err := selectValue(ctx, tx, k)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, k, string(v)); err != nil {
			return fmt.Errorf("upsert %s: %w", k, err)
		}
		changes = append(changes, domain.StorageChange{Area: AreaLocal, Key: k, OldValue: old, NewValue: v})
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	a.hub.publish(changes)
	return nil
}

// Remove deletes keys, publishing a change with a nil NewValue for each one present.
func (a *SQLiteArea) Remove(ctx context.Context, keys ...string) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	tx, err := a.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	var changes []domain.StorageChange
	for _, k := range keys {
		old, err := selectValue(ctx, tx, k)
		if err != nil {
			return err
		}
		if old == nil {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, k); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
		changes = append(changes, domain.StorageChange{Area: AreaLocal, Key: k, OldValue: old})
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	a.hub.publish(changes)
	return nil
}

// Subscribe registers fn for every change in this area.
func (a *SQLiteArea) Subscribe(fn func(domain.StorageChange)) func() {
	return a.hub.subscribe(fn)
}

func selectValue(ctx context.Context, tx *sql.Tx, key string) ([]byte, error) {
	var v string
	err := tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	return []byte(v), nil
}

// Open returns the area selected by kind ("memory" or "sqlite").
func Open(kind, path string) (domain.StorageArea, func() error, error) {
	switch kind {
	case "memory":
		return NewMemoryArea(), func() error { return nil }, nil
	case "sqlite":
		a, err := OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return a, a.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", kind)
	}
}
