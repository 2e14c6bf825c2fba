package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/resvault/internal/dbx"
	"github.com/dmitrijs2005/resvault/internal/filex"
	"github.com/dmitrijs2005/resvault/internal/logging"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS resources (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
)`

// SQLiteBackend keeps entries in one SQLite table, a row per key. Every
// write is durable on its own; batch removes run in one transaction.
type SQLiteBackend struct {
	path   string
	logger logging.Logger

	name string
	db   *sql.DB
}

func NewSQLiteBackend(path string, logger logging.Logger) *SQLiteBackend {
	return &SQLiteBackend{path: path, logger: logger}
}

func (b *SQLiteBackend) Name() string { return b.name }

func (b *SQLiteBackend) Initialize(ctx context.Context, name string) error {
	b.name = name
	b.logger = b.logger.With("storage", name, "kind", "sqlite")

	if err := filex.EnsureParentDir(b.path); err != nil {
		return err
	}
	db, err := sql.Open("sqlite", b.path)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", b.path, err)
	}
	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return fmt.Errorf("create schema: %w", err)
	}
	b.db = db
	b.logger.Info(ctx, "sqlite opened", "path", b.path)
	return nil
}

func (b *SQLiteBackend) LoadStorage(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// SaveStorage is a no-op: rows are committed as they are written.
func (b *SQLiteBackend) SaveStorage(context.Context) error {
	return nil
}

func (b *SQLiteBackend) ClearStorage(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM resources`)
	return err
}

func (b *SQLiteBackend) AddResource(ctx context.Context, key string, value []byte, forced bool) (bool, error) {
	if value == nil {
		value = []byte{}
	}

	query := `INSERT INTO resources (key, value) VALUES ($1, $2)
		ON CONFLICT(key) DO NOTHING`
	if forced {
		query = `INSERT INTO resources (key, value) VALUES ($1, $2)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	}

	res, err := b.db.ExecContext(ctx, query, key, value)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (b *SQLiteBackend) HasResource(ctx context.Context, key string) (bool, error) {
	var one int
	err := b.db.QueryRowContext(ctx, `SELECT 1 FROM resources WHERE key = $1`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

func (b *SQLiteBackend) GetResource(ctx context.Context, key string) ([]byte, error) {
	return getRow(ctx, b.db, key)
}

func getRow(ctx context.Context, db dbx.DBTX, key string) ([]byte, error) {
	var value []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM resources WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// GetResources reads all keys from one snapshot.
func (b *SQLiteBackend) GetResources(ctx context.Context, keys []string) ([]Entry, error) {
	out := make([]Entry, 0, len(keys))
	err := dbx.View(ctx, b.db, func(ctx context.Context, tx dbx.DBTX) error {
		for _, k := range keys {
			v, err := getRow(ctx, tx, k)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, Entry{Key: k, Value: v})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *SQLiteBackend) RemoveResource(ctx context.Context, key string) error {
	removed, err := deleteRow(ctx, b.db, key)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	return nil
}

func deleteRow(ctx context.Context, db dbx.DBTX, key string) (bool, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM resources WHERE key = $1`, key)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

// RemoveResources deletes all keys or none.
func (b *SQLiteBackend) RemoveResources(ctx context.Context, keys []string) ([]string, error) {
	var removed []string
	err := dbx.WithTx(ctx, b.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		removed = removed[:0]
		for _, k := range keys {
			ok, err := deleteRow(ctx, tx, k)
			if err != nil {
				return err
			}
			if ok {
				removed = append(removed, k)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (b *SQLiteBackend) ListResources(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT key FROM resources ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (b *SQLiteBackend) Finalize(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	b.logger.Info(ctx, "sqlite closed")
	return err
}
