package storage

import (
	"context"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/dmitrijs2005/resvault/internal/logging"
)

// BadgerBackend keeps entries in an embedded Badger database, one key per
// entry. Unlike the local backend every write is durable on its own.
type BadgerBackend struct {
	dir      string
	inMemory bool
	logger   logging.Logger

	name string
	db   *badgerdb.DB
}

func NewBadgerBackend(dir string, logger logging.Logger) *BadgerBackend {
	return &BadgerBackend{dir: dir, logger: logger}
}

// NewInMemoryBadgerBackend keeps everything in RAM. Used by tests.
func NewInMemoryBadgerBackend(logger logging.Logger) *BadgerBackend {
	return &BadgerBackend{inMemory: true, logger: logger}
}

func (b *BadgerBackend) Name() string { return b.name }

func (b *BadgerBackend) Initialize(ctx context.Context, name string) error {
	b.name = name
	b.logger = b.logger.With("storage", name, "kind", "badger")

	opts := badgerdb.DefaultOptions(b.dir).WithLogger(nil)
	if b.inMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return fmt.Errorf("open badger %s: %w", b.dir, err)
	}
	b.db = db
	b.logger.Info(ctx, "badger opened", "dir", b.dir, "in_memory", b.inMemory)
	return nil
}

// LoadStorage is a no-op: Badger reads from disk on demand.
func (b *BadgerBackend) LoadStorage(context.Context) error {
	return nil
}

func (b *BadgerBackend) SaveStorage(context.Context) error {
	if b.inMemory {
		return nil
	}
	return b.db.Sync()
}

func (b *BadgerBackend) ClearStorage(context.Context) error {
	return b.db.DropAll()
}

func (b *BadgerBackend) AddResource(ctx context.Context, key string, value []byte, forced bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	stored := false
	err := b.db.Update(func(txn *badgerdb.Txn) error {
		if !forced {
			_, err := txn.Get([]byte(key))
			if err == nil {
				return nil
			}
			if !errors.Is(err, badgerdb.ErrKeyNotFound) {
				return err
			}
		}
		if err := txn.Set([]byte(key), value); err != nil {
			return err
		}
		stored = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("badger set %q: %w", key, err)
	}
	return stored, nil
}

func (b *BadgerBackend) HasResource(ctx context.Context, key string) (bool, error) {
	_, err := b.GetResource(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (b *BadgerBackend) GetResource(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (b *BadgerBackend) GetResources(ctx context.Context, keys []string) ([]Entry, error) {
	out := make([]Entry, 0, len(keys))
	err := b.db.View(func(txn *badgerdb.Txn) error {
		for _, k := range keys {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := txn.Get([]byte(k))
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			v, err := item.ValueCopy(nil)
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

func (b *BadgerBackend) RemoveResource(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return txn.Delete([]byte(key))
	})
}

func (b *BadgerBackend) RemoveResources(ctx context.Context, keys []string) ([]string, error) {
	removed := make([]string, 0, len(keys))
	for _, k := range keys {
		err := b.RemoveResource(ctx, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		removed = append(removed, k)
	}
	return removed, nil
}

// ListResources returns keys in Badger's byte order.
func (b *BadgerBackend) ListResources(ctx context.Context) ([]string, error) {
	keys := []string{}
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

func (b *BadgerBackend) Finalize(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	if err := b.SaveStorage(ctx); err != nil {
		b.logger.Warn(ctx, "badger sync failed", "error", err)
	}
	return b.db.Close()
}

var _ Backend = (*BadgerBackend)(nil)
