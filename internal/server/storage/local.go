package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/dmitrijs2005/resvault/internal/filex"
	"github.com/dmitrijs2005/resvault/internal/logging"
)

// LocalBackend keeps entries in memory and persists them as one JSON
// snapshot file in which every value is an array of byte numbers.
//
// Each map operation is atomic. Sequences such as Has followed by Add are
// not, and concurrent writers to one key race with last-write-wins.
//
// The snapshot is never written before a successful LoadStorage, so a
// failed startup leaves the file on disk as it was.
type LocalBackend struct {
	name   string
	path   string
	logger logging.Logger

	mu      sync.RWMutex
	entries map[string][]byte
	loaded  bool
}

func NewLocalBackend(path string, logger logging.Logger) *LocalBackend {
	return &LocalBackend{
		path:    path,
		logger:  logger,
		entries: make(map[string][]byte),
	}
}

func (b *LocalBackend) Name() string { return b.name }

func (b *LocalBackend) Initialize(_ context.Context, name string) error {
	b.name = name
	b.logger = b.logger.With("storage", name, "kind", "local")
	return filex.EnsureParentDir(b.path)
}

// LoadStorage replaces the in-memory map with the snapshot on disk.
// A missing snapshot is an empty store.
func (b *LocalBackend) LoadStorage(ctx context.Context) error {
	data, err := filex.ReadFileIfExists(b.path)
	if err != nil {
		return err
	}

	loaded := make(map[string][]byte)
	if len(bytes.TrimSpace(data)) > 0 {
		var snapshot map[string]byteArray
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return fmt.Errorf("decode snapshot %s: %w", b.path, err)
		}
		for k, v := range snapshot {
			loaded[k] = []byte(v)
		}
	}

	b.mu.Lock()
	b.entries = loaded
	b.loaded = true
	b.mu.Unlock()

	b.logger.Info(ctx, "storage loaded", "path", b.path, "entries", len(loaded))
	return nil
}

// SaveStorage rewrites the whole snapshot. It fails with ErrNotLoaded
// until LoadStorage has succeeded.
func (b *LocalBackend) SaveStorage(ctx context.Context) error {
	b.mu.RLock()
	if !b.loaded {
		b.mu.RUnlock()
		return fmt.Errorf("save %s: %w", b.path, ErrNotLoaded)
	}
	snapshot := make(map[string]byteArray, len(b.entries))
	for k, v := range b.entries {
		snapshot[k] = v
	}
	b.mu.RUnlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := filex.WriteFileAtomic(b.path, data, 0o600); err != nil {
		return err
	}

	b.logger.Debug(ctx, "storage saved", "path", b.path, "entries", len(snapshot))
	return nil
}

func (b *LocalBackend) ClearStorage(context.Context) error {
	b.mu.Lock()
	b.entries = make(map[string][]byte)
	b.mu.Unlock()
	return nil
}

func (b *LocalBackend) AddResource(_ context.Context, key string, value []byte, forced bool) (bool, error) {
	stored := bytes.Clone(value)
	if stored == nil {
		stored = []byte{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[key]; ok && !forced {
		return false, nil
	}
	b.entries[key] = stored
	return true, nil
}

func (b *LocalBackend) HasResource(_ context.Context, key string) (bool, error) {
	b.mu.RLock()
	_, ok := b.entries[key]
	b.mu.RUnlock()
	return ok, nil
}

func (b *LocalBackend) GetResource(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	v, ok := b.entries[key]
	b.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (b *LocalBackend) GetResources(ctx context.Context, keys []string) ([]Entry, error) {
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		v, err := b.GetResource(ctx, k)
		if err != nil {
			continue
		}
		out = append(out, Entry{Key: k, Value: v})
	}
	return out, nil
}

func (b *LocalBackend) RemoveResource(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[key]; !ok {
		return ErrNotFound
	}
	delete(b.entries, key)
	return nil
}

func (b *LocalBackend) RemoveResources(ctx context.Context, keys []string) ([]string, error) {
	removed := make([]string, 0, len(keys))
	for _, k := range keys {
		if err := b.RemoveResource(ctx, k); err == nil {
			removed = append(removed, k)
		}
	}
	return removed, nil
}

// ListResources returns the keys in sorted order.
func (b *LocalBackend) ListResources(context.Context) ([]string, error) {
	b.mu.RLock()
	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	b.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}

// Finalize writes the last snapshot. A backend that was never loaded is
// released without touching the file.
func (b *LocalBackend) Finalize(ctx context.Context) error {
	b.mu.RLock()
	loaded := b.loaded
	b.mu.RUnlock()
	if !loaded {
		b.logger.Warn(ctx, "storage not loaded, snapshot left untouched", "path", b.path)
		return nil
	}
	return b.SaveStorage(ctx)
}

// byteArray serializes as [104,105] instead of the base64 string
// encoding/json uses for []byte.
type byteArray []byte

func (a byteArray) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 2+len(a)*4)
	buf = append(buf, '[')
	for i, c := range a {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendUint(buf, uint64(c), 10)
	}
	return append(buf, ']'), nil
}

func (a *byteArray) UnmarshalJSON(data []byte) error {
	var nums []int
	if err := json.Unmarshal(data, &nums); err != nil {
		return err
	}
	out := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return fmt.Errorf("byte value %d out of range at index %d", n, i)
		}
		out[i] = byte(n)
	}
	*a = out
	return nil
}

var _ Backend = (*LocalBackend)(nil)
