package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/resvault/internal/logging"
	"github.com/dmitrijs2005/resvault/internal/server/config"
)

type countingBackend struct {
	*LocalBackend
	finalized int
	failFinal error
}

func (c *countingBackend) Finalize(ctx context.Context) error {
	c.finalized++
	if c.failFinal != nil {
		return c.failFinal
	}
	return c.LocalBackend.Finalize(ctx)
}

func TestRegistry_GetAndDefault(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r := NewRegistry("local", logging.Nop{})

	require.NoError(t, r.Register(ctx, "local", NewLocalBackend(filepath.Join(dir, "l.json"), logging.Nop{})))
	require.NoError(t, r.Register(ctx, "other", NewLocalBackend(filepath.Join(dir, "o.json"), logging.Nop{})))
	assert.Error(t, r.Register(ctx, "local", NewLocalBackend(filepath.Join(dir, "x.json"), logging.Nop{})))

	b, ok := r.Get("")
	require.True(t, ok)
	assert.Equal(t, "local", b.Name())

	b, ok = r.Get("other")
	require.True(t, ok)
	assert.Equal(t, "other", b.Name())

	_, ok = r.Get("ghost")
	assert.False(t, ok)

	assert.Equal(t, []string{"local", "other"}, r.Names())
	assert.Equal(t, "local", r.DefaultName())
}

func TestRegistry_InstancesAreIndependent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r := NewRegistry("a", logging.Nop{})
	require.NoError(t, r.Register(ctx, "a", NewLocalBackend(filepath.Join(dir, "a.json"), logging.Nop{})))
	require.NoError(t, r.Register(ctx, "b", NewLocalBackend(filepath.Join(dir, "b.json"), logging.Nop{})))

	a, _ := r.Get("a")
	b, _ := r.Get("b")
	_, _ = a.AddResource(ctx, "k", []byte("from a"), true)

	ok, err := b.HasResource(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_FinalizeAllContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r := NewRegistry("a", logging.Nop{})

	failing := &countingBackend{LocalBackend: NewLocalBackend(filepath.Join(dir, "a.json"), logging.Nop{}), failFinal: errors.New("disk gone")}
	healthy := &countingBackend{LocalBackend: NewLocalBackend(filepath.Join(dir, "b.json"), logging.Nop{})}
	require.NoError(t, r.Register(ctx, "a", failing))
	require.NoError(t, r.Register(ctx, "b", healthy))
	require.NoError(t, r.LoadAll(ctx))

	err := r.FinalizeAll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
	assert.Equal(t, 1, failing.finalized)
	assert.Equal(t, 1, healthy.finalized)
	assert.FileExists(t, filepath.Join(dir, "b.json"))
}

func TestRegistry_LoadAllSaveAll(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "s.json")

	r := NewRegistry("s", logging.Nop{})
	require.NoError(t, r.Register(ctx, "s", NewLocalBackend(path, logging.Nop{})))
	require.NoError(t, r.LoadAll(ctx))

	b, _ := r.Get("s")
	_, _ = b.AddResource(ctx, "k", []byte("v"), true)
	require.NoError(t, r.SaveAll(ctx))

	r2 := NewRegistry("s", logging.Nop{})
	require.NoError(t, r2.Register(ctx, "s", NewLocalBackend(path, logging.Nop{})))
	require.NoError(t, r2.LoadAll(ctx))
	b2, _ := r2.Get("s")
	got, err := b2.GetResource(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestNew_Kinds(t *testing.T) {
	cfg := &config.Config{S3Bucket: "resvault", RemoteBatchConcurrency: 2}

	b, err := New(config.StorageConfig{Name: "l", Kind: config.StorageKindLocal, Path: "x.json"}, cfg, logging.Nop{})
	require.NoError(t, err)
	assert.IsType(t, &LocalBackend{}, b)

	b, err = New(config.StorageConfig{Name: "k", Kind: config.StorageKindBadger, Path: "kv"}, cfg, logging.Nop{})
	require.NoError(t, err)
	assert.IsType(t, &BadgerBackend{}, b)

	b, err = New(config.StorageConfig{Name: "s", Kind: config.StorageKindSQLite, Path: "kv.sqlite"}, cfg, logging.Nop{})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteBackend{}, b)

	b, err = New(config.StorageConfig{Name: "r", Kind: config.StorageKindRemote, Prefix: "p/"}, cfg, logging.Nop{})
	require.NoError(t, err)
	rb, ok := b.(*RemoteBackend)
	require.True(t, ok)
	assert.Equal(t, "p/", rb.cfg.Prefix)
	assert.Equal(t, 2, rb.cfg.Concurrency)

	_, err = New(config.StorageConfig{Name: "?", Kind: "tape"}, cfg, logging.Nop{})
	assert.Error(t, err)
}

func TestNewRegistryFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		DefaultStorage: "main",
		Storages: []config.StorageConfig{
			{Name: "main", Kind: config.StorageKindLocal, Path: filepath.Join(dir, "main.json")},
			{Name: "kv", Kind: config.StorageKindBadger, Path: filepath.Join(dir, "kv")},
			{Name: "sql", Kind: config.StorageKindSQLite, Path: filepath.Join(dir, "kv.sqlite")},
		},
	}

	r, err := NewRegistryFromConfig(context.Background(), cfg, logging.Nop{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.FinalizeAll(context.Background()) })

	assert.Equal(t, []string{"kv", "main", "sql"}, r.Names())
	b, ok := r.Get("")
	require.True(t, ok)
	assert.Equal(t, "main", b.Name())
}
