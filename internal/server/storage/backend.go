// Package storage implements the key to byte-blob stores behind the
// /storage endpoint and the registry of named instances a request picks
// from with the storage header.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key is absent from a backend.
var ErrNotFound = errors.New("resource not found")

// ErrNotLoaded is returned when a snapshot-backed store is asked to save
// state it never loaded.
var ErrNotLoaded = errors.New("storage not loaded")

// Entry is one stored key and its value.
type Entry struct {
	Key   string
	Value []byte
}

// Backend is a key to byte-blob store. Keys are unique per instance and
// writes are last-write-wins.
type Backend interface {
	// Name is the instance name requests select it by.
	Name() string

	// Initialize prepares the backend for use under the given instance name.
	Initialize(ctx context.Context, name string) error
	// LoadStorage pulls persisted state into the backend.
	LoadStorage(ctx context.Context) error
	// SaveStorage pushes in-memory state to durable storage.
	SaveStorage(ctx context.Context) error
	// ClearStorage drops every entry.
	ClearStorage(ctx context.Context) error

	// AddResource stores value under key. With forced=false an existing key
	// is left untouched and stored is false.
	AddResource(ctx context.Context, key string, value []byte, forced bool) (stored bool, err error)
	HasResource(ctx context.Context, key string) (bool, error)
	// GetResource returns ErrNotFound for unknown keys.
	GetResource(ctx context.Context, key string) ([]byte, error)
	// GetResources returns the entries that exist, in request order.
	GetResources(ctx context.Context, keys []string) ([]Entry, error)
	// RemoveResource returns ErrNotFound for unknown keys.
	RemoveResource(ctx context.Context, key string) error
	// RemoveResources returns the keys that were actually removed.
	RemoveResources(ctx context.Context, keys []string) ([]string, error)
	ListResources(ctx context.Context) ([]string, error)

	// Finalize is the flush-on-shutdown hook.
	Finalize(ctx context.Context) error
}
