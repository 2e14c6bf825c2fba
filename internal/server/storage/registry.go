package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/resvault/internal/logging"
	"github.com/dmitrijs2005/resvault/internal/server/config"
)

// Registry holds the named backend instances. It is filled at startup and
// only read while requests are served.
type Registry struct {
	mu          sync.RWMutex
	backends    map[string]Backend
	defaultName string
	logger      logging.Logger
}

func NewRegistry(defaultName string, logger logging.Logger) *Registry {
	return &Registry{
		backends:    make(map[string]Backend),
		defaultName: defaultName,
		logger:      logger,
	}
}

// Register initializes b under name and adds it to the registry.
func (r *Registry) Register(ctx context.Context, name string, b Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.backends[name]; ok {
		return fmt.Errorf("storage %q: already registered", name)
	}
	if err := b.Initialize(ctx, name); err != nil {
		return fmt.Errorf("storage %q: initialize: %w", name, err)
	}
	r.backends[name] = b
	return nil
}

// Get returns the backend for name. An empty name selects the default.
func (r *Registry) Get(name string) (Backend, bool) {
	if name == "" {
		name = r.defaultName
	}
	r.mu.RLock()
	b, ok := r.backends[name]
	r.mu.RUnlock()
	return b, ok
}

func (r *Registry) DefaultName() string { return r.defaultName }

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.backends))
	for n := range r.backends {
		names = append(names, n)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// LoadAll calls LoadStorage on every backend.
func (r *Registry) LoadAll(ctx context.Context) error {
	var errs []error
	for _, name := range r.Names() {
		b, _ := r.Get(name)
		if err := b.LoadStorage(ctx); err != nil {
			errs = append(errs, fmt.Errorf("storage %q: load: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// SaveAll calls SaveStorage on every backend.
func (r *Registry) SaveAll(ctx context.Context) error {
	var errs []error
	for _, name := range r.Names() {
		b, _ := r.Get(name)
		if err := b.SaveStorage(ctx); err != nil {
			errs = append(errs, fmt.Errorf("storage %q: save: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// FinalizeAll runs the shutdown hook of every backend, continuing past
// failures so each one gets its chance to flush.
func (r *Registry) FinalizeAll(ctx context.Context) error {
	var errs []error
	for _, name := range r.Names() {
		b, _ := r.Get(name)
		if err := b.Finalize(ctx); err != nil {
			r.logger.Error(ctx, "storage finalize failed", "storage", name, "error", err)
			errs = append(errs, fmt.Errorf("storage %q: finalize: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// New builds an uninitialized backend for one configured instance.
func New(sc config.StorageConfig, cfg *config.Config, logger logging.Logger) (Backend, error) {
	switch sc.Kind {
	case config.StorageKindLocal:
		return NewLocalBackend(sc.Path, logger), nil
	case config.StorageKindBadger:
		return NewBadgerBackend(sc.Path, logger), nil
	case config.StorageKindSQLite:
		return NewSQLiteBackend(sc.Path, logger), nil
	case config.StorageKindRemote:
		return NewRemoteBackend(RemoteConfig{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			AccessKey:    cfg.S3RootUser,
			SecretKey:    cfg.S3RootPassword,
			Prefix:       sc.Prefix,
			Concurrency:  cfg.RemoteBatchConcurrency,
		}, logger), nil
	default:
		return nil, fmt.Errorf("storage %q: unknown kind %q", sc.Name, sc.Kind)
	}
}

// NewRegistryFromConfig builds and registers every configured instance.
func NewRegistryFromConfig(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Registry, error) {
	r := NewRegistry(cfg.DefaultStorage, logger)
	for _, sc := range cfg.Storages {
		b, err := New(sc, cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := r.Register(ctx, sc.Name, b); err != nil {
			_ = r.FinalizeAll(ctx)
			return nil, err
		}
	}
	return r, nil
}
