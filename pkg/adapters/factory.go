package adapters

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ruslano69/geoimport/pkg/settings"
)

// Constructor builds a connected backend from settings.
type Constructor func(ctx context.Context, cfg *settings.Settings, opts Options) (Backend, error)

// Factory maps settings db values to backend constructors.
type Factory struct {
	registry map[settings.DB]Constructor
	mu       sync.RWMutex
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{
		registry: make(map[settings.DB]Constructor),
	}
}

// Register binds db to constructor, replacing any previous binding.
func (f *Factory) Register(db settings.DB, constructor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registry[db] = constructor
}

// Unregister removes the binding of db.
func (f *Factory) Unregister(db settings.DB) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.registry, db)
}

// IsRegistered reports whether db has a constructor.
func (f *Factory) IsRegistered(db settings.DB) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.registry[db]
	return ok
}

// GetRegisteredTypes returns the registered db values, sorted.
func (f *Factory) GetRegisteredTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.registry))
	for db := range f.registry {
		types = append(types, string(db))
	}
	sort.Strings(types)
	return types
}

// Create builds the backend selected by cfg.DB.
func (f *Factory) Create(ctx context.Context, cfg *settings.Settings, opts Options) (Backend, error) {
	f.mu.RLock()
	constructor, ok := f.registry[cfg.DB]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown database type: %s (available types: %v)",
			cfg.DB, f.GetRegisteredTypes())
	}

	backend, err := constructor(ctx, cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.DB, err)
	}
	return backend, nil
}

// ========== Global Factory ==========

var globalFactory = NewFactory()

// Register binds db in the global factory. Backends call it from init():
//
//	func init() {
//	    adapters.Register(settings.PostgreSQL, New)
//	}
func Register(db settings.DB, constructor Constructor) {
	globalFactory.Register(db, constructor)
}

// Unregister removes db from the global factory.
func Unregister(db settings.DB) {
	globalFactory.Unregister(db)
}

// IsRegistered checks the global factory.
func IsRegistered(db settings.DB) bool {
	return globalFactory.IsRegistered(db)
}

// GetRegisteredTypes lists the global factory.
func GetRegisteredTypes() []string {
	return globalFactory.GetRegisteredTypes()
}

// New builds a backend through the global factory.
func New(ctx context.Context, cfg *settings.Settings, opts Options) (Backend, error) {
	return globalFactory.Create(ctx, cfg, opts)
}
