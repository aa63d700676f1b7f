// Package backend provides object store implementations.
// All backends implement the types.ObjectStore interface.
package backend

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/LeeDigitalWorks/zapdav/pkg/types"
)

// ErrInvalidRange is returned by the local and memory stores when a range
// cannot be satisfied, mirroring S3's InvalidRange (HTTP 416).
var ErrInvalidRange = errors.New("invalid range")

// Registry holds registered backend factories
var (
	registryMu sync.RWMutex
	registry   = make(map[types.StorageType]Factory)
)

// Factory creates an ObjectStore from config
type Factory func(cfg types.BackendConfig) (types.ObjectStore, error)

// Register adds a factory for a storage type
func Register(t types.StorageType, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = f
}

// New creates an ObjectStore from config
func New(cfg types.BackendConfig) (types.ObjectStore, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
	return f(cfg)
}

// Manager tracks multiple named object stores
type Manager struct {
	mu       sync.RWMutex
	backends map[string]types.ObjectStore
	configs  map[string]types.BackendConfig
}

// NewManager creates a backend manager
func NewManager() *Manager {
	return &Manager{
		backends: make(map[string]types.ObjectStore),
		configs:  make(map[string]types.BackendConfig),
	}
}

// Add creates and registers a backend, closing any backend it replaces
func (m *Manager) Add(id string, cfg types.BackendConfig) error {
	store, err := New(cfg)
	if err != nil {
		return fmt.Errorf("create backend %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, exists := m.backends[id]; exists {
		old.Close()
	}

	m.backends[id] = store
	m.configs[id] = cfg
	return nil
}

// Get retrieves a backend by ID
func (m *Manager) Get(id string) (types.ObjectStore, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.backends[id]
	return b, ok
}

// Config returns the configuration a backend was created from
func (m *Manager) Config(id string) (types.BackendConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[id]
	return cfg, ok
}

// Remove closes and removes a backend
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.backends[id]; ok {
		delete(m.backends, id)
		delete(m.configs, id)
		return b.Close()
	}
	return nil
}

// List returns all backend IDs, sorted
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.backends))
	for id := range m.backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes all backends
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for id, b := range m.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backend %s: %w", id, err))
		}
	}
	m.backends = make(map[string]types.ObjectStore)
	m.configs = make(map[string]types.BackendConfig)
	return errors.Join(errs...)
}

// resolveRange turns a backend range into an absolute window of an object
// of the given size. A nil rng selects the whole object.
func resolveRange(rng *types.ByteRange, size int64) (offset, length int64, err error) {
	if rng == nil {
		return 0, size, nil
	}

	switch rng.Mode {
	case types.RangeOffsetLength:
		if rng.Offset < 0 || rng.Length <= 0 || rng.Offset >= size {
			return 0, 0, fmt.Errorf("%w: offset %d length %d of %d bytes", ErrInvalidRange, rng.Offset, rng.Length, size)
		}
		return rng.Offset, min(rng.Length, size-rng.Offset), nil
	case types.RangeOffset:
		if rng.Offset < 0 || rng.Offset >= size {
			return 0, 0, fmt.Errorf("%w: offset %d of %d bytes", ErrInvalidRange, rng.Offset, size)
		}
		return rng.Offset, size - rng.Offset, nil
	case types.RangeSuffix:
		if rng.Length <= 0 {
			return 0, 0, fmt.Errorf("%w: suffix length %d", ErrInvalidRange, rng.Length)
		}
		n := min(rng.Length, size)
		return size - n, n, nil
	default:
		return 0, 0, fmt.Errorf("%w: unknown mode %s", ErrInvalidRange, rng.Mode)
	}
}
