package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/nodeweave/internal/logging"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/ports"
)

// Snapshotter is anything that can be captured into a graph document and
// rebuilt from one. *nodeweave.Engine satisfies it.
type Snapshotter interface {
	Snapshot() *domain.GraphDocument
	Import(ctx context.Context, doc *domain.GraphDocument) error
}

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates graph access, ensuring safe concurrent operations.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.GraphStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets how long a distributed lock lives if never released.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a workspace manager over the given store.
func NewManager(store ports.GraphStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: 30 * time.Second,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(name) after unlocking.
func (m *Manager) acquire(name string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[name]
	if !exists {
		entry = &lockEntry{}
		m.locks[name] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[name]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, name)
	}
}

// Load retrieves a saved graph document.
func (m *Manager) Load(ctx context.Context, name string) (*domain.GraphDocument, error) {
	var doc *domain.GraphDocument
	err := m.WithLock(ctx, name, func(ctx context.Context) error {
		var err error
		doc, err = m.store.Load(ctx, name)
		return err
	})
	return doc, err
}

// Save persists a graph document under name.
func (m *Manager) Save(ctx context.Context, name string, doc *domain.GraphDocument) error {
	return m.WithLock(ctx, name, func(ctx context.Context) error {
		return m.store.Save(ctx, name, doc)
	})
}

// Update loads the document saved under name, lets fn modify it and saves
// the result. A missing graph starts out empty. Nothing is saved when fn
// returns an error.
func (m *Manager) Update(ctx context.Context, name string, fn func(doc *domain.GraphDocument) error) error {
	return m.WithLock(ctx, name, func(ctx context.Context) error {
		doc, err := m.store.Load(ctx, name)
		if errors.Is(err, domain.ErrGraphNotFound) {
			doc = &domain.GraphDocument{}
		} else if err != nil {
			return fmt.Errorf("failed to load graph %s: %w", name, err)
		}
		if err := fn(doc); err != nil {
			return err
		}
		return m.store.Save(ctx, name, doc)
	})
}

// Persist saves a snapshot of src, variables included.
func (m *Manager) Persist(ctx context.Context, name string, src Snapshotter) error {
	doc := src.Snapshot()
	if err := m.Save(ctx, name, doc); err != nil {
		return err
	}
	m.logger.Debug("Graph persisted", "graph", name, "nodes", len(doc.Nodes))
	return nil
}

// Open loads the graph saved under name into dst.
// Returns domain.ErrGraphNotFound if nothing is saved under that name.
func (m *Manager) Open(ctx context.Context, name string, dst Snapshotter) error {
	doc, err := m.Load(ctx, name)
	if err != nil {
		return err
	}
	if err := dst.Import(ctx, doc); err != nil {
		return fmt.Errorf("failed to open graph %s: %w", name, err)
	}
	return nil
}

// Delete removes the graph from the store.
func (m *Manager) Delete(ctx context.Context, name string) error {
	return m.WithLock(ctx, name, func(ctx context.Context) error {
		return m.store.Delete(ctx, name)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying graph store.
func (m *Manager) Store() ports.GraphStore {
	return m.store
}

// WithLock executes a function while holding the lock for the graph name.
func (m *Manager) WithLock(ctx context.Context, name string, fn func(context.Context) error) error {
	entry := m.acquire(name)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(name)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, name, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"graph", name,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
