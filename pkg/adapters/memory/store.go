package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/nodeweave/pkg/domain"
)

// Store implements ports.GraphStore in memory.
// Documents are kept serialized so callers never share maps with the store.
// Safe for concurrent use.
type Store struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Save persists the document in memory.
func (s *Store) Save(ctx context.Context, name string, doc *domain.GraphDocument) error {
	if name == "" {
		return fmt.Errorf("graph name cannot be empty")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = raw
	return nil
}

// Load retrieves a copy of the document.
func (s *Store) Load(ctx context.Context, name string) (*domain.GraphDocument, error) {
	s.mu.RLock()
	raw, ok := s.data[name]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrGraphNotFound
	}

	var doc domain.GraphDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph: %w", err)
	}
	return &doc, nil
}

// Delete removes the document.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, name)
	return nil
}

// List returns the saved names, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
