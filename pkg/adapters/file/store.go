package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/graph"
)

// Store implements ports.GraphStore using the local filesystem.
// It stores each graph as one file in a configured directory.
type Store struct {
	BasePath string
	Format   graph.Format
}

// Option configures the Store.
type Option func(*Store)

// WithFormat selects the on-disk format. JSON is the default.
func WithFormat(f graph.Format) Option {
	return func(s *Store) {
		s.Format = f
	}
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".nodeweave/graphs".
func New(basePath string, opts ...Option) *Store {
	if basePath == "" {
		basePath = filepath.Join(".nodeweave", "graphs")
	}
	s := &Store{BasePath: basePath, Format: graph.FormatJSON}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ext() string {
	if s.Format == graph.FormatYAML {
		return ".yaml"
	}
	return ".json"
}

func (s *Store) path(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("graph name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid graph name %q", name)
	}
	return filepath.Join(s.BasePath, name+s.ext()), nil
}

// Save persists the document atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Save(ctx context.Context, name string, doc *domain.GraphDocument) error {
	destPath, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure graph directory: %w", err)
	}

	data, err := graph.Encode(doc, s.Format)
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}

	// Same directory as the destination so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+name+"-*"+s.ext())
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// On Windows, os.Rename fails if dest exists.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing graph file for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Load reads a graph file.
func (s *Store) Load(ctx context.Context, name string) (*domain.GraphDocument, error) {
	filePath, err := s.path(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrGraphNotFound
		}
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}

	doc, err := graph.Decode(data, s.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to decode graph %s: %w", name, err)
	}
	return doc, nil
}

// Delete removes the graph file.
func (s *Store) Delete(ctx context.Context, name string) error {
	filePath, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete graph file: %w", err)
	}
	return nil
}

// List returns the names of every graph file in the directory.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list graph directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fileName := entry.Name()
		if strings.HasPrefix(fileName, "tmp-") || filepath.Ext(fileName) != s.ext() {
			continue
		}
		names = append(names, strings.TrimSuffix(fileName, s.ext()))
	}
	sort.Strings(names)
	return names, nil
}
