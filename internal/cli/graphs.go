package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/graph"
)

// IsGraphFile reports whether ref names a graph document on disk rather than
// a graph saved in the workspace store.
func IsGraphFile(ref string) bool {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".json", ".yaml", ".yml":
	default:
		return false
	}
	info, err := os.Stat(ref)
	return err == nil && !info.IsDir()
}

// ReadGraphFile decodes a graph document using the file extension to pick
// the format.
func ReadGraphFile(path string) (*domain.GraphDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph: %w", err)
	}
	doc, err := graph.Decode(data, graph.FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}

// WriteGraphFile encodes doc into path, picking the format from the extension.
func WriteGraphFile(path string, doc *domain.GraphDocument) error {
	data, err := graph.Encode(doc, graph.FormatFromPath(path))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadDocument resolves ref as a file first and as a stored graph name
// otherwise.
func (a *App) LoadDocument(ctx context.Context, ref string) (*domain.GraphDocument, error) {
	if IsGraphFile(ref) {
		return ReadGraphFile(ref)
	}
	return a.Manager.Load(ctx, ref)
}

// Open imports ref into the app's engine.
func (a *App) Open(ctx context.Context, ref string) error {
	doc, err := a.LoadDocument(ctx, ref)
	if err != nil {
		return err
	}
	if err := a.Engine.Import(ctx, doc); err != nil {
		return fmt.Errorf("failed to open graph %s: %w", ref, err)
	}
	a.Logger.Debug("Graph opened", "graph", ref, "nodes", len(doc.Nodes))
	return nil
}

// Save writes the engine state back to where ref came from: the file for a
// file reference, the workspace store for a name.
func (a *App) Save(ctx context.Context, ref string) error {
	if IsGraphFile(ref) {
		return WriteGraphFile(ref, a.Engine.Snapshot())
	}
	return a.Manager.Persist(ctx, ref, a.Engine)
}
