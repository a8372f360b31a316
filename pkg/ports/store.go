package ports

import (
	"context"

	"github.com/aretw0/nodeweave/pkg/domain"
)

// GraphStore persists named graph documents.
// This lets a workspace be saved, shared between replicas and reopened later.
type GraphStore interface {
	// Save persists the document under the given name, replacing any previous one.
	Save(ctx context.Context, name string, doc *domain.GraphDocument) error

	// Load retrieves the document saved under name.
	// Returns domain.ErrGraphNotFound if the name does not exist.
	Load(ctx context.Context, name string) (*domain.GraphDocument, error)

	// Delete removes the document. Deleting a missing name is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names of all saved documents.
	List(ctx context.Context) ([]string, error)
}
