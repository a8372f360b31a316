package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/nodeweave/pkg/adapters/memory"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunGraphStoreContract(t, store)
}

func TestMemoryStore_Isolation(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	doc := &domain.GraphDocument{Nodes: []domain.NodeDocument{{ID: "node_1", Type: "merge", Config: map[string]any{"separator": ","}}}}
	require.NoError(t, store.Save(ctx, "g", doc))
	doc.Nodes[0].Config["separator"] = ";"

	loaded, err := store.Load(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, ",", loaded.Nodes[0].Config["separator"], "later edits by the caller do not leak into the store")
}
