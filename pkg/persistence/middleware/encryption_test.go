package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/nodeweave/pkg/adapters/memory"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/persistence/middleware"
	"github.com/aretw0/nodeweave/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func secretDoc() *domain.GraphDocument {
	return &domain.GraphDocument{
		Nodes: []domain.NodeDocument{{ID: "node_1", Type: "ai.chat", Config: map[string]any{"system": "my-secret-sauce"}}},
	}
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	ports.RunGraphStoreContract(t, mw(memory.NewStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	secure := mw(underlying)
	ctx := context.Background()

	require.NoError(t, secure.Save(ctx, "g", secretDoc()))

	stored, err := underlying.Load(ctx, "g")
	require.NoError(t, err)
	assert.Empty(t, stored.Nodes, "the envelope hides the graph")
	require.Len(t, stored.Variables, 1)
	assert.Equal(t, middleware.EnvelopeField, stored.Variables[0].Name)

	loaded, err := secure.Load(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, "my-secret-sauce", loaded.Nodes[0].Config["system"])
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	oldMW, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})
	require.NoError(t, err)
	require.NoError(t, oldMW(underlying).Save(ctx, "g", secretDoc()))

	rotated, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})
	require.NoError(t, err)
	loaded, err := rotated(underlying).Load(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, "node_1", loaded.Nodes[0].ID)

	strict, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: newKey})
	require.NoError(t, err)
	_, err = strict(underlying).Load(ctx, "g")
	assert.Error(t, err, "without the old key the document cannot be read")
}

func TestEncryptionMiddleware_Rejects(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	assert.Error(t, err)

	underlying := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, underlying.Save(ctx, "plain", secretDoc()))

	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	_, err = mw(underlying).Load(ctx, "plain")
	assert.ErrorIs(t, err, middleware.ErrNotEncrypted)
}
