package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/nodeweave/pkg/adapters/memory"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlying := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{"(?i)password", "api_key"})
	require.NoError(t, err)
	store := mw(underlying)
	ctx := context.Background()

	doc := &domain.GraphDocument{
		Nodes: []domain.NodeDocument{{
			ID:   "node_1",
			Type: "http.request",
			Config: map[string]any{
				"url":     "https://example.com",
				"headers": map[string]any{"api_key": "abc123", "Accept": "text/plain"},
			},
		}},
		Variables: []domain.Variable{
			{Name: "DB_Password", Type: domain.TypeNumber, Value: 1234.0},
			{Name: "username", Type: domain.TypeString, Value: "jdoe"},
		},
	}
	require.NoError(t, store.Save(ctx, "g", doc))

	headers := doc.Nodes[0].Config["headers"].(map[string]any)
	assert.Equal(t, "abc123", headers["api_key"], "the caller's document is not modified")
	assert.Equal(t, 1234.0, doc.Variables[0].Value)

	stored, err := underlying.Load(ctx, "g")
	require.NoError(t, err)
	storedHeaders := stored.Nodes[0].Config["headers"].(map[string]any)
	assert.Equal(t, middleware.Mask, storedHeaders["api_key"])
	assert.Equal(t, "text/plain", storedHeaders["Accept"])
	assert.Equal(t, "https://example.com", stored.Nodes[0].Config["url"])

	assert.Equal(t, middleware.Mask, stored.Variables[0].Value)
	assert.Equal(t, domain.TypeString, stored.Variables[0].Type)
	assert.Equal(t, "jdoe", stored.Variables[1].Value)
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain_Order(t *testing.T) {
	underlying := memory.NewStore()
	pii, err := middleware.NewPIIMiddleware([]string{"secret"})
	require.NoError(t, err)
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)

	store := middleware.Chain(underlying, pii, enc)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "g", &domain.GraphDocument{
		Variables: []domain.Variable{{Name: "secret", Type: domain.TypeString, Value: "hunter2"}},
	}))

	loaded, err := store.Load(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, loaded.Variables[0].Value, "masking happens before encryption")
}
