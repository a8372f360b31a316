package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/nodeweave/pkg/adapters/redis"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunGraphStoreContract(t, redis.NewFromClient(client))
}

func TestRedisStore_TTLExpiration(t *testing.T) {
	mr, client := newClient(t)
	now := time.Now()
	clock := func() time.Time { return now }

	store := redis.NewFromClient(client, redis.WithTTL(time.Second), redis.WithClock(clock))
	ctx := context.Background()
	doc := &domain.GraphDocument{Nodes: []domain.NodeDocument{{ID: "node_1", Type: "merge"}}}

	require.NoError(t, store.Save(ctx, "short-lived", doc))
	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "short-lived")

	mr.FastForward(2 * time.Second)
	_, err = store.Load(ctx, "short-lived")
	assert.ErrorIs(t, err, domain.ErrGraphNotFound)

	now = now.Add(2 * time.Second)
	names, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names, "expired names are pruned from the index")
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "flow", &domain.GraphDocument{}))

	assert.True(t, mr.Exists("custom:app:flow"), "document key carries the prefix")
	assert.True(t, mr.Exists("custom:app:index"), "index key carries the prefix")

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"flow"}, names)
}
