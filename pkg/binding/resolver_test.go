package binding_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/nodeweave/pkg/binding"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/graph"
	"github.com/aretw0/nodeweave/pkg/registry"
	"github.com/aretw0/nodeweave/pkg/variables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	graph    *graph.Graph
	vars     *variables.Store
	resolver *binding.Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.NewRegistry()
	noop := registry.BehaviorFunc(func(context.Context, *registry.Invocation) (map[string]any, error) {
		return nil, nil
	})
	reg.MustRegister(registry.Definition{Type: "producer", Outputs: []string{"text", "meta"}, Behavior: noop})
	reg.MustRegister(registry.Definition{Type: "consumer", Inputs: []string{"prompt"}, Outputs: []string{"text"}, Behavior: noop})
	reg.MustRegister(registry.Definition{Type: "painter", Outputs: []string{"image"}, Behavior: noop})

	g := graph.New(reg)
	vars := variables.NewStore()
	return &fixture{graph: g, vars: vars, resolver: binding.NewResolver(g, vars)}
}

func (f *fixture) node(t *testing.T, id string) domain.Node {
	t.Helper()
	n, err := f.graph.Node(id)
	require.NoError(t, err)
	return n
}

func TestResolveInputs_Precedence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	up, _ := f.graph.AddNode("producer", nil)
	down, _ := f.graph.AddNode("consumer", map[string]any{"prompt": "from config"})
	require.NoError(t, f.graph.Update(up.ID, func(n *domain.Node) error {
		n.Outputs = map[string]any{"text": "from connection"}
		return nil
	}))
	_, err := f.graph.Connect(up.ID, "text", down.ID, "prompt")
	require.NoError(t, err)
	_, err = f.vars.Create(ctx, "topic", domain.TypeString, "from variable", "")
	require.NoError(t, err)

	set := func(mapping string) {
		require.NoError(t, f.graph.ConfigureBindings(down.ID, domain.BindingUpdate{
			InputMappings: map[string]string{"prompt": mapping},
		}))
	}
	resolve := func() any {
		in, err := f.resolver.ResolveInputs(ctx, f.node(t, down.ID))
		require.NoError(t, err)
		return in["prompt"]
	}

	set(domain.NoInput)
	assert.Nil(t, resolve(), "sentinel beats everything")

	set("topic")
	assert.Equal(t, "from variable", resolve())

	set("")
	assert.Equal(t, "from connection", resolve())

	conns, _ := f.graph.ConnectionsInto(down.ID)
	require.NoError(t, f.graph.Disconnect(conns[0].ID))
	assert.Equal(t, "from config", resolve())

	require.NoError(t, f.graph.SetConfig(down.ID, nil))
	assert.Nil(t, resolve())
}

func TestResolveInputs_DeletedVariableIsUnset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, _ := f.graph.AddNode("consumer", nil)
	_, err := f.vars.Create(ctx, "topic", domain.TypeString, "go", "")
	require.NoError(t, err)
	require.NoError(t, f.graph.ConfigureBindings(n.ID, domain.BindingUpdate{InputMappings: map[string]string{"prompt": "topic"}}))

	require.NoError(t, f.vars.Delete(ctx, "topic"))

	in, err := f.resolver.ResolveInputs(ctx, f.node(t, n.ID))
	require.NoError(t, err)
	assert.Contains(t, in, "prompt")
	assert.Nil(t, in["prompt"])
}

func TestMerge(t *testing.T) {
	a := domain.PortRef{NodeID: "node_1", Port: "text"}
	arrivals := []domain.Arrival{
		{From: a, Value: "one", At: time.Unix(1, 0)},
		{From: a, Value: "two", At: time.Unix(2, 0)},
	}

	assert.Equal(t, "two", binding.Merge(domain.MultiInputOverride, arrivals, nil))
	assert.Equal(t, "two", binding.Merge("", arrivals, nil))
	assert.Equal(t, "one\ntwo", binding.Merge(domain.MultiInputConcat, arrivals, nil))
	assert.Equal(t, map[string]any{"node_1.text": "two"}, binding.Merge(domain.MultiInputJSON, arrivals, nil))
	assert.Equal(t, []any{"one", "two"}, binding.Merge(domain.MultiInputBatch, arrivals, nil))

	assert.Equal(t, []any{"last"}, binding.Merge(domain.MultiInputBatch, nil, "last"))
	assert.Equal(t, "3", binding.Merge(domain.MultiInputConcat, nil, 3))
	assert.Nil(t, binding.Merge(domain.MultiInputBatch, nil, nil))
}

func TestResolveInputs_MergesInbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	up, _ := f.graph.AddNode("producer", nil)
	down, _ := f.graph.AddNode("consumer", nil)
	_, err := f.graph.Connect(up.ID, "text", down.ID, "prompt")
	require.NoError(t, err)
	mode := domain.MultiInputBatch
	require.NoError(t, f.graph.ConfigureBindings(down.ID, domain.BindingUpdate{MultiInputMode: &mode}))

	f.resolver.Deliver(up.ID, map[string]any{"text": "a"})
	f.resolver.Deliver(up.ID, map[string]any{"text": "b", "meta": 1})

	in, err := f.resolver.ResolveInputs(ctx, f.node(t, down.ID))
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, in["prompt"])
}

func TestAutoWire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.vars.Create(ctx, "Draft", domain.TypeString, "", "")
	require.NoError(t, err)

	a, _ := f.graph.AddNode("producer", map[string]any{"label": "Writer Bot"})
	b, _ := f.graph.AddNode("producer", map[string]any{"label": "Writer Bot"})
	c, _ := f.graph.AddNode("consumer", map[string]any{"label": "Draft"})
	for _, id := range []string{a.ID, b.ID, c.ID} {
		require.NoError(t, f.resolver.AutoWire(id))
	}

	assert.Equal(t, map[string]string{"text": "Writer_Bot", "meta": "Writer_Bot_meta"}, f.node(t, a.ID).Bindings.OutputMappings)
	assert.Equal(t, map[string]string{"text": "Writer_Bot_2", "meta": "Writer_Bot_meta_2"}, f.node(t, b.ID).Bindings.OutputMappings)
	assert.Equal(t, "Draft_2", f.node(t, c.ID).Bindings.OutputMappings["text"], "existing variables are not claimed")
}

func TestWriteOutputs(t *testing.T) {
	ctx := context.Background()

	t.Run("derives names and records mappings", func(t *testing.T) {
		f := newFixture(t)
		n, _ := f.graph.AddNode("producer", map[string]any{"label": "Summary"})

		require.NoError(t, f.resolver.WriteOutputs(ctx, n.ID, map[string]any{"text": "short", "meta": map[string]any{"tokens": 3}}))

		v, ok := f.vars.Peek("Summary")
		require.True(t, ok)
		assert.Equal(t, domain.TypeString, v.Type)
		assert.Equal(t, "short", v.Value)

		meta, ok := f.vars.Peek("Summary_meta")
		require.True(t, ok)
		assert.Equal(t, domain.TypeObject, meta.Type)

		assert.Equal(t, "Summary", f.node(t, n.ID).Bindings.OutputMappings["text"])
	})

	t.Run("non-textual primary output gets port suffix", func(t *testing.T) {
		f := newFixture(t)
		n, _ := f.graph.AddNode("producer", map[string]any{"label": "Count"})

		require.NoError(t, f.resolver.WriteOutputs(ctx, n.ID, map[string]any{"text": 42}))

		v, ok := f.vars.Peek("Count_text")
		require.True(t, ok)
		assert.Equal(t, domain.TypeNumber, v.Type)
	})

	t.Run("coerces into existing variable", func(t *testing.T) {
		f := newFixture(t)
		n, _ := f.graph.AddNode("producer", nil)
		_, err := f.vars.Create(ctx, "score", domain.TypeNumber, 0, "")
		require.NoError(t, err)
		require.NoError(t, f.graph.ConfigureBindings(n.ID, domain.BindingUpdate{
			OutputMappings: map[string]string{"text": "score"},
			OutputParse:    map[string]domain.ParseConfig{"text": {Mode: domain.ParseDelimiter, Config: "[|]"}},
		}))

		require.NoError(t, f.resolver.WriteOutputs(ctx, n.ID, map[string]any{"text": "score: [7.5] of 10"}))

		v, _ := f.vars.Peek("score")
		assert.Equal(t, domain.TypeNumber, v.Type)
		assert.Equal(t, 7.5, v.Value)
	})

	t.Run("soft failure re-types as string", func(t *testing.T) {
		f := newFixture(t)
		n, _ := f.graph.AddNode("producer", nil)
		_, err := f.vars.Create(ctx, "score", domain.TypeNumber, 0, "")
		require.NoError(t, err)
		require.NoError(t, f.graph.ConfigureBindings(n.ID, domain.BindingUpdate{OutputMappings: map[string]string{"text": "score"}}))

		require.NoError(t, f.resolver.WriteOutputs(ctx, n.ID, map[string]any{"text": "not a number"}))

		v, _ := f.vars.Peek("score")
		assert.Equal(t, domain.TypeString, v.Type)
		assert.Equal(t, "not a number", v.Value)
	})

	t.Run("binary mismatch is an error", func(t *testing.T) {
		f := newFixture(t)
		n, _ := f.graph.AddNode("painter", nil)
		_, err := f.vars.Create(ctx, "cover", domain.TypeImage, nil, "")
		require.NoError(t, err)
		require.NoError(t, f.graph.ConfigureBindings(n.ID, domain.BindingUpdate{OutputMappings: map[string]string{"image": "cover"}}))

		err = f.resolver.WriteOutputs(ctx, n.ID, map[string]any{"image": "plain text"})
		var mismatch *domain.TypeMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, domain.TypeImage, mismatch.Expected)
	})

	t.Run("rejected port leaves earlier ports unwritten", func(t *testing.T) {
		f := newFixture(t)
		n, _ := f.graph.AddNode("producer", map[string]any{"label": "Poster"})
		_, err := f.vars.Create(ctx, "headline", domain.TypeString, "old", "")
		require.NoError(t, err)
		_, err = f.vars.Create(ctx, "cover", domain.TypeImage, nil, "")
		require.NoError(t, err)
		require.NoError(t, f.graph.ConfigureBindings(n.ID, domain.BindingUpdate{
			OutputMappings: map[string]string{"text": "headline", "meta": "cover"},
		}))

		err = f.resolver.WriteOutputs(ctx, n.ID, map[string]any{"text": "new", "meta": "plain text"})
		var mismatch *domain.TypeMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "cover", mismatch.Name)

		v, _ := f.vars.Peek("headline")
		assert.Equal(t, "old", v.Value)
	})

	t.Run("rejected port records no derived mapping", func(t *testing.T) {
		f := newFixture(t)
		n, _ := f.graph.AddNode("producer", map[string]any{"label": "Poster"})
		_, err := f.vars.Create(ctx, "cover", domain.TypeImage, nil, "")
		require.NoError(t, err)
		require.NoError(t, f.graph.ConfigureBindings(n.ID, domain.BindingUpdate{
			OutputMappings: map[string]string{"meta": "cover"},
		}))

		err = f.resolver.WriteOutputs(ctx, n.ID, map[string]any{"text": "new", "meta": "plain text"})
		require.Error(t, err)
		assert.False(t, f.vars.Exists("Poster"))
		assert.NotContains(t, f.node(t, n.ID).Bindings.OutputMappings, "text")
	})

	t.Run("no output discards", func(t *testing.T) {
		f := newFixture(t)
		n, _ := f.graph.AddNode("producer", map[string]any{"label": "Quiet"})
		require.NoError(t, f.graph.ConfigureBindings(n.ID, domain.BindingUpdate{
			OutputMappings: map[string]string{"text": domain.NoOutput},
		}))

		require.NoError(t, f.resolver.WriteOutputs(ctx, n.ID, map[string]any{"text": "x"}))
		assert.False(t, f.vars.Exists("Quiet"))
	})

	t.Run("mapping to missing variable creates it", func(t *testing.T) {
		f := newFixture(t)
		n, _ := f.graph.AddNode("producer", nil)
		require.NoError(t, f.graph.ConfigureBindings(n.ID, domain.BindingUpdate{OutputMappings: map[string]string{"meta": "flags"}}))

		require.NoError(t, f.resolver.WriteOutputs(ctx, n.ID, map[string]any{"meta": true}))

		v, ok := f.vars.Peek("flags")
		require.True(t, ok)
		assert.Equal(t, domain.TypeBoolean, v.Type)
	})
}
