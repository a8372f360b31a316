package registry_test

import (
	"context"
	"testing"

	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo() registry.Behavior {
	return registry.BehaviorFunc(func(_ context.Context, inv *registry.Invocation) (map[string]any, error) {
		return map[string]any{"out": inv.Inputs["in"]}, nil
	})
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := registry.NewRegistry()
	require.NoError(t, r.Register(registry.Definition{
		Type:     "echo",
		Inputs:   []string{"in"},
		Outputs:  []string{"out"},
		Behavior: echo(),
	}))

	def, err := r.Lookup("echo")
	require.NoError(t, err)
	assert.Equal(t, registry.InputAuto, def.InputMode, "input mode defaults to auto")

	out, err := def.Behavior.Run(context.Background(), &registry.Invocation{Inputs: map[string]any{"in": 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, out["out"])

	_, err = r.Lookup("missing")
	assert.True(t, domain.IsNotFound(err, domain.KindNodeType))
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	r := registry.NewRegistry()
	r.MustRegister(registry.Definition{Type: "x", Description: "first", Behavior: echo()})
	r.MustRegister(registry.Definition{Type: "x", Description: "second", Behavior: echo()})

	def, err := r.Lookup("x")
	require.NoError(t, err)
	assert.Equal(t, "second", def.Description)
	assert.Len(t, r.Definitions(), 1)
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	r := registry.NewRegistry()
	assert.Error(t, r.Register(registry.Definition{Behavior: echo()}))
	assert.Error(t, r.Register(registry.Definition{Type: "nobehavior"}))
	assert.Panics(t, func() { r.MustRegister(registry.Definition{}) })
}

func TestDefinition_MergeConfig(t *testing.T) {
	def := registry.Definition{Defaults: map[string]any{"model": "gpt-4o-mini", "temperature": 0.7}}

	merged := def.MergeConfig(map[string]any{"temperature": 0.1, "label": "Writer"})

	assert.Equal(t, map[string]any{"model": "gpt-4o-mini", "temperature": 0.1, "label": "Writer"}, merged)
	assert.Equal(t, 0.7, def.Defaults["temperature"], "defaults must not be mutated")
}

func TestRegistry_DefinitionsSorted(t *testing.T) {
	r := registry.NewRegistry()
	for _, name := range []string{"merge", "ai.chat", "text.input"} {
		r.MustRegister(registry.Definition{Type: name, Behavior: echo()})
	}

	defs := r.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "ai.chat", defs[0].Type)
	assert.Equal(t, "text.input", defs[2].Type)
}
