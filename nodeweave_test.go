package nodeweave_test

import (
	"context"
	"sync"
	"testing"

	"github.com/aretw0/nodeweave"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/walker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_AddNodeAutoWires(t *testing.T) {
	eng := nodeweave.New()

	a, err := eng.AddNode("text.template", map[string]any{"label": "Draft Title"})
	require.NoError(t, err)
	assert.Equal(t, "Draft_Title", a.Bindings.OutputMappings["text"])

	b, err := eng.AddNode("text.template", map[string]any{"label": "Draft Title"})
	require.NoError(t, err)
	assert.Equal(t, "Draft_Title_2", b.Bindings.OutputMappings["text"], "names stay unique")

	c, err := eng.AddNode("ai.chat", map[string]any{"label": "Writer"})
	require.NoError(t, err)
	assert.Equal(t, "Writer", c.Bindings.OutputMappings["text"])
	assert.Equal(t, "Writer_usage", c.Bindings.OutputMappings["usage"])
}

func TestEngine_ExecuteChain(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	eng := nodeweave.New(nodeweave.WithLifecycleHooks(domain.LifecycleHooks{
		OnStatusChange: func(_ context.Context, e *domain.NodeEvent) {
			mu.Lock()
			transitions = append(transitions, e.NodeID+":"+string(e.To))
			mu.Unlock()
		},
	}))
	ctx := context.Background()

	topic, err := eng.AddNode("text.template", map[string]any{"label": "Topic", "template": "gophers"})
	require.NoError(t, err)
	shout, err := eng.AddNode("text.transform", map[string]any{"label": "Shout", "operation": "upper"})
	require.NoError(t, err)
	_, err = eng.Connect(topic.ID, "text", shout.ID, "text")
	require.NoError(t, err)

	_, err = eng.Execute(ctx, topic.ID)
	require.NoError(t, err)
	res, err := eng.Execute(ctx, shout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.Equal(t, "GOPHERS", res.Outputs["text"])

	v, ok := eng.Variables().Peek("Shout")
	require.True(t, ok)
	assert.Equal(t, "GOPHERS", v.Value)

	assert.Equal(t, []string{
		"node_1:executing", "node_1:success",
		"node_2:executing", "node_2:success",
	}, transitions)
}

func TestEngine_VariableHook(t *testing.T) {
	var events []domain.VariableOp
	eng := nodeweave.New(nodeweave.WithLifecycleHooks(domain.LifecycleHooks{
		OnVariableChange: func(_ context.Context, e *domain.VariableEvent) {
			events = append(events, e.Op)
		},
	}))
	ctx := context.Background()

	n, err := eng.AddNode("text.template", map[string]any{"label": "Greeting", "template": "hi"})
	require.NoError(t, err)
	_, err = eng.Execute(ctx, n.ID)
	require.NoError(t, err)
	_, err = eng.Execute(ctx, n.ID)
	require.NoError(t, err)

	assert.Equal(t, []domain.VariableOp{domain.VariableCreated, domain.VariableUpdated}, events)
}

func TestEngine_ManualNodeWaitsAndResumes(t *testing.T) {
	eng := nodeweave.New()
	ctx := context.Background()

	ask, err := eng.AddNode("text.input", map[string]any{"label": "Question"})
	require.NoError(t, err)

	res, err := eng.Execute(ctx, ask.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, res.Status)
	assert.Equal(t, []string{ask.ID}, eng.Waiting())

	res, err = eng.Resume(ctx, ask.ID, "why is the sky blue?")
	require.NoError(t, err)
	assert.Equal(t, "why is the sky blue?", res.Outputs["text"])
	assert.Empty(t, eng.Waiting())

	_, err = eng.Resume(ctx, ask.ID, "again")
	assert.ErrorIs(t, err, domain.ErrNotWaiting)
}

func TestEngine_RemoveWaitingNode(t *testing.T) {
	eng := nodeweave.New()
	ctx := context.Background()

	ask, _ := eng.AddNode("text.input", nil)
	_, err := eng.Execute(ctx, ask.ID)
	require.NoError(t, err)

	require.NoError(t, eng.RemoveNode(ctx, ask.ID))
	assert.Empty(t, eng.Waiting())
	assert.Empty(t, eng.Nodes())
}

func TestEngine_ConfigureBindings(t *testing.T) {
	eng := nodeweave.New()
	ctx := context.Background()
	require.NoError(t, eng.Variables().Put(ctx, "subject", domain.TypeString, "otters"))

	n, err := eng.AddNode("text.transform", map[string]any{"label": "Loud", "operation": "upper"})
	require.NoError(t, err)

	require.NoError(t, eng.ConfigureBindings(n.ID,
		map[string]string{"text": "subject"},
		map[string]string{"text": "headline"},
		nodeweave.Extras{},
	))

	_, err = eng.Execute(ctx, n.ID)
	require.NoError(t, err)
	v, ok := eng.Variables().Peek("headline")
	require.True(t, ok)
	assert.Equal(t, "OTTERS", v.Value)

	err = eng.ConfigureBindings("node_99", nil, nil, nodeweave.Extras{})
	assert.True(t, domain.IsNotFound(err, domain.KindNode))
}

func TestEngine_SnapshotImport(t *testing.T) {
	ctx := context.Background()
	src := nodeweave.New()
	a, _ := src.AddNode("text.template", map[string]any{"label": "A", "template": "x"})
	b, _ := src.AddNode("text.transform", map[string]any{"label": "B"})
	_, err := src.Connect(a.ID, "text", b.ID, "text")
	require.NoError(t, err)
	_, err = src.Execute(ctx, a.ID)
	require.NoError(t, err)

	doc := src.Snapshot()
	require.Len(t, doc.Variables, 1)

	dst := nodeweave.New()
	require.NoError(t, dst.Import(ctx, doc))
	assert.Equal(t, src.Export(), dst.Export())
	v, ok := dst.Variables().Peek("A")
	require.True(t, ok)
	assert.Equal(t, "x", v.Value)

	bad := src.Export()
	bad.Variables = []domain.Variable{{Name: "n", Type: domain.TypeNumber, Value: "not a number"}}
	assert.Error(t, dst.Import(ctx, bad))
	assert.Len(t, dst.Nodes(), 2, "failed import leaves the graph alone")
}

func TestEngine_Walk(t *testing.T) {
	eng := nodeweave.New()
	ctx := context.Background()

	a, _ := eng.AddNode("text.template", map[string]any{"label": "A", "template": "walk"})
	b, _ := eng.AddNode("text.transform", map[string]any{"label": "B", "operation": "upper"})
	ask, _ := eng.AddNode("text.input", map[string]any{"label": "Ask"})
	c, _ := eng.AddNode("text.transform", map[string]any{"label": "C"})
	_, err := eng.Connect(a.ID, "text", b.ID, "text")
	require.NoError(t, err)
	_, err = eng.Connect(ask.ID, "text", c.ID, "text")
	require.NoError(t, err)

	report, err := eng.Walk(ctx)
	require.NoError(t, err)
	assert.Equal(t, walker.OutcomeSuccess, report.Outcomes[b.ID])
	assert.Equal(t, walker.OutcomeWaiting, report.Outcomes[ask.ID])
	assert.Equal(t, walker.OutcomeSkipped, report.Outcomes[c.ID])
	assert.Equal(t, "WALK", report.Results[b.ID].Outputs["text"])
}
