package runtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/nodeweave/internal/runtime"
	"github.com/aretw0/nodeweave/pkg/binding"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/graph"
	"github.com/aretw0/nodeweave/pkg/registry"
	"github.com/aretw0/nodeweave/pkg/variables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	graph  *graph.Graph
	vars   *variables.Store
	coord  *runtime.Coordinator
	events []domain.NodeEvent
	mu     sync.Mutex

	release chan struct{}
	entered chan struct{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{release: make(chan struct{}), entered: make(chan struct{}, 1)}

	reg := registry.NewRegistry()
	reg.MustRegister(registry.Definition{
		Type:    "upper",
		Inputs:  []string{"text"},
		Outputs: []string{"text"},
		Behavior: registry.BehaviorFunc(func(_ context.Context, inv *registry.Invocation) (map[string]any, error) {
			s, _ := inv.Inputs["text"].(string)
			return map[string]any{"text": s + "!"}, nil
		}),
	})
	reg.MustRegister(registry.Definition{
		Type:    "prompt",
		Inputs:  []string{"topic"},
		Outputs: []string{"text"},
		Behavior: registry.BehaviorFunc(func(_ context.Context, inv *registry.Invocation) (map[string]any, error) {
			return map[string]any{"text": inv.Config["prompt"]}, nil
		}),
	})
	reg.MustRegister(registry.Definition{
		Type:    "broken",
		Outputs: []string{"out"},
		Behavior: registry.BehaviorFunc(func(context.Context, *registry.Invocation) (map[string]any, error) {
			return nil, errors.New("upstream API returned 500")
		}),
	})
	reg.MustRegister(registry.Definition{
		Type:    "panicky",
		Outputs: []string{"out"},
		Behavior: registry.BehaviorFunc(func(context.Context, *registry.Invocation) (map[string]any, error) {
			panic("nil map")
		}),
	})
	reg.MustRegister(registry.Definition{
		Type:    "slow",
		Outputs: []string{"out"},
		Behavior: registry.BehaviorFunc(func(ctx context.Context, _ *registry.Invocation) (map[string]any, error) {
			h.entered <- struct{}{}
			select {
			case <-h.release:
				return map[string]any{"out": "done"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}),
	})
	reg.MustRegister(registry.Definition{
		Type:      "manual",
		Inputs:    []string{"hint"},
		Outputs:   []string{"text"},
		InputMode: registry.InputManual,
		Behavior: registry.BehaviorFunc(func(_ context.Context, inv *registry.Invocation) (map[string]any, error) {
			return map[string]any{"text": inv.Response}, nil
		}),
	})

	h.graph = graph.New(reg)
	h.vars = variables.NewStore()
	resolver := binding.NewResolver(h.graph, h.vars)
	h.coord = runtime.NewCoordinator(h.graph, h.vars, resolver, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnStatusChange: func(_ context.Context, e *domain.NodeEvent) {
			h.mu.Lock()
			h.events = append(h.events, *e)
			h.mu.Unlock()
		},
	}))
	return h
}

func (h *harness) add(t *testing.T, typ string, config map[string]any) string {
	t.Helper()
	n, err := h.graph.AddNode(typ, config)
	require.NoError(t, err)
	return n.ID
}

func (h *harness) status(t *testing.T, id string) domain.Status {
	t.Helper()
	n, err := h.graph.Node(id)
	require.NoError(t, err)
	return n.Status
}

func (h *harness) transitions(nodeID string) []domain.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.Status
	for _, e := range h.events {
		if e.NodeID == nodeID {
			out = append(out, e.To)
		}
	}
	return out
}

func TestCoordinator_ExecuteSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.add(t, "upper", map[string]any{"label": "Shout", "text": "hi"})

	res, err := h.coord.Execute(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.Equal(t, map[string]any{"text": "hi"}, res.Inputs)
	assert.Equal(t, map[string]any{"text": "hi!"}, res.Outputs)

	assert.Equal(t, domain.StatusSuccess, h.status(t, id))
	v, ok := h.vars.Peek("Shout")
	require.True(t, ok, "primary output mirrored into a variable")
	assert.Equal(t, "hi!", v.Value)

	assert.Equal(t, []domain.Status{domain.StatusExecuting, domain.StatusSuccess}, h.transitions(id))
}

func TestCoordinator_ChainDeliversDownstream(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.add(t, "upper", map[string]any{"text": "go"})
	b := h.add(t, "upper", nil)
	_, err := h.graph.Connect(a, "text", b, "text")
	require.NoError(t, err)

	_, err = h.coord.Execute(ctx, a)
	require.NoError(t, err)
	pending, _ := h.graph.Node(b)
	require.Len(t, pending.Inbox["text"], 1)

	res, err := h.coord.Execute(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "go!!", res.Outputs["text"])

	after, _ := h.graph.Node(b)
	assert.Empty(t, after.Inbox, "inbox consumed on success")
}

func TestCoordinator_FailureIsLocal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bad := h.add(t, "broken", nil)
	sibling := h.add(t, "upper", map[string]any{"text": "ok"})

	res, err := h.coord.Execute(ctx, bad)
	var execErr *domain.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, bad, execErr.NodeID)
	assert.Equal(t, domain.StatusError, res.Status)
	assert.Empty(t, res.Outputs)

	n, _ := h.graph.Node(bad)
	assert.Equal(t, domain.StatusError, n.Status)
	assert.Contains(t, n.Error, "upstream API returned 500")

	assert.Equal(t, domain.StatusIdle, h.status(t, sibling))
	_, err = h.coord.Execute(ctx, sibling)
	require.NoError(t, err)

	_, err = h.coord.Execute(ctx, bad)
	assert.ErrorAs(t, err, &execErr, "an errored node can be executed again")
}

func TestCoordinator_PanicBecomesError(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, "panicky", nil)

	_, err := h.coord.Execute(context.Background(), id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "behavior panic")
	assert.Equal(t, domain.StatusError, h.status(t, id))
}

func TestCoordinator_RejectsConcurrentExecute(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.add(t, "slow", nil)

	done := make(chan error, 1)
	go func() {
		_, err := h.coord.Execute(ctx, id)
		done <- err
	}()
	<-h.entered

	_, err := h.coord.Execute(ctx, id)
	var running *domain.AlreadyRunningError
	require.ErrorAs(t, err, &running)
	assert.Equal(t, domain.StatusExecuting, running.Status)

	close(h.release)
	require.NoError(t, <-done)
	assert.Equal(t, domain.StatusSuccess, h.status(t, id))
}

func TestCoordinator_ConfigTimeout(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, "slow", map[string]any{"timeout": "20ms"})

	start := time.Now()
	_, err := h.coord.Execute(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCoordinator_WaitingAndResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.add(t, "manual", map[string]any{"label": "Answer", "hint": "Name a colour"})

	res, err := h.coord.Execute(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, res.Status)
	assert.Equal(t, "Name a colour", res.Inputs["hint"])
	assert.Equal(t, domain.StatusWaiting, h.status(t, id))

	tok, ok := h.coord.Pending(id)
	require.True(t, ok)

	_, err = h.coord.Execute(ctx, id)
	var running *domain.AlreadyRunningError
	assert.ErrorAs(t, err, &running, "waiting nodes reject execute")

	res, err = h.coord.Resume(ctx, id, "teal")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.Equal(t, "teal", res.Outputs["text"])
	assert.True(t, tok.Settled())

	_, err = h.coord.Resume(ctx, id, "again")
	assert.ErrorIs(t, err, domain.ErrNotWaiting)

	assert.Equal(t, []domain.Status{
		domain.StatusExecuting, domain.StatusWaiting, domain.StatusExecuting, domain.StatusSuccess,
	}, h.transitions(id))
}

func TestCoordinator_ConcurrentResumeSettlesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.add(t, "manual", nil)
	_, err := h.coord.Execute(ctx, id)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			if _, err := h.coord.Resume(ctx, id, v); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}

func TestCoordinator_Cancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.add(t, "manual", nil)
	_, err := h.coord.Execute(ctx, id)
	require.NoError(t, err)
	tok, _ := h.coord.Pending(id)

	require.NoError(t, h.coord.Cancel(ctx, id))
	assert.Equal(t, domain.StatusIdle, h.status(t, id))
	_, err = tok.Wait(ctx)
	assert.Error(t, err)

	assert.ErrorIs(t, h.coord.Cancel(ctx, id), domain.ErrNotWaiting)
}

func TestCoordinator_TemplatesInConfig(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.vars.Create(ctx, "audience", domain.TypeString, "gophers", "")
	require.NoError(t, err)

	id := h.add(t, "prompt", map[string]any{
		"topic":  "channels",
		"prompt": "Explain {{topic}} to {{ audience }} in {{ style }}",
	})

	res, err := h.coord.Execute(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Explain channels to gophers in {{ style }}", res.Outputs["text"])

	n, _ := h.graph.Node(id)
	assert.Contains(t, n.Config["prompt"], "{{topic}}", "stored config keeps the template")
}

func TestCoordinator_UnknownNode(t *testing.T) {
	h := newHarness(t)
	_, err := h.coord.Execute(context.Background(), "node_404")
	assert.True(t, domain.IsNotFound(err, domain.KindNode))
}

func TestCoordinator_KeepsArrivalsDeliveredDuringRun(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var count float64
	gated := true

	reg := registry.NewRegistry()
	reg.MustRegister(registry.Definition{
		Type:    "counter",
		Outputs: []string{"n"},
		Behavior: registry.BehaviorFunc(func(context.Context, *registry.Invocation) (map[string]any, error) {
			count++
			return map[string]any{"n": count}, nil
		}),
	})
	reg.MustRegister(registry.Definition{
		Type:    "collect",
		Inputs:  []string{"items"},
		Outputs: []string{"done"},
		Behavior: registry.BehaviorFunc(func(context.Context, *registry.Invocation) (map[string]any, error) {
			if gated {
				entered <- struct{}{}
				<-release
			}
			return map[string]any{"done": "ok"}, nil
		}),
	})

	g := graph.New(reg)
	vars := variables.NewStore()
	coord := runtime.NewCoordinator(g, vars, binding.NewResolver(g, vars))

	src, err := g.AddNode("counter", nil)
	require.NoError(t, err)
	dst, err := g.AddNode("collect", nil)
	require.NoError(t, err)
	_, err = g.Connect(src.ID, "n", dst.ID, "items")
	require.NoError(t, err)
	batch := domain.MultiInputBatch
	require.NoError(t, g.ConfigureBindings(dst.ID, domain.BindingUpdate{MultiInputMode: &batch}))

	_, err = coord.Execute(ctx, src.ID)
	require.NoError(t, err)

	done := make(chan *domain.Result, 1)
	go func() {
		res, err := coord.Execute(ctx, dst.ID)
		assert.NoError(t, err)
		done <- res
	}()
	<-entered

	for i := 0; i < 2; i++ {
		_, err = coord.Execute(ctx, src.ID)
		require.NoError(t, err)
	}
	gated = false
	close(release)

	first := <-done
	assert.Equal(t, []any{1.0}, first.Inputs["items"])

	queued, err := g.Node(dst.ID)
	require.NoError(t, err)
	require.Len(t, queued.Inbox["items"], 2, "arrivals from the second and third run stay queued")

	second, err := coord.Execute(ctx, dst.ID)
	require.NoError(t, err)
	assert.Equal(t, []any{2.0, 3.0}, second.Inputs["items"])

	after, _ := g.Node(dst.ID)
	assert.Empty(t, after.Inbox)
}
