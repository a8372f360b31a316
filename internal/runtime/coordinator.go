package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/nodeweave/internal/logging"
	"github.com/aretw0/nodeweave/pkg/binding"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/graph"
	"github.com/aretw0/nodeweave/pkg/pending"
	"github.com/aretw0/nodeweave/pkg/ports"
	"github.com/aretw0/nodeweave/pkg/registry"
	"github.com/aretw0/nodeweave/pkg/variables"
)

// Coordinator executes nodes one at a time per node.
// Different nodes may execute concurrently.
type Coordinator struct {
	graph    *graph.Graph
	vars     *variables.Store
	resolver *binding.Resolver

	interpolator binding.Interpolator
	hooks        domain.LifecycleHooks
	confirmer    ports.Confirmer
	ai           ports.AIClient
	logger       *slog.Logger
	now          func() time.Time

	mu      sync.Mutex
	waiting map[string]*suspension
}

// suspension is a manual node parked in the waiting state.
type suspension struct {
	token    *pending.Token
	def      registry.Definition
	started  time.Time
	consumed map[string]int
}

// CoordinatorOption configures the Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) CoordinatorOption {
	return func(c *Coordinator) {
		c.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithInterpolator replaces the template syntax used for config strings.
func WithInterpolator(in binding.Interpolator) CoordinatorOption {
	return func(c *Coordinator) {
		if in != nil {
			c.interpolator = in
		}
	}
}

// WithConfirmer sets the human confirmation capability handed to behaviors.
func WithConfirmer(cf ports.Confirmer) CoordinatorOption {
	return func(c *Coordinator) {
		c.confirmer = cf
	}
}

// WithAIClient sets the AI capability handed to behaviors.
func WithAIClient(ai ports.AIClient) CoordinatorOption {
	return func(c *Coordinator) {
		c.ai = ai
	}
}

// WithClock overrides the time source used for durations.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.now = now
	}
}

// NewCoordinator creates a coordinator over the given graph, store and resolver.
func NewCoordinator(g *graph.Graph, vars *variables.Store, resolver *binding.Resolver, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		graph:        g,
		vars:         vars,
		resolver:     resolver,
		interpolator: binding.Mustache,
		confirmer:    ports.AutoApprove,
		logger:       logging.NewNop(),
		now:          time.Now,
		waiting:      make(map[string]*suspension),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs a node. Manual-input nodes stop in the waiting state and
// return without error; Resume completes them. A behavior failure leaves the
// node in the error state and is returned as *domain.ExecutionError.
func (c *Coordinator) Execute(ctx context.Context, nodeID string) (*domain.Result, error) {
	var from domain.Status
	err := c.graph.Update(nodeID, func(n *domain.Node) error {
		if n.Status.Busy() {
			return &domain.AlreadyRunningError{NodeID: n.ID, Status: n.Status}
		}
		from = n.Status
		n.Status = domain.StatusExecuting
		n.Error = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	started := c.now()
	node, err := c.graph.Node(nodeID)
	if err != nil {
		return nil, err
	}
	c.emit(ctx, node, from, domain.StatusExecuting, nil, nil, nil, 0)

	def, err := c.graph.Registry().Lookup(node.Type)
	if err != nil {
		return c.fail(ctx, node, nil, err, started)
	}

	inputs, err := c.resolver.ResolveInputs(ctx, node)
	if err != nil {
		return c.fail(ctx, node, nil, err, started)
	}
	node.Inputs = inputs
	consumed := inboxCounts(node)

	if def.InputMode == registry.InputManual {
		return c.suspend(ctx, node, def, started, consumed)
	}

	if err := c.stageInputs(nodeID, inputs, domain.StatusExecuting); err != nil {
		return nil, err
	}
	return c.run(ctx, def, node, nil, started, consumed)
}

// suspend stages the resolved inputs and parks the node until Resume.
func (c *Coordinator) suspend(ctx context.Context, node domain.Node, def registry.Definition, started time.Time, consumed map[string]int) (*domain.Result, error) {
	tok := pending.New()
	c.mu.Lock()
	c.waiting[node.ID] = &suspension{token: tok, def: def, started: started, consumed: consumed}
	c.mu.Unlock()

	if err := c.stageInputs(node.ID, node.Inputs, domain.StatusWaiting); err != nil {
		c.dropSuspension(node.ID)
		return nil, err
	}

	c.logger.Debug("Node waiting for input", "node_id", node.ID, "token", tok.ID())
	c.emit(ctx, node, domain.StatusExecuting, domain.StatusWaiting, node.Inputs, nil, nil, 0)

	return &domain.Result{NodeID: node.ID, Status: domain.StatusWaiting, Inputs: node.Inputs, Outputs: map[string]any{}}, nil
}

func (c *Coordinator) stageInputs(nodeID string, inputs map[string]any, status domain.Status) error {
	return c.graph.Update(nodeID, func(n *domain.Node) error {
		n.Inputs = inputs
		n.Status = status
		return nil
	})
}

// Resume completes a waiting node with a human-supplied value.
// A node can be resumed once per wait; other calls get domain.ErrNotWaiting.
func (c *Coordinator) Resume(ctx context.Context, nodeID string, value any) (*domain.Result, error) {
	s := c.dropSuspension(nodeID)
	if s == nil {
		return nil, domain.ErrNotWaiting
	}
	if err := s.token.Resolve(value); err != nil {
		return nil, domain.ErrNotWaiting
	}

	err := c.graph.Update(nodeID, func(n *domain.Node) error {
		if n.Status != domain.StatusWaiting {
			return domain.ErrNotWaiting
		}
		n.Status = domain.StatusExecuting
		return nil
	})
	if err != nil {
		return nil, err
	}

	node, err := c.graph.Node(nodeID)
	if err != nil {
		return nil, err
	}
	c.emit(ctx, node, domain.StatusWaiting, domain.StatusExecuting, node.Inputs, nil, nil, 0)
	return c.run(ctx, s.def, node, value, s.started, s.consumed)
}

// Cancel abandons a waiting node and returns it to idle.
func (c *Coordinator) Cancel(ctx context.Context, nodeID string) error {
	s := c.dropSuspension(nodeID)
	if s == nil {
		return domain.ErrNotWaiting
	}
	_ = s.token.Cancel()

	var node domain.Node
	err := c.graph.Update(nodeID, func(n *domain.Node) error {
		n.Status = domain.StatusIdle
		node = *n
		return nil
	})
	if domain.IsNotFound(err, domain.KindNode) {
		return nil
	}
	if err != nil {
		return err
	}
	c.emit(ctx, node, domain.StatusWaiting, domain.StatusIdle, nil, nil, nil, 0)
	return nil
}

// Pending returns the token of a waiting node. It settles when the node is
// resumed or cancelled.
func (c *Coordinator) Pending(nodeID string) (*pending.Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.waiting[nodeID]
	if !ok {
		return nil, false
	}
	return s.token, true
}

// Waiting lists the nodes currently parked in the waiting state, sorted.
func (c *Coordinator) Waiting() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.waiting))
	for id := range c.waiting {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Coordinator) dropSuspension(nodeID string) *suspension {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.waiting[nodeID]
	if !ok {
		return nil
	}
	delete(c.waiting, nodeID)
	return s
}

// run invokes the behavior and commits its outputs. consumed holds how many
// arrivals per port went into the inputs; only those leave the inbox.
func (c *Coordinator) run(ctx context.Context, def registry.Definition, node domain.Node, response any, started time.Time, consumed map[string]int) (*domain.Result, error) {
	config := binding.InterpolateConfig(c.interpolator, node.Config, binding.Scope{
		Inputs:    node.Inputs,
		Outputs:   node.Outputs,
		Variables: c.vars,
	})

	runCtx := ctx
	if timeout := configTimeout(config["timeout"]); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	inv := &registry.Invocation{
		Node:      node,
		Config:    config,
		Inputs:    node.Inputs,
		Response:  response,
		Variables: c.vars,
		Confirmer: c.confirmer,
		AI:        c.ai,
		Logger:    c.logger.With("node_id", node.ID, "type", node.Type),
	}

	outputs, err := invoke(runCtx, def.Behavior, inv)
	if err != nil {
		return c.fail(ctx, node, node.Inputs, err, started)
	}
	if outputs == nil {
		outputs = map[string]any{}
	}

	if err := c.resolver.WriteOutputs(ctx, node.ID, outputs); err != nil {
		return c.fail(ctx, node, node.Inputs, err, started)
	}

	err = c.graph.Update(node.ID, func(n *domain.Node) error {
		n.Outputs = outputs
		trimInbox(n, consumed)
		n.Status = domain.StatusSuccess
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.resolver.Deliver(node.ID, outputs)

	duration := c.now().Sub(started)
	c.logger.Debug("Node executed", "node_id", node.ID, "type", node.Type, "duration", duration)
	c.emit(ctx, node, domain.StatusExecuting, domain.StatusSuccess, node.Inputs, outputs, nil, duration)

	return &domain.Result{NodeID: node.ID, Status: domain.StatusSuccess, Inputs: node.Inputs, Outputs: outputs}, nil
}

// fail moves the node to the error state and reports the failure.
func (c *Coordinator) fail(ctx context.Context, node domain.Node, inputs map[string]any, cause error, started time.Time) (*domain.Result, error) {
	execErr := &domain.ExecutionError{NodeID: node.ID, Err: cause}
	if inputs == nil {
		inputs = map[string]any{}
	}

	err := c.graph.Update(node.ID, func(n *domain.Node) error {
		n.Status = domain.StatusError
		n.Error = cause.Error()
		return nil
	})
	if err != nil && !domain.IsNotFound(err, domain.KindNode) {
		return nil, err
	}

	c.logger.Warn("Node execution failed", "node_id", node.ID, "type", node.Type, "err", cause)
	c.emit(ctx, node, domain.StatusExecuting, domain.StatusError, inputs, nil, cause, c.now().Sub(started))

	return &domain.Result{
		NodeID:  node.ID,
		Status:  domain.StatusError,
		Inputs:  inputs,
		Outputs: map[string]any{},
		Error:   cause.Error(),
	}, execErr
}

func inboxCounts(node domain.Node) map[string]int {
	counts := make(map[string]int, len(node.Inbox))
	for port, arrivals := range node.Inbox {
		counts[port] = len(arrivals)
	}
	return counts
}

// trimInbox drops the first consumed[port] arrivals of each port. Arrivals
// delivered while the node ran stay queued for the next execution.
func trimInbox(n *domain.Node, consumed map[string]int) {
	for port, k := range consumed {
		queued := n.Inbox[port]
		if k >= len(queued) {
			delete(n.Inbox, port)
			continue
		}
		n.Inbox[port] = append([]domain.Arrival(nil), queued[k:]...)
	}
}

func (c *Coordinator) emit(ctx context.Context, node domain.Node, from, to domain.Status, inputs, outputs map[string]any, err error, d time.Duration) {
	if c.hooks.OnStatusChange == nil {
		return
	}
	ev := &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: c.now(), Type: domain.EventStatusChange},
		NodeID:    node.ID,
		NodeType:  node.Type,
		From:      from,
		To:        to,
		Inputs:    inputs,
		Outputs:   outputs,
		Duration:  d,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	c.hooks.OnStatusChange(ctx, ev)
}

// invoke calls the behavior, turning a panic into an error.
func invoke(ctx context.Context, b registry.Behavior, inv *registry.Invocation) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			inv.Logger.Error("Behavior panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("behavior panic: %v", r)
		}
	}()
	out, err = b.Run(ctx, inv)
	if err == nil && ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("timed out: %w", ctx.Err())
	}
	return out, err
}

// configTimeout reads a node's timeout setting: a number of seconds or a
// duration string such as "1m30s".
func configTimeout(v any) time.Duration {
	switch t := v.(type) {
	case float64:
		return time.Duration(t * float64(time.Second))
	case int:
		return time.Duration(t) * time.Second
	case int64:
		return time.Duration(t) * time.Second
	case string:
		d, err := time.ParseDuration(t)
		if err == nil {
			return d
		}
	}
	return 0
}
