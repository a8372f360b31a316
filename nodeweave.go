package nodeweave

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/nodeweave/internal/runtime"
	"github.com/aretw0/nodeweave/pkg/binding"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/graph"
	"github.com/aretw0/nodeweave/pkg/nodes"
	"github.com/aretw0/nodeweave/pkg/ports"
	"github.com/aretw0/nodeweave/pkg/registry"
	"github.com/aretw0/nodeweave/pkg/variables"
	"github.com/aretw0/nodeweave/pkg/walker"
)

// Engine is the high-level entry point for the NodeWeave library.
// It owns one graph, one variable store and the coordinator that executes
// nodes against them.
type Engine struct {
	registry    *registry.Registry
	graph       *graph.Graph
	vars        *variables.Store
	resolver    *binding.Resolver
	coordinator *runtime.Coordinator

	hooks        domain.LifecycleHooks
	confirmer    ports.Confirmer
	ai           ports.AIClient
	interpolator binding.Interpolator
	nodeOpts     []nodes.Option
	builtins     bool
	now          func() time.Time
	logger       *slog.Logger
	Name         string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithConfirmer sets the human confirmation capability used by approval
// nodes and by variables carrying an interaction policy.
func WithConfirmer(c ports.Confirmer) Option {
	return func(e *Engine) {
		e.confirmer = c
	}
}

// WithAIClient sets the client AI node types call.
func WithAIClient(ai ports.AIClient) Option {
	return func(e *Engine) {
		e.ai = ai
	}
}

// WithInterpolator replaces the {{ name }} template syntax used in node config.
func WithInterpolator(in binding.Interpolator) Option {
	return func(e *Engine) {
		e.interpolator = in
	}
}

// WithRegistry uses reg for node type lookup. Built-in types are added to it
// unless WithoutBuiltins is also given.
func WithRegistry(reg *registry.Registry) Option {
	return func(e *Engine) {
		e.registry = reg
	}
}

// WithoutBuiltins skips registering the built-in node types.
func WithoutBuiltins() Option {
	return func(e *Engine) {
		e.builtins = false
	}
}

// WithNodeOptions configures the built-in node types.
func WithNodeOptions(opts ...nodes.Option) Option {
	return func(e *Engine) {
		e.nodeOpts = append(e.nodeOpts, opts...)
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithName labels the engine. The name is attached to every log line.
func WithName(name string) Option {
	return func(e *Engine) {
		e.Name = name
	}
}

// New initializes an empty graph with its variable store.
func New(opts ...Option) *Engine {
	eng := &Engine{builtins: true, now: time.Now}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("graph", eng.Name)
	}
	if eng.registry == nil {
		eng.registry = registry.NewRegistry()
	}
	if eng.builtins {
		nodes.Register(eng.registry, eng.nodeOpts...)
	}

	storeOpts := []variables.Option{
		variables.WithLogger(eng.logger),
		variables.WithClock(eng.now),
	}
	if eng.confirmer != nil {
		storeOpts = append(storeOpts, variables.WithConfirmer(eng.confirmer))
	}
	eng.vars = variables.NewStore(storeOpts...)
	if hook := eng.hooks.OnVariableChange; hook != nil {
		eng.vars.Subscribe(func(ctx context.Context, ev domain.VariableEvent) {
			hook(ctx, &ev)
		})
	}

	eng.graph = graph.New(eng.registry, graph.WithLogger(eng.logger))
	eng.resolver = binding.NewResolver(eng.graph, eng.vars,
		binding.WithLogger(eng.logger),
		binding.WithClock(eng.now),
	)

	coordOpts := []runtime.CoordinatorOption{
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
		runtime.WithInterpolator(eng.interpolator),
		runtime.WithAIClient(eng.ai),
		runtime.WithClock(eng.now),
	}
	if eng.confirmer != nil {
		coordOpts = append(coordOpts, runtime.WithConfirmer(eng.confirmer))
	}
	eng.coordinator = runtime.NewCoordinator(eng.graph, eng.vars, eng.resolver, coordOpts...)

	return eng
}

// Registry returns the node type registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Graph returns the underlying graph for read access and advanced edits.
func (e *Engine) Graph() *graph.Graph {
	return e.graph
}

// Variables returns the global variable store.
func (e *Engine) Variables() *variables.Store {
	return e.vars
}

// AddNode creates a node of the given type. Its outputs are bound to fresh
// variable names derived from the node label.
func (e *Engine) AddNode(nodeType string, config map[string]any) (domain.Node, error) {
	n, err := e.graph.AddNode(nodeType, config)
	if err != nil {
		return domain.Node{}, err
	}
	if err := e.resolver.AutoWire(n.ID); err != nil {
		return domain.Node{}, err
	}
	e.logger.Debug("Node added", "node_id", n.ID, "type", nodeType)
	return e.graph.Node(n.ID)
}

// RemoveNode deletes a node and every connection touching it. A node that is
// waiting for input is cancelled first.
func (e *Engine) RemoveNode(ctx context.Context, nodeID string) error {
	if err := e.coordinator.Cancel(ctx, nodeID); err != nil && !errors.Is(err, domain.ErrNotWaiting) {
		return err
	}
	return e.graph.RemoveNode(ctx, nodeID)
}

// Node returns a snapshot of one node.
func (e *Engine) Node(nodeID string) (domain.Node, error) {
	return e.graph.Node(nodeID)
}

// Nodes returns snapshots of every node in creation order.
func (e *Engine) Nodes() []domain.Node {
	return e.graph.Nodes()
}

// Connections returns every connection.
func (e *Engine) Connections() []domain.Connection {
	return e.graph.Connections()
}

// Connect links an output port to an input port, replacing any connection
// already feeding that input.
func (e *Engine) Connect(fromID, fromPort, toID, toPort string) (domain.Connection, error) {
	return e.graph.Connect(fromID, fromPort, toID, toPort)
}

// Disconnect removes a connection by id.
func (e *Engine) Disconnect(connID string) error {
	return e.graph.Disconnect(connID)
}

// MoveNode updates the canvas position of a node.
func (e *Engine) MoveNode(nodeID string, x, y float64) error {
	return e.graph.Move(nodeID, domain.Position{X: x, Y: y})
}

// SetConfig replaces the config of a node. Defaults of its type still apply.
func (e *Engine) SetConfig(nodeID string, config map[string]any) error {
	return e.graph.SetConfig(nodeID, config)
}

// Extras holds the optional parts of a binding reconfiguration.
// Nil fields leave the current value untouched.
type Extras struct {
	CustomInputs   []string
	CustomOutputs  []string
	MultiInputMode *domain.MultiInputMode
	OutputParse    map[string]domain.ParseConfig
}

// ConfigureBindings replaces the variable mappings of a node. Nil maps are
// left untouched; an empty map clears the mappings.
func (e *Engine) ConfigureBindings(nodeID string, inputMappings, outputMappings map[string]string, extras Extras) error {
	return e.graph.ConfigureBindings(nodeID, domain.BindingUpdate{
		InputMappings:  inputMappings,
		OutputMappings: outputMappings,
		CustomInputs:   extras.CustomInputs,
		CustomOutputs:  extras.CustomOutputs,
		MultiInputMode: extras.MultiInputMode,
		OutputParse:    extras.OutputParse,
	})
}

// Execute runs one node. See runtime.Coordinator.Execute for the contract.
func (e *Engine) Execute(ctx context.Context, nodeID string) (*domain.Result, error) {
	return e.coordinator.Execute(ctx, nodeID)
}

// Resume completes a waiting node with a human-supplied value.
func (e *Engine) Resume(ctx context.Context, nodeID string, value any) (*domain.Result, error) {
	return e.coordinator.Resume(ctx, nodeID, value)
}

// Cancel abandons a waiting node.
func (e *Engine) Cancel(ctx context.Context, nodeID string) error {
	return e.coordinator.Cancel(ctx, nodeID)
}

// Waiting lists the nodes waiting for input.
func (e *Engine) Waiting() []string {
	return e.coordinator.Waiting()
}

// Walk executes the whole graph once in dependency order.
func (e *Engine) Walk(ctx context.Context, opts ...walker.Option) (*walker.Report, error) {
	opts = append([]walker.Option{walker.WithLogger(e.logger)}, opts...)
	return walker.New(e.coordinator, e.graph, opts...).Run(ctx)
}

// Export returns the persisted form of the graph without variables.
func (e *Engine) Export() *domain.GraphDocument {
	return e.graph.Export()
}

// Snapshot returns the persisted form of the graph together with the
// contents of the variable store.
func (e *Engine) Snapshot() *domain.GraphDocument {
	doc := e.graph.Export()
	doc.Variables = e.vars.List(variables.ListFilter{})
	return doc
}

// Import replaces the graph with doc. When doc carries variables the store
// is replaced too. Nodes waiting on the previous graph are cancelled.
func (e *Engine) Import(ctx context.Context, doc *domain.GraphDocument) error {
	if doc == nil {
		return fmt.Errorf("import: nil document")
	}
	if doc.Variables != nil {
		// Variables are checked before the graph is replaced.
		staged := variables.NewStore()
		if err := staged.Restore(ctx, doc.Variables); err != nil {
			return fmt.Errorf("import variables: %w", err)
		}
	}

	waiting := e.coordinator.Waiting()
	if err := e.graph.Import(doc); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	for _, id := range waiting {
		_ = e.coordinator.Cancel(ctx, id)
	}

	if doc.Variables != nil {
		if err := e.vars.Restore(ctx, doc.Variables); err != nil {
			return fmt.Errorf("import variables: %w", err)
		}
	}
	e.logger.Info("Graph imported", "nodes", len(doc.Nodes), "connections", len(doc.Connections))
	return nil
}
