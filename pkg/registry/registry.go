package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/ports"
	"github.com/aretw0/nodeweave/pkg/schema"
)

// InputMode says whether a node runs as soon as it is executed or first waits for a human.
type InputMode string

const (
	InputAuto   InputMode = "auto"
	InputManual InputMode = "manual"
)

// Variables is the view of the variable store available to behaviors.
type Variables interface {
	Read(ctx context.Context, name string) (any, domain.VarType, error)
	Update(ctx context.Context, name string, value any, description *string) error
	Put(ctx context.Context, name string, t domain.VarType, value any) error
}

// Invocation is everything a behavior receives for one execution.
type Invocation struct {
	// Node is a snapshot taken when execution started.
	Node domain.Node
	// Config is the node config with template references resolved.
	Config map[string]any
	// Inputs holds the resolved value of every declared and custom input port.
	Inputs map[string]any
	// Response is the value a human supplied when resuming a manual node.
	// It is nil for automatic nodes.
	Response any

	Variables Variables
	Confirmer ports.Confirmer
	AI        ports.AIClient
	Logger    *slog.Logger
}

// Behavior is the core logic of a node type.
// Run must not leave background work running after it returns.
type Behavior interface {
	Run(ctx context.Context, inv *Invocation) (map[string]any, error)
}

// BehaviorFunc adapts a function to the Behavior interface.
type BehaviorFunc func(ctx context.Context, inv *Invocation) (map[string]any, error)

// Run calls f(ctx, inv).
func (f BehaviorFunc) Run(ctx context.Context, inv *Invocation) (map[string]any, error) {
	return f(ctx, inv)
}

// Cleaner is implemented by behaviors that hold node-local external resources.
// Cleanup runs before the node is removed from the graph.
type Cleaner interface {
	Cleanup(ctx context.Context, node domain.Node) error
}

// Definition describes one node type.
type Definition struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`

	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`

	// Defaults are merged under the config passed to AddNode.
	Defaults map[string]any `json:"defaults,omitempty"`
	// ConfigSchema validates the merged config when a node is created.
	ConfigSchema schema.Schema `json:"config_schema,omitempty"`

	InputMode InputMode `json:"input_mode"`
	Behavior  Behavior  `json:"-"`
}

// Registry manages the available node types.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Definition
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]Definition),
	}
}

// Register adds a node type to the registry.
// If a type with the same name exists, it is overwritten.
func (r *Registry) Register(def Definition) error {
	if def.Type == "" {
		return errors.New("node type name cannot be empty")
	}
	if def.Behavior == nil {
		return fmt.Errorf("node type %s: behavior is required", def.Type)
	}
	if def.InputMode == "" {
		def.InputMode = InputAuto
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[def.Type] = def
	return nil
}

// MustRegister is Register for static registrations.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Lookup returns the definition of a node type.
func (r *Registry) Lookup(nodeType string) (Definition, error) {
	r.mu.RLock()
	def, ok := r.types[nodeType]
	r.mu.RUnlock()

	if !ok {
		return Definition{}, &domain.NotFoundError{Kind: domain.KindNodeType, ID: nodeType}
	}
	return def, nil
}

// Definitions returns every registered type, sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, len(r.types))
	for _, def := range r.types {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// MergeConfig returns the definition's defaults overlaid with overrides.
func (d Definition) MergeConfig(overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(d.Defaults)+len(overrides))
	for k, v := range d.Defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
