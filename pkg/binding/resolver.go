package binding

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/nodeweave/internal/logging"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/graph"
	"github.com/aretw0/nodeweave/pkg/schema"
	"github.com/aretw0/nodeweave/pkg/variables"
)

// Resolver moves values between node ports and the variable store.
type Resolver struct {
	graph  *graph.Graph
	vars   *variables.Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithLogger configures a logger for the Resolver.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithClock overrides the arrival timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a resolver over g and vars.
func NewResolver(g *graph.Graph, vars *variables.Store, opts ...Option) *Resolver {
	r := &Resolver{
		graph:  g,
		vars:   vars,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveInputs computes the effective value of every input port of node.
//
// Per port the first matching source wins: the NoInput sentinel (nil), a
// variable mapping (nil if the variable is gone), an upstream connection
// (pending arrivals merged by the node's multi-input mode, else the upstream's
// last output), the node's config entry named after the port, else nil.
func (r *Resolver) ResolveInputs(ctx context.Context, node domain.Node) (map[string]any, error) {
	inputs := make(map[string]any)
	for _, port := range node.AllInputs() {
		v, err := r.resolveInput(ctx, node, port)
		if err != nil {
			return nil, fmt.Errorf("resolve input %s: %w", port, err)
		}
		inputs[port] = v
	}
	return inputs, nil
}

func (r *Resolver) resolveInput(ctx context.Context, node domain.Node, port string) (any, error) {
	if name, ok := node.Bindings.InputMappings[port]; ok && name != "" {
		if name == domain.NoInput {
			return nil, nil
		}
		v, _, err := r.vars.Read(ctx, name)
		if domain.IsNotFound(err, domain.KindVariable) {
			r.logger.Debug("Input mapped to missing variable", "node_id", node.ID, "port", port, "variable", name)
			return nil, nil
		}
		return v, err
	}

	if ref, ok := node.InputConnections[port]; ok {
		var last any
		if upstream, err := r.graph.Node(ref.NodeID); err == nil {
			last = upstream.Outputs[ref.Port]
		}
		return Merge(node.Bindings.MultiInputMode, node.Inbox[port], last), nil
	}

	if v, ok := node.Config[port]; ok {
		return v, nil
	}
	return nil, nil
}

// Merge combines the arrivals waiting on one port.
//
//   - override keeps the most recent value
//   - concat joins the stringified values with newlines
//   - json maps "node.port" of each source to its most recent value
//   - batch lists the values in arrival order
//
// With nothing pending, last (the upstream's current output) stands in as a
// single arrival; a nil last yields nil.
func Merge(mode domain.MultiInputMode, arrivals []domain.Arrival, last any) any {
	if len(arrivals) == 0 {
		if last == nil {
			return nil
		}
		switch mode {
		case domain.MultiInputConcat:
			return schema.Stringify(last)
		case domain.MultiInputBatch:
			return []any{last}
		default:
			return last
		}
	}

	switch mode {
	case domain.MultiInputConcat:
		parts := make([]string, len(arrivals))
		for i, a := range arrivals {
			parts[i] = schema.Stringify(a.Value)
		}
		return strings.Join(parts, "\n")
	case domain.MultiInputJSON:
		out := make(map[string]any, len(arrivals))
		for _, a := range arrivals {
			out[a.From.NodeID+"."+a.From.Port] = a.Value
		}
		return out
	case domain.MultiInputBatch:
		out := make([]any, len(arrivals))
		for i, a := range arrivals {
			out[i] = a.Value
		}
		return out
	default:
		return arrivals[len(arrivals)-1].Value
	}
}

// Deliver hands a node's fresh outputs to the inboxes of connected downstream ports.
func (r *Resolver) Deliver(nodeID string, outputs map[string]any) {
	at := r.now()
	for port, v := range outputs {
		r.graph.Deliver(domain.PortRef{NodeID: nodeID, Port: port}, v, at)
	}
}

// AutoWire gives every unmapped output port of a node a variable name. The
// primary output takes the node label, other ports take label_port. Names are
// made unique against existing variables and other nodes' mappings.
func (r *Resolver) AutoWire(nodeID string) error {
	taken := make(map[string]bool)
	for _, n := range r.graph.Nodes() {
		if n.ID == nodeID {
			continue
		}
		for _, name := range n.Bindings.OutputMappings {
			taken[name] = true
		}
	}

	return r.graph.Update(nodeID, func(n *domain.Node) error {
		primary := n.PrimaryOutput()
		for _, port := range n.AllOutputs() {
			if _, mapped := n.Bindings.OutputMappings[port]; mapped {
				continue
			}
			name := r.unique(VariableName(n.Label(), port, port == primary), taken)
			taken[name] = true
			n.Bindings.OutputMappings[port] = name
		}
		return nil
	})
}

func (r *Resolver) unique(base string, taken map[string]bool) string {
	name := base
	for i := 2; taken[name] || r.vars.Exists(name); i++ {
		name = base + "_" + strconv.Itoa(i)
	}
	return name
}

var nameCleaner = regexp.MustCompile(`[^\p{L}\p{N}_\-]+`)

// VariableName derives the variable an output port writes to when it has no mapping.
func VariableName(label, port string, primary bool) string {
	base := strings.Trim(nameCleaner.ReplaceAllString(strings.TrimSpace(label), "_"), "_")
	if base == "" {
		base = "node"
	}
	if primary {
		return base
	}
	return base + "_" + port
}

// WriteOutputs mirrors produced outputs into variables.
// Ports missing from outputs are left alone; NoOutput ports are discarded.
// Unmapped ports get a derived name which is recorded as their mapping.
// Every port is parsed and checked against its target variable before any
// variable is written, so a rejected port leaves the store untouched.
func (r *Resolver) WriteOutputs(ctx context.Context, nodeID string, outputs map[string]any) error {
	node, err := r.graph.Node(nodeID)
	if err != nil {
		return err
	}

	primary := node.PrimaryOutput()
	var plan []outputWrite
	for _, port := range node.AllOutputs() {
		raw, produced := outputs[port]
		if !produced {
			continue
		}
		name := node.Bindings.OutputMappings[port]
		if name == domain.NoOutput {
			continue
		}

		value, err := ApplyParse(raw, node.Bindings.OutputParse[port])
		if err != nil {
			return fmt.Errorf("parse output %s: %w", port, err)
		}

		derived := name == ""
		if derived {
			name = VariableName(node.Label(), port, port == primary && isTextual(value))
		}
		w, err := r.planWrite(name, value)
		if err != nil {
			return err
		}
		w.port, w.derived = port, derived
		plan = append(plan, w)
	}

	for _, w := range plan {
		if w.derived {
			if err := r.recordMapping(nodeID, w.port, w.name); err != nil {
				return err
			}
		}
		if err := r.apply(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

// outputWrite is one planned variable write of WriteOutputs.
type outputWrite struct {
	port    string
	name    string
	derived bool

	// update keeps the variable's type; otherwise typ replaces it.
	update bool
	typ    domain.VarType
	value  any
}

func (r *Resolver) recordMapping(nodeID, port, name string) error {
	return r.graph.Update(nodeID, func(n *domain.Node) error {
		if _, ok := n.Bindings.OutputMappings[port]; !ok {
			n.Bindings.OutputMappings[port] = name
		}
		return nil
	})
}

// planWrite decides how value lands in the named variable. An existing
// variable keeps its type when the value can be coerced to it; otherwise
// textual variables are re-typed to string while binary ones reject the value.
func (r *Resolver) planWrite(name string, value any) (outputWrite, error) {
	current, exists := r.vars.Peek(name)
	if !exists {
		return outputWrite{name: name, typ: schema.Infer(value), value: value}, nil
	}

	coerced, err := schema.Coerce(value, current.Type)
	if err == nil {
		return outputWrite{name: name, update: true, value: coerced}, nil
	}
	if current.Type.IsBinary() {
		return outputWrite{}, &domain.TypeMismatchError{Name: name, Expected: current.Type, Got: fmt.Sprintf("%T", value)}
	}

	r.logger.Warn("Output not coercible, storing as string", "variable", name, "type", current.Type, "err", err)
	return outputWrite{name: name, typ: domain.TypeString, value: schema.Stringify(value)}, nil
}

func (r *Resolver) apply(ctx context.Context, w outputWrite) error {
	if w.update {
		return r.vars.Update(ctx, w.name, w.value, nil)
	}
	return r.vars.Put(ctx, w.name, w.typ, w.value)
}

func isTextual(v any) bool {
	t := schema.Infer(v)
	return t == domain.TypeString || t == domain.TypeLargeText
}
