package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/nodeweave/pkg/domain"
)

// Builder manages the graph construction.
type Builder struct {
	order []string
	nodes map[string]*NodeBuilder
	conns []domain.Connection
	vars  []domain.Variable
}

// New creates a new graph builder.
func New() *Builder {
	return &Builder{
		nodes: make(map[string]*NodeBuilder),
	}
}

// Add creates a node of the given type.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id, nodeType string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node: domain.NodeDocument{
			ID:     id,
			Type:   nodeType,
			Config: map[string]any{},
			Bindings: &domain.BindingConfig{
				InputMappings:  map[string]string{},
				OutputMappings: map[string]string{},
			},
		},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Var seeds a global variable that travels with the document.
func (b *Builder) Var(name string, t domain.VarType, value any) *Builder {
	b.vars = append(b.vars, domain.Variable{Name: name, Type: t, Value: value})
	return b
}

// Build assembles the document. It checks that connections point at declared
// nodes and that no input port is fed twice; node types and port names are
// checked when the document is imported.
func (b *Builder) Build() (*domain.GraphDocument, error) {
	doc := &domain.GraphDocument{
		Nodes:       make([]domain.NodeDocument, 0, len(b.order)),
		Connections: make([]domain.Connection, 0, len(b.conns)),
		Variables:   append([]domain.Variable(nil), b.vars...),
	}

	var errs []error
	fed := make(map[domain.PortRef]string)
	for _, c := range b.conns {
		if _, ok := b.nodes[c.To.NodeID]; !ok {
			errs = append(errs, fmt.Errorf("connection %s: %w", c.ID, &domain.NotFoundError{Kind: domain.KindNode, ID: c.To.NodeID}))
			continue
		}
		if prev, taken := fed[c.To]; taken {
			errs = append(errs, fmt.Errorf("input %s.%s is fed by both %s and %s", c.To.NodeID, c.To.Port, prev, c.ID))
			continue
		}
		fed[c.To] = c.ID
		doc.Connections = append(doc.Connections, c)
	}

	for _, v := range b.vars {
		if !v.Type.Valid() {
			errs = append(errs, fmt.Errorf("variable %s: unsupported variable type: %s", v.Name, v.Type))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	for _, id := range b.order {
		doc.Nodes = append(doc.Nodes, b.nodes[id].Build())
	}
	return doc, nil
}
