package dsl

import "github.com/aretw0/nodeweave/pkg/domain"

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    domain.NodeDocument
	builder *Builder
}

// Label sets the display label.
func (n *NodeBuilder) Label(label string) *NodeBuilder {
	return n.Set("label", label)
}

// Set stores one configuration value.
func (n *NodeBuilder) Set(key string, value any) *NodeBuilder {
	n.node.Config[key] = value
	return n
}

// At places the node on the canvas.
func (n *NodeBuilder) At(x, y float64) *NodeBuilder {
	n.node.X, n.node.Y = x, y
	return n
}

// To connects an output port of this node to an input port of target.
func (n *NodeBuilder) To(fromPort, target, toPort string) *NodeBuilder {
	n.builder.conns = append(n.builder.conns, domain.NewConnection(
		domain.PortRef{NodeID: n.node.ID, Port: fromPort},
		domain.PortRef{NodeID: target, Port: toPort},
	))
	return n
}

// Read feeds an input port from a global variable.
func (n *NodeBuilder) Read(port, variable string) *NodeBuilder {
	n.node.Bindings.InputMappings[port] = variable
	return n
}

// Write mirrors an output port into a global variable.
func (n *NodeBuilder) Write(port, variable string) *NodeBuilder {
	n.node.Bindings.OutputMappings[port] = variable
	return n
}

// Discard keeps an output port out of the variable store.
func (n *NodeBuilder) Discard(port string) *NodeBuilder {
	return n.Write(port, domain.NoOutput)
}

// Blank forces an input port to resolve to nil.
func (n *NodeBuilder) Blank(port string) *NodeBuilder {
	return n.Read(port, domain.NoInput)
}

// Extra declares a custom port beyond the ones the node type defines.
// Input ports can then be bound with Read, outputs with Write.
func (n *NodeBuilder) Extra(input bool, port string) *NodeBuilder {
	if input {
		n.node.Bindings.CustomInputs = append(n.node.Bindings.CustomInputs, port)
	} else {
		n.node.Bindings.CustomOutputs = append(n.node.Bindings.CustomOutputs, port)
	}
	return n
}

// Join sets how repeated arrivals on one input port combine.
func (n *NodeBuilder) Join(mode domain.MultiInputMode) *NodeBuilder {
	n.node.Bindings.MultiInputMode = mode
	return n
}

// Parse transforms an output port before it is written to its variable.
func (n *NodeBuilder) Parse(port string, mode domain.ParseMode, config string) *NodeBuilder {
	if n.node.Bindings.OutputParse == nil {
		n.node.Bindings.OutputParse = map[string]domain.ParseConfig{}
	}
	n.node.Bindings.OutputParse[port] = domain.ParseConfig{Mode: mode, Config: config}
	return n
}

// Build returns a copy of the node document.
// This is primarily used by the Builder, but exposed for advanced usage.
func (n *NodeBuilder) Build() domain.NodeDocument {
	doc := n.node
	doc.Config = make(map[string]any, len(n.node.Config))
	for k, v := range n.node.Config {
		doc.Config[k] = v
	}
	bindings := n.node.Bindings.Clone()
	doc.Bindings = &bindings
	return doc
}
