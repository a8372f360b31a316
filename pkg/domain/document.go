package domain

// NodeConnections is the per-node view of connections in a persisted node.
type NodeConnections struct {
	Inputs  map[string]PortRef   `json:"inputs" yaml:"inputs"`
	Outputs map[string][]PortRef `json:"outputs" yaml:"outputs"`
}

// NodeDocument is the persisted shape of a node.
type NodeDocument struct {
	ID          string          `json:"id" yaml:"id"`
	Type        string          `json:"type" yaml:"type"`
	X           float64         `json:"x" yaml:"x"`
	Y           float64         `json:"y" yaml:"y"`
	Config      map[string]any  `json:"config" yaml:"config"`
	Connections NodeConnections `json:"connections" yaml:"connections"`
	Bindings    *BindingConfig  `json:"bindings,omitempty" yaml:"bindings,omitempty"`
}

// GraphDocument is the persisted shape of a graph.
// Variables is optional and only filled when the store contents travel with the graph.
type GraphDocument struct {
	Nodes       []NodeDocument `json:"nodes" yaml:"nodes"`
	Connections []Connection   `json:"connections" yaml:"connections"`
	Variables   []Variable     `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// Result is what an execution surfaces to the caller.
type Result struct {
	NodeID  string         `json:"node_id"`
	Status  Status         `json:"status"`
	Inputs  map[string]any `json:"inputs"`
	Outputs map[string]any `json:"outputs"`
	Error   string         `json:"error,omitempty"`
}
