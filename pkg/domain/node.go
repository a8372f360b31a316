package domain

import "time"

// Status is the execution state of a node.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusExecuting Status = "executing"
	StatusWaiting   Status = "waiting"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

// Busy reports whether a node in this status must reject a new execution.
func (s Status) Busy() bool {
	return s == StatusExecuting || s == StatusWaiting
}

// Position is the node's placement on the canvas. The core only stores it.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// PortRef addresses one port of one node.
type PortRef struct {
	NodeID string `json:"node_id" yaml:"node_id"`
	Port   string `json:"port" yaml:"port"`
}

// Arrival is a value delivered to an input port by an upstream execution
// and not yet consumed by the receiving node.
type Arrival struct {
	From  PortRef   `json:"from"`
	Value any       `json:"value"`
	At    time.Time `json:"at"`
}

// Node is an instance of a registered node type placed in the graph.
type Node struct {
	ID       string         `json:"id" yaml:"id"`
	Type     string         `json:"type" yaml:"type"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Position Position       `json:"position" yaml:"position"`

	Status Status `json:"status" yaml:"status"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`

	// InputPorts and OutputPorts are the ports declared by the node type.
	InputPorts  []string `json:"input_ports" yaml:"input_ports"`
	OutputPorts []string `json:"output_ports" yaml:"output_ports"`

	Inputs  map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs map[string]any `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	// InputConnections holds at most one upstream reference per input port.
	InputConnections map[string]PortRef `json:"input_connections,omitempty" yaml:"input_connections,omitempty"`
	// OutputConnections holds the ordered downstream references per output port.
	OutputConnections map[string][]PortRef `json:"output_connections,omitempty" yaml:"output_connections,omitempty"`

	Bindings BindingConfig `json:"bindings" yaml:"bindings"`

	Inbox map[string][]Arrival `json:"-" yaml:"-"`
}

// Label is the display name used when deriving variable names.
func (n *Node) Label() string {
	if l, ok := n.Config["label"].(string); ok && l != "" {
		return l
	}
	return n.ID
}

// AllInputs returns the declared input ports followed by custom ones.
func (n *Node) AllInputs() []string {
	return appendUnique(n.InputPorts, n.Bindings.CustomInputs)
}

// AllOutputs returns the declared output ports followed by custom ones.
func (n *Node) AllOutputs() []string {
	return appendUnique(n.OutputPorts, n.Bindings.CustomOutputs)
}

// HasInput reports whether port is a declared or custom input.
func (n *Node) HasInput(port string) bool {
	return contains(n.AllInputs(), port)
}

// HasOutput reports whether port is a declared or custom output.
func (n *Node) HasOutput(port string) bool {
	return contains(n.AllOutputs(), port)
}

// PrimaryOutput is the first declared output, or the first custom output.
func (n *Node) PrimaryOutput() string {
	outs := n.AllOutputs()
	if len(outs) == 0 {
		return ""
	}
	return outs[0]
}

// Clone returns a copy that shares no maps or slices with n.
// Values stored in Inputs, Outputs and Config are copied shallowly.
func (n *Node) Clone() Node {
	c := *n
	c.Config = copyMap(n.Config)
	c.Inputs = copyMap(n.Inputs)
	c.Outputs = copyMap(n.Outputs)
	c.InputPorts = append([]string(nil), n.InputPorts...)
	c.OutputPorts = append([]string(nil), n.OutputPorts...)
	c.InputConnections = make(map[string]PortRef, len(n.InputConnections))
	for k, v := range n.InputConnections {
		c.InputConnections[k] = v
	}
	c.OutputConnections = make(map[string][]PortRef, len(n.OutputConnections))
	for k, v := range n.OutputConnections {
		c.OutputConnections[k] = append([]PortRef(nil), v...)
	}
	c.Inbox = make(map[string][]Arrival, len(n.Inbox))
	for k, v := range n.Inbox {
		c.Inbox[k] = append([]Arrival(nil), v...)
	}
	c.Bindings = n.Bindings.Clone()
	return c
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func appendUnique(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, p := range list {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
