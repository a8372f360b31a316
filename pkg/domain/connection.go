package domain

import "fmt"

// Connection is a directed edge from an output port to an input port.
type Connection struct {
	ID   string  `json:"id" yaml:"id"`
	From PortRef `json:"from" yaml:"from"`
	To   PortRef `json:"to" yaml:"to"`
}

// ConnectionID derives the identity of the edge between two ports.
func ConnectionID(from, to PortRef) string {
	return fmt.Sprintf("%s:%s->%s:%s", from.NodeID, from.Port, to.NodeID, to.Port)
}

// NewConnection builds a connection with its derived ID.
func NewConnection(from, to PortRef) Connection {
	return Connection{ID: ConnectionID(from, to), From: from, To: to}
}
