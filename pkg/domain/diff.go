package domain

import (
	"reflect"
	"sort"
)

// GraphDiff represents the structural changes between two graph documents.
// It is designed to be serialized to JSON for partial updates on the client.
type GraphDiff struct {
	AddedNodes   []string `json:"added_nodes,omitempty"`
	RemovedNodes []string `json:"removed_nodes,omitempty"`
	// ChangedNodes lists nodes whose type, position, config or bindings differ.
	ChangedNodes []string `json:"changed_nodes,omitempty"`

	AddedConnections   []string `json:"added_connections,omitempty"`
	RemovedConnections []string `json:"removed_connections,omitempty"`
}

// Diff calculates the difference between oldDoc and newDoc.
// If oldDoc is nil, everything in newDoc counts as added.
// It returns nil when the documents are structurally identical.
func Diff(oldDoc, newDoc *GraphDocument) *GraphDiff {
	if newDoc == nil {
		return nil
	}
	if oldDoc == nil {
		oldDoc = &GraphDocument{}
	}

	diff := &GraphDiff{}

	oldNodes := make(map[string]NodeDocument, len(oldDoc.Nodes))
	for _, n := range oldDoc.Nodes {
		oldNodes[n.ID] = n
	}
	newNodes := make(map[string]NodeDocument, len(newDoc.Nodes))
	for _, n := range newDoc.Nodes {
		newNodes[n.ID] = n
		prev, exists := oldNodes[n.ID]
		switch {
		case !exists:
			diff.AddedNodes = append(diff.AddedNodes, n.ID)
		case nodeChanged(prev, n):
			diff.ChangedNodes = append(diff.ChangedNodes, n.ID)
		}
	}
	for id := range oldNodes {
		if _, exists := newNodes[id]; !exists {
			diff.RemovedNodes = append(diff.RemovedNodes, id)
		}
	}

	oldConns := connectionSet(oldDoc.Connections)
	newConns := connectionSet(newDoc.Connections)
	for id := range newConns {
		if !oldConns[id] {
			diff.AddedConnections = append(diff.AddedConnections, id)
		}
	}
	for id := range oldConns {
		if !newConns[id] {
			diff.RemovedConnections = append(diff.RemovedConnections, id)
		}
	}

	if diff.IsEmpty() {
		return nil
	}
	for _, list := range [][]string{diff.AddedNodes, diff.RemovedNodes, diff.ChangedNodes, diff.AddedConnections, diff.RemovedConnections} {
		sort.Strings(list)
	}
	return diff
}

func nodeChanged(a, b NodeDocument) bool {
	if a.Type != b.Type || a.X != b.X || a.Y != b.Y {
		return true
	}
	if !reflect.DeepEqual(a.Config, b.Config) {
		return true
	}
	return !reflect.DeepEqual(a.Bindings, b.Bindings)
}

func connectionSet(conns []Connection) map[string]bool {
	set := make(map[string]bool, len(conns))
	for _, c := range conns {
		id := c.ID
		if id == "" {
			id = ConnectionID(c.From, c.To)
		}
		set[id] = true
	}
	return set
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *GraphDiff) IsEmpty() bool {
	return len(d.AddedNodes) == 0 &&
		len(d.RemovedNodes) == 0 &&
		len(d.ChangedNodes) == 0 &&
		len(d.AddedConnections) == 0 &&
		len(d.RemovedConnections) == 0
}
