package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestDiff(t *testing.T) {
	base := &GraphDocument{
		Nodes: []NodeDocument{
			{ID: "node_1", Type: "text.input", Config: map[string]any{"text": "hi"}},
			{ID: "node_2", Type: "ai.chat", X: 10, Y: 20},
		},
		Connections: []Connection{
			NewConnection(PortRef{"node_1", "text"}, PortRef{"node_2", "prompt"}),
		},
	}

	tests := []struct {
		name     string
		old      *GraphDocument
		new      *GraphDocument
		wantDiff *GraphDiff
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new:  base,
			wantDiff: &GraphDiff{
				AddedNodes:       []string{"node_1", "node_2"},
				AddedConnections: []string{"node_1:text->node_2:prompt"},
			},
		},
		{
			name:     "No Changes",
			old:      base,
			new:      base,
			wantDiff: nil,
		},
		{
			name: "Moved Node",
			old:  base,
			new: &GraphDocument{
				Nodes: []NodeDocument{
					{ID: "node_1", Type: "text.input", Config: map[string]any{"text": "hi"}},
					{ID: "node_2", Type: "ai.chat", X: 99, Y: 20},
				},
				Connections: base.Connections,
			},
			wantDiff: &GraphDiff{ChangedNodes: []string{"node_2"}},
		},
		{
			name: "Removed Node Cascades Connection",
			old:  base,
			new: &GraphDocument{
				Nodes: []NodeDocument{
					{ID: "node_1", Type: "text.input", Config: map[string]any{"text": "hi"}},
				},
			},
			wantDiff: &GraphDiff{
				RemovedNodes:       []string{"node_2"},
				RemovedConnections: []string{"node_1:text->node_2:prompt"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if !reflect.DeepEqual(got, tt.wantDiff) {
				gotJSON, _ := json.Marshal(got)
				wantJSON, _ := json.Marshal(tt.wantDiff)
				t.Errorf("Diff() = %s, want %s", gotJSON, wantJSON)
			}
		})
	}
}

func TestDiff_JSONShape(t *testing.T) {
	diff := Diff(nil, &GraphDocument{Nodes: []NodeDocument{{ID: "node_1", Type: "merge"}}})
	data, err := json.Marshal(diff)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"added_nodes":["node_1"]`) {
		t.Errorf("unexpected JSON: %s", s)
	}
	if strings.Contains(s, "removed_nodes") {
		t.Errorf("empty fields should be omitted: %s", s)
	}
}
