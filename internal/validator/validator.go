package validator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/registry"
	"github.com/aretw0/nodeweave/pkg/walker"
)

// Report lists the problems found in a graph document.
// Errors make the document unloadable; warnings only affect execution.
type Report struct {
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// OK reports whether the document has no errors.
func (r *Report) OK() bool {
	return len(r.Errors) == 0
}

// Err folds the errors into one error, or returns nil.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("found %d errors:\n- %s", len(r.Errors), strings.Join(r.Errors, "\n- "))
}

func (r *Report) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ValidateGraph checks doc against the node types in reg.
//
// Errors: duplicate or empty node IDs, unknown node types, connections
// pointing at missing nodes or ports, and two connections into one input.
// Warnings: input mappings naming variables that nothing defines, output
// variables written by more than one node, and cycles, which a walk refuses.
func ValidateGraph(doc *domain.GraphDocument, reg *registry.Registry) *Report {
	r := &Report{}
	if doc == nil {
		r.errorf("document is empty")
		return r
	}

	type portSet struct {
		inputs, outputs map[string]bool
	}
	nodes := make(map[string]portSet, len(doc.Nodes))
	for _, nd := range doc.Nodes {
		if nd.ID == "" {
			r.errorf("node with type '%s' has no id", nd.Type)
			continue
		}
		if _, dup := nodes[nd.ID]; dup {
			r.errorf("duplicate node id '%s'", nd.ID)
			continue
		}
		ps := portSet{inputs: map[string]bool{}, outputs: map[string]bool{}}
		def, err := reg.Lookup(nd.Type)
		if err != nil {
			r.errorf("node '%s': unknown type '%s'", nd.ID, nd.Type)
		} else {
			for _, p := range def.Inputs {
				ps.inputs[p] = true
			}
			for _, p := range def.Outputs {
				ps.outputs[p] = true
			}
		}
		if nd.Bindings != nil {
			for _, p := range nd.Bindings.CustomInputs {
				ps.inputs[p] = true
			}
			for _, p := range nd.Bindings.CustomOutputs {
				ps.outputs[p] = true
			}
		}
		nodes[nd.ID] = ps
	}

	known := func(id string) (portSet, bool) {
		ps, ok := nodes[id]
		return ps, ok
	}

	fed := make(map[string]string)
	var edges []domain.Connection
	for _, c := range doc.Connections {
		from, okFrom := known(c.From.NodeID)
		to, okTo := known(c.To.NodeID)
		switch {
		case !okFrom:
			r.errorf("connection '%s': missing node '%s'", c.ID, c.From.NodeID)
			continue
		case !okTo:
			r.errorf("connection '%s': missing node '%s'", c.ID, c.To.NodeID)
			continue
		}
		// Ports of unknown types were already reported.
		if len(from.outputs) > 0 && !from.outputs[c.From.Port] {
			r.errorf("connection '%s': node '%s' has no output '%s'", c.ID, c.From.NodeID, c.From.Port)
		}
		if len(to.inputs) > 0 && !to.inputs[c.To.Port] {
			r.errorf("connection '%s': node '%s' has no input '%s'", c.ID, c.To.NodeID, c.To.Port)
		}
		target := c.To.NodeID + ":" + c.To.Port
		if prev, ok := fed[target]; ok {
			r.errorf("input '%s' is fed by both '%s' and '%s'", target, prev, c.ID)
		}
		fed[target] = c.ID
		edges = append(edges, c)
	}

	defined := make(map[string]bool)
	for _, v := range doc.Variables {
		defined[v.Name] = true
	}
	writers := make(map[string][]string)
	for _, nd := range doc.Nodes {
		if nd.Bindings == nil {
			continue
		}
		for _, name := range nd.Bindings.OutputMappings {
			if name == "" || name == domain.NoOutput {
				continue
			}
			defined[name] = true
			writers[name] = append(writers[name], nd.ID)
		}
	}
	for _, nd := range doc.Nodes {
		if nd.Bindings == nil {
			continue
		}
		for _, port := range sortedKeys(nd.Bindings.InputMappings) {
			name := nd.Bindings.InputMappings[port]
			if name == "" || name == domain.NoInput || defined[name] {
				continue
			}
			r.warnf("node '%s' input '%s' reads undefined variable '%s'", nd.ID, port, name)
		}
	}
	for _, name := range sortedKeys(writers) {
		if ids := writers[name]; len(ids) > 1 {
			r.warnf("variable '%s' is written by %s", name, strings.Join(ids, ", "))
		}
	}

	ids := make([]domain.Node, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, domain.Node{ID: id})
	}
	if _, err := walker.Levels(ids, edges); errors.Is(err, walker.ErrCycle) {
		r.warnf("%v", err)
	}

	return r
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
