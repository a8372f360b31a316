package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/nodeweave/pkg/domain"
)

// Overlay selects what runtime state is drawn on top of the structure.
type Overlay struct {
	// Status colors nodes by their execution status.
	Status bool
	// Variables annotates output ports with the variables they are bound to.
	Variables bool
}

// GenerateMermaid produces a Mermaid flowchart from the graph's nodes and connections.
// Shapes follow the node type family:
// - Manual input (text.input, approval): [/Parallelogram/]
// - AI: [[Subroutine]]
// - Variable access: [(Cylinder)]
// - Default: [Rectangle]
func GenerateMermaid(nodes []domain.Node, conns []domain.Connection, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	for _, node := range nodes {
		safeID := sanitizeMermaidID(node.ID)
		opener, closer := shape(node.Type)

		label := escape(node.Label())
		if label != node.ID {
			label = fmt.Sprintf("%s <br/> <small>%s · %s</small>", label, node.ID, node.Type)
		} else {
			label = fmt.Sprintf("%s <br/> <small>%s</small>", label, node.Type)
		}
		if overlay != nil && overlay.Variables {
			for _, port := range node.AllOutputs() {
				if name, ok := node.Bindings.OutputMappings[port]; ok && name != domain.NoOutput {
					label += fmt.Sprintf(" <br/> %s → $%s", port, escape(name))
				}
			}
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label, closer)
	}

	for _, c := range conns {
		arrow := fmt.Sprintf("-- \"%s\" -->", escape(c.From.Port))
		if c.From.Port != c.To.Port {
			arrow = fmt.Sprintf("-- \"%s → %s\" -->", escape(c.From.Port), escape(c.To.Port))
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(c.From.NodeID), arrow, sanitizeMermaidID(c.To.NodeID))
	}

	if overlay != nil && overlay.Status {
		sb.WriteString("\n    %% Status Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef success fill:#e8f5e9,stroke:#2e7d32,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef error fill:#ffebee,stroke:#c62828,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef waiting fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef executing fill:#e1f5fe,stroke:#01579b,stroke-width:4px,color:#000;\n")

		for _, node := range nodes {
			if node.Status == domain.StatusIdle || node.Status == "" {
				continue
			}
			fmt.Fprintf(&sb, "    class %s %s;\n", sanitizeMermaidID(node.ID), node.Status)
		}
	}

	return sb.String()
}

func shape(nodeType string) (string, string) {
	switch {
	case nodeType == "text.input" || nodeType == "approval":
		return "[/", "/]"
	case strings.HasPrefix(nodeType, "ai."):
		return "[[", "]]"
	case strings.HasPrefix(nodeType, "variable."):
		return "[(", ")]"
	default:
		return "[", "]"
	}
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
